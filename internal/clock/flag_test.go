package clock

import "testing"

func TestSourceFlagString(t *testing.T) {
	cases := map[SourceFlag]string{
		FlagNew:      "new",
		FlagStarting: "starting",
		FlagAborted:  "aborted",
		FlagActive:   "active",
		FlagOld:      "old",
		SourceFlag(99): "unknown",
	}
	for flag, want := range cases {
		if got := flag.String(); got != want {
			t.Errorf("SourceFlag(%d).String() = %q, want %q", flag, got, want)
		}
	}
}
