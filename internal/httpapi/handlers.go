package httpapi

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/harbor"
)

// syncReporter is implemented by Wallclock/SelfSyncWallclock. A plain
// clock.Clock has no pacing mode to report. The registry hands out the
// base *clock.Clock of every clock, wallclocks included, so clockSync
// returns nil and the sync field is omitted for every clock.
type syncReporter interface {
	IsSync() bool
}

func clockSync(c *clock.Clock) *bool {
	if sr, ok := any(c).(syncReporter); ok {
		v := sr.IsSync()
		return &v
	}
	return nil
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	version   string
	startedAt time.Time
}

// NewHealthHandler builds a health handler reporting version and uptime
// since process start.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startedAt: time.Now()}
}

// Register wires the health operation into api.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealthz",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Liveness and readiness probe",
		Tags:        []string{"System"},
	}, h.GetHealthz)
}

// HealthInput is empty: the probe takes no parameters.
type HealthInput struct{}

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HealthOutput wraps HealthResponse for huma.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealthz always reports healthy: the process being able to answer is
// the check.
func (h *HealthHandler) GetHealthz(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	return &HealthOutput{Body: HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}}, nil
}

// ClockHandler serves the /api/clocks introspection endpoints, reading
// the process-wide weak clock registry (§4.6).
type ClockHandler struct{}

// NewClockHandler builds a clock introspection handler.
func NewClockHandler() *ClockHandler { return &ClockHandler{} }

// Register wires the clock operations into api.
func (h *ClockHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listClocks",
		Method:      "GET",
		Path:        "/api/clocks",
		Summary:     "List registered clocks",
		Tags:        []string{"Clocks"},
	}, h.ListClocks)

	huma.Register(api, huma.Operation{
		OperationID: "getClock",
		Method:      "GET",
		Path:        "/api/clocks/{id}",
		Summary:     "Get a single clock's detail, including its outputs",
		Tags:        []string{"Clocks"},
	}, h.GetClock)
}

// ClockSummary is one row of GET /api/clocks.
type ClockSummary struct {
	ID          string `json:"id"`
	Round       uint64 `json:"round"`
	OutputCount int    `json:"output_count"`
	Sync        *bool  `json:"sync,omitempty"`
}

// ListClocksInput is empty.
type ListClocksInput struct{}

// ListClocksOutput wraps the clock summary list.
type ListClocksOutput struct {
	Body struct {
		Clocks []ClockSummary `json:"clocks"`
	}
}

// ListClocks returns a summary of every live clock in the registry.
func (h *ClockHandler) ListClocks(_ context.Context, _ *ListClocksInput) (*ListClocksOutput, error) {
	live := clock.Live()
	out := &ListClocksOutput{}
	out.Body.Clocks = make([]ClockSummary, 0, len(live))
	for _, c := range live {
		out.Body.Clocks = append(out.Body.Clocks, ClockSummary{
			ID:          c.ID,
			Round:       c.GetTick(),
			OutputCount: c.OutputCount(),
			Sync:        clockSync(c),
		})
	}
	return out, nil
}

// OutputSummary is one entry of a clock's output list.
type OutputSummary struct {
	SourceID string `json:"source_id"`
	Flag     string `json:"flag"`
}

// ClockDetail is the full response body of GET /api/clocks/{id}.
type ClockDetail struct {
	ClockSummary
	Outputs []OutputSummary `json:"outputs"`
}

// GetClockInput carries the path-bound clock id.
type GetClockInput struct {
	ID string `path:"id" doc:"Clock id"`
}

// GetClockOutput wraps ClockDetail.
type GetClockOutput struct {
	Body ClockDetail
}

// GetClock returns one clock's full detail, or 404 if no live clock with
// that id is registered.
func (h *ClockHandler) GetClock(_ context.Context, in *GetClockInput) (*GetClockOutput, error) {
	for _, c := range clock.Live() {
		if c.ID != in.ID {
			continue
		}
		detail := ClockDetail{
			ClockSummary: ClockSummary{
				ID:          c.ID,
				Round:       c.GetTick(),
				OutputCount: c.OutputCount(),
				Sync:        clockSync(c),
			},
		}
		for _, o := range c.Outputs() {
			detail.Outputs = append(detail.Outputs, OutputSummary{
				SourceID: o.SourceID,
				Flag:     o.Flag.String(),
			})
		}
		return &GetClockOutput{Body: detail}, nil
	}
	return nil, huma.Error404NotFound("no clock registered with id " + in.ID)
}

// HarborHandler serves the harbor telemetry commands (status/stop/kick)
// over HTTP, backed by the registry's live sources.
type HarborHandler struct {
	registry *harbor.Registry
}

// NewHarborHandler builds a harbor telemetry handler over registry.
func NewHarborHandler(registry *harbor.Registry) *HarborHandler {
	return &HarborHandler{registry: registry}
}

// Register wires the harbor telemetry operations into api.
func (h *HarborHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHarborStatus",
		Method:      "GET",
		Path:        "/api/harbor/{mount}/status",
		Summary:     "Harbor source status telemetry command",
		Tags:        []string{"Harbor"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "postHarborStop",
		Method:      "POST",
		Path:        "/api/harbor/{mount}/stop",
		Summary:     "Harbor source stop telemetry command",
		Tags:        []string{"Harbor"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "postHarborKick",
		Method:      "POST",
		Path:        "/api/harbor/{mount}/kick",
		Summary:     "Harbor source kick telemetry command",
		Tags:        []string{"Harbor"},
	}, h.Kick)
}

// MountInput carries the path-bound mountpoint name shared by all three
// harbor telemetry operations.
type MountInput struct {
	Mount string `path:"mount" doc:"Harbor mountpoint"`
}

// HarborStatusOutput wraps the status telemetry string.
type HarborStatusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Status returns the source's status telemetry string, or 404 if no
// source has been created for the mountpoint.
func (h *HarborHandler) Status(_ context.Context, in *MountInput) (*HarborStatusOutput, error) {
	s, ok := h.registry.Get(in.Mount)
	if !ok {
		return nil, huma.Error404NotFound("no harbor source for mount " + in.Mount)
	}
	out := &HarborStatusOutput{}
	out.Body.Status = s.Status()
	return out, nil
}

// HarborActionOutput wraps an acknowledgement for stop/kick.
type HarborActionOutput struct {
	Body struct {
		Result string `json:"result"`
	}
}

// Stop disconnects the mount's current client.
func (h *HarborHandler) Stop(_ context.Context, in *MountInput) (*HarborActionOutput, error) {
	s, ok := h.registry.Get(in.Mount)
	if !ok {
		return nil, huma.Error404NotFound("no harbor source for mount " + in.Mount)
	}
	if err := s.Stop(); err != nil {
		return nil, huma.Error500InternalServerError("stopping harbor source", err)
	}
	out := &HarborActionOutput{}
	out.Body.Result = "stopped"
	return out, nil
}

// Kick disconnects the mount's current client, identically to Stop; the
// two remain separate operations to mirror the harbor telemetry
// protocol's distinct commands (§6).
func (h *HarborHandler) Kick(_ context.Context, in *MountInput) (*HarborActionOutput, error) {
	s, ok := h.registry.Get(in.Mount)
	if !ok {
		return nil, huma.Error404NotFound("no harbor source for mount " + in.Mount)
	}
	if err := s.Kick(); err != nil {
		return nil, huma.Error500InternalServerError("kicking harbor source", err)
	}
	out := &HarborActionOutput{}
	out.Body.Result = "kicked"
	return out, nil
}
