package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coldtrack-sync/internal/backfill"
	"coldtrack-sync/internal/syncer"

	"go.uber.org/zap"
)

// Backfiller the orchestrator as seen by the trigger endpoint
type Backfiller interface {
	Run(ctx context.Context, req backfill.Request) (*backfill.Result, error)
	ParseDate(s string) (time.Time, error)
	Today() time.Time
}

// SchedulerStatus read side of the scheduler
type SchedulerStatus interface {
	State() syncer.State
	LastCycle() (syncer.CycleReport, bool)
}

// TriggerRequest body of POST /api/sync/trigger. Either date, or from/to.
type TriggerRequest struct {
	Date      string   `json:"date"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Devices   []string `json:"devices"`
	Summaries *bool    `json:"summaries"`
}

// StatusResponse result of GET /api/sync/status
type StatusResponse struct {
	State     string              `json:"state"`
	LastCycle *syncer.CycleReport `json:"last_cycle,omitempty"`
}

// SyncHandler manual trigger and scheduler status
type SyncHandler struct {
	backfill  Backfiller
	scheduler SchedulerStatus // nil when the process runs without a scheduler
	logger    *zap.Logger
}

func NewSyncHandler(b Backfiller, scheduler SchedulerStatus, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		backfill:  b,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (h *SyncHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

// Trigger runs a backfill synchronously and returns its counters, or the
// XLSX report with ?format=xlsx
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.backfill == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("live store not configured"))
		return
	}

	var body TriggerRequest
	if err := readBodyJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	h.logger.Info("Manual sync triggered",
		zap.Time("from", req.From),
		zap.Time("to", req.To),
		zap.Strings("devices", req.Devices),
		zap.Bool("summaries", req.Summaries),
	)

	result, err := h.backfill.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backfill.ErrInvalidRange) {
			status = http.StatusBadRequest
		}
		h.logger.Error("Manual sync failed", zap.Error(err))
		writeJSON(w, status, Fail(err.Error()))
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		data, err := backfill.WriteReport(result)
		if err != nil {
			h.logger.Error("Failed to render sync report", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to render report"))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=coldtrack-sync-%s_%s.xlsx", result.From, result.To))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, Success("sync completed", result))
}

func (h *SyncHandler) toRequest(body TriggerRequest) (backfill.Request, error) {
	req := backfill.Request{Devices: body.Devices, Summaries: true}
	if body.Summaries != nil {
		req.Summaries = *body.Summaries
	}

	switch {
	case body.Date != "":
		if body.From != "" || body.To != "" {
			return req, fmt.Errorf("date cannot be combined with from/to")
		}
		d, err := h.backfill.ParseDate(body.Date)
		if err != nil {
			return req, err
		}
		req.From, req.To = d, d
	case body.From != "":
		from, err := h.backfill.ParseDate(body.From)
		if err != nil {
			return req, err
		}
		to := from
		if body.To != "" {
			if to, err = h.backfill.ParseDate(body.To); err != nil {
				return req, err
			}
		}
		req.From, req.To = from, to
	case body.To != "":
		return req, fmt.Errorf("to requires from")
	default:
		today := h.backfill.Today()
		req.From, req.To = today, today
	}
	return req, nil
}

// Status scheduler state and last cycle counters
func (h *SyncHandler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{State: syncer.StateStopped.String()}
	if h.scheduler != nil {
		resp.State = h.scheduler.State().String()
		if last, ok := h.scheduler.LastCycle(); ok {
			resp.LastCycle = &last
		}
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
