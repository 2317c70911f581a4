package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/gateway/repository"
	"github.com/tinunadno/stm32-emulator/internal/gateway/service"
	"github.com/tinunadno/stm32-emulator/internal/gateway/sse"
)

// EventsHandler streams job events to SSE clients, bridging the KeyDB
// pub/sub channel into the broker.
type EventsHandler struct {
	jobService service.JobService
	broker     *sse.Broker
	keyDB      *repository.KeyDBRepository
	logger     *log.Logger
}

// NewEventsHandler returns an events handler.
func NewEventsHandler(jobService service.JobService, broker *sse.Broker,
	keyDB *repository.KeyDBRepository, logger *log.Logger) *EventsHandler {

	return &EventsHandler{
		jobService: jobService,
		broker:     broker,
		keyDB:      keyDB,
		logger:     logger,
	}
}

// StreamEvents handles GET /v1/jobs/{job_id}/events.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	// First subscriber starts the bridge from KeyDB pub/sub into the broker.
	if h.broker.Subscribers(jobID) == 0 {
		go h.bridge(r.Context(), jobID)
	}

	sseClients.Inc()
	defer sseClients.Dec()

	h.broker.Handler(func(*http.Request) string { return jobID })(w, r)
}

// bridge relays KeyDB events for a job into the SSE broker until the
// subscription drops or the context ends.
func (h *EventsHandler) bridge(ctx context.Context, jobID string) {
	sub := h.keyDB.SubscribeEvents(ctx, jobID)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := h.broker.PublishJSON(jobID, "message", msg.Payload); err != nil {
				h.logger.Debug("Dropping undeliverable event",
					log.String("job_id", jobID), log.Err(err))
			}
		}
	}
}
