package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/session"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session status on connect, then state changes, terminations, applied controls and frame rates",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-status":        session.Status{},
		"state-changed":         events.SessionStateChangedEvent{},
		"session-terminated":    events.SessionTerminatedEvent{},
		"control-applied":       events.ControlAppliedEvent{},
		"frame-rate":            events.FrameRateEvent{},
		"producer-connected":    events.ProducerConnectedEvent{},
		"producer-disconnected": events.ProducerDisconnectedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionTerminatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ControlAppliedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameRateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProducerConnectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProducerDisconnectedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(s.manager.Status()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
