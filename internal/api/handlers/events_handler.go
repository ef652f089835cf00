package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/events"
	"github.com/salesdata/backend/pkg/logger"
)

type EventsHandler struct {
	bus *events.Bus
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{
		bus: bus,
	}
}

// HandleConnection streams pipeline events to the client until it
// disconnects.
func (h *EventsHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Event stream connection established")

	id, ch := h.bus.Subscribe()
	defer func() {
		h.bus.Unsubscribe(id)
		c.Close()
		logger.Info("Event stream connection closed")
	}()

	// The read loop only exists to observe the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				logger.Debug("Failed to write event", zap.Error(err))
				return
			}
		}
	}
}
