package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/events"
	"github.com/salesdata/backend/internal/gate"
	"github.com/salesdata/backend/internal/ingestion"
	"github.com/salesdata/backend/internal/orchestrator"
	"github.com/salesdata/backend/pkg/logger"
)

type UploadHandler struct {
	processor    *ingestion.Processor
	gate         *gate.Gate
	orchestrator *orchestrator.Orchestrator
	bus          *events.Bus
}

func NewUploadHandler(processor *ingestion.Processor, g *gate.Gate, orch *orchestrator.Orchestrator, bus *events.Bus) *UploadHandler {
	return &UploadHandler{
		processor:    processor,
		gate:         g,
		orchestrator: orch,
		bus:          bus,
	}
}

// HandleUpload ingests one store's daily file. When the upload completes the
// expected set for its date, the analysis run is triggered in the background;
// the response never waits on it.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	var req struct {
		Filename     string          `json:"filename"`
		Transactions json.RawMessage `json:"transactions"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Filename is required",
		})
	}
	if len(req.Transactions) == 0 {
		req.Transactions = json.RawMessage("[]")
	}

	result, err := h.processor.Ingest(req.Filename, req.Transactions)
	if err != nil {
		logger.Error("Failed to process upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process upload",
		})
	}

	if result.Status == ingestion.StatusRejected {
		h.bus.Publish(events.Event{
			Type:   events.UploadRejected,
			Detail: result.Detail,
		})
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}

	h.bus.Publish(events.Event{
		Type:    events.UploadProcessed,
		Date:    result.Date,
		StoreID: result.StoreID,
	})

	status, err := h.gate.Check(result.Date)
	if err != nil {
		logger.Error("Completion check failed", zap.String("date", result.Date), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check completion status",
		})
	}

	if status.Complete {
		h.bus.Publish(events.Event{
			Type: events.GateComplete,
			Date: result.Date,
		})
		// Detached from the request: the run claim deduplicates concurrent
		// triggers for the same date.
		go func(date string) {
			if _, err := h.orchestrator.Run(context.Background(), date); err != nil {
				logger.Error("Triggered analysis run failed", zap.String("date", date), zap.Error(err))
			}
		}(result.Date)
	}

	return c.JSON(fiber.Map{
		"result": result,
		"gate":   status,
	})
}
