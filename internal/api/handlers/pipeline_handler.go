package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/gate"
	"github.com/salesdata/backend/internal/orchestrator"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

type PipelineHandler struct {
	db           *sqlite.Client
	gate         *gate.Gate
	orchestrator *orchestrator.Orchestrator
}

func NewPipelineHandler(db *sqlite.Client, g *gate.Gate, orch *orchestrator.Orchestrator) *PipelineHandler {
	return &PipelineHandler{
		db:           db,
		gate:         g,
		orchestrator: orch,
	}
}

// TriggerRun starts the date's analysis in the background. A date whose run
// already succeeded comes back as skipped when its state is queried.
func (h *PipelineHandler) TriggerRun(c *fiber.Ctx) error {
	date, ok := parseDateParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	go func() {
		if _, err := h.orchestrator.Run(context.Background(), date); err != nil {
			logger.Error("Manual analysis run failed", zap.String("date", date), zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"date":   date,
		"status": "triggered",
	})
}

func (h *PipelineHandler) GetRun(c *fiber.Ctx) error {
	date, ok := parseDateParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	run, err := h.db.GetRun(date)
	if err != nil {
		logger.Error("Failed to get run state", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get run state",
		})
	}

	status, err := h.gate.Check(date)
	if err != nil {
		logger.Error("Completion check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check completion status",
		})
	}

	if run == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No analysis run for date",
			"gate":  status,
		})
	}

	return c.JSON(fiber.Map{
		"run":  run,
		"gate": status,
	})
}
