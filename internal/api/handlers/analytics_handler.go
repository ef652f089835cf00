package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/cache/redis"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

// AnalyticsHandler serves the read side. The redis cache is optional; a nil
// cache disables it.
type AnalyticsHandler struct {
	db    *sqlite.Client
	cache *redis.Client
}

func NewAnalyticsHandler(db *sqlite.Client, cache *redis.Client) *AnalyticsHandler {
	return &AnalyticsHandler{
		db:    db,
		cache: cache,
	}
}

func parseDateParam(c *fiber.Ctx) (string, bool) {
	date := c.Params("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", false
	}
	return date, true
}

func (h *AnalyticsHandler) cached(c *fiber.Ctx, resource, date string) bool {
	if h.cache == nil {
		return false
	}

	var response map[string]interface{}
	hit, err := h.cache.GetAnalytics(c.Context(), resource, date, &response)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.String("resource", resource), zap.Error(err))
		return false
	}
	if !hit {
		return false
	}

	c.JSON(response)
	return true
}

func (h *AnalyticsHandler) store(c *fiber.Ctx, resource, date string, response fiber.Map) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetAnalytics(c.Context(), resource, date, response); err != nil {
		logger.Warn("Cache store failed", zap.String("resource", resource), zap.Error(err))
	}
}

func (h *AnalyticsHandler) GetAnalytics(c *fiber.Ctx) error {
	date, ok := parseDateParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	if h.cached(c, "analytics", date) {
		return nil
	}

	company, err := h.db.GetCompanyMetrics(date)
	if err != nil {
		logger.Error("Failed to get company metrics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get analytics",
		})
	}
	if company == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No analytics for date",
		})
	}

	products, err := h.db.GetProductMetrics(date)
	if err != nil {
		logger.Error("Failed to get product metrics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get analytics",
		})
	}

	response := fiber.Map{
		"date":            date,
		"company_metrics": company,
		"product_metrics": products,
	}
	h.store(c, "analytics", date, response)

	return c.JSON(response)
}

func (h *AnalyticsHandler) GetSummaries(c *fiber.Ctx) error {
	date, ok := parseDateParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	if h.cached(c, "summaries", date) {
		return nil
	}

	summaries, err := h.db.GetStoreSummaries(date)
	if err != nil {
		logger.Error("Failed to get store summaries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get summaries",
		})
	}

	response := fiber.Map{
		"date":      date,
		"count":     len(summaries),
		"summaries": summaries,
	}
	h.store(c, "summaries", date, response)

	return c.JSON(response)
}

func (h *AnalyticsHandler) GetInsights(c *fiber.Ctx) error {
	date, ok := parseDateParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date, expected YYYY-MM-DD",
		})
	}

	if h.cached(c, "insights", date) {
		return nil
	}

	insights, err := h.db.GetInsights(date)
	if err != nil {
		logger.Error("Failed to get insights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get insights",
		})
	}

	response := fiber.Map{
		"date":     date,
		"count":    len(insights),
		"insights": insights,
	}
	h.store(c, "insights", date, response)

	return c.JSON(response)
}

func (h *AnalyticsHandler) GetDates(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 90)

	dates, err := h.db.ListAvailableDates(limit)
	if err != nil {
		logger.Error("Failed to list dates", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list dates",
		})
	}

	return c.JSON(fiber.Map{
		"dates": dates,
	})
}
