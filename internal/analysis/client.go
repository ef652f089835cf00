package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/pkg/circuitbreaker"
	"github.com/salesdata/backend/pkg/logger"
	"github.com/salesdata/backend/pkg/retry"
)

const (
	historicalDays = 7
	// Anomaly detection needs at least this many days of history for one
	// store to produce meaningful deviations.
	minHistoryDays = 3
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec, maxAttempts int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("analysis", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    maxAttempts,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 60
	}

	logger.Info("Analysis client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// classify wraps non-retryable model errors as permanent so the retry policy
// only spends attempts on throttling, server errors, and timeouts.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return err
		}
		return retry.Permanent(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return err
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{
							Role:    openai.ChatMessageRoleUser,
							Content: prompt,
						},
					},
					Temperature: temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return classify(fmt.Errorf("failed to create completion: %w", err))
			}

			metrics.ModelTokensUsed.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.ModelTokensUsed.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("Model completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return "", err
	}

	return content, nil
}

// DetectAnomalies compares each store's day against its trailing history and
// asks the model to flag deviations. With no store carrying enough history it
// returns an empty set without calling the model.
func (c *Client) DetectAnomalies(ctx context.Context, date string, summaries []models.StoreSummary, history map[string][]models.StoreSummary, company *models.CompanyMetrics) ([]models.Anomaly, error) {
	stats := computeHistoryStats(history)

	storesWithHistory := 0
	for _, s := range stats {
		if s.Days >= minHistoryDays {
			storesWithHistory++
		}
	}

	if storesWithHistory == 0 {
		logger.Info("Skipping anomaly detection, insufficient history",
			zap.String("date", date),
			zap.Int("minimum_days_required", minHistoryDays),
		)
		return nil, nil
	}

	prompt := buildAnomalyPrompt(date, summaries, company, stats)

	content, err := c.complete(ctx, prompt, 0.3)
	if err != nil {
		return nil, fmt.Errorf("anomaly detection failed: %w", err)
	}

	anomalies := parseAnomalies(content)

	logger.Info("Anomaly detection complete",
		zap.String("date", date),
		zap.Int("anomaly_count", len(anomalies)),
		zap.Int("stores_with_history", storesWithHistory),
	)

	return anomalies, nil
}

func (c *Client) AnalyzeTrends(ctx context.Context, date string, summaries []models.StoreSummary, history map[string][]models.StoreSummary, company *models.CompanyMetrics) ([]models.Trend, error) {
	prompt := buildTrendPrompt(date, summaries, company, computeHistoryStats(history))

	content, err := c.complete(ctx, prompt, 0.3)
	if err != nil {
		return nil, fmt.Errorf("trend analysis failed: %w", err)
	}

	trends := parseTrends(content)

	logger.Info("Trend analysis complete",
		zap.String("date", date),
		zap.Int("trend_count", len(trends)),
	)

	return trends, nil
}

func (c *Client) GenerateRecommendations(ctx context.Context, date string, anomalies []models.Anomaly, trends []models.Trend, company *models.CompanyMetrics) ([]models.Recommendation, error) {
	if company == nil {
		return nil, nil
	}

	prompt := buildRecommendationPrompt(date, anomalies, trends, company)

	content, err := c.complete(ctx, prompt, 0.4)
	if err != nil {
		return nil, fmt.Errorf("recommendation generation failed: %w", err)
	}

	recommendations := parseRecommendations(content)
	sortByPriority(recommendations)

	logger.Info("Recommendation generation complete",
		zap.String("date", date),
		zap.Int("recommendation_count", len(recommendations)),
	)

	return recommendations, nil
}

func sortByPriority(recs []models.Recommendation) {
	order := map[string]int{"high": 0, "medium": 1, "low": 2}
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			a, ok := order[recs[j-1].Priority]
			if !ok {
				a = 3
			}
			b, ok := order[recs[j].Priority]
			if !ok {
				b = 3
			}
			if b < a {
				recs[j-1], recs[j] = recs[j], recs[j-1]
			} else {
				break
			}
		}
	}
}

// extractJSON strips markdown code fences the model sometimes wraps around
// its JSON payload.
func extractJSON(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(content)
}

func parseAnomalies(content string) []models.Anomaly {
	var payload struct {
		Anomalies []models.Anomaly `json:"anomalies"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		logger.Warn("Failed to parse anomaly response",
			zap.Error(err),
			zap.String("response_preview", preview(content)),
		)
		return nil
	}
	return payload.Anomalies
}

func parseTrends(content string) []models.Trend {
	var payload struct {
		Trends []models.Trend `json:"trends"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		logger.Warn("Failed to parse trend response",
			zap.Error(err),
			zap.String("response_preview", preview(content)),
		)
		return nil
	}
	return payload.Trends
}

func parseRecommendations(content string) []models.Recommendation {
	var payload struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		logger.Warn("Failed to parse recommendation response",
			zap.Error(err),
			zap.String("response_preview", preview(content)),
		)
		return nil
	}
	return payload.Recommendations
}

func preview(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
