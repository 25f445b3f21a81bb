package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/alhassanaraouf/the360insights-sub001/internal/config"
	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
)

// StrategyClient generates rank-up strategy plans through the Claude API. All
// failures are recoverable by the calculator's deterministic fallback, so the
// client reports errors rather than degrading silently.
type StrategyClient struct {
	httpClient     *http.Client
	cache          *CacheService
	logger         *logrus.Logger
	apiKey         string
	baseURL        string
	model          string
	rateLimiter    *time.Ticker
	circuitBreaker *gobreaker.CircuitBreaker
	retryAttempts  int
	mu             sync.Mutex
}

// claudeMessage represents a message in the conversation
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeRequest represents the request payload for the messages API
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
}

// claudeResponse represents the response from the messages API
type claudeResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role"`
	Content    []claudeContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStrategyClient creates a strategy-generation client with rate limiting
// and a circuit breaker.
func NewStrategyClient(cfg *config.Config, logger *logrus.Logger) *StrategyClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "strategy-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Strategy API circuit breaker state changed")
		},
	})

	interval := time.Minute
	if cfg.AIRateLimit > 0 {
		interval = time.Minute / time.Duration(cfg.AIRateLimit)
	}

	return &StrategyClient{
		httpClient: &http.Client{
			// Strategy generation has been observed to take tens of seconds
			Timeout: cfg.StrategyTimeout,
		},
		logger:         logger,
		apiKey:         cfg.AnthropicAPIKey,
		baseURL:        "https://api.anthropic.com/v1",
		model:          cfg.StrategyModel,
		rateLimiter:    time.NewTicker(interval),
		circuitBreaker: cb,
		retryAttempts:  3,
	}
}

// SetCacheService wires the optional prompt-hash response cache.
func (c *StrategyClient) SetCacheService(cache *CacheService) {
	c.cache = cache
}

// GenerateStrategy asks the AI service for a strategy plan covering the given
// candidates and point deficit. The response is defensively coerced into a
// fully populated StrategyPlan; any transport or parse failure is returned for
// the caller's fallback path.
func (c *StrategyClient) GenerateStrategy(ctx context.Context, req *StrategyRequest) (*models.StrategyPlan, error) {
	prompt, systemPrompt := buildStrategyPrompt(req)
	promptHash := hashPrompt(prompt)

	if c.cache != nil {
		if req.ForceRefresh {
			if err := c.cache.InvalidateStrategyResponse(promptHash); err != nil {
				c.logger.WithError(err).Debug("Failed to invalidate strategy response")
			}
		} else {
			var cached models.StrategyPlan
			if err := c.cache.GetStrategyResponse(promptHash, &cached); err == nil {
				c.logger.WithField("prompt_hash", promptHash).Debug("Strategy response cache hit")
				return &cached, nil
			}
		}
	}

	request := claudeRequest{
		Model:       c.model,
		MaxTokens:   3000,
		Temperature: 0.5,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
		System: systemPrompt,
	}

	response, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.makeRequest(ctx, request)
	})
	if err != nil {
		return nil, fmt.Errorf("strategy API request failed: %w", err)
	}

	resp := response.(*claudeResponse)

	var aiText string
	for _, content := range resp.Content {
		if content.Type == "text" {
			aiText += content.Text
		}
	}

	plan, err := decodeStrategyPlan(aiText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode strategy response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"model":         resp.Model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
		"priorities":    len(plan.PriorityCompetitions),
	}).Info("Strategy plan generated")

	if c.cache != nil {
		if err := c.cache.SetStrategyResponse(promptHash, plan); err != nil {
			c.logger.WithError(err).Debug("Failed to cache strategy response")
		}
	}

	return plan, nil
}

// makeRequest handles the actual HTTP request with retries
func (c *StrategyClient) makeRequest(ctx context.Context, request claudeRequest) (*claudeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.rateLimiter.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(requestBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var apiResp claudeResponse
			err := json.NewDecoder(resp.Body).Decode(&apiResp)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			return &apiResp, nil
		}

		var apiErr claudeError
		decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = fmt.Errorf("API request failed with status %d", resp.StatusCode)
			continue
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("invalid API credentials: %s", apiErr.Message)
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded: %s", apiErr.Message)
		case http.StatusBadRequest:
			return nil, fmt.Errorf("bad request: %s", apiErr.Message)
		case http.StatusInternalServerError:
			lastErr = fmt.Errorf("strategy API error: %s", apiErr.Message)
		default:
			lastErr = fmt.Errorf("unexpected error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// IsHealthy checks if the strategy client is healthy
func (c *StrategyClient) IsHealthy() bool {
	return c.circuitBreaker.State() == gobreaker.StateClosed
}

// CircuitBreakerState returns the current circuit breaker state
func (c *StrategyClient) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

func hashPrompt(prompt string) string {
	hash := md5.Sum([]byte(prompt))
	return fmt.Sprintf("%x", hash)[:12]
}
