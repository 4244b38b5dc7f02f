// Package ratelimit paces requests per provider and detects when a provider
// starts refusing them.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"historical-imagery/internal/common"
)

var ErrRateLimited = errors.New("rate limited")

// Error is returned for a response that signals rate limiting
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return ErrRateLimited
}

// RateLimitEvent represents a rate limit occurrence
type RateLimitEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider"`   // "google_earth" or "esri_wayback"
	StatusCode int       `json:"statusCode"` // HTTP status code (403, 429, etc.)
	Count      int       `json:"count"`      // responses refused since the last success
	Message    string    `json:"message"`
}

// Handler paces outgoing requests and tracks rate limit state per provider
type Handler struct {
	mu          sync.RWMutex
	rateLimited map[string]*RateLimitEvent // provider -> current rate limit state
	limiters    map[string]*rate.Limiter
	onRateLimit func(event RateLimitEvent)
	onRecovered func(provider string)
}

// NewHandler creates a handler with no pacing configured
func NewHandler() *Handler {
	return &Handler{
		rateLimited: make(map[string]*RateLimitEvent),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// SetRate limits provider to perSecond requests; zero or less removes the limit
func (h *Handler) SetRate(provider string, perSecond float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if perSecond <= 0 {
		delete(h.limiters, provider)
		return
	}
	burst := max(1, int(perSecond))
	h.limiters[provider] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Wait blocks until provider may send another request
func (h *Handler) Wait(ctx context.Context, provider string) error {
	if h == nil {
		return ctx.Err()
	}
	h.mu.RLock()
	limiter := h.limiters[provider]
	h.mu.RUnlock()
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// SetOnRateLimit sets the callback for rate limit events
func (h *Handler) SetOnRateLimit(callback func(event RateLimitEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRateLimit = callback
}

// SetOnRecovered sets the callback for recovery from rate limit
func (h *Handler) SetOnRecovered(callback func(provider string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecovered = callback
}

// IsRateLimited checks if a provider is currently rate limited
func (h *Handler) IsRateLimited(provider string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, limited := h.rateLimited[provider]
	return limited
}

// CheckResponse returns an *Error when resp signals rate limiting and
// clears the provider's state otherwise
func (h *Handler) CheckResponse(provider string, resp *http.Response) error {
	if h == nil {
		return nil
	}
	isRateLimited := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusForbidden || // Google uses this for rate limits
		resp.StatusCode == 509 // Bandwidth Limit Exceeded

	if !isRateLimited {
		h.checkRecovery(provider)
		return nil
	}

	event := h.recordRateLimit(provider, resp.StatusCode)
	return &Error{Provider: provider, StatusCode: resp.StatusCode, Message: event.Message}
}

func (h *Handler) recordRateLimit(provider string, statusCode int) RateLimitEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 1
	if existing, exists := h.rateLimited[provider]; exists {
		count = existing.Count + 1
	}

	event := RateLimitEvent{
		Timestamp:  time.Now(),
		Provider:   provider,
		StatusCode: statusCode,
		Count:      count,
		Message:    buildMessage(provider, statusCode),
	}
	h.rateLimited[provider] = &event

	if count == 1 {
		log.Printf("[RateLimit] %s rate limited (HTTP %d)", provider, statusCode)
		if h.onRateLimit != nil {
			go h.onRateLimit(event)
		}
	}
	return event
}

func (h *Handler) checkRecovery(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rateLimited[provider]; exists {
		delete(h.rateLimited, provider)
		log.Printf("[RateLimit] %s rate limit cleared", provider)

		if h.onRecovered != nil {
			go h.onRecovered(provider)
		}
	}
}

// GetCurrentState returns a copy of the rate limit state for a provider
func (h *Handler) GetCurrentState(provider string) *RateLimitEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event, exists := h.rateLimited[provider]; exists {
		eventCopy := *event
		return &eventCopy
	}
	return nil
}

func buildMessage(provider string, statusCode int) string {
	providerName := common.DisplayNameGoogleEarth
	if provider == common.ProviderEsriWayback {
		providerName = common.DisplayNameEsriWayback
	}
	return fmt.Sprintf("%s rate limit detected (HTTP %d); lower the concurrency or try again later (recommended: 30+ minutes)",
		providerName, statusCode)
}
