package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures BreakerEmbedder.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial call is let through.
	Timeout time.Duration
	// HalfOpenMaxRequests is the number of trial calls allowed while half-open.
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig returns 5 failures, 30s open, 1 trial call.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxRequests: 1}
}

// BreakerEmbedder stops calling a failing provider for a while instead of
// letting every request wait on it. Rejected calls fail with ErrCircuitOpen.
type BreakerEmbedder struct {
	base    Embedder
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps base with a circuit breaker.
func NewBreakerEmbedder(base Embedder, cfg BreakerConfig, logger *slog.Logger) *BreakerEmbedder {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	settings := gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerEmbedder{base: base, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Embed calls the wrapped embedder through the breaker.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.base.Embed(ctx, text)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return res.([]float32), nil
}

// EmbedBatch calls the wrapped embedder through the breaker.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.base.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return res.([][]float32), nil
}

// Dimension delegates to the wrapped embedder.
func (b *BreakerEmbedder) Dimension() int {
	return b.base.Dimension()
}

// State returns the breaker state: "closed", "half-open" or "open".
func (b *BreakerEmbedder) State() string {
	return b.breaker.State().String()
}

func (b *BreakerEmbedder) mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w: %w", ErrCircuitOpen, ErrProvider, err)
	}
	return err
}
