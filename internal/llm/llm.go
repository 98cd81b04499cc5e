package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrNoProviders     = errors.New("no completion providers configured")
	ErrEmptyCompletion = errors.New("empty completion")
)

type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider is a single text-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Observer receives one call per completion attempt.
type Observer interface {
	ObserveCompletion(provider string, elapsed time.Duration, err error)
}

type Result struct {
	Text     string
	Provider string
}

// Chain tries its providers in order and stops at the first one that returns
// non-empty text.
type Chain struct {
	providers []Provider
	observer  Observer
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) WithObserver(o Observer) *Chain {
	c.observer = o
	return c
}

func (c *Chain) Len() int {
	return len(c.providers)
}

func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Complete returns the first successful completion. When every provider
// fails, the returned Result still names the last provider attempted and the
// error joins every failure.
func (c *Chain) Complete(ctx context.Context, req Request) (Result, error) {
	if len(c.providers) == 0 {
		return Result{}, ErrNoProviders
	}

	var (
		errs []error
		last string
	)
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		last = p.Name()
		text, err := c.tryComplete(ctx, p, req)
		if err == nil {
			return Result{Text: text, Provider: last}, nil
		}
		slog.Warn("completion provider failed", "provider", last, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", last, err))
	}
	return Result{Provider: last}, errors.Join(errs...)
}

func (c *Chain) tryComplete(ctx context.Context, p Provider, req Request) (text string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
		if c.observer != nil {
			c.observer.ObserveCompletion(p.Name(), time.Since(start), err)
		}
	}()

	text, err = p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
