package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrNoSpeech is returned when a provider produced no text.
var ErrNoSpeech = errors.New("no speech recognized")

// Audio is one recorded voice instruction.
type Audio struct {
	Data       []byte
	MimeType   string
	SampleRate int
	Language   string
}

type Result struct {
	Text         string
	Confidence   *float64
	LanguageHint string
	Provider     string
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (Result, error)
}

// FallbackFunc observes a switch away from a failing provider.
type FallbackFunc func(from, to string, cause error)

// Chain tries transcribers in priority order. After a lower-priority
// provider succeeds it stays preferred until it fails; then the list is
// walked again from the top.
type Chain struct {
	providers  []Transcriber
	preferred  atomic.Int32
	onFallback FallbackFunc
}

func NewChain(onFallback FallbackFunc, providers ...Transcriber) (*Chain, error) {
	list := make([]Transcriber, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			list = append(list, p)
		}
	}
	if len(list) == 0 {
		return nil, errors.New("at least one transcriber is required")
	}
	return &Chain{providers: list, onFallback: onFallback}, nil
}

func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Transcribe(ctx context.Context, audio Audio) (Result, error) {
	start := int(c.preferred.Load())
	order := make([]int, 0, len(c.providers))
	order = append(order, start)
	for i := range c.providers {
		if i != start {
			order = append(order, i)
		}
	}

	var errs []string
	var last error
	prev := ""
	for _, idx := range order {
		p := c.providers[idx]
		if prev != "" && c.onFallback != nil {
			c.onFallback(prev, p.Name(), last)
		}
		res, err := p.Transcribe(ctx, audio)
		if err == nil && strings.TrimSpace(res.Text) == "" {
			err = ErrNoSpeech
		}
		if err == nil {
			res.Text = strings.TrimSpace(res.Text)
			if res.Provider == "" {
				res.Provider = p.Name()
			}
			c.preferred.Store(int32(idx))
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
		last = err
		prev = p.Name()
	}
	c.preferred.Store(0)
	if errors.Is(last, ErrNoSpeech) {
		return Result{}, fmt.Errorf("%w (%s)", ErrNoSpeech, strings.Join(errs, "; "))
	}
	return Result{}, fmt.Errorf("all transcribers failed: %s", strings.Join(errs, "; "))
}
