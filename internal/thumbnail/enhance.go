package thumbnail

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/thumbnail-studio/internal/assets"
)

// maxEnhanceCalls bounds the fan-out: background, major and up to five icons.
const maxEnhanceCalls = 2 + MaxIcons

// Enhancer expands each user-supplied image description with one independent
// text call per slot. A failed call never fails the stage; the slot falls back
// to the user's original text.
type Enhancer struct {
	text TextCompleter
}

// NewEnhancer creates an Enhancer backed by text.
func NewEnhancer(text TextCompleter) *Enhancer {
	return &Enhancer{text: text}
}

// EnhanceStats describes one Enhance run.
type EnhanceStats struct {
	Calls     int
	Fallbacks int
	Elapsed   time.Duration
}

// Enhance returns one description per attached image. Slots without an image
// stay empty and cost nothing; attached images without text get the role's
// default description.
func (e *Enhancer) Enhance(ctx context.Context, req *GenerationRequest) (EnhancedDescriptions, EnhanceStats) {
	start := time.Now()
	iconTexts := req.IconDescriptions()

	out := EnhancedDescriptions{Icons: make([]string, len(req.Icons))}
	var (
		g         errgroup.Group
		calls     int
		fallbacks atomic.Int32
	)
	g.SetLimit(maxEnhanceCalls)

	slot := func(dst *string, present bool, raw, def, label string) {
		switch {
		case !present:
			*dst = ""
		case strings.TrimSpace(raw) == "":
			*dst = def
		default:
			calls++
			g.Go(func() error {
				enhanced, err := e.enhanceOne(ctx, raw)
				if err != nil {
					fallbacks.Add(1)
					log.Warn().Err(err).
						Str("requestId", req.RequestID).
						Str("slot", label).
						Msg("Description enhancement failed, using original text")
					*dst = raw
					return nil
				}
				*dst = enhanced
				return nil
			})
		}
	}

	slot(&out.Background, req.Background != nil, req.BackgroundDescription, DefaultBackgroundDescription, "background")
	slot(&out.Major, req.Major != nil, req.MajorDescription, DefaultMajorDescription, "major")
	for i := range req.Icons {
		var raw string
		if i < len(iconTexts) {
			raw = iconTexts[i]
		}
		slot(&out.Icons[i], true, raw, DefaultIconDescription, fmt.Sprintf("icon-%d", i+1))
	}

	// Every goroutine returns nil; Wait is purely the join barrier.
	_ = g.Wait()

	stats := EnhanceStats{Calls: calls, Fallbacks: int(fallbacks.Load()), Elapsed: time.Since(start)}
	log.Debug().
		Str("requestId", req.RequestID).
		Int("calls", stats.Calls).
		Int("fallbacks", stats.Fallbacks).
		Dur("elapsed", stats.Elapsed).
		Msg("Description enhancement complete")
	return out, stats
}

func (e *Enhancer) enhanceOne(ctx context.Context, raw string) (string, error) {
	text, err := e.text.Complete(ctx, assets.OneLineImproverPrompt, raw)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
