package thumbnail

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/metrics"
)

// Deps are the external capabilities the pipeline is built from. Recorder is
// optional.
type Deps struct {
	Text      TextCompleter
	Images    ImageModel
	Publisher AssetPublisher
	Fetcher   AssetFetcher
	Recorder  AssetRecorder
}

// Pipeline runs the generation and follow-up flows. Each stage takes the
// previous stage's typed output; enhancement failures degrade, every other
// stage failure ends the request.
type Pipeline struct {
	enhancer    *Enhancer
	composer    *Composer
	synthesizer *Synthesizer
	publisher   AssetPublisher
	fetcher     AssetFetcher
	recorder    AssetRecorder
}

// NewPipeline wires the stages.
func NewPipeline(d Deps) *Pipeline {
	return &Pipeline{
		enhancer:    NewEnhancer(d.Text),
		composer:    NewComposer(d.Text),
		synthesizer: NewSynthesizer(d.Images),
		publisher:   d.Publisher,
		fetcher:     d.Fetcher,
		recorder:    d.Recorder,
	}
}

// Generate validates req and, if valid, runs enhance → compose → synthesize →
// publish. Nothing external is called for an invalid request.
func (p *Pipeline) Generate(ctx context.Context, req *GenerationRequest) (*PublishedAsset, error) {
	if res := Validate(req); !res.OK {
		return nil, &ValidationError{Errors: res.Errors}
	}

	logger := log.With().Str("requestId", req.RequestID).Logger()
	logger.Info().
		Bool("background", req.Background != nil).
		Bool("major", req.Major != nil).
		Int("icons", len(req.Icons)).
		Str("category", req.Category).
		Msg("Starting thumbnail generation")

	enhanced, stats := p.enhancer.Enhance(ctx, req)
	metrics.New(metrics.Namespace).
		Dimension("Stage", "enhance").
		Duration("StageLatencyMs", stats.Elapsed).
		Metric("EnhancementCalls", float64(stats.Calls), metrics.UnitCount).
		Metric("EnhancementFallbacks", float64(stats.Fallbacks), metrics.UnitCount).
		Property("requestId", req.RequestID).
		Flush()

	start := time.Now()
	instruction, err := p.composer.Compose(ctx, enhanced, req.Category, req.ThemeColor, req.FinalDescription)
	observeStage("compose", req.RequestID, start, err)
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("instructionLen", len(instruction)).Msg("Instruction composed")

	start = time.Now()
	result, err := p.synthesizer.Synthesize(ctx, instruction, AttachmentsFor(req, enhanced))
	observeStage("synthesize", req.RequestID, start, err)
	if err != nil {
		return nil, err
	}
	if result == nil {
		metrics.New(metrics.Namespace).Count("SynthesisEmpty").Property("requestId", req.RequestID).Flush()
		return nil, ErrNoImage
	}

	return p.publish(ctx, result, AssetRecord{
		Source:    SourceGenerate,
		Category:  req.Category,
		RequestID: req.RequestID,
	})
}

// Refine fetches the published asset at req.ImageURL, rewrites the correction
// into an edit instruction and synthesizes a new image from that single
// attachment. The fetch happens first so a dead URL costs no model calls.
func (p *Pipeline) Refine(ctx context.Context, req FollowUpRequest) (*PublishedAsset, error) {
	logger := log.With().Str("requestId", req.RequestID).Str("imageUrl", req.ImageURL).Logger()

	start := time.Now()
	source, err := p.fetcher.Fetch(ctx, req.ImageURL)
	observeStage("fetch", req.RequestID, start, err)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{URL: req.ImageURL, Err: err}
		}
		return nil, fe
	}
	logger.Info().Int("sourceBytes", len(source.Data)).Str("mimeType", source.MIMEType).Msg("Source thumbnail fetched")

	start = time.Now()
	instruction, err := p.composer.Rewrite(ctx, req.Correction)
	observeStage("rewrite", req.RequestID, start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	result, err := p.synthesizer.Synthesize(ctx, instruction, []Attachment{{
		Role:        RoleSource,
		Image:       *source,
		Description: "the existing thumbnail to edit; keep everything not named in the instruction",
	}})
	observeStage("synthesize", req.RequestID, start, err)
	if err != nil {
		return nil, err
	}
	if result == nil {
		metrics.New(metrics.Namespace).Count("SynthesisEmpty").Property("requestId", req.RequestID).Flush()
		return nil, ErrNoImage
	}

	return p.publish(ctx, result, AssetRecord{
		Source:    SourceFollowUp,
		ParentURL: req.ImageURL,
		RequestID: req.RequestID,
	})
}

// publish stores the image once and writes the ledger row. Ledger failures are
// logged only; the asset already exists at that point.
func (p *Pipeline) publish(ctx context.Context, result *SynthesisResult, rec AssetRecord) (*PublishedAsset, error) {
	start := time.Now()
	asset, err := p.publisher.Publish(ctx, result.Data, result.MIMEType)
	if err != nil {
		err = &PublishError{Err: err}
	}
	observeStage("publish", rec.RequestID, start, err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("requestId", rec.RequestID).
		Str("key", asset.StorageKey).
		Str("url", asset.URL).
		Int("bytes", asset.SizeBytes).
		Msg("Thumbnail published")

	if p.recorder != nil {
		rec.AssetKey = asset.StorageKey
		rec.URL = asset.URL
		rec.MIMEType = asset.MIMEType
		rec.SizeBytes = asset.SizeBytes
		rec.CreatedAt = asset.CreatedAt
		if err := p.recorder.RecordAsset(ctx, &rec); err != nil {
			log.Warn().Err(err).Str("key", asset.StorageKey).Msg("Failed to record published asset")
		}
	}
	return asset, nil
}

func observeStage(stage, requestID string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Error().Err(err).Str("requestId", requestID).Str("stage", stage).Msg("Pipeline stage failed")
	}
	metrics.New(metrics.Namespace).
		Dimension("Stage", stage).
		Duration("StageLatencyMs", time.Since(start)).
		Count("StageCount").
		Property("outcome", outcome).
		Property("requestId", requestID).
		Flush()
}
