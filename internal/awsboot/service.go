package awsboot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/thumbnail-studio/internal/assetstore"
	"github.com/fpang/thumbnail-studio/internal/chat"
	"github.com/fpang/thumbnail-studio/internal/config"
	"github.com/fpang/thumbnail-studio/internal/httpclient"
	"github.com/fpang/thumbnail-studio/internal/logging"
	"github.com/fpang/thumbnail-studio/internal/metrics"
	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// Service is the fully wired pipeline plus what the startup log reports.
type Service struct {
	Config     *config.Config
	Pipeline   *thumbnail.Pipeline
	TextModel  string
	ImageModel string
	Ledger     bool
}

// NewService resolves secrets, validates cfg and builds every collaborator
// of the thumbnail pipeline.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	metrics.SetEnabled(cfg.MetricsEnabled)

	clients, err := InitAWS(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	if err := ResolveSecrets(ctx, cfg, clients.SSM); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	policy := chat.NewCallPolicy(cfg.ModelCallTimeout, cfg.ModelMaxRetries, cfg.ModelRPS)
	modelHTTP := httpclient.New(httpclient.Options{Timeout: cfg.ModelCallTimeout + 10*time.Second})

	geminiClient, err := chat.NewGeminiClient(ctx, cfg.GeminiAPIKey, modelHTTP)
	if err != nil {
		return nil, err
	}
	text, textModel, err := newTextCompleter(cfg, geminiClient, policy, modelHTTP)
	if err != nil {
		return nil, err
	}
	images := chat.NewGeminiImageModel(geminiClient, cfg.ImageModel, cfg.ImageAspectRatio, policy)

	s3Client := NewS3(clients.Config, cfg.S3Endpoint, cfg.S3UsePathStyle)
	locator := assetstore.Locator{
		Bucket:        cfg.Bucket,
		Region:        clients.Config.Region,
		PublicBaseURL: cfg.PublicBaseURL,
		Endpoint:      cfg.S3Endpoint,
	}

	deps := thumbnail.Deps{
		Text:      text,
		Images:    images,
		Publisher: assetstore.NewPublisher(s3Client, locator, cfg.KeyPrefix),
		Fetcher: assetstore.NewFetcher(s3Client, assetstore.FetcherConfig{
			Locator:      locator,
			Timeout:      cfg.FetchTimeout,
			AllowPrivate: cfg.AllowPrivateFetch,
		}),
	}
	ledger := InitLedgerOptional(clients.Config, cfg.AssetTable, cfg.AssetRetention)
	if ledger != nil {
		deps.Recorder = ledger
	}

	return &Service{
		Config:     cfg,
		Pipeline:   thumbnail.NewPipeline(deps),
		TextModel:  textModel,
		ImageModel: images.Model(),
		Ledger:     ledger != nil,
	}, nil
}

func newTextCompleter(cfg *config.Config, gc *genai.Client, policy *chat.CallPolicy, hc *http.Client) (thumbnail.TextCompleter, string, error) {
	if cfg.TextProvider == config.ProviderGemini {
		t := chat.NewGeminiText(gc, cfg.TextModelOrDefault(), policy)
		return t, t.Model(), nil
	}
	t, err := chat.NewOpenAIText(chat.OpenAITextConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.TextModelOrDefault(),
		HTTPClient: hc,
	}, policy)
	if err != nil {
		return nil, "", err
	}
	return t, t.Model(), nil
}

// LogStartup emits the single structured boot event for binary name.
func (s *Service) LogStartup(name, commitHash, buildTime string, initStart time.Time) {
	logging.NewStartupLogger(name).
		Build(commitHash, buildTime).
		Resource("bucket", s.Config.Bucket).
		Resource("table", s.Config.AssetTable).
		Resource("publicBaseUrl", s.Config.PublicBaseURL).
		Resource("s3Endpoint", s.Config.S3Endpoint).
		Model("text", s.TextModel).
		Model("image", s.ImageModel).
		Feature("ledger", s.Ledger).
		Feature("metrics", s.Config.MetricsEnabled).
		Feature("trustProxyHeaders", s.Config.TrustProxyHeaders).
		Feature("originVerify", s.Config.OriginVerifySecret != "").
		Config("textProvider", s.Config.TextProvider).
		Config("rateLimit", fmt.Sprintf("%d/%s", s.Config.RateLimitMax, s.Config.RateLimitWindow)).
		Config("modelTimeout", s.Config.ModelCallTimeout.String()).
		Config("modelRetries", fmt.Sprintf("%d", s.Config.ModelMaxRetries)).
		InitDuration(time.Since(initStart)).
		Log()
	log.Debug().Str("service", name).Msg("Service ready")
}
