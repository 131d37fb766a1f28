package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/thumbnail-studio/internal/awsboot"
	"github.com/fpang/thumbnail-studio/internal/config"
	"github.com/fpang/thumbnail-studio/internal/httpapi"
	"github.com/fpang/thumbnail-studio/internal/logging"
	"github.com/fpang/thumbnail-studio/internal/ratelimit"
)

// CLI flags
var (
	portFlag       int
	envFileFlag    string
	textModelFlag  string
	imageModelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "thumbnail-server",
	Short: "HTTP server that generates YouTube thumbnails",
	Long: `Thumbnail Server accepts multipart thumbnail requests, rewrites the
creator's descriptions into an image instruction, synthesizes a 16:9 image and
stores it in S3, answering with its public URL.

Examples:
  thumbnail-server
  thumbnail-server --port 8080
  thumbnail-server --env-file .env.local --image-model gemini-3-pro-image-preview`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default: PORT or 3000)")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "Env file loaded before reading the environment")
	rootCmd.Flags().StringVar(&textModelFlag, "text-model", "", "Override TEXT_MODEL")
	rootCmd.Flags().StringVar(&imageModelFlag, "image-model", "", "Override IMAGE_MODEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	if err := config.LoadEnvFile(envFileFlag); err != nil {
		return err
	}
	cfg := config.Load()
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if textModelFlag != "" {
		cfg.TextModel = textModelFlag
	}
	if imageModelFlag != "" {
		cfg.ImageModel = imageModelFlag
	}

	ctx := context.Background()
	svc, err := awsboot.NewService(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize service")
		return err
	}

	handler := httpapi.NewRouter(httpapi.Options{
		Pipeline:           svc.Pipeline,
		Limiter:            ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow),
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		MaxFileBytes:       cfg.MaxFileBytes,
		OriginVerifySecret: cfg.OriginVerifySecret,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Enhancement, composition and synthesis each get their own retry budget.
		WriteTimeout: time.Duration(3*(cfg.ModelMaxRetries+1))*cfg.ModelCallTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown incomplete")
		}
	}()

	svc.LogStartup("thumbnail-server", commitHash, buildTime, initStart)
	log.Info().Int("port", cfg.Port).Msg("Starting thumbnail server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
		return err
	}
	return nil
}
