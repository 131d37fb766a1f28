// Package main runs the thumbnail HTTP API behind API Gateway (HTTP API,
// payload v2) on AWS Lambda.
//
// Configuration comes from the function environment. API keys may be stored in
// SSM Parameter Store (SSM_OPENAI_KEY_PARAM, SSM_GEMINI_KEY_PARAM) and are
// read once at cold start.
//
// Endpoints:
//
//	GET  /api/health              health check (not rate limited)
//	POST /api/generate            multipart thumbnail generation
//	POST /api/generate/follow-up  refine a previously generated thumbnail
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/awsboot"
	"github.com/fpang/thumbnail-studio/internal/config"
	"github.com/fpang/thumbnail-studio/internal/httpapi"
	"github.com/fpang/thumbnail-studio/internal/logging"
	"github.com/fpang/thumbnail-studio/internal/ratelimit"
)

// handler is built at cold start and reused across warm invocations, so the
// rate limiter state lives as long as the execution environment.
var handler http.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	cfg := config.Load()
	svc, err := awsboot.NewService(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}

	handler = httpapi.NewRouter(httpapi.Options{
		Pipeline:           svc.Pipeline,
		Limiter:            ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow),
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		MaxFileBytes:       cfg.MaxFileBytes,
		OriginVerifySecret: cfg.OriginVerifySecret,
	})

	svc.LogStartup("thumbnail-lambda", commitHash, buildTime, initStart)
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
