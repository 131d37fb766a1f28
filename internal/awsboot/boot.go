// Package awsboot provides the shared cold-start bootstrap for both the
// HTTP server and the Lambda function: AWS config, S3, DynamoDB, SSM secret
// fetch, model clients and startup logging.
package awsboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/config"
	"github.com/fpang/thumbnail-studio/internal/store"
)

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config for region.
func InitAWS(ctx context.Context, region string) (AWSClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}, nil
}

// NewS3 creates an S3 client. endpoint overrides the AWS endpoint for
// S3-compatible stores such as MinIO or R2, which usually need path-style.
func NewS3(cfg aws.Config, endpoint string, usePathStyle bool) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
}

// InitLedgerOptional creates the asset ledger when a table is configured.
// Returns nil (with a warning) if not.
func InitLedgerOptional(cfg aws.Config, table string, retention time.Duration) *store.DynamoLedger {
	if table == "" {
		log.Warn().Msg("ASSET_TABLE not set, asset ledger disabled")
		return nil
	}
	return store.NewDynamoLedger(dynamodb.NewFromConfig(cfg), table, retention)
}

// ParameterGetter is the GetParameter subset of *ssm.Client.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecret returns current when it is already set, otherwise the decrypted
// value of the SSM parameter paramName. An empty paramName leaves current as is.
func LoadSecret(ctx context.Context, client ParameterGetter, current, paramName string) (string, error) {
	if current != "" || paramName == "" {
		return current, nil
	}
	if client == nil {
		return "", fmt.Errorf("no SSM client to read %s", paramName)
	}
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Secret loaded from SSM")
	return *result.Parameter.Value, nil
}

// ResolveSecrets fills the model API keys from SSM where the environment
// left them empty.
func ResolveSecrets(ctx context.Context, cfg *config.Config, client ParameterGetter) error {
	var err error
	if cfg.GeminiAPIKey, err = LoadSecret(ctx, client, cfg.GeminiAPIKey, cfg.SSMGeminiKeyParam); err != nil {
		return err
	}
	if cfg.TextProvider == config.ProviderOpenAI {
		if cfg.OpenAIAPIKey, err = LoadSecret(ctx, client, cfg.OpenAIAPIKey, cfg.SSMOpenAIKeyParam); err != nil {
			return err
		}
	}
	return nil
}
