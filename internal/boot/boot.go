// Package boot provides shared Lambda cold-start bootstrap logic.
//
// Both Lambdas need some subset of: AWS config, the Graph API credentials
// from SSM, the DynamoDB token store, the EventBridge publisher, and startup
// logging. This package extracts the common init patterns so each Lambda's
// init() is a short composition of helpers.
package boot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"pagebridge/internal/eventbus"
	"pagebridge/internal/graph"
	"pagebridge/internal/logging"
	"pagebridge/internal/tokenstore"
)

// Default SSM parameter names, overridable per environment variable.
const (
	defaultAppIDParam       = "/pagebridge/prod/facebook-app-id"
	defaultAppSecretParam   = "/pagebridge/prod/facebook-app-secret"
	defaultVerifyTokenParam = "/pagebridge/prod/webhook-verify-token"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// LoadAppSecrets resolves the Meta app credentials: environment variables
// first, then SSM Parameter Store. Absence of any credential is fatal —
// no operation can run without them.
func LoadAppSecrets(ssmClient *ssm.Client) graph.Config {
	return graph.Config{
		AppID:       loadSecret(ssmClient, "FACEBOOK_APP_ID", "SSM_APP_ID_PARAM", defaultAppIDParam),
		AppSecret:   loadSecret(ssmClient, "FACEBOOK_APP_SECRET", "SSM_APP_SECRET_PARAM", defaultAppSecretParam),
		VerifyToken: loadSecret(ssmClient, "WEBHOOK_VERIFY_TOKEN", "SSM_WEBHOOK_VERIFY_TOKEN_PARAM", defaultVerifyTokenParam),
	}
}

// loadSecret reads a credential from the environment, falling back to the
// SSM parameter named by paramEnvVar (or defaultParam). Fatals on failure.
func loadSecret(ssmClient *ssm.Client, envVar, paramEnvVar, defaultParam string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	paramName := os.Getenv(paramEnvVar)
	if paramName == "" {
		paramName = defaultParam
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read secret from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Secret loaded from SSM")
	return *result.Parameter.Value
}

// InitTokenStore creates the DynamoDB page token store from the table name
// environment variable. Fatals if the env var is empty.
func InitTokenStore(cfg aws.Config, tableEnvVar string) *tokenstore.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("Token table environment variable is required")
	}
	return tokenstore.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBus creates the EventBridge publisher. The bus name env var may
// be empty, which targets the account's default bus.
func InitEventBus(cfg aws.Config, busEnvVar string) *eventbus.EventBridgePublisher {
	busName := os.Getenv(busEnvVar)
	if busName == "" {
		log.Debug().Str("envVar", busEnvVar).Msg("Event bus not set, using default bus")
	}
	return eventbus.NewEventBridgePublisher(eventbridge.NewFromConfig(cfg), busName)
}

// InitStepFunctions creates a Step Functions client and resolves the reel
// state machine ARN. Returns (nil, "") with a warning when not configured;
// post_reel then answers with a redirect record instead of starting an
// execution.
func InitStepFunctions(cfg aws.Config, arnEnvVar string) (*sfn.Client, string) {
	arn := os.Getenv(arnEnvVar)
	if arn == "" {
		log.Warn().Str("envVar", arnEnvVar).Msg("State machine ARN not set, post_reel disabled")
		return nil, ""
	}
	return sfn.NewFromConfig(cfg), arn
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
