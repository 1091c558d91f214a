// Package main provides the Lambda entry point for the Meta webhook
// receiver.
//
// This is a lightweight Lambda (128 MB, 10s timeout) that handles:
//   - GET /webhook — Meta verification handshake
//   - POST /webhook — signed event notifications, normalized and published
//     to EventBridge for downstream consumers
//
// App credentials are loaded from SSM Parameter Store at cold start; the
// page token table supplies access tokens for thread-context enrichment.
package main

import (
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"pagebridge/internal/boot"
	"pagebridge/internal/eventbus"
	"pagebridge/internal/graph"
	"pagebridge/internal/logging"
	"pagebridge/internal/tokenstore"
	"pagebridge/internal/webhook"
)

var webhookHandler *webhook.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	clients := boot.InitAWS()
	secrets := boot.LoadAppSecrets(clients.SSM)

	var tokens tokenstore.Store = boot.InitTokenStore(clients.Config, "TOKEN_TABLE_NAME")
	var publisher eventbus.Publisher = boot.InitEventBus(clients.Config, "EVENT_BUS_NAME")

	graphClient := graph.NewClient(secrets)
	normalizer := webhook.NewNormalizer(graphClient, tokens)
	webhookHandler = webhook.NewHandler(secrets.VerifyToken, secrets.AppSecret, normalizer, publisher)

	boot.StartupLog("webhook-lambda", initStart).
		DynamoTable("pageTokens", logging.EnvOrDefault("TOKEN_TABLE_NAME", "")).
		EventBus("webhookEvents", logging.EnvOrDefault("EVENT_BUS_NAME", "default")).
		SSMParam("appSecret", logging.EnvOrDefault("SSM_APP_SECRET_PARAM", "/pagebridge/prod/facebook-app-secret")).
		SSMParam("verifyToken", logging.EnvOrDefault("SSM_WEBHOOK_VERIFY_TOKEN_PARAM", "/pagebridge/prod/webhook-verify-token")).
		Log()
}

func main() {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}
