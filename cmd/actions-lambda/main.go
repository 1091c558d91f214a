// Package main provides the Lambda entry point for the action dispatcher.
//
// The Lambda serves two invocation styles from one binary, matching how the
// platform drives it:
//   - Direct invocations (Step Functions states, EventBridge rule targets)
//     carry an {"action": ...} payload routed through the dispatcher.
//   - API Gateway v2 HTTP events (operator page management and messaging
//     calls) are proxied onto the dispatcher's HTTP mux.
//
// The two are told apart by probing the raw payload for the API Gateway
// envelope before unmarshaling.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"pagebridge/internal/actions"
	"pagebridge/internal/boot"
	"pagebridge/internal/graph"
	"pagebridge/internal/logging"
	"pagebridge/internal/reelflow"
	"pagebridge/internal/tokenstore"
)

var (
	dispatcher *actions.Dispatcher
	adapter    *httpadapter.HandlerAdapterV2
)

func init() {
	initStart := time.Now()
	logging.Init()

	clients := boot.InitAWS()
	secrets := boot.LoadAppSecrets(clients.SSM)

	var tokens tokenstore.Store = boot.InitTokenStore(clients.Config, "TOKEN_TABLE_NAME")
	sfnClient, stateMachineARN := boot.InitStepFunctions(clients.Config, "REEL_STATE_MACHINE_ARN")

	graphClient := graph.NewClient(secrets)
	flow := reelflow.New(graphClient)
	dispatcher = actions.New(graphClient, flow, tokens, sfnClient, stateMachineARN)
	adapter = httpadapter.NewV2(dispatcher.NewMux())

	boot.StartupLog("actions-lambda", initStart).
		DynamoTable("pageTokens", logging.EnvOrDefault("TOKEN_TABLE_NAME", "")).
		StateMachine("reelFlow", stateMachineARN).
		Feature("stateMachine", sfnClient != nil).
		SSMParam("appId", logging.EnvOrDefault("SSM_APP_ID_PARAM", "/pagebridge/prod/facebook-app-id")).
		SSMParam("appSecret", logging.EnvOrDefault("SSM_APP_SECRET_PARAM", "/pagebridge/prod/facebook-app-secret")).
		Log()
}

// handle routes one raw Lambda payload to the HTTP adapter or the action
// dispatcher.
func handle(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if isHTTPEvent(raw) {
		var httpEvent events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(raw, &httpEvent); err != nil {
			return nil, fmt.Errorf("unmarshal HTTP event: %w", err)
		}
		return adapter.ProxyWithContext(ctx, httpEvent)
	}

	var req actions.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("unmarshal action request: %w", err)
	}
	if req.Action == "" {
		log.Warn().Msg("Invocation carried neither an HTTP envelope nor an action")
		return actions.ErrorRecord{Error: "Missing required parameter: action"}, nil
	}
	return dispatcher.Dispatch(ctx, req)
}

// isHTTPEvent reports whether the payload is an API Gateway v2 HTTP event.
func isHTTPEvent(raw json.RawMessage) bool {
	var probe struct {
		RequestContext *struct {
			HTTP *struct {
				Method string `json:"method"`
			} `json:"http"`
		} `json:"requestContext"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.RequestContext != nil && probe.RequestContext.HTTP != nil
}

func main() {
	lambda.Start(handle)
}
