package main

import (
	"context"
	"fmt"

	"github.com/bluesky-social/scancache/readthrough"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	cli "github.com/urfave/cli/v2"
)

var lambdaCmd = &cli.Command{
	Name:   "lambda",
	Usage:  "run the read-through cache as an AWS Lambda function behind API Gateway",
	Flags:  cacheFlags,
	Action: runLambda,
}

// The store lives for the lifetime of the execution environment, so warm invocations are served
// from the snapshot fetched by an earlier one.
func runLambda(cctx *cli.Context) error {
	ctx := context.Background()

	logger, err := configLogger(cctx)
	if err != nil {
		return err
	}

	shutdownTracing, err := configOTEL(ctx, "scancache")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	src, err := openSource(ctx, cctx, logger)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}

	handler, _, err := configHandler(cctx, logger, src)
	if err != nil {
		return err
	}

	lambda.StartWithOptions(
		func(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			return handleAPIGateway(ctx, handler, ev), nil
		},
		lambda.WithEnableSIGTERM(func() {
			logger.Info("lambda runtime shutting down")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("failed to shutdown trace exporter", "err", err)
			}
			if err := src.Close(); err != nil {
				logger.Error("failed to close source", "err", err)
			}
		}),
	)
	return nil
}

func handleAPIGateway(ctx context.Context, handler *readthrough.Handler, ev events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	resp := handler.Handle(ctx, apiGatewayRequest(ctx, ev))
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       string(resp.Body),
	}
}

// apiGatewayRequest prefers the gateway's request id, then the invocation id. If neither is
// present the handler generates one.
func apiGatewayRequest(ctx context.Context, ev events.APIGatewayProxyRequest) readthrough.Request {
	reqID := ev.RequestContext.RequestID
	if reqID == "" {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			reqID = lc.AwsRequestID
		}
	}
	return readthrough.Request{
		Method:    ev.HTTPMethod,
		Path:      ev.Path,
		RequestID: reqID,
		SourceIP:  ev.RequestContext.Identity.SourceIP,
		UserAgent: ev.RequestContext.Identity.UserAgent,
	}
}
