// Command wardline-lambda runs report jobs from an SQS event source mapping.
// Enable ReportBatchItemFailures on the mapping so retried jobs are
// redelivered individually.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/app"
	"github.com/gosuda/wardline/internal/config"
	"github.com/gosuda/wardline/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	app.SetupLogging(cfg.Log)

	// Clients are built once per container and reused across invocations.
	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	lambda.Start(queue.LambdaHandler(a.Runner()))
}
