package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/aws"
	"github.com/swingbridge/intakeflow/internal/config"
	"github.com/swingbridge/intakeflow/internal/mindbody"
	"github.com/swingbridge/intakeflow/internal/sweep"
)

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	env := config.FromEnv()

	sweeper := &sweep.Sweeper{
		Attempts:   attempts.NewStore(clients.DynamoDB, env.AttemptsTable),
		ABC:        abc.NewClient(env.ABC),
		MindBody:   mindbody.NewClient(env.MindBody),
		Notifier:   aws.NewNotifier(clients.SNS, env.AlertsTopicARN),
		Thresholds: env.Thresholds,
	}

	run := func(ctx context.Context) error {
		report, err := sweeper.Run(ctx)
		if err != nil {
			return err
		}
		log.Printf("[sweeper] done scanned=%d suspended=%d failures=%d",
			report.Scanned, report.Suspended, report.Failures)
		return nil
	}

	if env.RunLocal {
		if err := run(context.Background()); err != nil {
			log.Fatalf("local sweep error: %v", err)
		}
		return
	}

	// invoked on a schedule
	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		return run(ctx)
	})
}
