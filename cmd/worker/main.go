package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/aws"
	"github.com/swingbridge/intakeflow/internal/config"
	"github.com/swingbridge/intakeflow/internal/intake"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	env := config.FromEnv()

	prov := &intake.Provisioner{
		Attempts:     attempts.NewStore(clients.DynamoDB, env.AttemptsTable),
		MindBody:     mindbody.NewClient(env.MindBody),
		Notifier:     aws.NewNotifier(clients.SNS, env.AlertsTopicARN),
		Metrics:      aws.NewMetrics(clients.CloudWatch),
		ContractName: env.ContractName,
		LocationID:   env.LocationID,
	}
	p := NewProcessor(prov)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if env.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"club":"1552","email":"local@example.com","first_name":"Local","last_name":"Test"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
