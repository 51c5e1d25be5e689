package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/aws"
	"github.com/swingbridge/intakeflow/internal/config"
	"github.com/swingbridge/intakeflow/internal/handlers"
	"github.com/swingbridge/intakeflow/internal/intake"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterIntakeRoutes(r, cfg)

	return r
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	env := config.FromEnv()

	store := attempts.NewStore(clients.DynamoDB, env.AttemptsTable)
	mbClient := mindbody.NewClient(env.MindBody)

	workflow := &intake.Workflow{
		Attempts:   store,
		ABC:        abc.NewClient(env.ABC),
		Thresholds: env.Thresholds,
		Publisher:  aws.NewPublisher(clients.SQS, env.QueueURL),
		Notifier:   aws.NewNotifier(clients.SNS, env.AlertsTopicARN),
		Metrics:    aws.NewMetrics(clients.CloudWatch),
	}

	r := setupRouter(handlers.HandlerConfig{
		Workflow: workflow,
		MindBody: mbClient,
		Attempts: store,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if env.RunLocal {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
