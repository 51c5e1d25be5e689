package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/swingbridge/intakeflow/internal/intake"
)

// provisioner is the unit-of-work surface, split out so tests can script it.
type provisioner interface {
	Provision(ctx context.Context, msg intake.Message) error
}

// Processor consumes SQS batches and hands each message to the provisioner.
type Processor struct {
	prov provisioner
}

func NewProcessor(prov provisioner) *Processor {
	return &Processor{prov: prov}
}

// Handle receives an SQS batch event and processes each message. A non-nil
// return makes Lambda retry the batch; messages that keep failing land in the
// DLQ per queue policy.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	log.Printf("[worker] received %d messages", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg intake.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.Club == "" || msg.Email == "" {
		return fmt.Errorf("message missing identity: %s", rec.Body)
	}

	log.Printf("[worker] provisioning club=%s email=%s reentry=%t corr=%s",
		msg.Club, msg.Email, msg.Reentry, msg.CorrelationID)

	return p.prov.Provision(ctx, msg)
}
