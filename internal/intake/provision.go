package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/contracts"
	"github.com/swingbridge/intakeflow/internal/httpx"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

// TargetGateway is the slice of the MindBody client the provisioner uses.
type TargetGateway interface {
	EnsureRequiredClientFields(ctx context.Context, attrs map[string]string) error
	DuplicateClients(ctx context.Context, firstName, lastName, email string) (*mindbody.DuplicateResult, error)
	ClientCompleteInfo(ctx context.Context, clientID string) (*mindbody.CompleteInfo, error)
	AddClient(ctx context.Context, firstName, lastName, email string, extras map[string]string) (*mindbody.TargetClient, error)
	ReactivateClient(ctx context.Context, clientID string) error
	FindContractByName(ctx context.Context, name string, locationID int) (*mindbody.Contract, error)
	ClientContracts(ctx context.Context, clientID string) ([]mindbody.ContractSegment, error)
	PurchaseContract(ctx context.Context, clientID, contractID string, locationID int, startDate time.Time) (*mindbody.PurchaseResult, error)
	TerminateContract(ctx context.Context, clientID, segmentID string, terminationDate time.Time) error
	SendPasswordResetEmail(ctx context.Context, firstName, lastName, email string) error
}

// Provisioner is the worker-side back half of the state machine: client
// creation/reuse in MindBody, contract reconciliation, and the welcome email.
type Provisioner struct {
	Attempts     AttemptStore
	MindBody     TargetGateway
	Notifier     OperatorNotifier
	Metrics      OutcomeMetrics
	ContractName string
	LocationID   int

	// Now is injectable for deterministic reconciliation in tests.
	Now func() time.Time
}

func (p *Provisioner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Provision consumes one queued unit of work. The return value drives queue
// redelivery: nil acknowledges the message, non-nil leaves it for redelivery.
// Credential failures return nil after marking the attempt, because
// redelivering them would just burn the retry budget against a dead token.
func (p *Provisioner) Provision(ctx context.Context, msg Message) error {
	attempt, err := p.Attempts.Get(ctx, msg.Club, msg.Email)
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}
	if attempt == nil {
		return fmt.Errorf("no attempt for club=%s email=%s", msg.Club, msg.Email)
	}

	reentry := msg.Reentry || attempt.Status == attempts.StatusMbSuccess

	err = p.provision(ctx, msg, attempt, reentry)
	if err == nil {
		if err := p.Attempts.SetStatus(ctx, msg.Club, msg.Email, attempts.StatusMbSuccess, ""); err != nil {
			return err
		}
		if p.Metrics != nil {
			p.Metrics.CountOutcome(ctx, msg.Club, string(attempts.StatusMbSuccess))
		}
		log.Printf("[provision] club=%s email=%s provisioned (reentry=%t)", msg.Club, msg.Email, reentry)
		return nil
	}

	var authErr *mindbody.AuthError
	var apiErr *mindbody.APIError
	switch {
	case errors.As(err, &authErr):
		// Bad credentials: no amount of redelivery fixes this.
		if serr := p.Attempts.SetStatus(ctx, msg.Club, msg.Email, attempts.StatusMbFailed, err.Error()); serr != nil {
			return serr
		}
		p.Notifier.NotifyAttemptFailure(ctx, "mindbody auth failure", msg.Club, msg.Email, err)
		return nil
	case httpx.IsTransient(err):
		// Leave the attempt enqueued and let the queue redeliver.
		log.Printf("[provision] transient error club=%s email=%s: %v", msg.Club, msg.Email, err)
		return err
	case errors.As(err, &apiErr):
		if serr := p.Attempts.SetStatus(ctx, msg.Club, msg.Email, attempts.StatusMbFailed, err.Error()); serr != nil {
			return serr
		}
		p.Notifier.NotifyAttemptFailure(ctx, "mindbody provisioning failure", msg.Club, msg.Email, err)
		return err
	default:
		if serr := p.Attempts.SetStatus(ctx, msg.Club, msg.Email, attempts.StatusFailed, err.Error()); serr != nil {
			return serr
		}
		p.Notifier.NotifyAttemptFailure(ctx, "provisioning failure", msg.Club, msg.Email, err)
		return err
	}
}

func (p *Provisioner) provision(ctx context.Context, msg Message, attempt *attempts.Attempt, reentry bool) error {
	clientID, err := p.resolveClient(ctx, msg, attempt, reentry)
	if err != nil {
		return err
	}

	contract, err := p.MindBody.FindContractByName(ctx, p.ContractName, p.LocationID)
	if err != nil {
		return err
	}
	if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
		ContractID: contract.ID,
	}); err != nil {
		return err
	}

	segments, err := p.MindBody.ClientContracts(ctx, clientID)
	if err != nil {
		return err
	}
	count := len(segments)
	if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
		SegmentCount: &count,
	}); err != nil {
		return err
	}

	today := p.now()
	decision := contracts.Decide(segments, contract.ID, today)
	log.Printf("[provision] club=%s email=%s contract=%s action=%s", msg.Club, msg.Email, contract.ID, decision.Action)

	if decision.Action == contracts.TerminateAndPurchase {
		for _, seg := range decision.ActiveSegments {
			when := contracts.TerminationDate(seg, today)
			if err := p.MindBody.TerminateContract(ctx, clientID, seg.SegmentID, when); err != nil {
				return err
			}
			if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
				TerminatedSegmentIDs: []string{seg.SegmentID},
			}); err != nil {
				return err
			}
		}
	}
	if decision.Action == contracts.Purchase || decision.Action == contracts.TerminateAndPurchase {
		res, err := p.MindBody.PurchaseContract(ctx, clientID, contract.ID, p.LocationID, today)
		if err != nil {
			return err
		}
		if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
			ContractPurchase: &attempts.PurchaseEvidence{
				ClientContractID: res.ClientContractID,
				SaleID:           res.SaleID,
			},
		}); err != nil {
			return err
		}
	}

	p.sendPasswordReset(ctx, msg, attempt)
	return nil
}

// resolveClient finds or creates the MindBody client and returns its id. On
// re-entry the stored client id is reused; the duplicate check and creation
// only run for first-time provisioning.
func (p *Provisioner) resolveClient(ctx context.Context, msg Message, attempt *attempts.Attempt, reentry bool) (string, error) {
	if reentry && attempt.Evidence.ClientID != "" {
		return attempt.Evidence.ClientID, nil
	}

	dup, err := p.MindBody.DuplicateClients(ctx, msg.FirstName, msg.LastName, msg.Email)
	if err != nil {
		return "", err
	}
	if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
		DuplicateTotal: &dup.Total,
	}); err != nil {
		return "", err
	}

	if picked := mindbody.PickDuplicate(dup, msg.Email); picked != nil {
		info, err := p.MindBody.ClientCompleteInfo(ctx, picked.ID)
		if err != nil {
			return "", err
		}
		reactivated := false
		if !info.Active {
			if err := p.MindBody.ReactivateClient(ctx, picked.ID); err != nil {
				return "", err
			}
			reactivated = true
			log.Printf("[provision] reactivated inactive client %s for %s", picked.ID, msg.Email)
		}
		active := info.Active
		if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
			DuplicateClientID:    picked.ID,
			DuplicateActive:      &active,
			DuplicateReactivated: &reactivated,
			ClientID:             picked.ID,
		}); err != nil {
			return "", err
		}
		return picked.ID, nil
	}

	attrs := map[string]string{
		"FirstName": msg.FirstName,
		"LastName":  msg.LastName,
		"Email":     msg.Email,
	}
	for k, v := range msg.Extras {
		attrs[k] = v
	}
	if err := p.MindBody.EnsureRequiredClientFields(ctx, attrs); err != nil {
		return "", err
	}
	client, err := p.MindBody.AddClient(ctx, msg.FirstName, msg.LastName, msg.Email, msg.Extras)
	if err != nil {
		return "", err
	}
	created := true
	if err := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
		ClientID:      client.ID,
		ClientCreated: &created,
	}); err != nil {
		return "", err
	}
	return client.ID, nil
}

// sendPasswordReset fires the welcome email once per identity. Best-effort:
// a mail failure never fails the provisioning that triggered it.
func (p *Provisioner) sendPasswordReset(ctx context.Context, msg Message, attempt *attempts.Attempt) {
	if sent := attempt.Evidence.PasswordResetSent; sent != nil && *sent {
		return
	}
	err := p.MindBody.SendPasswordResetEmail(ctx, msg.FirstName, msg.LastName, msg.Email)
	if err != nil {
		log.Printf("[provision] password reset email failed for %s: %v", msg.Email, err)
	}
	sent := err == nil
	if merr := p.Attempts.MergeEvidence(ctx, msg.Club, msg.Email, attempts.Evidence{
		PasswordResetSent: &sent,
	}); merr != nil {
		log.Printf("[provision] recording password reset evidence failed for %s: %v", msg.Email, merr)
	}
}
