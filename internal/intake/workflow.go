// Package intake drives the provisioning state machine: ABC lookup,
// eligibility, MindBody reconciliation, and the durable attempt record that
// makes retries converge.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
)

// Outcome strings surfaced on the synchronous intake response.
const (
	OutcomeFound           = "found"
	OutcomeNotFound        = "not_found"
	OutcomeEligible        = "eligible"
	OutcomeIneligible      = "ineligible"
	OutcomeMbClientCreated = "mb_client_created"
	OutcomeUpstreamError   = "upstream_error"
	OutcomeError           = "error"
)

// Request is the inbound provisioning request, already validated.
type Request struct {
	Club  string
	Email string
	Name  string
}

// MemberView is the member projection echoed back to the caller.
type MemberView struct {
	MemberID         string `json:"member_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	PaymentFrequency string `json:"payment_frequency,omitempty"`
	NextDueAmount    string `json:"next_due_amount,omitempty"`
}

// Result is the synchronous outcome of one workflow invocation.
type Result struct {
	Outcome    string
	HTTPStatus int
	Member     *MemberView
}

// Message is the unit of work handed to the reconciliation worker over SQS.
type Message struct {
	Club          string            `json:"club"`
	Email         string            `json:"email"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Extras        map[string]string `json:"extras,omitempty"`
	Reentry       bool              `json:"reentry,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// SourceClient is the slice of the ABC client the workflow uses.
type SourceClient interface {
	FindMemberByEmail(ctx context.Context, club, email string) (*abc.Member, error)
	GetAgreement(ctx context.Context, club, memberID string) (*abc.Agreement, error)
}

// AttemptStore is the slice of the attempts store the workflow uses.
type AttemptStore interface {
	Get(ctx context.Context, club, email string) (*attempts.Attempt, error)
	Create(ctx context.Context, a *attempts.Attempt) error
	SetStatus(ctx context.Context, club, email string, status attempts.Status, errorMessage string) error
	SetRequestSnapshot(ctx context.Context, club, email string, snap attempts.RequestSnapshot) error
	IncrementRetry(ctx context.Context, club, email string) error
	MergeEvidence(ctx context.Context, club, email string, ev attempts.Evidence) error
}

// QueuePublisher hands a reconciliation unit of work to the durable queue.
type QueuePublisher interface {
	SendIntakeMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// OperatorNotifier alerts operators about failures needing attention.
type OperatorNotifier interface {
	NotifyAttemptFailure(ctx context.Context, kind, club, email string, err error)
}

// OutcomeMetrics counts terminal outcomes.
type OutcomeMetrics interface {
	CountOutcome(ctx context.Context, club, outcome string)
}

// Workflow is the front half of the state machine: everything up to and
// including the enqueue. The worker-side Provisioner finishes the job.
type Workflow struct {
	Attempts   AttemptStore
	ABC        SourceClient
	Thresholds abc.Thresholds
	Publisher  QueuePublisher
	Notifier   OperatorNotifier
	Metrics    OutcomeMetrics
}

// Run drives one provisioning invocation for (club, email). Definitive
// business outcomes (not_found, ineligible, ...) come back as a Result, not
// an error; an error return means the invocation itself could not complete.
func (w *Workflow) Run(ctx context.Context, req Request) (*Result, error) {
	existing, err := w.Attempts.Get(ctx, req.Club, req.Email)
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	snap := attempts.RequestSnapshot{Email: req.Email, Name: req.Name}

	// A row already in terminal mb_success means the member is provisioned:
	// skip eligibility re-derivation and client creation, hand the worker a
	// reconciliation-only re-entry against the stored client id.
	if existing != nil && existing.Status == attempts.StatusMbSuccess {
		// keep the member names the original run resolved
		snap.FirstName = existing.RequestSnapshot.FirstName
		snap.LastName = existing.RequestSnapshot.LastName
		snap.Extras = existing.RequestSnapshot.Extras
		if err := w.Attempts.SetRequestSnapshot(ctx, req.Club, req.Email, snap); err != nil {
			return nil, err
		}
		msg := Message{
			Club:          req.Club,
			Email:         req.Email,
			FirstName:     existing.RequestSnapshot.FirstName,
			LastName:      existing.RequestSnapshot.LastName,
			Reentry:       true,
			CorrelationID: uuid.NewString(),
		}
		if err := w.publish(ctx, msg); err != nil {
			return w.fail(ctx, req, err)
		}
		w.count(ctx, req.Club, OutcomeMbClientCreated)
		return &Result{Outcome: OutcomeMbClientCreated, HTTPStatus: http.StatusOK}, nil
	}

	if existing == nil {
		if err := w.Attempts.Create(ctx, &attempts.Attempt{
			Club:            req.Club,
			Email:           req.Email,
			Status:          attempts.StatusPending,
			RequestSnapshot: snap,
		}); err != nil && !errors.Is(err, attempts.ErrAlreadyExists) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
	} else {
		if err := w.Attempts.IncrementRetry(ctx, req.Club, req.Email); err != nil {
			return nil, err
		}
		if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusPending, ""); err != nil {
			return nil, err
		}
		if err := w.Attempts.SetRequestSnapshot(ctx, req.Club, req.Email, snap); err != nil {
			return nil, err
		}
	}

	member, err := w.ABC.FindMemberByEmail(ctx, req.Club, req.Email)
	if errors.Is(err, abc.ErrMemberNotFound) {
		if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusMemberMissing, ""); err != nil {
			return nil, err
		}
		w.count(ctx, req.Club, OutcomeNotFound)
		return &Result{Outcome: OutcomeNotFound, HTTPStatus: http.StatusOK}, nil
	}
	if err != nil {
		return w.upstreamFail(ctx, req, err)
	}

	if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusFound, ""); err != nil {
		return nil, err
	}
	if err := w.Attempts.MergeEvidence(ctx, req.Club, req.Email, attempts.Evidence{
		AbcMemberID: member.MemberID,
	}); err != nil {
		return nil, err
	}

	agreement, err := w.ABC.GetAgreement(ctx, req.Club, member.MemberID)
	if errors.Is(err, abc.ErrMemberNotFound) {
		// member vanished between the search and the detail fetch: a
		// definitive not-found, not an upstream failure
		if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusMemberMissing, ""); err != nil {
			return nil, err
		}
		w.count(ctx, req.Club, OutcomeNotFound)
		return &Result{Outcome: OutcomeNotFound, HTTPStatus: http.StatusOK}, nil
	}
	if err != nil {
		return w.upstreamFail(ctx, req, err)
	}
	if err := w.Attempts.MergeEvidence(ctx, req.Club, req.Email, attempts.Evidence{
		AbcAgreementID:   agreement.ID,
		PaymentFrequency: agreement.PaymentFrequency,
		NextDueAmount:    agreement.NextDueAmount,
	}); err != nil {
		return nil, err
	}

	view := &MemberView{
		MemberID:         member.MemberID,
		FirstName:        member.Personal.FirstName,
		LastName:         member.Personal.LastName,
		Email:            member.Personal.Email,
		PaymentFrequency: agreement.PaymentFrequency,
		NextDueAmount:    agreement.NextDueAmount,
	}

	if !abc.EligibleForContract(agreement, w.Thresholds) {
		if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusIneligible, ""); err != nil {
			return nil, err
		}
		w.count(ctx, req.Club, OutcomeIneligible)
		return &Result{Outcome: OutcomeIneligible, HTTPStatus: http.StatusOK, Member: view}, nil
	}

	if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusEligible, ""); err != nil {
		return nil, err
	}

	msg := Message{
		Club:          req.Club,
		Email:         req.Email,
		FirstName:     member.Personal.FirstName,
		LastName:      member.Personal.LastName,
		Extras:        ExtrasFromPersonal(member.Personal),
		CorrelationID: uuid.NewString(),
	}
	if err := w.Attempts.SetRequestSnapshot(ctx, req.Club, req.Email, attempts.RequestSnapshot{
		Email:     req.Email,
		Name:      req.Name,
		FirstName: member.Personal.FirstName,
		LastName:  member.Personal.LastName,
		Extras:    msg.Extras,
	}); err != nil {
		return nil, err
	}
	if err := w.publish(ctx, msg); err != nil {
		return w.fail(ctx, req, err)
	}
	if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusEnqueued, ""); err != nil {
		return nil, err
	}

	w.count(ctx, req.Club, OutcomeEligible)
	return &Result{Outcome: OutcomeEligible, HTTPStatus: http.StatusOK, Member: view}, nil
}

func (w *Workflow) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return w.Publisher.SendIntakeMessage(ctx, string(body), map[string]string{
		"club":           msg.Club,
		"email":          msg.Email,
		"correlation_id": msg.CorrelationID,
	})
}

func (w *Workflow) upstreamFail(ctx context.Context, req Request, cause error) (*Result, error) {
	log.Printf("[intake] upstream error club=%s email=%s: %v", req.Club, req.Email, cause)
	if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusUpstreamError, cause.Error()); err != nil {
		return nil, err
	}
	w.Notifier.NotifyAttemptFailure(ctx, "intake upstream error", req.Club, req.Email, cause)
	w.count(ctx, req.Club, OutcomeUpstreamError)
	return &Result{Outcome: OutcomeUpstreamError, HTTPStatus: http.StatusBadGateway}, nil
}

func (w *Workflow) fail(ctx context.Context, req Request, cause error) (*Result, error) {
	log.Printf("[intake] failure club=%s email=%s: %v", req.Club, req.Email, cause)
	if err := w.Attempts.SetStatus(ctx, req.Club, req.Email, attempts.StatusFailed, cause.Error()); err != nil {
		return nil, err
	}
	w.Notifier.NotifyAttemptFailure(ctx, "intake failure", req.Club, req.Email, cause)
	w.count(ctx, req.Club, OutcomeError)
	return &Result{Outcome: OutcomeError, HTTPStatus: http.StatusInternalServerError}, nil
}

func (w *Workflow) count(ctx context.Context, club, outcome string) {
	if w.Metrics != nil {
		w.Metrics.CountOutcome(ctx, club, outcome)
	}
}

// ExtrasFromPersonal translates ABC personal data into MindBody client
// attributes. Field names are a fixed mapping; blank source fields are
// omitted entirely, never sent as empty strings.
func ExtrasFromPersonal(p abc.Personal) map[string]string {
	extras := map[string]string{}
	put := func(key, val string) {
		if val != "" {
			extras[key] = val
		}
	}
	put("BirthDate", p.BirthDate)
	put("MobilePhone", p.PrimaryPhone)
	put("AddressLine1", p.AddressLine1)
	put("AddressLine2", p.AddressLine2)
	put("City", p.City)
	put("State", p.State)
	put("PostalCode", p.PostalCode)
	put("Country", p.CountryCode)
	return extras
}
