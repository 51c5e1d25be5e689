package attempts

import (
	"fmt"
	"time"
)

// Status is the closed set of intake attempt states. Unknown strings are
// rejected at the store boundary rather than carried around.
type Status string

const (
	StatusPending       Status = "pending"
	StatusFound         Status = "found"
	StatusEligible      Status = "eligible"
	StatusIneligible    Status = "ineligible"
	StatusEnqueued      Status = "enqueued"
	StatusMbSuccess     Status = "mb_success"
	StatusMbFailed      Status = "mb_failed"
	StatusMemberMissing Status = "member_missing"
	StatusUpstreamError Status = "upstream_error"
	StatusFailed        Status = "failed"
	StatusSuspended     Status = "suspended"
)

var validStatuses = map[Status]struct{}{
	StatusPending:       {},
	StatusFound:         {},
	StatusEligible:      {},
	StatusIneligible:    {},
	StatusEnqueued:      {},
	StatusMbSuccess:     {},
	StatusMbFailed:      {},
	StatusMemberMissing: {},
	StatusUpstreamError: {},
	StatusFailed:        {},
	StatusSuspended:     {},
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validStatuses[st]; !ok {
		return "", fmt.Errorf("attempts: unknown status %q", s)
	}
	return st, nil
}

// RequestSnapshot is the structured copy of the inbound request persisted on
// the attempt, enough to replay the provisioning from the admin surface.
type RequestSnapshot struct {
	Email     string            `dynamodbav:"email" json:"email"`
	Name      string            `dynamodbav:"name,omitempty" json:"name,omitempty"`
	FirstName string            `dynamodbav:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string            `dynamodbav:"last_name,omitempty" json:"last_name,omitempty"`
	Extras    map[string]string `dynamodbav:"extras,omitempty" json:"extras,omitempty"`
}

// PurchaseEvidence records the contract purchase result fields later passes
// (the sweep, re-entries) need.
type PurchaseEvidence struct {
	ClientContractID string `dynamodbav:"client_contract_id" json:"client_contract_id"`
	SaleID           string `dynamodbav:"sale_id,omitempty" json:"sale_id,omitempty"`
}

// Evidence is the accumulating record of every downstream decision/result.
// Fields are named and optional; merges are field-by-field so a retry never
// loses evidence an earlier run recorded. Pointer fields distinguish "not
// recorded" from recorded false/zero.
type Evidence struct {
	AbcMemberID          string            `dynamodbav:"abc_member_id,omitempty" json:"abc_member_id,omitempty"`
	AbcAgreementID       string            `dynamodbav:"abc_agreement_id,omitempty" json:"abc_agreement_id,omitempty"`
	PaymentFrequency     string            `dynamodbav:"payment_frequency,omitempty" json:"payment_frequency,omitempty"`
	NextDueAmount        string            `dynamodbav:"next_due_amount,omitempty" json:"next_due_amount,omitempty"`
	DuplicateTotal       *int              `dynamodbav:"mindbody_duplicate_total,omitempty" json:"mindbody_duplicate_total,omitempty"`
	DuplicateClientID    string            `dynamodbav:"mindbody_duplicate_client_id,omitempty" json:"mindbody_duplicate_client_id,omitempty"`
	DuplicateActive      *bool             `dynamodbav:"mindbody_duplicate_client_active,omitempty" json:"mindbody_duplicate_client_active,omitempty"`
	DuplicateReactivated *bool             `dynamodbav:"mindbody_duplicate_client_reactivated,omitempty" json:"mindbody_duplicate_client_reactivated,omitempty"`
	ClientID             string            `dynamodbav:"mindbody_client_id,omitempty" json:"mindbody_client_id,omitempty"`
	ClientCreated        *bool             `dynamodbav:"mindbody_client_created,omitempty" json:"mindbody_client_created,omitempty"`
	ContractID           string            `dynamodbav:"mindbody_contract_id,omitempty" json:"mindbody_contract_id,omitempty"`
	SegmentCount         *int              `dynamodbav:"mindbody_client_contract_count,omitempty" json:"mindbody_client_contract_count,omitempty"`
	ContractPurchase     *PurchaseEvidence `dynamodbav:"mindbody_contract_purchase,omitempty" json:"mindbody_contract_purchase,omitempty"`
	TerminatedSegmentIDs []string          `dynamodbav:"mindbody_terminated_segment_ids,omitempty" json:"mindbody_terminated_segment_ids,omitempty"`
	PasswordResetSent    *bool             `dynamodbav:"mindbody_password_reset_sent,omitempty" json:"mindbody_password_reset_sent,omitempty"`
}

// Merge overlays in onto e field by field. Set fields win; unset fields in
// in leave e untouched. Terminated segment ids accumulate as a union.
func (e *Evidence) Merge(in Evidence) {
	if in.AbcMemberID != "" {
		e.AbcMemberID = in.AbcMemberID
	}
	if in.AbcAgreementID != "" {
		e.AbcAgreementID = in.AbcAgreementID
	}
	if in.PaymentFrequency != "" {
		e.PaymentFrequency = in.PaymentFrequency
	}
	if in.NextDueAmount != "" {
		e.NextDueAmount = in.NextDueAmount
	}
	if in.DuplicateTotal != nil {
		e.DuplicateTotal = in.DuplicateTotal
	}
	if in.DuplicateClientID != "" {
		e.DuplicateClientID = in.DuplicateClientID
	}
	if in.DuplicateActive != nil {
		e.DuplicateActive = in.DuplicateActive
	}
	if in.DuplicateReactivated != nil {
		e.DuplicateReactivated = in.DuplicateReactivated
	}
	if in.ClientID != "" {
		e.ClientID = in.ClientID
	}
	if in.ClientCreated != nil {
		e.ClientCreated = in.ClientCreated
	}
	if in.ContractID != "" {
		e.ContractID = in.ContractID
	}
	if in.SegmentCount != nil {
		e.SegmentCount = in.SegmentCount
	}
	if in.ContractPurchase != nil {
		e.ContractPurchase = in.ContractPurchase
	}
	for _, id := range in.TerminatedSegmentIDs {
		if !containsString(e.TerminatedSegmentIDs, id) {
			e.TerminatedSegmentIDs = append(e.TerminatedSegmentIDs, id)
		}
	}
	if in.PasswordResetSent != nil {
		e.PasswordResetSent = in.PasswordResetSent
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Attempt is the durable record of one provisioning workflow identity,
// keyed (club, email). One row per identity, forever; re-submissions update
// the row, they never duplicate it.
type Attempt struct {
	Club            string          `dynamodbav:"club"`  // PK
	Email           string          `dynamodbav:"email"` // SK
	Status          Status          `dynamodbav:"status"`
	RequestSnapshot RequestSnapshot `dynamodbav:"request_snapshot"`
	Evidence        Evidence        `dynamodbav:"evidence"`
	ErrorMessage    string          `dynamodbav:"error_message,omitempty"`
	RetryCount      int             `dynamodbav:"retry_count"`
	CreatedAt       time.Time       `dynamodbav:"created_at"`
	UpdatedAt       time.Time       `dynamodbav:"updated_at"`
}
