// Package contracts decides what to do with a client's existing contract
// segments before purchasing a new term: buy, replace, or leave alone.
package contracts

import (
	"log"
	"time"

	"github.com/swingbridge/intakeflow/internal/mindbody"
)

// Action is the reconciliation outcome.
type Action int

const (
	// Skip means the client is already covered (or coverage is ambiguous).
	Skip Action = iota
	// Purchase means buy a fresh segment.
	Purchase
	// TerminateAndPurchase means terminate the remaining active segments,
	// then buy a fresh one.
	TerminateAndPurchase
)

func (a Action) String() string {
	switch a {
	case Purchase:
		return "purchase"
	case TerminateAndPurchase:
		return "terminate_and_purchase"
	default:
		return "skip"
	}
}

// Decision carries the action plus the active segments a
// terminate-and-purchase must terminate.
type Decision struct {
	Action         Action
	ActiveSegments []mindbody.ContractSegment
}

// Decide evaluates the client's segments for one contract id against today.
// today is injected so the rules are deterministic under test. Rules are
// evaluated in order; the first applicable one wins.
func Decide(segments []mindbody.ContractSegment, contractID string, today time.Time) Decision {
	today = truncate(today)

	var active, terminated []mindbody.ContractSegment
	for _, seg := range segments {
		if seg.ContractID != contractID {
			continue
		}
		if seg.TerminationDate == nil {
			active = append(active, seg)
		} else {
			terminated = append(terminated, seg)
		}
	}

	if len(active) == 0 && len(terminated) == 0 {
		return Decision{Action: Purchase}
	}

	// Active segments with missing dates: the data is unreliable, so treat
	// the client as covered rather than purchasing on top of ambiguous state.
	for _, seg := range active {
		if seg.StartDate == nil || seg.EndDate == nil {
			log.Printf("[contracts] segment %s for contract %s has incomplete dates, skipping purchase", seg.SegmentID, contractID)
			return Decision{Action: Skip, ActiveSegments: active}
		}
	}

	for _, seg := range active {
		if covers(seg, today) {
			return Decision{Action: Skip, ActiveSegments: active}
		}
	}

	// A terminated segment whose original range covered today was the
	// current segment until someone terminated it; replace the remainder.
	for _, seg := range terminated {
		if seg.StartDate != nil && seg.EndDate != nil && covers(seg, today) {
			return Decision{Action: TerminateAndPurchase, ActiveSegments: active}
		}
	}

	// A stale future-dated active segment also gets replaced.
	for _, seg := range active {
		if truncate(seg.StartDate.Time).After(today) {
			return Decision{Action: TerminateAndPurchase, ActiveSegments: active}
		}
	}

	// Only past, non-covering active segments remain.
	if len(active) > 0 {
		return Decision{Action: Skip, ActiveSegments: active}
	}

	// Everything is terminated and nothing is current.
	return Decision{Action: Purchase}
}

// TerminationDate returns the date to terminate a segment on: today, but
// never before the segment began.
func TerminationDate(seg mindbody.ContractSegment, today time.Time) time.Time {
	today = truncate(today)
	if seg.StartDate != nil {
		if start := truncate(seg.StartDate.Time); start.After(today) {
			return start
		}
	}
	return today
}

func covers(seg mindbody.ContractSegment, today time.Time) bool {
	start := truncate(seg.StartDate.Time)
	end := truncate(seg.EndDate.Time)
	return !start.After(today) && !end.Before(today)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
