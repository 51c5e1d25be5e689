// Package sweep periodically re-checks provisioned members against the
// eligibility rules and suspends the ones whose agreements no longer qualify.
package sweep

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/httpx"
)

const (
	defaultParallelism   = 4
	terminateTries       = 3
	terminateBackoffBase = 5 * time.Second
)

// SourceClient is the bulk member lookup the sweep needs from ABC.
type SourceClient interface {
	MembersByIDs(ctx context.Context, club string, ids []string) ([]abc.Member, error)
}

// TargetGateway is the single MindBody operation the sweep performs.
type TargetGateway interface {
	TerminateContract(ctx context.Context, clientID, segmentID string, terminationDate time.Time) error
}

// AttemptStore is the slice of the attempts store the sweep uses.
type AttemptStore interface {
	QueryByStatus(ctx context.Context, status attempts.Status) ([]attempts.Attempt, error)
	UpdateStatusIf(ctx context.Context, club, email string, expected, next attempts.Status) error
}

// OperatorNotifier pages operators when a suspension cannot be completed.
type OperatorNotifier interface {
	NotifyAttemptFailure(ctx context.Context, kind, club, email string, err error)
}

// Report summarizes one sweep run.
type Report struct {
	Scanned   int
	Suspended int
	Failures  int
}

// Sweeper walks every mb_success attempt, re-derives eligibility from ABC,
// and terminates + suspends the ones that fell below the thresholds.
type Sweeper struct {
	Attempts    AttemptStore
	ABC         SourceClient
	MindBody    TargetGateway
	Notifier    OperatorNotifier
	Thresholds  abc.Thresholds
	Parallelism int

	// Now and Sleep are injectable for deterministic tests.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Run executes one full sweep. Per-attempt failures are counted and paged,
// never fatal; the returned error covers only run-level failures like the
// initial query.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	var mu sync.Mutex

	provisioned, err := s.Attempts.QueryByStatus(ctx, attempts.StatusMbSuccess)
	if err != nil {
		return report, err
	}
	report.Scanned = len(provisioned)

	byClub := map[string][]attempts.Attempt{}
	for _, a := range provisioned {
		byClub[a.Club] = append(byClub[a.Club], a)
	}

	parallelism := s.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for club, clubAttempts := range byClub {
		club, clubAttempts := club, clubAttempts
		g.Go(func() error {
			suspended, failures := s.sweepClub(gctx, club, clubAttempts)
			mu.Lock()
			report.Suspended += suspended
			report.Failures += failures
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	log.Printf("[sweep] scanned=%d suspended=%d failures=%d", report.Scanned, report.Suspended, report.Failures)
	return report, nil
}

func (s *Sweeper) sweepClub(ctx context.Context, club string, clubAttempts []attempts.Attempt) (suspended, failures int) {
	var ids []string
	for _, a := range clubAttempts {
		if a.Evidence.AbcMemberID != "" {
			ids = append(ids, a.Evidence.AbcMemberID)
		}
	}
	if len(ids) == 0 {
		return 0, 0
	}

	members, err := s.ABC.MembersByIDs(ctx, club, ids)
	if err != nil {
		log.Printf("[sweep] club=%s member fetch failed: %v", club, err)
		s.Notifier.NotifyAttemptFailure(ctx, "sweep member fetch failure", club, "", err)
		return 0, len(clubAttempts)
	}
	byID := map[string]abc.Member{}
	for _, m := range members {
		byID[m.MemberID] = m
	}

	for _, a := range clubAttempts {
		member, ok := byID[a.Evidence.AbcMemberID]
		if !ok {
			// member disappeared upstream; leave the attempt for the next run
			log.Printf("[sweep] club=%s email=%s member %s missing from ABC", club, a.Email, a.Evidence.AbcMemberID)
			continue
		}
		if abc.EligibleForContract(&member.Agreement, s.Thresholds) {
			continue
		}
		if s.suspend(ctx, a) {
			suspended++
		} else {
			failures++
		}
	}
	return suspended, failures
}

// suspend terminates the purchased contract and flips the attempt to
// suspended. Termination is retried on transient failures with a doubling
// backoff; exhaustion or a definitive API rejection pages the operator and
// leaves the attempt at mb_success for the next run.
func (s *Sweeper) suspend(ctx context.Context, a attempts.Attempt) bool {
	clientID := a.Evidence.ClientID
	var segmentID string
	if a.Evidence.ContractPurchase != nil {
		segmentID = a.Evidence.ContractPurchase.ClientContractID
	}
	if clientID == "" || segmentID == "" {
		log.Printf("[sweep] club=%s email=%s has no purchase evidence to terminate", a.Club, a.Email)
		return false
	}

	var err error
	backoff := terminateBackoffBase
	for try := 1; try <= terminateTries; try++ {
		err = s.MindBody.TerminateContract(ctx, clientID, segmentID, s.now())
		if err == nil {
			break
		}
		if !httpx.IsTransient(err) {
			break
		}
		if try < terminateTries {
			log.Printf("[sweep] club=%s email=%s termination attempt %d failed: %v", a.Club, a.Email, try, err)
			s.sleep(backoff)
			backoff *= 2
		}
	}
	if err != nil {
		s.Notifier.NotifyAttemptFailure(ctx, "sweep termination failure", a.Club, a.Email, err)
		return false
	}

	err = s.Attempts.UpdateStatusIf(ctx, a.Club, a.Email, attempts.StatusMbSuccess, attempts.StatusSuspended)
	if errors.Is(err, attempts.ErrStatusMismatch) {
		// someone re-provisioned mid-sweep; their state wins
		log.Printf("[sweep] club=%s email=%s changed state mid-sweep, leaving it", a.Club, a.Email)
		return false
	}
	if err != nil {
		s.Notifier.NotifyAttemptFailure(ctx, "sweep status update failure", a.Club, a.Email, err)
		return false
	}
	log.Printf("[sweep] suspended club=%s email=%s", a.Club, a.Email)
	return true
}
