package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []attempts.Attempt
	statuses map[string]attempts.Status
}

func newFakeStore(rows ...attempts.Attempt) *fakeStore {
	f := &fakeStore{rows: rows, statuses: map[string]attempts.Status{}}
	for _, a := range rows {
		f.statuses[a.Club+"|"+a.Email] = a.Status
	}
	return f
}

func (f *fakeStore) QueryByStatus(ctx context.Context, status attempts.Status) ([]attempts.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []attempts.Attempt
	for _, a := range f.rows {
		if f.statuses[a.Club+"|"+a.Email] == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatusIf(ctx context.Context, club, email string, expected, next attempts.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := club + "|" + email
	if f.statuses[k] != expected {
		return attempts.ErrStatusMismatch
	}
	f.statuses[k] = next
	return nil
}

func (f *fakeStore) status(club, email string) attempts.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[club+"|"+email]
}

type fakeABC struct {
	members map[string][]abc.Member
	err     error
}

func (f *fakeABC) MembersByIDs(ctx context.Context, club string, ids []string) ([]abc.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[club], nil
}

type fakeGateway struct {
	mu         sync.Mutex
	errs       []error // consumed one per call, nil once exhausted
	terminated []string
}

func (f *fakeGateway) TerminateContract(ctx context.Context, clientID, segmentID string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.terminated = append(f.terminated, segmentID)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeNotifier) NotifyAttemptFailure(ctx context.Context, kind, club, email string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func provisionedAttempt(club, email, memberID, clientID, segmentID string) attempts.Attempt {
	return attempts.Attempt{
		Club:   club,
		Email:  email,
		Status: attempts.StatusMbSuccess,
		Evidence: attempts.Evidence{
			AbcMemberID:      memberID,
			ClientID:         clientID,
			ContractPurchase: &attempts.PurchaseEvidence{ClientContractID: segmentID},
		},
	}
}

func eligibleAgreement() abc.Agreement {
	return abc.Agreement{PaymentFrequency: "Monthly", NextDueAmount: "59.00"}
}

func ineligibleAgreement() abc.Agreement {
	return abc.Agreement{PaymentFrequency: "Monthly", NextDueAmount: "19.00"}
}

func newSweeper(store *fakeStore, src *fakeABC, gw *fakeGateway) (*Sweeper, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return &Sweeper{
		Attempts:   store,
		ABC:        src,
		MindBody:   gw,
		Notifier:   notifier,
		Thresholds: abc.DefaultThresholds(),
		Sleep:      func(time.Duration) {},
	}, notifier
}

func TestRun_SuspendsIneligible(t *testing.T) {
	store := newFakeStore(
		provisionedAttempt("100", "keep@example.com", "m-1", "mb-1", "cc-1"),
		provisionedAttempt("100", "drop@example.com", "m-2", "mb-2", "cc-2"),
	)
	src := &fakeABC{members: map[string][]abc.Member{
		"100": {
			{MemberID: "m-1", Agreement: eligibleAgreement()},
			{MemberID: "m-2", Agreement: ineligibleAgreement()},
		},
	}}
	gw := &fakeGateway{}
	s, _ := newSweeper(store, src, gw)

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Scanned != 2 || report.Suspended != 1 || report.Failures != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(gw.terminated) != 1 || gw.terminated[0] != "cc-2" {
		t.Fatalf("terminated = %v", gw.terminated)
	}
	if store.status("100", "keep@example.com") != attempts.StatusMbSuccess {
		t.Fatal("eligible member must stay mb_success")
	}
	if store.status("100", "drop@example.com") != attempts.StatusSuspended {
		t.Fatal("ineligible member must be suspended")
	}
}

func TestRun_RetriesTransientTermination(t *testing.T) {
	store := newFakeStore(provisionedAttempt("100", "drop@example.com", "m-2", "mb-2", "cc-2"))
	src := &fakeABC{members: map[string][]abc.Member{
		"100": {{MemberID: "m-2", Agreement: ineligibleAgreement()}},
	}}
	gw := &fakeGateway{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
	var slept []time.Duration
	s, notifier := newSweeper(store, src, gw)
	s.Sleep = func(d time.Duration) { slept = append(slept, d) }

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Suspended != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 10*time.Second {
		t.Fatalf("backoff = %v", slept)
	}
	if len(notifier.kinds) != 0 {
		t.Fatalf("recovered termination should not page, got %v", notifier.kinds)
	}
}

func TestRun_ExhaustedRetriesLeaveMbSuccess(t *testing.T) {
	store := newFakeStore(provisionedAttempt("100", "drop@example.com", "m-2", "mb-2", "cc-2"))
	src := &fakeABC{members: map[string][]abc.Member{
		"100": {{MemberID: "m-2", Agreement: ineligibleAgreement()}},
	}}
	gw := &fakeGateway{errs: []error{
		context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded,
	}}
	s, notifier := newSweeper(store, src, gw)

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Suspended != 0 || report.Failures != 1 {
		t.Fatalf("report = %+v", report)
	}
	if store.status("100", "drop@example.com") != attempts.StatusMbSuccess {
		t.Fatal("failed termination must leave the attempt for the next run")
	}
	if len(notifier.kinds) != 1 {
		t.Fatalf("operator should be paged once, got %v", notifier.kinds)
	}
}

func TestRun_APIErrorDoesNotRetry(t *testing.T) {
	store := newFakeStore(provisionedAttempt("100", "drop@example.com", "m-2", "mb-2", "cc-2"))
	src := &fakeABC{members: map[string][]abc.Member{
		"100": {{MemberID: "m-2", Agreement: ineligibleAgreement()}},
	}}
	gw := &fakeGateway{errs: []error{&mindbody.APIError{Op: "terminatecontract", Status: 422}}}
	var slept int
	s, notifier := newSweeper(store, src, gw)
	s.Sleep = func(time.Duration) { slept++ }

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if slept != 0 {
		t.Fatal("definitive API rejections must not be retried")
	}
	if len(notifier.kinds) != 1 {
		t.Fatal("API rejection should page the operator")
	}
	if store.status("100", "drop@example.com") != attempts.StatusMbSuccess {
		t.Fatal("attempt must stay mb_success after a failed termination")
	}
}

func TestRun_MemberFetchFailureCountsClub(t *testing.T) {
	store := newFakeStore(provisionedAttempt("100", "a@example.com", "m-1", "mb-1", "cc-1"))
	src := &fakeABC{err: &abc.UpstreamError{Op: "members by ids", Status: 503}}
	s, notifier := newSweeper(store, src, &fakeGateway{})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Failures != 1 || report.Suspended != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(notifier.kinds) != 1 {
		t.Fatal("fetch failure should page the operator")
	}
}

func TestRun_ConcurrentStateChangeWins(t *testing.T) {
	a := provisionedAttempt("100", "drop@example.com", "m-2", "mb-2", "cc-2")
	store := newFakeStore(a)
	src := &fakeABC{members: map[string][]abc.Member{
		"100": {{MemberID: "m-2", Agreement: ineligibleAgreement()}},
	}}
	gw := &fakeGateway{}
	s, _ := newSweeper(store, src, gw)
	// someone re-submits while the sweep is running
	store.statuses["100|drop@example.com"] = attempts.StatusEnqueued
	// the sweep already holds the stale mb_success row
	store.rows[0] = a

	suspended := s.suspend(context.Background(), a)
	if suspended {
		t.Fatal("a state change mid-sweep must not be overwritten")
	}
	if store.status("100", "drop@example.com") != attempts.StatusEnqueued {
		t.Fatal("the newer state must win")
	}
}
