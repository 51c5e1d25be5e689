package intake

import (
	"context"
	"sync"
	"time"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/attempts"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

// fakeStore is an in-memory AttemptStore with the same merge semantics as the
// DynamoDB-backed one.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*attempts.Attempt

	failSetStatus error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*attempts.Attempt{}}
}

func key(club, email string) string { return club + "|" + email }

func (f *fakeStore) Get(ctx context.Context, club, email string) (*attempts.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[key(club, email)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) Create(ctx context.Context, a *attempts.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key(a.Club, a.Email)]; ok {
		return attempts.ErrAlreadyExists
	}
	if a.RetryCount == 0 {
		a.RetryCount = 1
	}
	cp := *a
	f.rows[key(a.Club, a.Email)] = &cp
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, club, email string, status attempts.Status, errorMessage string) error {
	if f.failSetStatus != nil {
		return f.failSetStatus
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[key(club, email)]; ok {
		a.Status = status
		a.ErrorMessage = errorMessage
		a.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeStore) SetRequestSnapshot(ctx context.Context, club, email string, snap attempts.RequestSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[key(club, email)]; ok {
		a.RequestSnapshot = snap
	}
	return nil
}

func (f *fakeStore) IncrementRetry(ctx context.Context, club, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[key(club, email)]; ok {
		a.RetryCount++
	}
	return nil
}

func (f *fakeStore) MergeEvidence(ctx context.Context, club, email string, ev attempts.Evidence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[key(club, email)]; ok {
		a.Evidence.Merge(ev)
	}
	return nil
}

func (f *fakeStore) get(club, email string) *attempts.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[key(club, email)]
}

func (f *fakeStore) seed(a attempts.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.RetryCount == 0 {
		a.RetryCount = 1
	}
	f.rows[key(a.Club, a.Email)] = &a
}

// fakeABC serves canned member/agreement lookups.
type fakeABC struct {
	member       *abc.Member
	memberErr    error
	agreement    *abc.Agreement
	agreementErr error
}

func (f *fakeABC) FindMemberByEmail(ctx context.Context, club, email string) (*abc.Member, error) {
	return f.member, f.memberErr
}

func (f *fakeABC) GetAgreement(ctx context.Context, club, memberID string) (*abc.Agreement, error) {
	return f.agreement, f.agreementErr
}

type fakePublisher struct {
	sent []string
	err  error
}

func (f *fakePublisher) SendIntakeMessage(ctx context.Context, body string, attrs map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

type fakeNotifier struct {
	notifications []string
}

func (f *fakeNotifier) NotifyAttemptFailure(ctx context.Context, kind, club, email string, err error) {
	f.notifications = append(f.notifications, kind)
}

type fakeMetrics struct {
	outcomes []string
}

func (f *fakeMetrics) CountOutcome(ctx context.Context, club, outcome string) {
	f.outcomes = append(f.outcomes, outcome)
}

// fakeGateway scripts the MindBody surface the provisioner touches.
type fakeGateway struct {
	requiredErr  error
	duplicates   *mindbody.DuplicateResult
	duplicateErr error
	completeInfo *mindbody.CompleteInfo
	added        *mindbody.TargetClient
	addErr       error
	contract     *mindbody.Contract
	contractErr  error
	segments     []mindbody.ContractSegment
	segmentsErr  error
	purchase     *mindbody.PurchaseResult
	purchaseErr  error
	terminateErr error
	resetErr     error

	addCalls        int
	reactivateCalls int
	purchaseCalls   int
	terminated      []string
	resetCalls      int
}

func (f *fakeGateway) EnsureRequiredClientFields(ctx context.Context, attrs map[string]string) error {
	return f.requiredErr
}

func (f *fakeGateway) DuplicateClients(ctx context.Context, firstName, lastName, email string) (*mindbody.DuplicateResult, error) {
	if f.duplicateErr != nil {
		return nil, f.duplicateErr
	}
	if f.duplicates == nil {
		return &mindbody.DuplicateResult{}, nil
	}
	return f.duplicates, nil
}

func (f *fakeGateway) ClientCompleteInfo(ctx context.Context, clientID string) (*mindbody.CompleteInfo, error) {
	return f.completeInfo, nil
}

func (f *fakeGateway) AddClient(ctx context.Context, firstName, lastName, email string, extras map[string]string) (*mindbody.TargetClient, error) {
	f.addCalls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	return f.added, nil
}

func (f *fakeGateway) ReactivateClient(ctx context.Context, clientID string) error {
	f.reactivateCalls++
	return nil
}

func (f *fakeGateway) FindContractByName(ctx context.Context, name string, locationID int) (*mindbody.Contract, error) {
	if f.contractErr != nil {
		return nil, f.contractErr
	}
	return f.contract, nil
}

func (f *fakeGateway) ClientContracts(ctx context.Context, clientID string) ([]mindbody.ContractSegment, error) {
	return f.segments, f.segmentsErr
}

func (f *fakeGateway) PurchaseContract(ctx context.Context, clientID, contractID string, locationID int, startDate time.Time) (*mindbody.PurchaseResult, error) {
	f.purchaseCalls++
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	return f.purchase, nil
}

func (f *fakeGateway) TerminateContract(ctx context.Context, clientID, segmentID string, terminationDate time.Time) error {
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.terminated = append(f.terminated, segmentID)
	return nil
}

func (f *fakeGateway) SendPasswordResetEmail(ctx context.Context, firstName, lastName, email string) error {
	f.resetCalls++
	return f.resetErr
}
