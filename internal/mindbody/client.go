package mindbody

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/swingbridge/intakeflow/internal/httpx"
)

// Config carries the MindBody connection settings.
type Config struct {
	Base        string
	SiteID      string
	APIKey      string
	AppName     string
	Username    string
	Password    string
	StaticToken string
	Timeout     time.Duration

	// Payment is the placeholder sent with contract purchases; MindBody
	// requires payment info even for zero-cost contracts. Operational
	// detail, replaceable without touching the reconciliation logic.
	Payment PaymentDefaults
}

// PaymentDefaults is the fixed payment placeholder used on purchases.
type PaymentDefaults struct {
	Type   string
	Amount float64
}

// Client is the Target System provisioning gateway. One instance owns one
// token cache.
type Client struct {
	cfg    Config
	http   *httpx.Client
	tokens *tokenCache
	now    func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Payment.Type == "" {
		cfg.Payment = PaymentDefaults{Type: "Comp", Amount: 0}
	}
	return &Client{
		cfg:    cfg,
		http:   httpx.New(cfg.Base, nil, cfg.Timeout),
		tokens: &tokenCache{},
		now:    time.Now,
	}
}

func (c *Client) baseHeaders() map[string]string {
	return map[string]string{
		"Api-Key":    c.cfg.APIKey,
		"SiteId":     c.cfg.SiteID,
		"User-Agent": c.cfg.AppName,
	}
}

func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	h := c.baseHeaders()
	h["Authorization"] = "Bearer " + tok
	return h, nil
}

func httpStatus(s int) string { return strconv.Itoa(s) }

// RequiredClientFields fetches MindBody's dynamically-configured list of
// mandatory client fields.
func (c *Client) RequiredClientFields(ctx context.Context) ([]string, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Get(ctx, "client/requiredclientfields", nil, h)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &APIError{Op: "requiredclientfields", Status: resp.Status, Body: string(resp.Body)}
	}
	var body requiredFieldsResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &APIError{Op: "requiredclientfields", Body: err.Error()}
	}
	return body.RequiredClientFields, nil
}

// EnsureRequiredClientFields fails fast when the candidate attribute set is
// missing any mandatory field, so we never attempt a creation we know will
// be rejected.
func (c *Client) EnsureRequiredClientFields(ctx context.Context, attrs map[string]string) error {
	fields, err := c.RequiredClientFields(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, f := range fields {
		if _, ok := attrs[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &APIError{Op: "requiredclientfields", Body: "missing required fields: " + strings.Join(missing, ", ")}
	}
	return nil
}

// DuplicateClients searches for existing clients matching the person. Only
// the current page is read; we expect at most a single duplicate per email.
func (c *Client) DuplicateClients(ctx context.Context, firstName, lastName, email string) (*DuplicateResult, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Get(ctx, "client/clientduplicates", map[string]string{
		"firstName": firstName,
		"lastName":  lastName,
		"email":     email,
	}, h)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &APIError{Op: "clientduplicates", Status: resp.Status, Body: string(resp.Body)}
	}
	var body duplicatesResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &APIError{Op: "clientduplicates", Body: err.Error()}
	}
	clients := body.ClientDuplicates
	if len(clients) == 0 {
		clients = body.Clients
	}
	total := len(clients)
	if body.PaginationResponse.TotalResults != nil {
		total = *body.PaginationResponse.TotalResults
	}
	return &DuplicateResult{Clients: clients, Total: total}, nil
}

// PickDuplicate applies the duplicate-match priority: exact case-insensitive
// email match wins, otherwise the first result.
func PickDuplicate(dup *DuplicateResult, email string) *TargetClient {
	if dup == nil || len(dup.Clients) == 0 {
		return nil
	}
	want := strings.ToLower(strings.TrimSpace(email))
	for i := range dup.Clients {
		if strings.ToLower(strings.TrimSpace(dup.Clients[i].Email)) == want {
			return &dup.Clients[i]
		}
	}
	return &dup.Clients[0]
}

// ClientCompleteInfo fetches the client record plus its active flag.
func (c *Client) ClientCompleteInfo(ctx context.Context, clientID string) (*CompleteInfo, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Get(ctx, "client/clientcompleteinfo", map[string]string{"clientId": clientID}, h)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &APIError{Op: "clientcompleteinfo", Status: resp.Status, Body: string(resp.Body)}
	}
	var body completeInfoResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &APIError{Op: "clientcompleteinfo", Body: err.Error()}
	}
	var client TargetClient
	switch {
	case len(body.Clients) > 0:
		client = body.Clients[0]
	case body.Client != nil:
		client = *body.Client
	default:
		return nil, &APIError{Op: "clientcompleteinfo", Body: "no client in response"}
	}
	return &CompleteInfo{Client: client, Active: client.Active}, nil
}

// AddClient creates a client. Not idempotent: callers must duplicate-check
// first and only call this on zero duplicates.
func (c *Client) AddClient(ctx context.Context, firstName, lastName, email string, extras map[string]string) (*TargetClient, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"FirstName": firstName,
		"LastName":  lastName,
		"Email":     email,
	}
	for k, v := range extras {
		body[k] = v
	}
	resp, err := c.http.Post(ctx, "client/addclient", body, h)
	if err != nil {
		return nil, err
	}
	if resp.Status == 401 || resp.Status == 403 {
		return nil, &AuthError{Msg: "addclient HTTP " + httpStatus(resp.Status)}
	}
	if !resp.Success() {
		return nil, &APIError{Op: "addclient", Status: resp.Status, Body: string(resp.Body)}
	}
	var out addClientResponse
	if err := resp.Decode(&out); err != nil {
		return nil, &APIError{Op: "addclient", Body: err.Error()}
	}
	return &out.Client, nil
}

// ReactivateClient flips the client's Active flag back on. Idempotent:
// activating an already-active client is a no-op on MindBody's side.
func (c *Client) ReactivateClient(ctx context.Context, clientID string) error {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(ctx, "client/updateclient", map[string]interface{}{
		"Client": map[string]interface{}{"Id": clientID, "Active": true},
	}, h)
	if err != nil {
		return err
	}
	if resp.Status == 401 || resp.Status == 403 {
		return &AuthError{Msg: "updateclient HTTP " + httpStatus(resp.Status)}
	}
	if !resp.Success() {
		return &APIError{Op: "updateclient", Status: resp.Status, Body: string(resp.Body)}
	}
	return nil
}

// FindContractByName resolves the configured target contract from the
// catalog for a location. The contract existing is an operational
// precondition, so no match is an error.
func (c *Client) FindContractByName(ctx context.Context, name string, locationID int) (*Contract, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Get(ctx, "sale/contracts", map[string]string{
		"LocationId": strconv.Itoa(locationID),
	}, h)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &APIError{Op: "contracts", Status: resp.Status, Body: string(resp.Body)}
	}
	var body contractsResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &APIError{Op: "contracts", Body: err.Error()}
	}

	want := normalizeContractName(name)
	// exact normalized match first
	for i := range body.Contracts {
		if normalizeContractName(body.Contracts[i].Name) == want {
			return &body.Contracts[i], nil
		}
	}
	// fall back to substring match either direction
	for i := range body.Contracts {
		got := normalizeContractName(body.Contracts[i].Name)
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return &body.Contracts[i], nil
		}
	}
	return nil, &APIError{Op: "contracts", Body: fmt.Sprintf("contract %q not found at location %d", name, locationID)}
}

// normalizeContractName lowercases and collapses whitespace/punctuation so
// operator-entered names survive cosmetic differences.
func normalizeContractName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClientContracts lists all contract segments held by a client.
func (c *Client) ClientContracts(ctx context.Context, clientID string) ([]ContractSegment, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Get(ctx, "client/clientcontracts", map[string]string{"clientId": clientID}, h)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &APIError{Op: "clientcontracts", Status: resp.Status, Body: string(resp.Body)}
	}
	var body clientContractsResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &APIError{Op: "clientcontracts", Body: err.Error()}
	}
	return body.Contracts, nil
}

// PurchaseContract buys the contract for the client. Not idempotent: the
// caller decides via contract reconciliation whether to call it at all.
// Notifications are suppressed; the password-reset email is our welcome
// channel instead.
func (c *Client) PurchaseContract(ctx context.Context, clientID, contractID string, locationID int, startDate time.Time) (*PurchaseResult, error) {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"ClientId":          clientID,
		"ContractId":        contractID,
		"LocationId":        locationID,
		"StartDate":         startDate.Format("2006-01-02"),
		"SendNotifications": false,
		"PaymentInfo": map[string]interface{}{
			"Type":   c.cfg.Payment.Type,
			"Amount": c.cfg.Payment.Amount,
		},
	}
	resp, err := c.http.Post(ctx, "sale/purchasecontract", body, h)
	if err != nil {
		return nil, err
	}
	if resp.Status == 401 || resp.Status == 403 {
		return nil, &AuthError{Msg: "purchasecontract HTTP " + httpStatus(resp.Status)}
	}
	if !resp.Success() {
		return nil, &APIError{Op: "purchasecontract", Status: resp.Status, Body: string(resp.Body)}
	}
	var out PurchaseResult
	if err := resp.Decode(&out); err != nil {
		return nil, &APIError{Op: "purchasecontract", Body: err.Error()}
	}
	return &out, nil
}

// TerminateContract terminates one currently-active contract segment. The
// response must explicitly confirm success; an ambiguous response is an
// APIError, never silently ignored.
func (c *Client) TerminateContract(ctx context.Context, clientID, segmentID string, terminationDate time.Time) error {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(ctx, "contract/terminatecontract", map[string]interface{}{
		"ClientId":         clientID,
		"ClientContractId": segmentID,
		"TerminationDate":  terminationDate.Format("2006-01-02"),
	}, h)
	if err != nil {
		return err
	}
	if resp.Status == 401 || resp.Status == 403 {
		return &AuthError{Msg: "terminatecontract HTTP " + httpStatus(resp.Status)}
	}
	if !resp.Success() {
		return &APIError{Op: "terminatecontract", Status: resp.Status, Body: string(resp.Body)}
	}
	var out terminateResponse
	if err := resp.Decode(&out); err != nil {
		return &APIError{Op: "terminatecontract", Body: err.Error()}
	}
	if out.Status != "Success" {
		return &APIError{Op: "terminatecontract", Body: "termination not confirmed: " + string(resp.Body)}
	}
	return nil
}

// SendPasswordResetEmail asks MindBody to email the client a password reset.
// Best-effort side channel: callers record but never fail on errors here.
func (c *Client) SendPasswordResetEmail(ctx context.Context, firstName, lastName, email string) error {
	h, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(ctx, "client/sendpasswordresetemail", map[string]string{
		"UserFirstName": firstName,
		"UserLastName":  lastName,
		"UserEmail":     email,
	}, h)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return &APIError{Op: "sendpasswordresetemail", Status: resp.Status, Body: string(resp.Body)}
	}
	log.Printf("[mindbody] sent password reset email for %s", email)
	return nil
}
