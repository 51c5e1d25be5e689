package abc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/swingbridge/intakeflow/internal/httpx"
)

// ErrMemberNotFound means ABC has no member matching the lookup. This is a
// definitive answer, not an upstream failure.
var ErrMemberNotFound = errors.New("abc: member not found")

// UpstreamError is any non-success response or transport failure from ABC.
// Callers treat it as retryable and distinct from programming errors.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("abc: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("abc: %s: HTTP %d", e.Op, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const pageSize = 100

// Client talks to the ABC Financial club-management API. Auth is static
// app_id/app_key headers.
type Client struct {
	http *httpx.Client
}

// Config carries the ABC connection settings, read from env by the caller.
type Config struct {
	Base    string
	AppID   string
	AppKey  string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	return &Client{
		http: httpx.New(cfg.Base, map[string]string{
			"app_id":  cfg.AppID,
			"app_key": cfg.AppKey,
		}, cfg.Timeout),
	}
}

// FindMemberByEmail looks a member up by email, walking the paged personals
// listing. Email alone is authoritative; a name supplied by the caller is
// informational only and never consulted here.
func (c *Client) FindMemberByEmail(ctx context.Context, club, email string) (*Member, error) {
	want := strings.ToLower(strings.TrimSpace(email))
	page := 1
	for {
		resp, err := c.http.Get(ctx, fmt.Sprintf("%s/members/personals", club), map[string]string{
			"email": email,
			"page":  strconv.Itoa(page),
			"size":  strconv.Itoa(pageSize),
		}, nil)
		if err != nil {
			return nil, &UpstreamError{Op: "search personals", Err: err}
		}
		if !resp.Success() {
			return nil, &UpstreamError{Op: "search personals", Status: resp.Status}
		}
		var body personalsResponse
		if err := resp.Decode(&body); err != nil {
			return nil, &UpstreamError{Op: "search personals", Err: err}
		}
		for i := range body.Members {
			if strings.ToLower(strings.TrimSpace(body.Members[i].Personal.Email)) == want {
				return &body.Members[i], nil
			}
		}
		if body.Status.NextPage <= 0 || body.Status.NextPage <= page {
			return nil, ErrMemberNotFound
		}
		page = body.Status.NextPage
	}
}

// GetAgreement fetches member details and returns the member's current
// agreement (the first entry of the returned set).
func (c *Client) GetAgreement(ctx context.Context, club, memberID string) (*Agreement, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/members/%s", club, memberID), nil, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "member details", Err: err}
	}
	if !resp.Success() {
		return nil, &UpstreamError{Op: "member details", Status: resp.Status}
	}
	var body memberDetailsResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &UpstreamError{Op: "member details", Err: err}
	}
	if len(body.Members) == 0 {
		return nil, ErrMemberNotFound
	}
	ag := body.Members[0].Agreement
	return &ag, nil
}

// MembersByIDs bulk-fetches members for the eligibility sweep.
func (c *Client) MembersByIDs(ctx context.Context, club string, ids []string) ([]Member, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/members", club), map[string]string{
		"memberIds": strings.Join(ids, ","),
	}, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "members by ids", Err: err}
	}
	if !resp.Success() {
		return nil, &UpstreamError{Op: "members by ids", Status: resp.Status}
	}
	var body memberDetailsResponse
	if err := resp.Decode(&body); err != nil {
		return nil, &UpstreamError{Op: "members by ids", Err: err}
	}
	return body.Members, nil
}
