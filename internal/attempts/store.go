package attempts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	internalaws "github.com/swingbridge/intakeflow/internal/aws"
)

// ErrAlreadyExists indicates the conditional create lost to an existing row.
var ErrAlreadyExists = errors.New("attempts: attempt already exists")

// ErrStatusMismatch indicates a guarded status transition found a different
// current status (typically a concurrent unit of work got there first).
var ErrStatusMismatch = errors.New("attempts: status mismatch")

const statusIndex = "status-index"

// Store persists intake attempts in DynamoDB: PK club, SK email, plus a
// status GSI for the eligibility sweep.
type Store struct {
	client    internalaws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client internalaws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(club, email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"club":  &types.AttributeValueMemberS{Value: club},
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

// Get fetches an attempt by identity. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, club, email string) (*Attempt, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(club, email),
	})
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalAttempt(out.Item)
}

// Create writes a fresh attempt, failing with ErrAlreadyExists when the
// identity already has a row.
func (s *Store) Create(ctx context.Context, a *Attempt) error {
	if _, err := ParseStatus(string(a.Status)); err != nil {
		return err
	}
	now := s.nowFunc()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.RetryCount == 0 {
		a.RetryCount = 1
	}

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(club)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put attempt: %w", err)
	}
	return nil
}

// SetStatus moves the attempt to status and records the error message (empty
// clears it).
func (s *Store) SetStatus(ctx context.Context, club, email string, status Status, errorMessage string) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(club, email),
		UpdateExpression:         awsString("SET #s = :st, error_message = :em, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(status)},
			":em": &types.AttributeValueMemberS{Value: errorMessage},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// UpdateStatusIf transitions expected -> next, failing with
// ErrStatusMismatch when another unit of work moved the row first.
func (s *Store) UpdateStatusIf(ctx context.Context, club, email string, expected, next Status) error {
	if _, err := ParseStatus(string(next)); err != nil {
		return err
	}
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(club, email),
		UpdateExpression:         awsString("SET #s = :st, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":       &types.AttributeValueMemberS{Value: string(next)},
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update status if: %w", err)
	}
	return nil
}

// MergeEvidence reads the stored evidence, overlays in field by field, and
// writes the merged result back. Additive by construction: nothing an
// earlier run recorded is lost.
func (s *Store) MergeEvidence(ctx context.Context, club, email string, in Evidence) error {
	current, err := s.Get(ctx, club, email)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("merge evidence: attempt %s/%s not found", club, email)
	}
	merged := current.Evidence
	merged.Merge(in)

	ev, err := attributevalue.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	now := s.nowFunc()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(club, email),
		UpdateExpression: awsString("SET evidence = :ev, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ev": ev,
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	return nil
}

// SetRequestSnapshot replaces the stored request snapshot (each
// re-submission reflects the latest inbound request).
func (s *Store) SetRequestSnapshot(ctx context.Context, club, email string, snap RequestSnapshot) error {
	rs, err := attributevalue.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal request snapshot: %w", err)
	}
	now := s.nowFunc()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(club, email),
		UpdateExpression: awsString("SET request_snapshot = :rs, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rs": rs,
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("update request snapshot: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter. Monotonic: there is no decrement.
func (s *Store) IncrementRetry(ctx context.Context, club, email string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(club, email),
		UpdateExpression: awsString("SET retry_count = if_not_exists(retry_count, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	return nil
}

// QueryByStatus lists attempts in one status via the status GSI. Used by the
// eligibility sweep to find provisioned members.
func (s *Store) QueryByStatus(ctx context.Context, status Status) ([]Attempt, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	var attempts []Attempt
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                &s.tableName,
			IndexName:                awsString(statusIndex),
			KeyConditionExpression:   awsString("#s = :st"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":st": &types.AttributeValueMemberS{Value: string(status)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query by status: %w", err)
		}
		for _, item := range out.Items {
			a, err := unmarshalAttempt(item)
			if err != nil {
				return nil, err
			}
			attempts = append(attempts, *a)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return attempts, nil
}

// SearchParams filters the admin attempt listing.
type SearchParams struct {
	Status string
	Club   string
	Query  string
	Limit  int32
}

// Search scans for attempts matching the filters and returns them newest
// first by updated_at. Limit caps the returned results, not the rows DynamoDB
// examines: the scan pages until enough matches accumulate or the table is
// exhausted. Serves the thin operator review surface; free text matches
// email, status and error message.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]Attempt, error) {
	var filters []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if p.Status != "" {
		if _, err := ParseStatus(p.Status); err != nil {
			return nil, err
		}
		filters = append(filters, "#s = :st")
		names["#s"] = "status"
		values[":st"] = &types.AttributeValueMemberS{Value: p.Status}
	}
	if p.Club != "" {
		filters = append(filters, "club = :club")
		values[":club"] = &types.AttributeValueMemberS{Value: p.Club}
	}
	if p.Query != "" {
		filters = append(filters, "(contains(email, :q) OR contains(#s2, :q) OR contains(error_message, :q))")
		names["#s2"] = "status"
		values[":q"] = &types.AttributeValueMemberS{Value: p.Query}
	}

	var attempts []Attempt
	var startKey map[string]types.AttributeValue
	for {
		input := &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		}
		if len(filters) > 0 {
			input.FilterExpression = awsString(strings.Join(filters, " AND "))
			input.ExpressionAttributeValues = values
			if len(names) > 0 {
				input.ExpressionAttributeNames = names
			}
		}

		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("search attempts: %w", err)
		}
		for _, item := range out.Items {
			a, err := unmarshalAttempt(item)
			if err != nil {
				return nil, err
			}
			attempts = append(attempts, *a)
		}
		if p.Limit > 0 && len(attempts) >= int(p.Limit) {
			break
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].UpdatedAt.After(attempts[j].UpdatedAt)
	})
	if p.Limit > 0 && len(attempts) > int(p.Limit) {
		attempts = attempts[:p.Limit]
	}
	return attempts, nil
}

// DeleteOlderThan purges attempts whose updated_at predates cutoff, paging
// through the full table. The retention sweep is the only deleter; the
// workflow never removes rows.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:        &s.tableName,
			FilterExpression: awsString("updated_at < :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cutoff": &types.AttributeValueMemberS{Value: cutoff.Format(time.RFC3339)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, fmt.Errorf("scan for cleanup: %w", err)
		}
		for _, item := range out.Items {
			a, err := unmarshalAttempt(item)
			if err != nil {
				return deleted, err
			}
			if _, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
				TableName: &s.tableName,
				Key:       s.key(a.Club, a.Email),
			}); err != nil {
				return deleted, fmt.Errorf("delete attempt: %w", err)
			}
			deleted++
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return deleted, nil
}

func unmarshalAttempt(item map[string]types.AttributeValue) (*Attempt, error) {
	var a Attempt
	if err := attributevalue.UnmarshalMap(item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	// reject unknown status strings at the boundary
	if _, err := ParseStatus(string(a.Status)); err != nil {
		return nil, err
	}
	return &a, nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
