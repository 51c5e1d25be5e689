package attempts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory stand-in for the DynamoDB calls the store
// makes. It understands exactly the expressions store.go issues; it is not a
// general DynamoDB emulator.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue

	// scanPageSize caps matches per Scan call; 0 means one page holds all
	scanPageSize int

	putCalls    int
	getCalls    int
	updateCalls int
	queryCalls  int
	scanCalls   int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{table: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	club := item["club"].(*types.AttributeValueMemberS).Value
	email := item["email"].(*types.AttributeValueMemberS).Value
	return club + "|" + email
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	k := itemKey(params.Item)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(club)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	item, ok := m.table[itemKey(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	item, ok := m.table[itemKey(params.Key)]
	if !ok {
		return nil, errors.New("item not found")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :expected" {
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
		current := item["status"].(*types.AttributeValueMemberS).Value
		if current != expected {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	// apply the placeholders store.go uses
	if v, ok := params.ExpressionAttributeValues[":st"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":em"]; ok {
		item["error_message"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ev"]; ok {
		item["evidence"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rs"]; ok {
		item["request_snapshot"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	if _, ok := params.ExpressionAttributeValues[":inc"]; ok {
		n := "1"
		if cur, ok := item["retry_count"].(*types.AttributeValueMemberN); ok {
			n = incrementN(cur.Value)
		}
		item["retry_count"] = &types.AttributeValueMemberN{Value: n}
	}
	m.table[itemKey(params.Key)] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func incrementN(s string) string {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	n++
	return itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, itemKey(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	want := params.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value
	out := &dyn.QueryOutput{}
	for _, item := range m.table {
		if s, ok := item["status"].(*types.AttributeValueMemberS); ok && s.Value == want {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

// Scan pages like DynamoDB when scanPageSize is set: at most scanPageSize
// matches per call, with LastEvaluatedKey pointing at the last one returned.
func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++

	keys := make([]string, 0, len(m.table))
	for k := range m.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matched []map[string]types.AttributeValue
	for _, k := range keys {
		if item := m.table[k]; m.scanMatches(item, params) {
			matched = append(matched, item)
		}
	}

	start := 0
	if params.ExclusiveStartKey != nil {
		after := itemKey(params.ExclusiveStartKey)
		for i, item := range matched {
			if itemKey(item) == after {
				start = i + 1
				break
			}
		}
	}
	end := len(matched)
	if m.scanPageSize > 0 && start+m.scanPageSize < end {
		end = start + m.scanPageSize
	}

	out := &dyn.ScanOutput{Items: matched[start:end]}
	if end < len(matched) && end > start {
		last := matched[end-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"club":  last["club"],
			"email": last["email"],
		}
	}
	return out, nil
}

func (m *simpleMock) scanMatches(item map[string]types.AttributeValue, params *dyn.ScanInput) bool {
	if params.FilterExpression == nil {
		return true
	}
	expr := *params.FilterExpression
	if strings.Contains(expr, "#s = :st") {
		want := params.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value
		if s, ok := item["status"].(*types.AttributeValueMemberS); !ok || s.Value != want {
			return false
		}
	}
	if strings.Contains(expr, "club = :club") {
		want := params.ExpressionAttributeValues[":club"].(*types.AttributeValueMemberS).Value
		if c, ok := item["club"].(*types.AttributeValueMemberS); !ok || c.Value != want {
			return false
		}
	}
	if strings.Contains(expr, "contains(email, :q)") {
		q := params.ExpressionAttributeValues[":q"].(*types.AttributeValueMemberS).Value
		email := item["email"].(*types.AttributeValueMemberS).Value
		status := item["status"].(*types.AttributeValueMemberS).Value
		errMsg := ""
		if em, ok := item["error_message"].(*types.AttributeValueMemberS); ok {
			errMsg = em.Value
		}
		if !strings.Contains(email, q) && !strings.Contains(status, q) && !strings.Contains(errMsg, q) {
			return false
		}
	}
	if strings.Contains(expr, "updated_at < :cutoff") {
		cutoff := params.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberS).Value
		ua, ok := item["updated_at"].(*types.AttributeValueMemberS)
		// RFC3339 strings order lexicographically
		if !ok || ua.Value >= cutoff {
			return false
		}
	}
	return true
}
