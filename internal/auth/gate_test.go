package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockTokens is a small in-memory tokens table keyed by token+deviceId.
type mockTokens struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error // forced error for every call when set
}

func newMockTokens() *mockTokens {
	return &mockTokens{items: map[string]map[string]types.AttributeValue{}}
}

func compositeKey(attrs map[string]types.AttributeValue) string {
	token := attrs["token"].(*types.AttributeValueMemberS).Value
	device := attrs["deviceId"].(*types.AttributeValueMemberS).Value
	return token + "|" + device
}

func (m *mockTokens) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.items[compositeKey(params.Item)] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockTokens) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[compositeKey(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockTokens) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, compositeKey(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockTokens) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return &dyn.ScanOutput{}, nil
}

func insertToken(t *testing.T, m *mockTokens, rec TokenRecord) {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	m.items[rec.Token+"|"+rec.DeviceID] = item
}

func TestAuthorize_Allow(t *testing.T) {
	mock := newMockTokens()
	insertToken(t, mock, TokenRecord{Token: "tok-1", DeviceID: "dev-1", IssuedAt: time.Now()})

	g := NewGate(mock, "tokens")
	p, err := g.Authorize(context.Background(), "tok-1", "dev-1")
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if p.DeviceID != "dev-1" {
		t.Fatalf("principal device = %s", p.DeviceID)
	}
}

func TestAuthorize_DenyMissingCredentials(t *testing.T) {
	g := NewGate(newMockTokens(), "tokens")
	for _, pair := range [][2]string{{"", "dev-1"}, {"tok-1", ""}, {"", ""}} {
		if _, err := g.Authorize(context.Background(), pair[0], pair[1]); !errors.Is(err, ErrDenied) {
			t.Fatalf("pair %v: expected ErrDenied, got %v", pair, err)
		}
	}
}

func TestAuthorize_DenyUnknownToken(t *testing.T) {
	g := NewGate(newMockTokens(), "tokens")
	if _, err := g.Authorize(context.Background(), "no-such-token", "dev-1"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestAuthorize_DenyDeviceMismatch(t *testing.T) {
	mock := newMockTokens()
	insertToken(t, mock, TokenRecord{Token: "tok-1", DeviceID: "dev-1", IssuedAt: time.Now()})

	g := NewGate(mock, "tokens")
	if _, err := g.Authorize(context.Background(), "tok-1", "dev-2"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for mismatched device, got %v", err)
	}
}

func TestAuthorize_DenyExpired(t *testing.T) {
	mock := newMockTokens()
	insertToken(t, mock, TokenRecord{
		Token:     "tok-1",
		DeviceID:  "dev-1",
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	})

	g := NewGate(mock, "tokens")
	if _, err := g.Authorize(context.Background(), "tok-1", "dev-1"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for expired token, got %v", err)
	}
}

func TestAuthorize_FailClosedOnStoreError(t *testing.T) {
	mock := newMockTokens()
	mock.err = errors.New("dynamodb unavailable")

	g := NewGate(mock, "tokens")
	if _, err := g.Authorize(context.Background(), "tok-1", "dev-1"); !errors.Is(err, ErrDenied) {
		t.Fatalf("store error must deny, got %v", err)
	}
}

func TestIssue_PersistsToken(t *testing.T) {
	mock := newMockTokens()
	issuer := NewIssuer(mock, "tokens", 0)
	issuer.newToken = func() string { return "tok-fixed" }

	rec, err := issuer.Issue(context.Background(), "dev-9")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec.Token != "tok-fixed" || rec.DeviceID != "dev-9" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ExpiresAt != 0 {
		t.Fatalf("zero ttl should issue non-expiring tokens, got %d", rec.ExpiresAt)
	}

	g := NewGate(mock, "tokens")
	if _, err := g.Authorize(context.Background(), "tok-fixed", "dev-9"); err != nil {
		t.Fatalf("issued token should authorize: %v", err)
	}
}
