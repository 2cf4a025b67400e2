package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/auth"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/fingerprint"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/orderflow"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/payment"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

// mockTokens is a tokens table keyed by token+deviceId.
type mockTokens struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockTokens() *mockTokens {
	return &mockTokens{items: map[string]map[string]types.AttributeValue{}}
}

func tokenKey(attrs map[string]types.AttributeValue) string {
	token := attrs["token"].(*types.AttributeValueMemberS).Value
	device := attrs["deviceId"].(*types.AttributeValueMemberS).Value
	return token + "|" + device
}

func (m *mockTokens) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tokenKey(params.Item)] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockTokens) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[tokenKey(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockTokens) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, tokenKey(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockTokens) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return &dyn.ScanOutput{}, nil
}

// mockStore is an in-memory DomainStore.
type mockStore struct {
	mu      sync.Mutex
	events  map[string]database.Event
	tickets map[string]database.Ticket
	orders  []database.Order
}

func newMockStore() *mockStore {
	return &mockStore{
		events:  map[string]database.Event{},
		tickets: map[string]database.Ticket{},
	}
}

func (m *mockStore) CreateEvent(ctx context.Context, e database.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *mockStore) GetEvent(ctx context.Context, id string) (*database.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &e, nil
}

func (m *mockStore) ListEvents(ctx context.Context) ([]database.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) UpdateEvent(ctx context.Context, e database.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return database.ErrNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *mockStore) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *mockStore) CreateTicket(ctx context.Context, t database.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
	return nil
}

func (m *mockStore) DeleteTicket(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.tickets, id)
	return nil
}

func (m *mockStore) ListOrders(ctx context.Context, customerID string) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Order{}
	for _, o := range m.orders {
		if customerID == "" || o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

// mockS3 records puts and hands back a deterministic ETag per upload.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}}
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = body
	m.puts++
	etag := fmt.Sprintf(`"etag-%d"`, len(body))
	return &s3.PutObjectOutput{ETag: &etag}, nil
}

type testEnv struct {
	router       *gin.Engine
	tokens       *mockTokens
	store        *mockStore
	s3           *mockS3
	orderQueue   *queue.MemoryQueue
	paymentQueue *queue.MemoryQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		tokens:       newMockTokens(),
		store:        newMockStore(),
		s3:           newMockS3(),
		orderQueue:   queue.NewMemoryQueue(),
		paymentQueue: queue.NewMemoryQueue(),
	}
	env.router = gin.New()
	RegisterRoutes(env.router, HandlerConfig{
		Gate:          auth.NewGate(env.tokens, "tokens"),
		Issuer:        auth.NewIssuer(env.tokens, "tokens", time.Hour),
		Store:         env.store,
		OrderQueue:    env.orderQueue,
		PaymentQueue:  env.paymentQueue,
		S3Client:      env.s3,
		PaymentBucket: "lks-ilmi-payment-bucket",
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// issue mints a token through POST /token and returns auth headers.
func (env *testEnv) issue(t *testing.T, deviceID string) map[string]string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/token", map[string]string{"deviceId": deviceID}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /token status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token    string `json:"token"`
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return map[string]string{"Authorization": resp.Token, "Deviceid": resp.DeviceID}
}

func drainQueue(t *testing.T, q *queue.MemoryQueue) []queue.Delivery {
	t.Helper()
	var out []queue.Delivery
	for {
		d, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if d == nil {
			return out
		}
		out = append(out, *d)
		if err := q.Ack(context.Background(), d); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
}

func TestGate_RejectsUnauthenticatedRequests(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/event", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	// wrong token, known device
	headers := env.issue(t, "device-1")
	headers["Authorization"] = "not-a-token"
	w = env.do(t, http.MethodGet, "/event", nil, headers)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want 401", w.Code)
	}
}

func TestGate_AllowsIssuedToken(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	w := env.do(t, http.MethodGet, "/event", nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_EnqueuesOrderEvent(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	body := map[string]any{
		"orderId":    "A1",
		"customerId": "cust-9",
		"items": []map[string]any{
			{"sku": "GA", "quantity": 2, "price": 25.0},
		},
		"amount": 50.0,
	}
	w := env.do(t, http.MethodPost, "/order", body, headers)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	deliveries := drainQueue(t, env.orderQueue)
	if len(deliveries) != 1 {
		t.Fatalf("order queue deliveries = %d, want 1", len(deliveries))
	}
	if deliveries[0].GroupID != "cust-9" {
		t.Errorf("group id = %q, want cust-9", deliveries[0].GroupID)
	}

	var event orderflow.OrderEvent
	if err := json.Unmarshal(deliveries[0].Body, &event); err != nil {
		t.Fatalf("decode order event: %v", err)
	}
	if event.OrderID != "A1" || event.CustomerID != "cust-9" {
		t.Errorf("event = %+v, want orderId A1 / customerId cust-9", event)
	}
	if event.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", event.Quantity)
	}
	if event.Fingerprint == "" {
		t.Error("event fingerprint is empty")
	}
}

func TestCreateOrder_IdenticalResubmissionCollapses(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	body := map[string]any{
		"orderId":    "A1",
		"customerId": "cust-9",
		"items": []map[string]any{
			{"sku": "GA", "quantity": 1, "price": 10.0},
		},
		"amount": 10.0,
	}
	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, "/order", body, headers); w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
		}
	}

	if got := len(drainQueue(t, env.orderQueue)); got != 1 {
		t.Fatalf("deliveries after duplicate submission = %d, want 1", got)
	}
}

func TestCreateOrder_RejectsMismatchedAmount(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	body := map[string]any{
		"orderId":    "A1",
		"customerId": "cust-9",
		"items": []map[string]any{
			{"sku": "GA", "quantity": 1, "price": 10.0},
		},
		"amount": 99.0,
	}
	w := env.do(t, http.MethodPost, "/order", body, headers)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if got := len(drainQueue(t, env.orderQueue)); got != 0 {
		t.Fatalf("deliveries after rejected submission = %d, want 0", got)
	}
}

func TestEventCRUD(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	create := map[string]any{
		"name":     "LKS Finals",
		"venue":    "Hall A",
		"startsAt": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"capacity": 500,
		"price":    75.0,
	}
	w := env.do(t, http.MethodPost, "/event", create, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w = env.do(t, http.MethodGet, "/event/"+created.ID, nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", w.Code, w.Body.String())
	}
	var got database.Event
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Name != "LKS Finals" || got.Capacity != 500 {
		t.Errorf("event = %+v", got)
	}

	create["venue"] = "Hall B"
	w = env.do(t, http.MethodPut, "/event/"+created.ID, create, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	updated, err := env.store.GetEvent(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get updated event: %v", err)
	}
	if updated.Venue != "Hall B" {
		t.Errorf("venue after update = %q, want Hall B", updated.Venue)
	}

	w = env.do(t, http.MethodDelete, "/event/"+created.ID, nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/event/"+created.ID, nil, headers)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
}

func TestGetEvent_UnknownID(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	w := env.do(t, http.MethodGet, "/event/no-such-event", nil, headers)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTicketCreateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	w := env.do(t, http.MethodPost, "/ticket", map[string]any{
		"eventId": "ev-1",
		"seat":    "A12",
	}, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w = env.do(t, http.MethodDelete, "/ticket/"+created.ID, nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodDelete, "/ticket/"+created.ID, nil, headers)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
}

func TestUploadPayment_StoresProofAndEnqueues(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	proof := []byte("png bytes")
	w := env.do(t, http.MethodPut, "/payment/INV-7.png", proof, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	wantKey := payment.ProofPrefix + "INV-7.png"
	if got, ok := env.s3.objects[wantKey]; !ok || !bytes.Equal(got, proof) {
		t.Fatalf("stored object under %s = %q, want %q", wantKey, got, proof)
	}

	deliveries := drainQueue(t, env.paymentQueue)
	if len(deliveries) != 1 {
		t.Fatalf("payment queue deliveries = %d, want 1", len(deliveries))
	}
	var event payment.PaymentEvent
	if err := json.Unmarshal(deliveries[0].Body, &event); err != nil {
		t.Fatalf("decode payment event: %v", err)
	}
	if event.OrderID != "INV-7" {
		t.Errorf("order id = %q, want INV-7", event.OrderID)
	}
	if event.Source != payment.SourceAPI {
		t.Errorf("source = %q, want %q", event.Source, payment.SourceAPI)
	}

	// same fingerprint a bucket trigger would compute for this upload
	wantFP := fingerprint.Payment(wantKey, fmt.Sprintf(`"etag-%d"`, len(proof)))
	if event.Fingerprint != wantFP {
		t.Errorf("fingerprint = %q, want %q", event.Fingerprint, wantFP)
	}
}

func TestUploadPayment_RejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	headers := env.issue(t, "device-1")

	w := env.do(t, http.MethodPut, "/payment/INV-7.png", []byte{}, headers)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env.s3.puts != 0 {
		t.Fatalf("puts = %d, want 0", env.s3.puts)
	}
}
