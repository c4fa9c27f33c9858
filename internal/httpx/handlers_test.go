package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/events"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/redisx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu    sync.Mutex
	views map[string]redisx.StatusView
	err   error
}

func (c *fakeCache) Get(_ context.Context, id string) (*redisx.StatusView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.views[id]
	return &v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, v redisx.StatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[v.OrderID] = v
	return nil
}

func (c *fakeCache) view(id string) (redisx.StatusView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	return v, ok
}

func (c *fakeCache) evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
}

func (c *fakeCache) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeIdem) Lookup(_ context.Context, ext string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.keys[ext]
	return id, ok, nil
}

func (f *fakeIdem) Remember(_ context.Context, ext, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[ext] = id
	return nil
}

type testServer struct {
	srv   *httptest.Server
	store *memstore.Store
	cache *fakeCache
	idem  *fakeIdem
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	n := 0
	ts := &testServer{
		store: store,
		cache: &fakeCache{views: map[string]redisx.StatusView{}},
		idem:  &fakeIdem{keys: map[string]string{}},
	}
	svc := fulfillment.New(store, fulfillment.Config{
		NewID:    func() string { n++; return fmt.Sprintf("id-%03d", n) },
		Notifier: events.CacheWriter{Views: ts.cache},
	})
	r := NewRouter()
	(&OrdersHandler{Svc: svc, Cache: ts.cache, Idem: ts.idem}).Register(r)
	(&InventoryHandler{Svc: svc}).Register(r)
	ts.srv = httptest.NewServer(r)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(res.Body)
	return res, out.Bytes()
}

func (ts *testServer) restock(t *testing.T, sku string, qty int) {
	t.Helper()
	res, _ := ts.do(t, http.MethodPost, "/inventory/restock", restockReq{SKU: sku, BinLocation: "A-01", Quantity: qty})
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func newOrderBody(ext string, qty int) fulfillment.NewOrder {
	return fulfillment.NewOrder{
		ExternalID:   ext,
		CustomerName: "ACME",
		Items:        []fulfillment.NewItem{{SKU: "SKU-1", BinLocation: "A-01", Quantity: qty}},
	}
}

func (ts *testServer) create(t *testing.T, ext string, qty int) CreateOrderResp {
	t.Helper()
	res, body := ts.do(t, http.MethodPost, "/orders/", newOrderBody(ext, qty))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	var out CreateOrderResp
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func decodeErr(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	res, body := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 10)

	first := ts.create(t, "ext-1", 3)
	require.NotNil(t, first.Order)
	assert.False(t, first.Idempotent)
	assert.Equal(t, orders.StatusPending, first.Order.Status)
	remembered, ok, _ := ts.idem.Lookup(context.Background(), "ext-1")
	require.True(t, ok)
	assert.Equal(t, first.Order.ID, remembered)

	res, body := ts.do(t, http.MethodPost, "/orders/", newOrderBody("ext-1", 3))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var again CreateOrderResp
	require.NoError(t, json.Unmarshal(body, &again))
	assert.True(t, again.Idempotent)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	res, body = ts.do(t, http.MethodGet, "/inventory/SKU-1/A-01", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var u orders.InventoryUnit
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, 3, u.Reserved, "a repeated create must not reserve twice")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 2)
	o := ts.create(t, "", 1).Order

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		reason orders.Reason
	}{
		{"bad json", http.MethodPost, "/orders/", "not an object", http.StatusBadRequest, orders.ReasonInvalidInput},
		{"missing items", http.MethodPost, "/orders/", fulfillment.NewOrder{CustomerName: "x"}, http.StatusBadRequest, orders.ReasonInvalidInput},
		{"unknown order", http.MethodGet, "/orders/nope", nil, http.StatusNotFound, ""},
		{"short stock", http.MethodPost, "/orders/", newOrderBody("", 5), http.StatusUnprocessableEntity, ""},
		{"invalid transition", http.MethodPost, "/orders/" + o.ID + "/complete-picking", nil, http.StatusBadRequest, orders.ReasonInvalidTransition},
		{"claim without picker", http.MethodPost, "/orders/" + o.ID + "/claim", claimReq{}, http.StatusBadRequest, orders.ReasonMissingAssignee},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, body := ts.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.code, res.StatusCode, string(body))
			if tc.reason != "" {
				assert.Equal(t, tc.reason, decodeErr(t, body).Reason)
			}
		})
	}
}

func TestSecondClaimConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 1).Order

	res, _ := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-2"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 1).Order
	ts.store.InjectFault("AppendStateChange", errors.New("disk on fire"))

	res, body := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"})
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "internal error", decodeErr(t, body).Error)
	assert.NotContains(t, string(body), "disk on fire")
}

func TestActorHeaderLandsInHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 1).Order

	res, _ := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"}, HeaderActor, "supervisor-7")
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = ts.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", reasonReq{Reason: "customer request"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := ts.do(t, http.MethodGet, "/orders/"+o.ID+"/history", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var changes []orders.StateChange
	require.NoError(t, json.Unmarshal(body, &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, "supervisor-7", changes[0].Actor)
	assert.Equal(t, fulfillment.SystemActor, changes[1].Actor)
	assert.Equal(t, "customer request", changes[1].Reason)
}

func TestStatusFallsBackToStore(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 1).Order

	res, _ := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	// a view left behind by a lost cache write
	require.NoError(t, ts.cache.Set(context.Background(), redisx.ViewOf(*o)))

	res, body := ts.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var v redisx.StatusView
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, orders.StatusPending, v.Status, "served from cache")

	ts.cache.evict(o.ID)
	res, body = ts.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, orders.StatusPicking, v.Status)
	cached, ok := ts.cache.view(o.ID)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPicking, cached.Status, "refilled after a miss")

	ts.cache.fail(errors.New("redis down"))
	res, _ = ts.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func (ts *testServer) status(t *testing.T, id string) redisx.StatusView {
	t.Helper()
	res, body := ts.do(t, http.MethodGet, "/orders/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var v redisx.StatusView
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestStatusViewFollowsPickProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 2).Order
	item := o.Items[0].ID

	res, _ := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	v := ts.status(t, o.ID)
	assert.Equal(t, orders.StatusPicking, v.Status)
	assert.Equal(t, 0, v.Progress)

	res, _ = ts.do(t, http.MethodPost, "/orders/"+o.ID+"/items/"+item+"/pick", quantityReq{Quantity: 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, body := ts.do(t, http.MethodGet, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got orders.Order
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, 50, ts.status(t, o.ID).Progress)

	res, _ = ts.do(t, http.MethodPost, "/orders/"+o.ID+"/items/"+item+"/unpick", quantityReq{Quantity: 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, ts.status(t, o.ID).Progress)
}

func TestPickFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.restock(t, "SKU-1", 5)
	o := ts.create(t, "", 2).Order
	item := o.Items[0].ID

	res, _ := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/claim", claimReq{PickerID: "p-1"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := ts.do(t, http.MethodPost, "/orders/"+o.ID+"/items/"+item+"/pick", quantityReq{Quantity: 3})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, orders.ReasonOverPick, decodeErr(t, body).Reason)

	res, body = ts.do(t, http.MethodPost, "/orders/"+o.ID+"/items/"+item+"/pick", quantityReq{Quantity: 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var it orders.OrderItem
	require.NoError(t, json.Unmarshal(body, &it))
	assert.Equal(t, 1, it.PickedQuantity)

	res, body = ts.do(t, http.MethodGet, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got orders.Order
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 50, got.Progress)

	res, body = ts.do(t, http.MethodGet, "/orders/"+o.ID+"/pick-tasks", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var tasks []orders.PickTask
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, orders.TaskInProgress, tasks[0].Status)

	res, body = ts.do(t, http.MethodGet, "/admin/orders/stuck", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&orders.ValidationError{Reason: orders.ReasonOverPick}, http.StatusBadRequest},
		{&orders.NotFoundError{Kind: "order", ID: "x"}, http.StatusNotFound},
		{&orders.ConflictError{OrderID: "x"}, http.StatusConflict},
		{&orders.InsufficientInventoryError{SKU: "s"}, http.StatusUnprocessableEntity},
		{&orders.InternalError{Op: "op", Err: errors.New("x")}, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", &orders.ConflictError{}), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusCode(tc.err), tc.err.Error())
	}
}
