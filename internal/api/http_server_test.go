package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/payment"
	"github.com/adiga-code/numerology/internal/provider"
	"github.com/adiga-code/numerology/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	testToken   = "gen-secret"
	testWebhook = "pay-secret"
)

type mockCallbacks struct{ mock.Mock }

func (m *mockCallbacks) OnCallback(ctx context.Context, result provider.Result) error {
	return m.Called(ctx, result).Error(0)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) HandleGatewayNotification(ctx context.Context, n *payment.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type fakeOrders struct {
	orders   map[string]*models.Order
	between  []*models.Order
	from, to time.Time
}

func (f *fakeOrders) GetOrderByExternalID(_ context.Context, externalID string) (*models.Order, error) {
	if o, ok := f.orders[externalID]; ok {
		return o, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeOrders) GetOrderDetails(_ context.Context, id int64) (*models.OrderDetails, error) {
	for _, o := range f.orders {
		if o.ID == id {
			return &models.OrderDetails{
				Order:        o,
				Participants: []*models.Participant{{OrderID: id, FullName: "Анна", Role: models.RoleMain}},
			}, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeOrders) OrdersBetween(_ context.Context, from, to time.Time) ([]*models.Order, error) {
	f.from, f.to = from, to
	return f.between, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			APIKeys: []config.APIClientKey{
				{Key: "ops", Extra: "ops-extra", Permissions: []string{permReadOrders, permExportOrders}},
				{Key: "reader", Extra: "reader-extra", Permissions: []string{permReadOrders}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 100},
	}
}

func newTestServer(t *testing.T, deps Deps, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	deps.GenerationToken = testToken
	deps.WebhookSecret = testWebhook
	ts := httptest.NewServer(NewHTTPServer(cfg, deps, &logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body []byte, headers map[string]string) (*http.Response, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestGenerationResultWebhook(t *testing.T) {
	cb := &mockCallbacks{}
	ts := newTestServer(t, Deps{Callbacks: cb}, testAPIConfig())
	url := ts.URL + "/webhook/generation/result"
	auth := map[string]string{generationTokenHeader: testToken}

	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 1, Status: "success", Text: "report"}).Return(nil).Once()
	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 1, Status: "success", Text: "report again"}).
		Return(fmt.Errorf("callback for order in status completed: %w", database.ErrConcurrentModification)).Once()
	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 2, Status: "success"}).
		Return(fmt.Errorf("%w: %w", service.ErrInvalidResult, provider.ErrEmptyText)).Once()
	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 404, Status: "failed"}).
		Return(database.ErrNotFound).Once()
	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 5, Status: "success", Text: "x"}).
		Return(&service.DeliveryError{OrderID: 5, Err: errors.New("bot blocked")}).Once()
	cb.On("OnCallback", mock.Anything, provider.Result{OrderID: 6, Status: "success", Text: "x"}).
		Return(errors.New("disk full")).Once()

	cases := []struct {
		name   string
		body   string
		header map[string]string
		code   int
		status string
	}{
		{"Success", `{"order_id":1,"status":"success","text":"report"}`, auth, http.StatusOK, statusOK},
		{"Duplicate", `{"order_id":1,"status":"success","text":"report again"}`, auth, http.StatusOK, statusIgnored},
		{"EmptyText", `{"order_id":2,"status":"success"}`, auth, http.StatusBadRequest, ""},
		{"UnknownOrder", `{"order_id":404,"status":"failed"}`, auth, http.StatusNotFound, ""},
		{"DeliveryFailed", `{"order_id":5,"status":"success","text":"x"}`, auth, http.StatusOK, statusOK},
		{"InternalError", `{"order_id":6,"status":"success","text":"x"}`, auth, http.StatusInternalServerError, ""},
		{"BadJSON", `{"order_id":`, auth, http.StatusBadRequest, ""},
		{"MissingOrderID", `{"status":"success"}`, auth, http.StatusBadRequest, ""},
		{"BadToken", `{"order_id":1,"status":"success"}`, map[string]string{generationTokenHeader: "nope"}, http.StatusUnauthorized, ""},
		{"NoToken", `{"order_id":1,"status":"success"}`, nil, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postJSON(t, url, []byte(tc.body), tc.header)
			assert.Equal(t, tc.code, resp.StatusCode)
			if tc.status != "" {
				assert.Equal(t, tc.status, out["status"])
			}
		})
	}
	cb.AssertExpectations(t)
}

func TestGatewayWebhook(t *testing.T) {
	pay := &mockPayments{}
	ts := newTestServer(t, Deps{Payments: pay}, testAPIConfig())
	url := ts.URL + "/webhook/payments/gateway"

	body := []byte(`{"type":"notification","event":"payment.succeeded","object":{"id":"pay-1","status":"succeeded","amount":{"value":"500.00","currency":"RUB"},"metadata":{"order_id":"ext-1"}}}`)
	signed := map[string]string{payment.SignatureHeader: payment.Sign(testWebhook, body)}

	pay.On("HandleGatewayNotification", mock.Anything, mock.MatchedBy(func(n *payment.Notification) bool {
		return n.Object.ID == "pay-1" && n.Object.ExternalID() == "ext-1"
	})).Return(nil).Once()
	pay.On("HandleGatewayNotification", mock.Anything, mock.Anything).Return(service.ErrAmountMismatch).Once()

	resp, out := postJSON(t, url, body, signed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, statusOK, out["status"])

	resp, _ = postJSON(t, url, body, signed)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, url, body, map[string]string{payment.SignatureHeader: payment.Sign("other", body)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := []byte(`{"event":""}`)
	resp, _ = postJSON(t, url, bad, map[string]string{payment.SignatureHeader: payment.Sign(testWebhook, bad)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	pay.AssertExpectations(t)
}

func TestWebhooksNotConfigured(t *testing.T) {
	ts := newTestServer(t, Deps{}, testAPIConfig())
	resp, _ := postJSON(t, ts.URL+"/webhook/generation/result", []byte(`{}`), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = postJSON(t, ts.URL+"/webhook/payments/gateway", []byte(`{}`), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	t.Run("Healthy", func(t *testing.T) {
		ts := newTestServer(t, Deps{DB: fakePinger{}, Redis: client}, testAPIConfig())
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	})

	t.Run("DatabaseDown", func(t *testing.T) {
		ts := newTestServer(t, Deps{DB: fakePinger{err: errors.New("closed")}}, testAPIConfig())
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func getWithKey(t *testing.T, url, key, extra string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-Api-Key", key)
		req.Header.Set("X-Api-Extra", extra)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestOrderEndpoint(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*models.Order{
		"ext-1": {ID: 1, ExternalID: "ext-1", Tariff: models.TariffQuick, Status: models.OrderCompleted},
	}}
	ts := newTestServer(t, Deps{Orders: orders}, testAPIConfig())

	resp := getWithKey(t, ts.URL+"/api/v1/orders/ext-1", "reader", "reader-extra")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var details models.OrderDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&details))
	assert.Equal(t, "ext-1", details.Order.ExternalID)
	assert.Len(t, details.Participants, 1)

	assert.Equal(t, http.StatusNotFound, getWithKey(t, ts.URL+"/api/v1/orders/missing", "reader", "reader-extra").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, getWithKey(t, ts.URL+"/api/v1/orders/ext-1", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, getWithKey(t, ts.URL+"/api/v1/orders/ext-1", "reader", "wrong").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, getWithKey(t, ts.URL+"/api/v1/orders/ext-1", "nobody", "x").StatusCode)
}

func TestExportEndpoint(t *testing.T) {
	orders := &fakeOrders{between: []*models.Order{
		{ID: 1, ExternalID: "ext-1", Tariff: models.TariffDeep, Style: models.StyleAnalytical,
			Status: models.OrderPaid, Amount: 1500_00, Currency: models.CurrencyRUB, CreatedAt: time.Now()},
	}}
	ts := newTestServer(t, Deps{Orders: orders, Catalog: models.DefaultCatalog()}, testAPIConfig())

	resp := getWithKey(t, ts.URL+"/api/v1/orders/export?from=2025-06-01&to=2025-06-30", "ops", "ops-extra")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "orders_2025-06-01_to_2025-07-01.xlsx")
	assert.Equal(t, 2025, orders.from.Year())
	assert.Equal(t, time.July, orders.to.Month())

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Заказы")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	assert.Equal(t, http.StatusForbidden, getWithKey(t, ts.URL+"/api/v1/orders/export", "reader", "reader-extra").StatusCode)
	assert.Equal(t, http.StatusBadRequest, getWithKey(t, ts.URL+"/api/v1/orders/export?from=bad", "ops", "ops-extra").StatusCode)
	assert.Equal(t, http.StatusBadRequest, getWithKey(t, ts.URL+"/api/v1/orders/export?from=2025-07-01&to=2025-06-01", "ops", "ops-extra").StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	orders := &fakeOrders{orders: map[string]*models.Order{"ext-1": {ID: 1, ExternalID: "ext-1"}}}
	ts := newTestServer(t, Deps{Orders: orders}, cfg)

	url := ts.URL + "/api/v1/orders/ext-1"
	assert.Equal(t, http.StatusOK, getWithKey(t, url, "reader", "reader-extra").StatusCode)
	assert.Equal(t, http.StatusOK, getWithKey(t, url, "reader", "reader-extra").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, getWithKey(t, url, "reader", "reader-extra").StatusCode)
	// у другого ключа свой лимит
	assert.Equal(t, http.StatusOK, getWithKey(t, url, "ops", "ops-extra").StatusCode)
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/export", nil)
	from, to, err := parseRange(req, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, to.AddDate(0, 0, -defaultExportDays), from)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/export?from=2024-01-01&to=2025-06-01", nil)
	_, _, err = parseRange(req, now)
	assert.Error(t, err)
}

func TestTokenEqual(t *testing.T) {
	assert.True(t, tokenEqual("a", "a"))
	assert.False(t, tokenEqual("a", "b"))
	assert.False(t, tokenEqual("", ""))
}
