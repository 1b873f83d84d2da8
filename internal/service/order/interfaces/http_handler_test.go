package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-order/internal/pkg/metrics"
	"nexus-order/internal/service/order/application"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/infrastructure"
	"nexus-order/internal/service/order/infrastructure/adapter"
)

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.DomainEvent) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *application.OrderApplicationService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	svc := application.NewOrderApplicationService(
		infrastructure.NewMemoryOrderRepository(),
		adapter.NewSnapshotRedisAdapter(client, time.Minute),
		discardPublisher{},
		adapter.NewLocalOrderLocker(),
		nil,
		metrics.NewOrderMetrics(reg),
		noop.NewTracerProvider().Tracer("test"),
	)

	mux := http.NewServeMux()
	NewOrderHandler(svc, reg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHTTP_Banner(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_OrderLifecycle(t *testing.T) {
	srv, svc := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/orders", `{"customerId":7,"productId":3,"amount":100}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, true, body["new"])
	assert.Equal(t, float64(1), body["id"])

	resp, body = do(t, http.MethodGet, srv.URL+"/orders/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(100), body["amount"])

	resp, body = do(t, http.MethodGet, srv.URL+"/user-exists/7", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["exists"])

	require.NoError(t, svc.HandlePaymentStatus(context.Background(), &domain.PaymentStatusChanged{OrderID: 1, Status: "SUCCESS"}))
	_, body = do(t, http.MethodGet, srv.URL+"/orders/1", "")
	assert.Equal(t, "paid", body["status"])

	resp, body = do(t, http.MethodPut, srv.URL+"/orders/1", `{"amount":120}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(120), body["amount"])
	assert.Equal(t, "paid", body["status"])

	resp, body = do(t, http.MethodDelete, srv.URL+"/orders/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order deleted", body["message"])

	resp, body = do(t, http.MethodGet, srv.URL+"/orders/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, body["code"])
	assert.Equal(t, false, body["exists"])
}

func TestHTTP_ValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing amount", http.MethodPost, "/orders", `{"customerId":7,"productId":3}`, http.StatusBadRequest, CodeValidation},
		{"missing product", http.MethodPost, "/orders", `{"customerId":7,"amount":100}`, http.StatusBadRequest, CodeValidation},
		{"malformed body", http.MethodPost, "/orders", `{`, http.StatusBadRequest, CodeValidation},
		{"non numeric id", http.MethodGet, "/orders/abc", "", http.StatusBadRequest, CodeValidation},
		{"update unknown order", http.MethodPut, "/orders/9", `{"amount":1}`, http.StatusNotFound, CodeNotFound},
		{"delete unknown order", http.MethodDelete, "/orders/9", "", http.StatusNotFound, CodeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, tc.method, srv.URL+tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["error"])
			if tc.code == CodeNotFound {
				assert.Equal(t, false, body["exists"])
			} else {
				assert.NotContains(t, body, "exists")
			}
		})
	}

	_, _ = do(t, http.MethodPost, srv.URL+"/orders", `{"customerId":7,"productId":3,"amount":100}`)
	resp, body := do(t, http.MethodPut, srv.URL+"/orders/1", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeValidation, body["code"])
}

func TestHTTP_UserExistsUnknownCustomer(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/user-exists/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["exists"])
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _ = do(t, http.MethodPost, srv.URL+"/orders", `{"customerId":7,"productId":3,"amount":100}`)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	assert.Contains(t, buf.String(), "orders_created_total 1")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errors.Wrap(domain.ErrInvalidOrder, "x"), http.StatusBadRequest, CodeValidation},
		{errors.Wrap(domain.ErrOrderNotFound, "x"), http.StatusNotFound, CodeNotFound},
		{errors.Wrap(domain.ErrPolicyRejected, "x"), http.StatusUnprocessableEntity, CodePolicyRejected},
		{errors.Wrap(domain.ErrRolledBack, "x"), http.StatusInternalServerError, CodeRolledBack},
		{errors.Wrap(domain.ErrRollbackFailed, "x"), http.StatusInternalServerError, CodeRollbackFailed},
		{errors.Wrap(domain.ErrStorage, "x"), http.StatusInternalServerError, CodeStorage},
	}
	for _, tc := range tests {
		status, code := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.code)
		assert.Equal(t, tc.code, code)
	}
}
