package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkita/ordersync/internal/auth"
	"github.com/dapurkita/ordersync/internal/notification"
	"github.com/dapurkita/ordersync/internal/order/application"
	"github.com/dapurkita/ordersync/internal/order/domain"
	"github.com/dapurkita/ordersync/internal/order/infrastructure/localstore"
)

const testSecret = "handler-test-secret"

type stubGateway struct {
	remote  []domain.Order
	pushErr error
}

func (s *stubGateway) FetchOrders(context.Context, string) ([]domain.Order, error) {
	return s.remote, nil
}

func (s *stubGateway) CreateOrder(_ context.Context, o domain.Order, _ string, _ []byte) (string, error) {
	return "remote-" + o.ID, nil
}

func (s *stubGateway) PushStatus(context.Context, domain.Order, string, []byte) error {
	return s.pushErr
}

type env struct {
	server *httptest.Server
	local  *localstore.Store
	remote *stubGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.Default()
	kv := localstore.NewMemoryKV()
	local := localstore.NewStore(log, kv)
	remote := &stubGateway{}
	sessions := auth.NewVerifier(testSecret)
	svc := application.NewService(log, local, remote, sessions)
	notifs := notification.NewStore(log, kv)
	h := NewHandler(log, svc, sessions, notifs)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &env{server: srv, local: local, remote: remote}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, method, url, bearer string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCheckoutRequiresSession(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders", "", checkoutReq{
		Items: []domain.OrderItem{{Title: "Bakso", Qty: 1, UnitPrice: 15000}},
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckoutAndList(t *testing.T) {
	e := newEnv(t)
	tok := token(t, "u1", "")

	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders", tok, checkoutReq{
		Items:       []domain.OrderItem{{Title: "Bakso", Qty: 2, UnitPrice: 15000}},
		ShippingFee: 5000,
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var placed domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	assert.Equal(t, int64(35000), placed.Total)
	assert.Equal(t, "remote-"+placed.ID, placed.RemoteID)

	resp = doJSON(t, http.MethodGet, e.server.URL+"/orders", tok, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	require.Len(t, orders, 1)
	assert.Equal(t, placed.ID, orders[0].ID)
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders", token(t, "u1", ""), checkoutReq{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListWithLocalIdentityOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.local.SaveOrders(ctx, "device-1", []domain.Order{{
		ID: "ORD-1", OwnerID: "device-1", Status: domain.StatusActive, PaymentStatus: domain.PaymentPending,
	}}))

	resp := doJSON(t, http.MethodGet, e.server.URL+"/orders", "", nil, map[string]string{"X-User-Id": "device-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-1", orders[0].ID)
}

func TestListWithoutIdentity(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodGet, e.server.URL+"/orders", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetOrderNotFound(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodGet, e.server.URL+"/orders/ORD-missing", token(t, "u1", ""), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTerminalOrderConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.local.SaveOrders(ctx, "u1", []domain.Order{{
		ID: "ORD-1", OwnerID: "u1", Status: domain.StatusDelivered, PaymentStatus: domain.PaymentPaid,
	}}))

	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders/ORD-1/cancel", token(t, "u1", ""), nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelActiveOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.local.SaveOrders(ctx, "u1", []domain.Order{{
		ID: "ORD-1", OwnerID: "u1", Status: domain.StatusActive, PaymentStatus: domain.PaymentPending,
	}}))

	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders/ORD-1/cancel", token(t, "u1", ""), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	assert.Equal(t, domain.StatusCancelled, o.Status)
}

func TestCancelRequiresSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.local.SaveOrders(ctx, "victim", []domain.Order{{
		ID: "ORD-1", OwnerID: "victim", Status: domain.StatusActive, PaymentStatus: domain.PaymentPending,
	}}))

	// The device-local header is enough to read a list, but must never
	// authorize a cancellation on someone else's behalf.
	resp := doJSON(t, http.MethodPost, e.server.URL+"/orders/ORD-1/cancel", "", nil,
		map[string]string{"X-User-Id": "victim"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	orders, err := e.local.LoadOrders(ctx, "victim")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusActive, orders[0].Status)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodGet, e.server.URL+"/admin/orders", token(t, "u1", ""), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, e.server.URL+"/admin/orders", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminSetStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.local.SaveOrders(ctx, "u1", []domain.Order{{
		ID: "ORD-1", OwnerID: "u1", Status: domain.StatusActive, PaymentStatus: domain.PaymentPending,
	}}))

	resp := doJSON(t, http.MethodPost, e.server.URL+"/admin/orders/ORD-1/status", token(t, "admin1", "admin"), setStatusReq{
		OwnerID:       "u1",
		Status:        domain.StatusDelivered,
		PaymentStatus: domain.PaymentPaid,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var o domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	assert.Equal(t, domain.StatusDelivered, o.Status)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)
}

func TestAdminSetStatusRemoteFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.remote.pushErr = application.ErrRemoteUnavailable
	require.NoError(t, e.local.SaveOrders(ctx, "u1", []domain.Order{{
		ID: "ORD-1", OwnerID: "u1", Status: domain.StatusActive, PaymentStatus: domain.PaymentPending,
	}}))

	resp := doJSON(t, http.MethodPost, e.server.URL+"/admin/orders/ORD-1/status", token(t, "admin1", "admin"), setStatusReq{
		OwnerID: "u1",
		Status:  domain.StatusDelivered,
	}, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// Failed push rolled the local mutation back.
	orders, err := e.local.LoadOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, orders[0].Status)
}

func TestListNotificationsEmpty(t *testing.T) {
	e := newEnv(t)
	resp := doJSON(t, http.MethodGet, e.server.URL+"/notifications", token(t, "u1", ""), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notes []notification.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notes))
	assert.Empty(t, notes)
}
