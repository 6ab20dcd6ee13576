package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/membership"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type harness struct {
	t      *testing.T
	server *httptest.Server
	orders *fulfillment.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	entry := log.NewEntry(logger)
	m := metrics.NewFulfillmentMetricsWithRegisterer(prometheus.NewRegistry())

	orders := fulfillment.NewService(memory.NewOrderRepository(), memory.NewTimelineRepository(), memory.NewOutboxRepository(),
		fulfillment.WithLogger(entry), fulfillment.WithMetrics(m))
	catalog := memory.NewCatalog(
		domain.Product{ID: "mug", Title: "Mug", Stock: 5},
		domain.Product{ID: "lamp", Title: "Lamp", Stock: 0},
	)
	members := membership.NewService(memory.NewMembershipRepository(), catalog, membership.WithLogger(entry))

	srv := httptest.NewServer(NewServer(orders, members, WithLogger(entry), WithMetrics(m)).Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, server: srv, orders: orders}
}

func (h *harness) do(method, path string, body any, out any) int {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderCustomerID, "cust-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) createOrder(number string) api.Order {
	h.t.Helper()
	var order api.Order
	code := h.do(http.MethodPost, "/orders", api.CreateOrderRequest{
		OrderNumber:     number,
		Customer:        api.Customer{ID: "cust-1", Name: "Ann"},
		ShippingAddress: api.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "1", Country: "US"},
		Currency:        "USD",
		Items:           []api.Item{{ProductID: "mug", Qty: 1, PriceMinor: 1200}},
	}, &order)
	require.Equal(h.t, http.StatusCreated, code)
	return order
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	order := h.createOrder("SO-1")
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	var updated api.Order
	code := h.do(http.MethodPatch, "/orders/"+order.ID+"/status", api.StatusRequest{Status: domain.OrderStatusConfirmed}, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)

	code = h.do(http.MethodPatch, "/orders/"+order.ID+"/ship", api.ShipRequest{TrackingNumber: "1Z", Carrier: "UPS"}, &updated)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, updated.Shipment)
	assert.Equal(t, "1Z", updated.Shipment.TrackingNumber)

	code = h.do(http.MethodPatch, "/orders/"+order.ID+"/deliver", nil, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.OrderStatusDelivered, updated.Status)

	var apiErr api.Error
	code = h.do(http.MethodPatch, "/orders/"+order.ID+"/deliver", nil, &apiErr)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ErrorKindInvalidTransition, apiErr.Kind)

	var details api.OrderDetails
	code = h.do(http.MethodGet, "/orders/"+order.ID, nil, &details)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, details.Timeline, 4)
}

func TestOrderErrors(t *testing.T) {
	h := newHarness(t)
	order := h.createOrder("SO-2")

	var apiErr api.Error
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/orders/missing", nil, &apiErr))
	assert.Equal(t, domain.ErrorKindNotFound, apiErr.Kind)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/orders/"+order.ID+"/status", api.StatusRequest{Status: "lost"}, &apiErr))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/orders?limit=-1", nil, &apiErr))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/orders", api.CreateOrderRequest{}, &apiErr))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/nowhere", nil, &apiErr))
}

func TestListOrdersFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	first := h.createOrder("SO-3")
	h.createOrder("SO-4")
	_, err := h.orders.UpdateStatus(context.Background(), first.ID, fulfillment.StatusChange{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)

	var list api.OrderList
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/orders?status=confirmed", nil, &list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, first.ID, list.Orders[0].ID)
}

func TestBulkStatusReturnsMultiStatus(t *testing.T) {
	h := newHarness(t)
	first := h.createOrder("SO-5")
	second := h.createOrder("SO-6")

	var resp api.BulkStatusResponse
	code := h.do(http.MethodPost, "/orders/bulk-status", api.BulkStatusRequest{
		IDs:    []string{first.ID, second.ID, "missing"},
		Status: domain.OrderStatusConfirmed,
		Note:   "batch",
	}, &resp)
	require.Equal(t, http.StatusMultiStatus, code)
	require.Len(t, resp.Results, 3)

	for _, r := range resp.Results {
		if r.ID == "missing" {
			assert.False(t, r.OK)
			assert.Equal(t, domain.ErrorKindNotFound, r.Error)
			assert.NotEmpty(t, r.Message)
			continue
		}
		assert.True(t, r.OK, r.ID)
		require.NotNil(t, r.Order)
		assert.Equal(t, domain.OrderStatusConfirmed, r.Order.Status)
	}

	var apiErr api.Error
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/orders/bulk-status", api.BulkStatusRequest{Status: domain.OrderStatusConfirmed}, &apiErr))
}

func TestBulkStatusPutsErrorKindInErrorField(t *testing.T) {
	h := newHarness(t)
	ready := h.createOrder("SO-7")
	pending := h.createOrder("SO-8")
	_, err := h.orders.UpdateStatus(context.Background(), ready.ID, fulfillment.StatusChange{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)

	var resp api.BulkStatusResponse
	code := h.do(http.MethodPost, "/orders/bulk-status", api.BulkStatusRequest{
		IDs:       []string{ready.ID, pending.ID},
		Status:    domain.OrderStatusShipped,
		Shipments: map[string]api.Shipment{ready.ID: {TrackingNumber: "1Z999", Carrier: "UPS"}},
	}, &resp)
	require.Equal(t, http.StatusMultiStatus, code)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "partial", resp.Status)

	shipped, rejected := resp.Results[0], resp.Results[1]
	assert.True(t, shipped.OK)
	assert.Empty(t, shipped.Error)
	require.NotNil(t, shipped.Order)
	assert.Equal(t, domain.OrderStatusShipped, shipped.Order.Status)

	assert.Equal(t, pending.ID, rejected.ID)
	assert.False(t, rejected.OK)
	assert.Equal(t, domain.ErrorKindInvalidTransition, rejected.Error)
	assert.Contains(t, rejected.Message, "pending -> shipped")
}

func TestMembershipRoutes(t *testing.T) {
	h := newHarness(t)

	var snap api.Snapshot
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/cart/mug", nil, &snap))
	assert.Equal(t, []string{"mug"}, snap.Items)
	assert.Equal(t, int64(1), snap.Version)

	var apiErr api.Error
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/cart/lamp", nil, &apiErr))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/wishlist/ghost", nil, &apiErr))
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/wishlist/lamp", nil, &snap))

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/cart", nil, &snap))
	assert.Equal(t, []string{"mug"}, snap.Items)
	assert.False(t, snap.TakenAt.IsZero())

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/cart/mug", nil, &snap))
	assert.Empty(t, snap.Items)
	assert.Equal(t, int64(2), snap.Version)
}

func TestMembershipRequiresCustomer(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/wishlist", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
