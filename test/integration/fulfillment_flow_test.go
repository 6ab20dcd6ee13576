package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/httpapi"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/membership"
	"github.com/vladislavdragonenkov/fulfillment/internal/session"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

// flakyHandler отвечает 503 на первый запрос к заданному пути.
type flakyHandler struct {
	next http.Handler

	mu    sync.Mutex
	fails map[string]int
}

func (h *flakyHandler) failNext(path string, times int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fails[path] = times
}

func (h *flakyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	left := h.fails[r.URL.Path]
	if left > 0 {
		h.fails[r.URL.Path] = left - 1
	}
	h.mu.Unlock()

	if left > 0 {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	h.next.ServeHTTP(w, r)
}

// FulfillmentFlowTestSuite прогоняет клиентскую сессию против настоящего HTTP API.
type FulfillmentFlowTestSuite struct {
	suite.Suite

	outbox  *memory.OutboxRepository
	orders  *fulfillment.Service
	flaky   *flakyHandler
	server  *httptest.Server
	session *session.Session
}

func (s *FulfillmentFlowTestSuite) SetupTest() {
	logger, _ := test.NewNullLogger()
	entry := log.NewEntry(logger)

	s.outbox = memory.NewOutboxRepository()
	s.orders = fulfillment.NewService(memory.NewOrderRepository(), memory.NewTimelineRepository(), s.outbox,
		fulfillment.WithLogger(entry))
	catalog := memory.NewCatalog(
		domain.Product{ID: "mug", Stock: 5},
		domain.Product{ID: "poster", Stock: 1},
		domain.Product{ID: "lamp", Stock: 0},
	)
	members := membership.NewService(memory.NewMembershipRepository(), catalog, membership.WithLogger(entry))

	s.flaky = &flakyHandler{
		next:  httpapi.NewServer(s.orders, members, httpapi.WithLogger(entry)).Handler(),
		fails: make(map[string]int),
	}
	s.server = httptest.NewServer(s.flaky)

	cfg := session.DefaultConfig()
	cfg.BaseURL = s.server.URL
	cfg.CustomerID = "cust-1"
	cfg.DisablePolling = true
	cfg.Retry.InitialDelay = 0

	opened, err := session.Open(context.Background(), cfg, session.WithLogger(entry))
	s.Require().NoError(err)
	s.session = opened
}

func (s *FulfillmentFlowTestSuite) TearDownTest() {
	if s.session != nil {
		s.Require().NoError(s.session.Close())
	}
	s.server.Close()
}

func (s *FulfillmentFlowTestSuite) createOrder(number string) domain.Order {
	order, err := s.session.Client().CreateOrder(context.Background(), api.CreateOrderRequest{
		OrderNumber: number,
		Customer:    api.Customer{ID: "cust-1", Name: "Ann"},
		ShippingAddress: api.Address{
			Line1: "1 Main St", City: "Springfield", PostalCode: "00001", Country: "US",
		},
		Currency: "usd",
		Items:    []api.Item{{ProductID: "mug", Qty: 2, PriceMinor: 1250}},
	})
	s.Require().NoError(err)
	s.session.Orders().Put(order)
	return order
}

func (s *FulfillmentFlowTestSuite) TestOrderLifecycleThroughSession() {
	ctx := context.Background()
	order := s.createOrder("SO-100")
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal(int64(2500), order.TotalMinor)

	batch, err := s.session.BulkStatus(ctx, []string{order.ID}, bulk.StatusAction{Status: domain.OrderStatusConfirmed})
	s.Require().NoError(err)
	s.Equal(bulk.BatchComplete, batch.Status)

	batch, err = s.session.Ship(ctx, order.ID, "TRK-9", "DHL", nil)
	s.Require().NoError(err)
	s.Equal(bulk.BatchComplete, batch.Status)

	batch, err = s.session.Deliver(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(bulk.BatchComplete, batch.Status)

	cached, ok := s.session.Orders().Order(order.ID)
	s.Require().True(ok)
	s.Equal(domain.OrderStatusDelivered, cached.Status)
	s.Require().NotNil(cached.Shipment)
	s.Equal("TRK-9", cached.Shipment.TrackingNumber)

	_, timeline, err := s.session.Client().GetOrder(ctx, order.ID)
	s.Require().NoError(err)
	s.Len(timeline, 4)

	events := make([]string, 0)
	for _, msg := range s.outbox.AllPending() {
		if msg.AggregateID == order.ID {
			events = append(events, msg.EventType)
		}
	}
	s.Equal([]string{
		domain.EventOrderCreated,
		domain.EventOrderStatusChanged,
		domain.EventOrderShipped,
		domain.EventOrderDelivered,
	}, events)
}

func (s *FulfillmentFlowTestSuite) TestPartialBulkFailureKeepsSuccessfulItems() {
	ctx := context.Background()
	first := s.createOrder("SO-1")
	second := s.createOrder("SO-2")
	third := s.createOrder("SO-3")

	_, err := s.session.BulkStatus(ctx, []string{second.ID}, bulk.StatusAction{Status: domain.OrderStatusCanceled})
	s.Require().NoError(err)

	batch, err := s.session.BulkStatus(ctx, []string{first.ID, second.ID, third.ID}, bulk.StatusAction{Status: domain.OrderStatusConfirmed})
	s.Require().NoError(err)
	s.Equal(bulk.BatchPartial, batch.Status)
	s.Equal("2 of 3 updated", batch.Summary())

	failed, ok := batch.Outcome(second.ID)
	s.Require().True(ok)
	s.Equal(domain.ErrorKindInvalidTransition, failed.Kind)

	for _, id := range []string{first.ID, third.ID} {
		got, err := s.orders.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(domain.OrderStatusConfirmed, got.Status)
	}
}

func (s *FulfillmentFlowTestSuite) TestNetworkFailureIsRetried() {
	ctx := context.Background()
	order := s.createOrder("SO-7")
	s.flaky.failNext("/orders/"+order.ID+"/status", 1)

	batch, err := s.session.BulkStatus(ctx, []string{order.ID}, bulk.StatusAction{Status: domain.OrderStatusConfirmed})
	s.Require().NoError(err)
	s.Equal(bulk.BatchComplete, batch.Status)

	got, err := s.orders.Get(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusConfirmed, got.Status)
}

func (s *FulfillmentFlowTestSuite) TestBoardMoveRollsBackOnInvalidTransition() {
	ctx := context.Background()
	order := s.createOrder("SO-8")

	batch, err := s.session.Move(ctx, order.ID, domain.OrderStatusDelivered, bulk.MoveOptions{})
	s.Require().NoError(err)
	s.Equal(bulk.BatchFailed, batch.Status)

	column, ok := s.session.Board().Column(order.ID)
	s.Require().True(ok)
	s.Equal(domain.OrderStatusPending, column)
}

func (s *FulfillmentFlowTestSuite) TestCartOptimisticReconciliation() {
	ctx := context.Background()
	cart, ok := s.session.Set(domain.MembershipCart)
	s.Require().True(ok)

	batch, err := s.session.Membership(ctx, []string{"mug", "lamp", "ghost"}, bulk.MembershipAction{
		Kind:      domain.MembershipCart,
		Direction: bulk.DirectionAdd,
	})
	s.Require().NoError(err)
	s.Equal(bulk.BatchPartial, batch.Status)

	lamp, _ := batch.Outcome("lamp")
	s.Equal(domain.ErrorKindConflict, lamp.Kind)
	ghost, _ := batch.Outcome("ghost")
	s.Equal(domain.ErrorKindNotFound, ghost.Kind)

	s.True(cart.Effective("mug"))
	s.False(cart.Effective("lamp"))
	s.False(cart.Effective("ghost"))

	report, err := s.session.PollNow(ctx, domain.MembershipCart)
	s.Require().NoError(err)
	s.False(report.Stale)
	s.Contains(report.Reconciled, "mug")
	s.Empty(cart.Intents())
	s.Equal([]string{"mug"}, cart.Members())
}

func (s *FulfillmentFlowTestSuite) TestWishlistToggleRoundTrip() {
	ctx := context.Background()
	wishlist, _ := s.session.Set(domain.MembershipWishlist)
	action := bulk.MembershipAction{Kind: domain.MembershipWishlist, Direction: bulk.DirectionToggle}

	_, err := s.session.Membership(ctx, []string{"lamp"}, action)
	s.Require().NoError(err)
	s.True(wishlist.Effective("lamp"))

	_, err = s.session.Membership(ctx, []string{"lamp"}, action)
	s.Require().NoError(err)
	s.False(wishlist.Effective("lamp"))

	_, err = s.session.PollNow(ctx, domain.MembershipWishlist)
	s.Require().NoError(err)
	s.Empty(wishlist.Members())
}

func (s *FulfillmentFlowTestSuite) TestServerBulkEndpointReturnsMultiStatus() {
	first := s.createOrder("SO-20")
	body := `{"ids":["` + first.ID + `","missing"],"status":"confirmed"}`

	resp, err := http.Post(s.server.URL+"/orders/bulk-status", "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusMultiStatus, resp.StatusCode)

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			ID    string `json:"id"`
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"results"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&payload))
	s.Len(payload.Results, 2)
	s.True(payload.Results[0].OK)
	s.Empty(payload.Results[0].Error)
	s.False(payload.Results[1].OK)
	s.Equal("NotFound", payload.Results[1].Error)
}

func (s *FulfillmentFlowTestSuite) TestShippedBatchReportsErrorKindPerItem() {
	ctx := context.Background()
	ready := s.createOrder("SO-21")
	pending := s.createOrder("SO-22")
	_, err := s.session.Client().UpdateStatus(ctx, ready.ID, bulk.StatusRequest{Status: domain.OrderStatusConfirmed})
	s.Require().NoError(err)

	body := `{"ids":["` + ready.ID + `","` + pending.ID + `"],"status":"shipped",` +
		`"shipments":{"` + ready.ID + `":{"trackingNumber":"1Z999","carrier":"UPS"}}}`
	resp, err := http.Post(s.server.URL+"/orders/bulk-status", "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusMultiStatus, resp.StatusCode)

	var payload struct {
		Status  string                   `json:"status"`
		Results []map[string]interface{} `json:"results"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&payload))
	s.Require().Len(payload.Results, 2)
	s.Equal("partial", payload.Status)

	s.Equal(ready.ID, payload.Results[0]["id"])
	s.Equal(true, payload.Results[0]["ok"])
	s.NotContains(payload.Results[0], "error")

	s.Equal(pending.ID, payload.Results[1]["id"])
	s.Equal(false, payload.Results[1]["ok"])
	s.Equal("InvalidTransition", payload.Results[1]["error"])
	s.Contains(payload.Results[1]["message"], "pending")
}

func TestFulfillmentFlowTestSuite(t *testing.T) {
	suite.Run(t, new(FulfillmentFlowTestSuite))
}
