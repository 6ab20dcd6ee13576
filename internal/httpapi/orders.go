package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
)

func (s *Server) createOrder(c echo.Context) error {
	var req api.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}

	order, err := s.orders.Create(c.Request().Context(), fulfillment.CreateOrderInput{
		OrderNumber:     req.OrderNumber,
		Customer:        req.Customer.Domain(),
		ShippingAddress: req.ShippingAddress.Domain(),
		Currency:        req.Currency,
		Items:           api.ItemsDomain(req.Items),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.FromOrder(order))
}

func (s *Server) listOrders(c echo.Context) error {
	filter := domain.OrderFilter{
		Status:     domain.OrderStatus(c.QueryParam("status")),
		CustomerID: c.QueryParam("customerId"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.NewValidationError("limit", "must be a non-negative integer")
		}
		filter.Limit = limit
	}

	orders, err := s.orders.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OrderList{Orders: api.FromOrders(orders)})
}

func (s *Server) getOrder(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	timeline, err := s.orders.Timeline(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.OrderDetails{Order: api.FromOrder(order), Timeline: api.FromTimeline(timeline)})
}

func (s *Server) updateStatus(c echo.Context) error {
	var req api.StatusRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}

	change := fulfillment.StatusChange{Status: req.Status, Note: req.Note}
	if req.Shipment != nil {
		shipment := req.Shipment.Domain()
		change.Shipment = &shipment
	}
	order, err := s.orders.UpdateStatus(c.Request().Context(), c.Param("id"), change)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.FromOrder(order))
}

func (s *Server) ship(c echo.Context) error {
	var req api.ShipRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}

	order, err := s.orders.Ship(c.Request().Context(), c.Param("id"), req.TrackingNumber, req.Carrier, req.EstimatedDelivery)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.FromOrder(order))
}

func (s *Server) deliver(c echo.Context) error {
	order, err := s.orders.Deliver(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.FromOrder(order))
}

// bulkStatus отвечает 207: каждый заказ несёт собственный исход.
func (s *Server) bulkStatus(c echo.Context) error {
	var req api.BulkStatusRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}

	action := bulk.StatusAction{Status: req.Status, Note: req.Note}
	if len(req.Shipments) > 0 {
		action.Shipments = make(map[string]domain.Shipment, len(req.Shipments))
		for id, shipment := range req.Shipments {
			action.Shipments[id] = shipment.Domain()
		}
	}

	batch, err := s.orders.BulkUpdateStatus(c.Request().Context(), req.IDs, action)
	if err != nil {
		return err
	}

	resp := api.BulkStatusResponse{
		BatchID: batch.ID,
		Status:  string(batch.Status),
		Results: make([]api.BulkResult, 0, len(batch.Outcomes)),
	}
	for _, outcome := range batch.Outcomes {
		result := api.BulkResult{ID: outcome.ID, OK: outcome.OK}
		if outcome.Err != nil {
			result.Error = outcome.Kind
			result.Message = outcome.Err.Error()
		}
		if outcome.Order != nil {
			order := api.FromOrder(*outcome.Order)
			result.Order = &order
		}
		resp.Results = append(resp.Results, result)
	}
	return c.JSON(http.StatusMultiStatus, resp)
}

func bindError(err error) error {
	return domain.NewValidationError("body", err.Error())
}
