// Package client реализует HTTP клиент продавца к API fulfillment.
// Ответы сервера переводятся обратно в доменные ошибки, транспортные
// сбои становятся domain.NetworkError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
)

const defaultTimeout = 15 * time.Second

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client вызывает API от имени одного покупателя или продавца.
type Client struct {
	base       *url.URL
	customerID string
	http       *http.Client
	logger     *log.Entry
}

// New создаёт клиент. customerID передаётся в X-Customer-ID.
func New(baseURL, customerID string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		base:       base,
		customerID: customerID,
		http:       &http.Client{Timeout: defaultTimeout},
		logger:     log.WithField("component", "fulfillment-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CustomerID возвращает покупателя, от имени которого идут запросы.
func (c *Client) CustomerID() string {
	return c.customerID
}

// CreateOrder оформляет заказ.
func (c *Client) CreateOrder(ctx context.Context, req api.CreateOrderRequest) (domain.Order, error) {
	var out api.Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, &out); err != nil {
		return domain.Order{}, err
	}
	return out.Domain(), nil
}

// GetOrder возвращает заказ и его историю.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, []api.TimelineEvent, error) {
	var out api.OrderDetails
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return domain.Order{}, nil, err
	}
	return out.Order.Domain(), out.Timeline, nil
}

// ListOrders возвращает заказы по фильтру.
func (c *Client) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.CustomerID != "" {
		query.Set("customerId", filter.CustomerID)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var out api.OrderList
	if err := c.do(ctx, http.MethodGet, "/orders", query, nil, &out); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(out.Orders))
	for _, o := range out.Orders {
		orders = append(orders, o.Domain())
	}
	return orders, nil
}

// UpdateStatus реализует bulk.OrderGateway.
func (c *Client) UpdateStatus(ctx context.Context, orderID string, req bulk.StatusRequest) (domain.Order, error) {
	body := api.StatusRequest{Status: req.Status, Note: req.Note}
	if req.Shipment != nil {
		shipment := api.FromShipment(*req.Shipment)
		body.Shipment = &shipment
	}
	var out api.Order
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", nil, body, &out); err != nil {
		return domain.Order{}, err
	}
	return out.Domain(), nil
}

// Ship отгружает заказ.
func (c *Client) Ship(ctx context.Context, orderID, trackingNumber, carrier string, eta *time.Time) (domain.Order, error) {
	var out api.Order
	body := api.ShipRequest{TrackingNumber: trackingNumber, Carrier: carrier, EstimatedDelivery: eta}
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/ship", nil, body, &out); err != nil {
		return domain.Order{}, err
	}
	return out.Domain(), nil
}

// Deliver отмечает заказ вручённым.
func (c *Client) Deliver(ctx context.Context, orderID string) (domain.Order, error) {
	var out api.Order
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/deliver", nil, nil, &out); err != nil {
		return domain.Order{}, err
	}
	return out.Domain(), nil
}

// BulkStatus выполняет массовую смену статуса на сервере.
func (c *Client) BulkStatus(ctx context.Context, req api.BulkStatusRequest) (api.BulkStatusResponse, error) {
	var out api.BulkStatusResponse
	err := c.do(ctx, http.MethodPost, "/orders/bulk-status", nil, req, &out)
	return out, err
}

// Add реализует bulk.MembershipGateway.
func (c *Client) Add(ctx context.Context, kind domain.MembershipKind, productID string) error {
	_, err := c.changeMember(ctx, http.MethodPost, kind, productID)
	return err
}

// Remove реализует bulk.MembershipGateway.
func (c *Client) Remove(ctx context.Context, kind domain.MembershipKind, productID string) error {
	_, err := c.changeMember(ctx, http.MethodDelete, kind, productID)
	return err
}

// Snapshot загружает текущий состав набора.
func (c *Client) Snapshot(ctx context.Context, kind domain.MembershipKind) (domain.MembershipSnapshot, error) {
	if !kind.Valid() {
		return domain.MembershipSnapshot{}, domain.NewValidationError("kind", fmt.Sprintf("unknown membership set %q", kind))
	}
	var out api.Snapshot
	if err := c.do(ctx, http.MethodGet, "/"+string(kind), nil, nil, &out); err != nil {
		return domain.MembershipSnapshot{}, err
	}
	return out.Domain(), nil
}

func (c *Client) changeMember(ctx context.Context, method string, kind domain.MembershipKind, productID string) (domain.MembershipSnapshot, error) {
	if !kind.Valid() {
		return domain.MembershipSnapshot{}, domain.NewValidationError("kind", fmt.Sprintf("unknown membership set %q", kind))
	}
	var out api.Snapshot
	if err := c.do(ctx, method, "/"+string(kind)+"/"+url.PathEscape(productID), nil, nil, &out); err != nil {
		return domain.MembershipSnapshot{}, err
	}
	return out.Domain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.customerID != "" {
		req.Header.Set(api.HeaderCustomerID, c.customerID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.WithError(err).WithFields(log.Fields{"method": method, "path": path}).Debug("request failed")
		return domain.NewNetworkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.Error
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &apiErr); err != nil {
				apiErr.Error = strings.TrimSpace(string(raw))
			}
		}
		return apiErr.Err(resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return domain.NewNetworkError(method+" "+path, err)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ bulk.OrderGateway      = (*Client)(nil)
	_ bulk.MembershipGateway = (*Client)(nil)
)
