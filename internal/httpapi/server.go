// Package httpapi обслуживает HTTP API fulfillment поверх echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/membership"
)

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики запросов.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server обслуживает заказы и наборы покупателя.
type Server struct {
	orders  *fulfillment.Service
	members *membership.Service
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
	echo    *echo.Echo
}

// NewServer собирает echo с зарегистрированными маршрутами.
func NewServer(orders *fulfillment.Service, members *membership.Service, opts ...Option) *Server {
	s := &Server{
		orders:  orders,
		members: members,
		logger:  log.WithField("component", "httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.observe)
	s.echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	orders := s.echo.Group("/orders")
	orders.POST("", s.createOrder)
	orders.GET("", s.listOrders)
	orders.POST("/bulk-status", s.bulkStatus)
	orders.GET("/:id", s.getOrder)
	orders.PATCH("/:id/status", s.updateStatus)
	orders.PATCH("/:id/ship", s.ship)
	orders.PATCH("/:id/deliver", s.deliver)

	for _, kind := range []domain.MembershipKind{domain.MembershipCart, domain.MembershipWishlist} {
		path := "/" + string(kind)
		s.echo.GET(path, s.snapshot(kind))
		s.echo.POST(path+"/:productId", s.addMember(kind))
		s.echo.DELETE(path+"/:productId", s.removeMember(kind))
	}
}

// Handler возвращает http.Handler для сервера или httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start слушает addr до Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// observe пишет access-лог и метрики. Ошибку обработчика отдаёт в
// HTTPErrorHandler сам, чтобы код ответа был известен до записи метрик.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		code := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		s.metrics.RecordHTTPRequest(req.Method, route, code, duration)

		entry := s.logger.WithFields(log.Fields{
			"method":      req.Method,
			"route":       route,
			"code":        code,
			"duration_ms": duration.Milliseconds(),
			"request_id":  c.Response().Header().Get(echo.HeaderXRequestID),
		})
		if code >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
		return nil
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(httpErr.Code, api.Error{Error: msg, Kind: kindForHTTP(httpErr.Code)})
		return
	}

	code := api.StatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("route", c.Path()).Error("request error")
	}
	_ = c.JSON(code, api.NewError(err))
}

func kindForHTTP(code int) domain.ErrorKind {
	switch code {
	case http.StatusNotFound:
		return domain.ErrorKindNotFound
	case http.StatusBadRequest:
		return domain.ErrorKindValidation
	case http.StatusConflict:
		return domain.ErrorKindConflict
	default:
		return domain.ErrorKindInternal
	}
}
