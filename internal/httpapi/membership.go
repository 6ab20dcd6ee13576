package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func (s *Server) snapshot(kind domain.MembershipKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := customer(c)
		if err != nil {
			return err
		}
		snap, err := s.members.Snapshot(c.Request().Context(), kind, customerID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, api.FromSnapshot(snap))
	}
}

func (s *Server) addMember(kind domain.MembershipKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := customer(c)
		if err != nil {
			return err
		}
		snap, err := s.members.Add(c.Request().Context(), kind, customerID, c.Param("productId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, api.FromSnapshot(snap))
	}
}

func (s *Server) removeMember(kind domain.MembershipKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := customer(c)
		if err != nil {
			return err
		}
		snap, err := s.members.Remove(c.Request().Context(), kind, customerID, c.Param("productId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, api.FromSnapshot(snap))
	}
}

func customer(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Request().Header.Get(api.HeaderCustomerID))
	if id == "" {
		return "", domain.NewValidationError(api.HeaderCustomerID, "header is required")
	}
	return id, nil
}
