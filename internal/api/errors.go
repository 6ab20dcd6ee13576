package api

import (
	"fmt"
	"net/http"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// StatusFor выбирает HTTP код для ошибки по её классу.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrorKindNone:
		return http.StatusOK
	case domain.ErrorKindInvalidTransition, domain.ErrorKindConflict:
		return http.StatusConflict
	case domain.ErrorKindNotFound:
		return http.StatusNotFound
	case domain.ErrorKindValidation:
		return http.StatusBadRequest
	case domain.ErrorKindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewError собирает тело ответа с ошибкой.
func NewError(err error) Error {
	return Error{Error: err.Error(), Kind: domain.KindOf(err)}
}

// Err восстанавливает доменную ошибку из ответа сервера, чтобы
// domain.KindOf на стороне клиента дал тот же класс.
func (e Error) Err(status int) error {
	kind := e.Kind
	if kind == "" {
		kind = kindForStatus(status)
	}
	msg := e.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch kind {
	case domain.ErrorKindInvalidTransition:
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, msg)
	case domain.ErrorKindValidation:
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	case domain.ErrorKindNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case domain.ErrorKindConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, msg)
	case domain.ErrorKindNetwork:
		return domain.NewNetworkError("server", fmt.Errorf("%s", msg))
	default:
		return fmt.Errorf("server error (%d): %s", status, msg)
	}
}

func kindForStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusConflict:
		return domain.ErrorKindConflict
	case status == http.StatusNotFound:
		return domain.ErrorKindNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return domain.ErrorKindValidation
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout, status == http.StatusTooManyRequests:
		return domain.ErrorKindNetwork
	default:
		return domain.ErrorKindInternal
	}
}
