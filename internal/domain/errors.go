package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("order_number is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// ErrStatusUnknown — статус не входит в граф переходов.
	ErrStatusUnknown = errors.New("order status is unknown")
	// ErrShipmentIncomplete — трек-номер и перевозчик задаются только вместе.
	ErrShipmentIncomplete = errors.New("tracking number and carrier must be set together")
	// ErrShipmentRequired — отгруженный заказ обязан иметь данные отгрузки.
	ErrShipmentRequired = errors.New("shipped order must carry tracking number and carrier")
	// ErrShipmentUnexpected — данные отгрузки до перехода в shipped.
	ErrShipmentUnexpected = errors.New("shipment data may only be attached by the ship transition")

	// ErrNotFound — общий признак отсутствующей сущности.
	ErrNotFound = errors.New("not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)

	// ErrConflict — общий признак конфликта состояния на сервере.
	ErrConflict = errors.New("conflict")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = fmt.Errorf("order version %w", ErrConflict)
	// ErrOrderAlreadyExists — заказ с таким идентификатором уже создан.
	ErrOrderAlreadyExists = fmt.Errorf("order already exists: %w", ErrConflict)
	// ErrOutOfStock — товар закончился, добавить в корзину нельзя.
	ErrOutOfStock = fmt.Errorf("product out of stock: %w", ErrConflict)

	// ErrInvalidTransition — общий признак нарушения графа переходов.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation — общий признак некорректного входа.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork — общий признак временной сетевой ошибки.
	ErrNetwork = errors.New("network error")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InvalidTransitionError описывает попытку перехода по несуществующему ребру графа.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

// NewInvalidTransitionError создаёт ошибку перехода from -> to.
func NewInvalidTransitionError(from, to OrderStatus) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Is позволяет сравнивать ошибку с ErrInvalidTransition через errors.Is.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError — вход отклонён до отправки запроса.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NetworkError — временная ошибка транспорта. Повтор остаётся решением вызывающего.
type NetworkError struct {
	Op  string
	Err error
}

// NewNetworkError оборачивает ошибку транспорта.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("network error: %s", e.Op)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// ErrorKind — класс ошибки в таксономии fulfillment.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindInvalidTransition ErrorKind = "InvalidTransition"
	ErrorKindValidation        ErrorKind = "Validation"
	ErrorKindNotFound          ErrorKind = "NotFound"
	ErrorKindConflict          ErrorKind = "Conflict"
	ErrorKindNetwork           ErrorKind = "Network"
	ErrorKindCanceled          ErrorKind = "Canceled"
	ErrorKindInternal          ErrorKind = "Internal"
)

// KindOf классифицирует ошибку. Неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidTransition):
		return ErrorKindInvalidTransition
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	case errors.Is(err, ErrNetwork):
		return ErrorKindNetwork
	default:
		return ErrorKindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsRetryable сообщает, имеет ли смысл повторять операцию.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrorKindNetwork
}
