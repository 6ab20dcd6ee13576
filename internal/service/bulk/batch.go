package bulk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// ActionType различает массовые операции над заказами и над наборами.
type ActionType string

const (
	ActionStatus     ActionType = "status"
	ActionMembership ActionType = "membership"
)

// Direction — направление изменения членства.
type Direction string

const (
	DirectionToggle Direction = "toggle"
	DirectionAdd    Direction = "add"
	DirectionRemove Direction = "remove"
)

// Valid проверяет направление.
func (d Direction) Valid() bool {
	return d == DirectionToggle || d == DirectionAdd || d == DirectionRemove
}

// Action описывает действие батча.
type Action struct {
	Type      ActionType
	Status    domain.OrderStatus
	Set       domain.MembershipKind
	Direction Direction
	Note      string
}

// Label возвращает короткое имя действия для логов и метрик.
func (a Action) Label() string {
	if a.Type == ActionMembership {
		return fmt.Sprintf("%s:%s", a.Set, a.Direction)
	}
	return fmt.Sprintf("status:%s", a.Status)
}

// BatchStatus — сводный статус батча.
type BatchStatus string

const (
	BatchComplete BatchStatus = "complete"
	BatchPartial  BatchStatus = "partial"
	BatchFailed   BatchStatus = "failed"
)

// Outcome — результат одного элемента батча.
type Outcome struct {
	ID   string
	OK   bool
	Kind domain.ErrorKind
	Err  error
	// Order: авторитетный заказ после успешного перехода.
	Order *domain.Order
	// Present: итоговое желаемое членство для операций над наборами.
	Present bool
}

// Reason возвращает причину неудачи в виде класса ошибки.
func (o Outcome) Reason() string {
	if o.OK {
		return ""
	}
	return string(o.Kind)
}

// Batch — неизменяемый отчёт о массовой операции.
type Batch struct {
	ID         string
	TargetIDs  []string
	Action     Action
	Outcomes   []Outcome
	Status     BatchStatus
	StartedAt  time.Time
	FinishedAt time.Time
}

// Outcome возвращает результат по идентификатору.
func (b Batch) Outcome(id string) (Outcome, bool) {
	for _, outcome := range b.Outcomes {
		if outcome.ID == id {
			return outcome, true
		}
	}
	return Outcome{}, false
}

// Succeeded возвращает идентификаторы успешных элементов в порядке запроса.
func (b Batch) Succeeded() []string {
	result := make([]string, 0, len(b.Outcomes))
	for _, outcome := range b.Outcomes {
		if outcome.OK {
			result = append(result, outcome.ID)
		}
	}
	return result
}

// Failed возвращает неудачные элементы с причинами.
func (b Batch) Failed() []Outcome {
	result := make([]Outcome, 0)
	for _, outcome := range b.Outcomes {
		if !outcome.OK {
			result = append(result, outcome)
		}
	}
	return result
}

// Summary возвращает строку вида "3 of 5 updated".
func (b Batch) Summary() string {
	return fmt.Sprintf("%d of %d updated", len(b.Succeeded()), len(b.Outcomes))
}

// Duration возвращает длительность выполнения батча.
func (b Batch) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

func aggregateStatus(outcomes []Outcome) BatchStatus {
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.OK {
			succeeded++
		}
	}
	switch {
	case succeeded == len(outcomes):
		return BatchComplete
	case succeeded == 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}

// recorder накапливает результаты, пока элементы батча разрешаются.
type recorder struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

func newRecorder(size int) *recorder {
	return &recorder{outcomes: make(map[string]Outcome, size)}
}

func (r *recorder) add(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome.ID] = outcome
}

// seal собирает итоговый батч в порядке targetIDs.
func (r *recorder) seal(id string, targetIDs []string, action Action, startedAt, finishedAt time.Time) Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make([]Outcome, 0, len(targetIDs))
	for _, target := range targetIDs {
		outcomes = append(outcomes, r.outcomes[target])
	}
	return Batch{
		ID:         id,
		TargetIDs:  append([]string(nil), targetIDs...),
		Action:     action,
		Outcomes:   outcomes,
		Status:     aggregateStatus(outcomes),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
}

// merge заменяет результаты повторённых элементов и пересчитывает статус.
func merge(base, retried Batch) Batch {
	replaced := make(map[string]Outcome, len(retried.Outcomes))
	for _, outcome := range retried.Outcomes {
		replaced[outcome.ID] = outcome
	}

	outcomes := make([]Outcome, len(base.Outcomes))
	for i, outcome := range base.Outcomes {
		if next, ok := replaced[outcome.ID]; ok {
			outcome = next
		}
		outcomes[i] = outcome
	}

	result := base
	result.TargetIDs = append([]string(nil), base.TargetIDs...)
	result.Outcomes = outcomes
	result.Status = aggregateStatus(outcomes)
	if retried.FinishedAt.After(result.FinishedAt) {
		result.FinishedAt = retried.FinishedAt
	}
	return result
}

// dedupe убирает пустые и повторяющиеся идентификаторы, сохраняя порядок.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// kindsOf считает неудачи по классам ошибок.
func kindsOf(outcomes []Outcome) map[domain.ErrorKind]int {
	kinds := make(map[domain.ErrorKind]int)
	for _, outcome := range outcomes {
		if !outcome.OK {
			kinds[outcome.Kind]++
		}
	}
	return kinds
}

// sortedKinds нужен для стабильного вывода в логах.
func sortedKinds(kinds map[domain.ErrorKind]int) []string {
	result := make([]string, 0, len(kinds))
	for kind, count := range kinds {
		result = append(result, fmt.Sprintf("%s=%d", kind, count))
	}
	sort.Strings(result)
	return result
}
