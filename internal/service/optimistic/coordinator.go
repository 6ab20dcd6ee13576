// Package optimistic согласует локальные намерения покупателя (корзина,
// избранное) с авторитетными снимками сервера.
package optimistic

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// DefaultStalenessWindow — сколько несогласных снимков переживает намерение.
const DefaultStalenessWindow = 3

// Intent — локальное желаемое значение членства, ожидающее подтверждения сервером.
type Intent struct {
	EntityID  string
	Desired   bool
	Token     uint64
	CreatedAt time.Time
	// Acknowledged: сервер ответил успехом, ждём снимок.
	Acknowledged bool
	// Age: число принятых снимков, не подтвердивших намерение.
	Age int
}

// Snapshot — авторитетное множество идентификаторов.
// Version 0 означает снимок без версии, такой снимок принимается всегда.
type Snapshot struct {
	Items   []string
	Version int64
	TakenAt time.Time
}

// SnapshotFrom преобразует снимок набора покупателя.
func SnapshotFrom(s domain.MembershipSnapshot) Snapshot {
	return Snapshot{Items: append([]string(nil), s.Items...), Version: s.Version, TakenAt: s.TakenAt}
}

// IngestReport описывает результат приёма снимка.
type IngestReport struct {
	// Stale: снимок старше уже принятого и проигнорирован.
	// Repeated: снимок той же версии, что уже принят (push и poll одного
	// состояния). Намерения согласуются, но не стареют.
	Stale      bool
	Repeated   bool
	Version    int64
	Reconciled []string
	Expired    []string
	Pending    []string
}

// Observer получает сведения для метрик.
type Observer interface {
	ObserveIntents(set string, live int)
	ObserveReconciliation(set, result string, count int)
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithStalenessWindow задаёт окно устаревания намерений.
func WithStalenessWindow(window int) Option {
	return func(c *Coordinator) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver подключает метрики.
func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator хранит намерения одного набора в рамках сессии.
// Методы безопасны для вызова из нескольких горутин.
type Coordinator struct {
	mu       sync.Mutex
	name     string
	window   int
	logger   *log.Entry
	observer Observer
	now      func() time.Time

	// lastToken не сбрасывается в Reset: поздний ответ на запрос прошлой
	// сессии не должен совпасть с токеном нового намерения.
	lastToken uint64
	intents   map[string]*Intent
	snapshot  map[string]struct{}
	version   int64
	takenAt   time.Time
	ingested  bool
}

// NewCoordinator создаёт координатор набора name (cart, wishlist).
func NewCoordinator(name string, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:     name,
		window:   DefaultStalenessWindow,
		now:      func() time.Time { return time.Now().UTC() },
		intents:  make(map[string]*Intent),
		snapshot: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "optimistic-sync")
	}
	c.logger = c.logger.WithField("set", name)
	return c
}

// Name возвращает имя набора.
func (c *Coordinator) Name() string {
	return c.name
}

// StalenessWindow возвращает окно устаревания.
func (c *Coordinator) StalenessWindow() int {
	return c.window
}

// Effective возвращает значение с учётом живого намерения, иначе по снимку.
func (c *Coordinator) Effective(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveLocked(id)
}

// Toggle инвертирует эффективное значение и возвращает новое намерение.
func (c *Coordinator) Toggle(id string) Intent {
	c.mu.Lock()
	intent := c.storeLocked(id, !c.effectiveLocked(id))
	live := len(c.intents)
	c.mu.Unlock()

	c.observeIntents(live)
	return intent
}

// Set фиксирует явное направление (массовое добавление или удаление).
func (c *Coordinator) Set(id string, desired bool) Intent {
	c.mu.Lock()
	intent := c.storeLocked(id, desired)
	live := len(c.intents)
	c.mu.Unlock()

	c.observeIntents(live)
	return intent
}

// ResolveSuccess отмечает успешный ответ сервера.
// Намерение остаётся до согласования со снимком. Устаревший токен игнорируется.
func (c *Coordinator) ResolveSuccess(id string, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[id]
	if !ok || intent.Token != token {
		return false
	}
	intent.Acknowledged = true
	return true
}

// ResolveFailure откатывает намерение к снимку. Устаревший токен игнорируется.
func (c *Coordinator) ResolveFailure(id string, token uint64) bool {
	c.mu.Lock()
	intent, ok := c.intents[id]
	if !ok || intent.Token != token {
		c.mu.Unlock()
		return false
	}
	delete(c.intents, id)
	live := len(c.intents)
	c.mu.Unlock()

	c.observeIntents(live)
	c.observeReconciliation("rolled_back", 1)
	return true
}

// IngestSnapshot заменяет снимок и согласует живые намерения.
// Снимки могут приходить в любом порядке относительно локальных изменений:
// сравнение идёт с живым намерением, а не с порядком событий.
func (c *Coordinator) IngestSnapshot(snapshot Snapshot) IngestReport {
	c.mu.Lock()

	if snapshot.Version > 0 && c.version > 0 && snapshot.Version < c.version {
		report := IngestReport{Stale: true, Version: c.version}
		c.mu.Unlock()
		c.logger.WithFields(log.Fields{
			"snapshot_version": snapshot.Version,
			"current_version":  report.Version,
		}).Debug("stale snapshot ignored")
		c.observeReconciliation("stale_snapshot", 1)
		return report
	}

	repeated := snapshot.Version > 0 && c.ingested && snapshot.Version == c.version

	members := make(map[string]struct{}, len(snapshot.Items))
	for _, id := range snapshot.Items {
		members[id] = struct{}{}
	}
	c.snapshot = members
	if snapshot.Version > 0 {
		c.version = snapshot.Version
	}
	c.takenAt = snapshot.TakenAt
	c.ingested = true

	report := IngestReport{Version: c.version, Repeated: repeated}
	for id, intent := range c.intents {
		_, has := members[id]
		if has == intent.Desired {
			delete(c.intents, id)
			report.Reconciled = append(report.Reconciled, id)
			continue
		}
		if repeated {
			report.Pending = append(report.Pending, id)
			continue
		}
		intent.Age++
		if intent.Age >= c.window {
			delete(c.intents, id)
			report.Expired = append(report.Expired, id)
			continue
		}
		report.Pending = append(report.Pending, id)
	}
	live := len(c.intents)
	c.mu.Unlock()

	sort.Strings(report.Reconciled)
	sort.Strings(report.Expired)
	sort.Strings(report.Pending)

	if len(report.Expired) > 0 {
		c.logger.WithFields(log.Fields{
			"expired":          report.Expired,
			"snapshot_version": report.Version,
		}).Warn("intents force-cleared after staleness window")
	}
	c.observeIntents(live)
	c.observeReconciliation("reconciled", len(report.Reconciled))
	c.observeReconciliation("expired", len(report.Expired))
	return report
}

// Reset сбрасывает состояние при завершении сессии.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.intents = make(map[string]*Intent)
	c.snapshot = make(map[string]struct{})
	c.version = 0
	c.takenAt = time.Time{}
	c.ingested = false
	c.mu.Unlock()

	c.observeIntents(0)
}

// Intent возвращает живое намерение по идентификатору.
func (c *Coordinator) Intent(id string) (Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[id]
	if !ok {
		return Intent{}, false
	}
	return *intent, true
}

// Intents возвращает копию живых намерений, отсортированную по идентификатору.
func (c *Coordinator) Intents() []Intent {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Intent, 0, len(c.intents))
	for _, intent := range c.intents {
		result = append(result, *intent)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}

// Members возвращает эффективное множество: снимок с наложенными намерениями.
func (c *Coordinator) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make(map[string]struct{}, len(c.snapshot)+len(c.intents))
	for id := range c.snapshot {
		set[id] = struct{}{}
	}
	for id, intent := range c.intents {
		if intent.Desired {
			set[id] = struct{}{}
		} else {
			delete(set, id)
		}
	}

	result := make([]string, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Snapshot возвращает последний принятый снимок и признак его наличия.
func (c *Coordinator) Snapshot() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]string, 0, len(c.snapshot))
	for id := range c.snapshot {
		items = append(items, id)
	}
	sort.Strings(items)
	return Snapshot{Items: items, Version: c.version, TakenAt: c.takenAt}, c.ingested
}

func (c *Coordinator) effectiveLocked(id string) bool {
	if intent, ok := c.intents[id]; ok {
		return intent.Desired
	}
	_, ok := c.snapshot[id]
	return ok
}

func (c *Coordinator) storeLocked(id string, desired bool) Intent {
	c.lastToken++
	intent := &Intent{
		EntityID:  id,
		Desired:   desired,
		Token:     c.lastToken,
		CreatedAt: c.now(),
	}
	c.intents[id] = intent
	return *intent
}

func (c *Coordinator) observeIntents(live int) {
	if c.observer != nil {
		c.observer.ObserveIntents(c.name, live)
	}
}

func (c *Coordinator) observeReconciliation(result string, count int) {
	if c.observer != nil && count > 0 {
		c.observer.ObserveReconciliation(c.name, result, count)
	}
}
