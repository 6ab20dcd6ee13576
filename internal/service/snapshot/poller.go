// Package snapshot доставляет авторитетные снимки корзины и избранного
// в координаторы намерений: опросом по расписанию и из push-канала.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/optimistic"
)

const (
	// DefaultSchedule: интервал опроса по умолчанию.
	DefaultSchedule = "@every 60s"
	defaultTimeout  = 10 * time.Second

	SourcePoll = "poll"
	SourcePush = "push"
)

// Fetcher загружает текущий снимок набора с сервера.
type Fetcher interface {
	Snapshot(ctx context.Context, kind domain.MembershipKind) (domain.MembershipSnapshot, error)
}

// Observer получает сведения для метрик.
type Observer interface {
	RecordSnapshotIngest(set, source string, stale bool)
}

// Option настраивает Poller.
type Option func(*Poller)

// WithSchedule задаёт расписание в формате cron (с секундами) или дескриптор "@every".
func WithSchedule(spec string) Option {
	return func(p *Poller) {
		if spec != "" {
			p.schedule = spec
		}
	}
}

// WithTimeout ограничивает длительность одного запроса снимка.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver подключает метрики.
func WithObserver(observer Observer) Option {
	return func(p *Poller) {
		p.observer = observer
	}
}

// Poller периодически запрашивает снимок набора и передаёт его в координатор.
type Poller struct {
	fetcher  Fetcher
	set      *optimistic.Coordinator
	kind     domain.MembershipKind
	schedule string
	timeout  time.Duration
	logger   *log.Entry
	observer Observer

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewPoller создаёт опросчик для набора set.
func NewPoller(fetcher Fetcher, set *optimistic.Coordinator, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		set:      set,
		kind:     domain.MembershipKind(set.Name()),
		schedule: DefaultSchedule,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "snapshot-poller")
	}
	p.logger = p.logger.WithField("set", p.kind)
	return p
}

// Start выполняет первый опрос и запускает расписание.
// Ошибка первого опроса логируется, расписание всё равно запускается.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(p.logger))),
	)
	if _, err := c.AddFunc(p.schedule, func() { p.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("snapshot poller schedule %q: %w", p.schedule, err)
	}

	p.tick(runCtx)
	c.Start()
	p.cron = c
	p.cancel = cancel
	p.running = true
	p.logger.WithField("schedule", p.schedule).Info("snapshot poller started")
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего опроса.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	c, cancel := p.cron, p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	p.logger.Info("snapshot poller stopped")
}

// PollNow запрашивает снимок немедленно.
func (p *Poller) PollNow(ctx context.Context) (optimistic.IngestReport, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snapshot, err := p.fetcher.Snapshot(reqCtx, p.kind)
	if err != nil {
		return optimistic.IngestReport{}, fmt.Errorf("fetch %s snapshot: %w", p.kind, err)
	}
	return p.Ingest(snapshot, SourcePoll), nil
}

// Ingest передаёт снимок из любого источника в координатор.
func (p *Poller) Ingest(snapshot domain.MembershipSnapshot, source string) optimistic.IngestReport {
	report := p.set.IngestSnapshot(optimistic.SnapshotFrom(snapshot))
	if p.observer != nil {
		p.observer.RecordSnapshotIngest(string(p.kind), source, report.Stale)
	}
	return report
}

func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.PollNow(ctx); err != nil && ctx.Err() == nil {
		p.logger.WithError(err).Warn("snapshot poll failed")
	}
}
