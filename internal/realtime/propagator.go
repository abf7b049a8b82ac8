package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asquebay/canteen-orders/internal/model"
	"github.com/asquebay/canteen-orders/internal/service"
)

// Store — часть хранилища заказов, нужная для распространения изменений
type Store interface {
	LoadOrders(ctx context.Context) error
	Subscribe(fn service.Observer) (cancel func())
}

// ChangeSource сообщает, что коллекцию поменял кто-то другой
// это лента LISTEN удалённого хранилища или наблюдатель за локальным файлом
type ChangeSource interface {
	Subscribe(ctx context.Context, onChange func()) (service.Subscription, error)
}

// Propagator связывает хранилище, шину и внешние источники изменений:
// после каждого обновления коллекции публикует сигнал в шину,
// а сигналы источников сводит в полные перезагрузки на одной горутине
type Propagator struct {
	store   Store
	bus     *Bus
	log     *slog.Logger
	sources []ChangeSource

	kick chan struct{}

	mu      sync.Mutex
	started bool
	stopObs func()
	subs    []service.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(store Store, bus *Bus, log *slog.Logger, sources ...ChangeSource) *Propagator {
	return &Propagator{
		store:   store,
		bus:     bus,
		log:     log,
		sources: sources,
		kick:    make(chan struct{}, 1),
	}
}

// Start подписывается на хранилище и все источники
// если хотя бы один источник не подписался, уже открытые подписки закрываются
func (p *Propagator) Start(ctx context.Context) error {
	const op = "realtime.Propagator.Start"

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("%s: already started", op)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopObs = p.store.Subscribe(func(_, _ []model.Order) { p.bus.Publish() })

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reloadLoop(ctx)
	}()

	for _, src := range p.sources {
		sub, err := src.Subscribe(ctx, p.Kick)
		if err != nil {
			p.shutdown()
			return fmt.Errorf("%s: %w", op, err)
		}
		p.subs = append(p.subs, sub)
	}

	p.started = true
	return nil
}

// Kick запрашивает перезагрузку; пачка сигналов подряд даёт одну перезагрузку
func (p *Propagator) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Propagator) reloadLoop(ctx context.Context) {
	log := p.log.With(slog.String("component", "propagator"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			if err := p.store.LoadOrders(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// предыдущий снимок остаётся, следующий сигнал попробует снова
				log.Warn("reload after external change failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close отписывается от всех источников и дожидается горутины перезагрузки
func (p *Propagator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.shutdown()
}

func (p *Propagator) shutdown() error {
	var errs []error
	for _, sub := range p.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.subs = nil
	if p.stopObs != nil {
		p.stopObs()
		p.stopObs = nil
	}
	p.cancel()
	p.wg.Wait()
	return errors.Join(errs...)
}
