package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asquebay/canteen-orders/internal/model"
)

// OrderService владеет канонической коллекцией заказов и синхронизирует её с хранилищем
// сначала пишем в хранилище, и только в случае успеха меняем коллекцию и оповещаем наблюдателей
type OrderService struct {
	backend OrderBackend
	cache   OrderCache
	log     *slog.Logger
	now     func() time.Time
	strict  bool

	// storeMu упорядочивает пары "запрос к хранилищу + изменение коллекции";
	// без него перезагрузка, прочитавшая хранилище до мутации, затёрла бы её в коллекции
	storeMu sync.Mutex
	// commitMu упорядочивает пары "изменение коллекции + оповещение"
	commitMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[int]*observer
	nextObs   int
	// loaded — была ли хотя бы одна успешная полная загрузка
	loaded bool
}

type observer struct {
	fn    Observer
	armed bool
}

// Option настраивает OrderService
type Option func(s *OrderService)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// WithStrictTransitions включает проверку переходов pending -> in_progress -> ready
func WithStrictTransitions(strict bool) Option {
	return func(s *OrderService) { s.strict = strict }
}

// NewOrderService создаёт новый экземпляр сервиса заказов
// он принимает интерфейсы, а не конкретные типы, для гибкости и тестируемости
func NewOrderService(backend OrderBackend, cache OrderCache, log *slog.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		backend:   backend,
		cache:     cache,
		log:       log,
		now:       time.Now,
		observers: make(map[int]*observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddOrder создаёт заказ в статусе pending и возвращает его идентификатор
// при ошибке возвращается нулевой идентификатор, коллекция не меняется
func (s *OrderService) AddOrder(ctx context.Context, draft model.OrderDraft) (model.OrderID, error) {
	const op = "service.OrderService.AddOrder"
	log := s.log.With(slog.String("op", op), slog.String("student_id", draft.StudentID))

	if err := draft.Validate(); err != nil {
		log.Warn("order draft rejected", slog.String("error", err.Error()))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := s.timestamp()
	order := model.Order{
		StudentName: draft.StudentName,
		StudentID:   draft.StudentID,
		Items:       draft.Items,
		Total:       draft.Total,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	// 1. Сохраняем в хранилище, оно выдаёт идентификатор
	stored, err := s.backend.Insert(ctx, order)
	if err != nil {
		log.Error("failed to insert order", slog.String("error", err.Error()))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	// время создания может проставить сервер, updatedAt не должен быть раньше него
	stored.UpdatedAt = model.NotBefore(stored.UpdatedAt, stored.CreatedAt)

	// 2. Добавляем в коллекцию; если запись уже пришла с перезагрузкой, она заменится
	s.commit(false, func() []model.Order { return s.cache.Set(stored) })

	log.Info("order created", slog.Int64("order_id", int64(stored.ID)))
	return stored.ID, nil
}

// UpdateOrderStatus меняет статус заказа
// любой непустой статус допустим, если не включён строгий режим
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id model.OrderID, status model.Status) error {
	const op = "service.OrderService.UpdateOrderStatus"
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", int64(id)), slog.String("status", string(status)))

	if err := status.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if current, ok := s.cache.Get(id); ok {
		if s.strict && !model.CanTransition(current.Status, status) {
			log.Warn("status transition rejected", slog.String("from", string(current.Status)))
			return fmt.Errorf("%s: %s -> %s: %w", op, current.Status, status, model.ErrInvalidTransition)
		}
	}
	if !status.Known() {
		log.Warn("writing non-standard order status")
	}

	now := s.timestamp()
	if err := s.backend.UpdateStatus(ctx, id, status, now); err != nil {
		log.Error("failed to update order status", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.commit(false, func() []model.Order {
		return s.cache.Update(id, func(o *model.Order) {
			o.Status = status
			o.UpdatedAt = model.NotBefore(now, o.CreatedAt)
		})
	})

	log.Info("order status updated")
	return nil
}

// DeleteOrder удаляет заказ
func (s *OrderService) DeleteOrder(ctx context.Context, id model.OrderID) error {
	const op = "service.OrderService.DeleteOrder"
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", int64(id)))

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if err := s.backend.Delete(ctx, id); err != nil {
		log.Error("failed to delete order", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.commit(false, func() []model.Order { return s.cache.Remove(id) })

	log.Info("order deleted")
	return nil
}

// LoadOrders полностью перечитывает коллекцию из хранилища
// при ошибке предыдущий снимок остаётся нетронутым
func (s *OrderService) LoadOrders(ctx context.Context) error {
	const op = "service.OrderService.LoadOrders"
	log := s.log.With(slog.String("op", op))

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	orders, err := s.backend.LoadAll(ctx)
	if err != nil {
		log.Error("failed to load orders", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.commit(true, func() []model.Order { return s.cache.LoadAll(orders) })

	log.Debug("orders loaded", slog.Int("orders_count", len(orders)))
	return nil
}

// GetOrderByID ищет заказ в коллекции, хранилище не опрашивается
func (s *OrderService) GetOrderByID(id model.OrderID) (model.Order, bool) {
	return s.cache.Get(id)
}

// Orders возвращает снимок всей коллекции
func (s *OrderService) Orders() []model.Order {
	return s.cache.All()
}

// OrdersByStatus возвращает заказы с указанным статусом по возрастанию времени создания
func (s *OrderService) OrdersByStatus(status model.Status) []model.Order {
	return s.cache.ByStatus(status)
}

func (s *OrderService) PendingOrders() []model.Order {
	return s.cache.ByStatus(model.StatusPending)
}

func (s *OrderService) InProgressOrders() []model.Order {
	return s.cache.ByStatus(model.StatusInProgress)
}

func (s *OrderService) ReadyOrders() []model.Order {
	return s.cache.ByStatus(model.StatusReady)
}

// Subscribe регистрирует наблюдателя и возвращает функцию отписки
func (s *OrderService) Subscribe(fn Observer) (cancel func()) {
	return s.subscribe(fn, false)
}

// SubscribeLoaded регистрирует наблюдателя, который начинает получать изменения только после
// первой успешной полной загрузки; саму эту загрузку он не видит
// если загрузка уже была, это то же самое, что Subscribe
func (s *OrderService) SubscribeLoaded(fn Observer) (cancel func()) {
	return s.subscribe(fn, true)
}

func (s *OrderService) subscribe(fn Observer, waitLoad bool) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = &observer{fn: fn, armed: !waitLoad || s.loaded}
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// commit применяет изменение к коллекции и синхронно оповещает наблюдателей
// после полной загрузки включаются наблюдатели, ждавшие её
func (s *OrderService) commit(reload bool, apply func() []model.Order) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	prev := apply()
	next := s.cache.All()

	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		if o.armed {
			observers = append(observers, o.fn)
		}
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(prev, next)
	}

	if reload {
		s.obsMu.Lock()
		s.loaded = true
		for _, o := range s.observers {
			o.armed = true
		}
		s.obsMu.Unlock()
	}
}

// timestamp — время в UTC с точностью до микросекунд, как хранит postgres
func (s *OrderService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
