package notify

import (
	"context"
	"sync"

	"github.com/asquebay/canteen-orders/internal/model"
)

// ReadyNotifier — то, что умеет сообщить о готовом заказе и убрать это сообщение
type ReadyNotifier interface {
	NotifyReady(ctx context.Context, id model.OrderID, studentName string)
	Withdraw(id model.OrderID)
}

// ReadyWatcher — наблюдатель хранилища, который замечает переходы заказов в статус ready и обратно
// уведомления отправляются асинхронно, чтобы не задерживать фиксацию изменений,
// но строго в порядке изменений: показ и снятие одного тега не переставляются
type ReadyWatcher struct {
	ctx      context.Context
	notifier ReadyNotifier
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending []func()
	running bool
}

func NewReadyWatcher(ctx context.Context, notifier ReadyNotifier) *ReadyWatcher {
	return &ReadyWatcher{ctx: ctx, notifier: notifier}
}

// Observe сравнивает снимки коллекции; подходит как service.Observer
func (w *ReadyWatcher) Observe(prev, next []model.Order) {
	before := make(map[model.OrderID]model.Status, len(prev))
	for _, o := range prev {
		before[o.ID] = o.Status
	}
	after := make(map[model.OrderID]model.Status, len(next))
	for _, o := range next {
		after[o.ID] = o.Status
	}

	// заказ перестал быть готовым или удалён: его уведомление больше не актуально
	for _, o := range prev {
		if o.Status != model.StatusReady || after[o.ID] == model.StatusReady {
			continue
		}
		id := o.ID
		w.dispatch(func() { w.notifier.Withdraw(id) })
	}

	for _, o := range next {
		if o.Status != model.StatusReady || before[o.ID] == model.StatusReady {
			continue
		}
		id, name := o.ID, o.StudentName
		w.dispatch(func() { w.notifier.NotifyReady(w.ctx, id, name) })
	}
}

// dispatch ставит действие в очередь; очередь разбирает одна горутина, пока есть работа
func (w *ReadyWatcher) dispatch(fn func()) {
	w.wg.Add(1)

	w.mu.Lock()
	w.pending = append(w.pending, fn)
	start := !w.running
	w.running = true
	w.mu.Unlock()

	if start {
		go w.drain()
	}
}

func (w *ReadyWatcher) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		fn := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()

		fn()
		w.wg.Done()
	}
}

// Wait дожидается отправки всех начатых уведомлений
func (w *ReadyWatcher) Wait() {
	w.wg.Wait()
}
