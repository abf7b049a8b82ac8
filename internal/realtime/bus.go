package realtime

import "sync"

// Bus — внутрипроцессный сигнал "заказы изменились" без полезной нагрузки
// слушатели вызываются синхронно и не должны блокироваться
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]func()
	next      int
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[int]func())}
}

// Subscribe добавляет слушателя и возвращает функцию отписки
func (b *Bus) Subscribe(fn func()) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish оповещает всех текущих слушателей
func (b *Bus) Publish() {
	b.mu.RLock()
	listeners := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
