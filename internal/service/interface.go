package service

import (
	"context"
	"time"

	"github.com/asquebay/canteen-orders/internal/model"
)

// OrderBackend определяет контракт хранилища заказов
// реализаций две: postgres (удалённое) и local (файл bbolt), вариант выбирается один раз при старте
type OrderBackend interface {
	// LoadAll возвращает все заказы по возрастанию времени создания
	LoadAll(ctx context.Context) ([]model.Order, error)
	// Insert сохраняет новый заказ и возвращает его в том виде, в каком он записан
	Insert(ctx context.Context, order model.Order) (model.Order, error)
	UpdateStatus(ctx context.Context, id model.OrderID, status model.Status, updatedAt time.Time) error
	Delete(ctx context.Context, id model.OrderID) error
	// Subscribe вызывает onChange при любом изменении коллекции в хранилище
	Subscribe(ctx context.Context, onChange func()) (Subscription, error)
}

// Subscription — долгоживущая подписка на изменения
type Subscription interface {
	Close() error
}

// OrderCache определяет контракт канонической коллекции в памяти
// методы записи возвращают снимок до изменения
type OrderCache interface {
	Get(id model.OrderID) (model.Order, bool)
	All() []model.Order
	ByStatus(status model.Status) []model.Order
	LoadAll(orders []model.Order) []model.Order
	Set(order model.Order) []model.Order
	Update(id model.OrderID, fn func(o *model.Order)) []model.Order
	Remove(id model.OrderID) []model.Order
}

// Observer получает снимки коллекции до и после изменения
// снимки только для чтения, мутирующие методы сервиса из наблюдателя вызывать нельзя
type Observer func(prev, next []model.Order)

// NopSubscription — подписка, которой нечего закрывать
type NopSubscription struct{}

func (NopSubscription) Close() error { return nil }
