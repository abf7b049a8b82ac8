package cache

import (
	"sort"
	"sync"

	"github.com/asquebay/canteen-orders/internal/model"
)

// OrderCache — потокобезопасная каноническая коллекция заказов в памяти
// каждое изменение увеличивает версию, производные представления пересчитываются лениво
type OrderCache struct {
	mu      sync.RWMutex
	orders  []model.Order
	version uint64

	// представления по статусам, актуальны пока viewsAt == version
	views   map[model.Status][]model.Order
	viewsAt uint64
}

// NewOrderCache создаёт пустую коллекцию
func NewOrderCache() *OrderCache {
	return &OrderCache{}
}

// Get извлекает заказ по идентификатору
// возвращает заказ и true, если он найден, иначе — пустую структуру и false
func (c *OrderCache) Get(id model.OrderID) (model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := indexOf(c.orders, id); i >= 0 {
		return c.orders[i].Clone(), true
	}
	return model.Order{}, false
}

// All возвращает снимок всей коллекции по возрастанию времени создания
func (c *OrderCache) All() []model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := cloneOrders(c.orders)
	sortByCreated(out)
	return out
}

// ByStatus возвращает заказы с указанным статусом по возрастанию времени создания
func (c *OrderCache) ByStatus(status model.Status) []model.Order {
	c.mu.RLock()
	if c.views != nil && c.viewsAt == c.version {
		out := cloneOrders(c.views[status])
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.views == nil || c.viewsAt != c.version {
		c.rebuildViews()
	}
	return cloneOrders(c.views[status])
}

// Version возвращает номер текущей версии коллекции
func (c *OrderCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// LoadAll заменяет коллекцию целиком и возвращает предыдущий снимок
// используется при полной перезагрузке из хранилища
func (c *OrderCache) LoadAll(orders []model.Order) []model.Order {
	next := cloneOrders(orders)
	sortByCreated(next)
	return c.swap(func([]model.Order) []model.Order { return next })
}

// Set добавляет заказ или заменяет существующий с тем же идентификатором
func (c *OrderCache) Set(order model.Order) []model.Order {
	return c.swap(func(cur []model.Order) []model.Order {
		if i := indexOf(cur, order.ID); i >= 0 {
			cur[i] = order.Clone()
			return cur
		}
		return append(cur, order.Clone())
	})
}

// Update применяет fn к заказу с указанным идентификатором, если он есть в коллекции
func (c *OrderCache) Update(id model.OrderID, fn func(o *model.Order)) []model.Order {
	return c.swap(func(cur []model.Order) []model.Order {
		if i := indexOf(cur, id); i >= 0 {
			fn(&cur[i])
		}
		return cur
	})
}

// Remove удаляет заказ из коллекции
func (c *OrderCache) Remove(id model.OrderID) []model.Order {
	return c.swap(func(cur []model.Order) []model.Order {
		if i := indexOf(cur, id); i >= 0 {
			return append(cur[:i], cur[i+1:]...)
		}
		return cur
	})
}

// swap — единственная критическая секция записи
// fn получает копию, поэтому ранее выданные снимки не меняются
func (c *OrderCache) swap(fn func(cur []model.Order) []model.Order) []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.orders
	c.orders = fn(cloneOrders(prev))
	c.version++
	return prev
}

func (c *OrderCache) rebuildViews() {
	views := make(map[model.Status][]model.Order)
	for _, o := range c.orders {
		views[o.Status] = append(views[o.Status], o)
	}
	for _, v := range views {
		sortByCreated(v)
	}
	c.views = views
	c.viewsAt = c.version
}

func indexOf(orders []model.Order, id model.OrderID) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneOrders(orders []model.Order) []model.Order {
	out := make([]model.Order, len(orders))
	for i := range orders {
		out[i] = orders[i].Clone()
	}
	return out
}

func sortByCreated(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
