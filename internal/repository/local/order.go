package local

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/asquebay/canteen-orders/internal/model"
	"github.com/asquebay/canteen-orders/internal/service"
)

const (
	// DefaultKey — фиксированный ключ, под которым лежит весь список заказов
	DefaultKey = "canteenOrders"

	defaultLockTimeout = 2 * time.Second
)

var bucketName = []byte("canteen")

// OrderRepository — локальное хранилище заказов в файле bbolt
// файл открывается на время одной операции, поэтому его могут делить несколько процессов
type OrderRepository struct {
	path        string
	key         []byte
	revKey      []byte
	lockTimeout time.Duration

	mu sync.Mutex
	// последняя ревизия, которую этот процесс записал подряд или прочитал целиком
	knownRev uint64
}

// NewOrderRepository создает новый экземпляр локального хранилища
func NewOrderRepository(path, key string, lockTimeout time.Duration) (*OrderRepository, error) {
	const op = "repository.local.NewOrderRepository"

	if key == "" {
		key = DefaultKey
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create storage dir: %w", op, err)
	}

	return &OrderRepository{
		path:        path,
		key:         []byte(key),
		revKey:      []byte(key + ":rev"),
		lockTimeout: lockTimeout,
	}, nil
}

// Path возвращает путь к файлу хранилища
func (r *OrderRepository) Path() string {
	return r.path
}

// LoadAll читает весь список заказов
func (r *OrderRepository) LoadAll(ctx context.Context) ([]model.Order, error) {
	const op = "repository.local.order.LoadAll"

	var (
		orders []model.Order
		rev    uint64
	)
	err := r.view(ctx, func(get getter) error {
		var err error
		orders, err = decodeOrders(get(r.key))
		rev = decodeRev(get(r.revKey))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	if rev > r.knownRev {
		r.knownRev = rev
	}
	r.mu.Unlock()

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

// Insert добавляет заказ, идентификатор берётся из последовательности бакета
func (r *OrderRepository) Insert(ctx context.Context, order model.Order) (model.Order, error) {
	const op = "repository.local.order.Insert"

	err := r.update(ctx, func(b *bolt.Bucket, orders []model.Order) ([]model.Order, error) {
		seq, err := b.NextSequence()
		if err != nil {
			return nil, err
		}
		order.ID = model.OrderID(seq)
		return append(orders, order), nil
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// UpdateStatus меняет статус и время обновления заказа
func (r *OrderRepository) UpdateStatus(ctx context.Context, id model.OrderID, status model.Status, updatedAt time.Time) error {
	const op = "repository.local.order.UpdateStatus"

	err := r.update(ctx, func(_ *bolt.Bucket, orders []model.Order) ([]model.Order, error) {
		for i := range orders {
			if orders[i].ID == id {
				orders[i].Status = status
				orders[i].UpdatedAt = model.NotBefore(updatedAt, orders[i].CreatedAt)
				return orders, nil
			}
		}
		return nil, model.ErrNotFound
	})
	if err != nil {
		return fmt.Errorf("%s: order %d: %w", op, id, err)
	}
	return nil
}

// Delete удаляет заказ
func (r *OrderRepository) Delete(ctx context.Context, id model.OrderID) error {
	const op = "repository.local.order.Delete"

	err := r.update(ctx, func(_ *bolt.Bucket, orders []model.Order) ([]model.Order, error) {
		for i := range orders {
			if orders[i].ID == id {
				return append(orders[:i], orders[i+1:]...), nil
			}
		}
		return nil, model.ErrNotFound
	})
	if err != nil {
		return fmt.Errorf("%s: order %d: %w", op, id, err)
	}
	return nil
}

// Subscribe ничего не делает: у локального файла нет push-уведомлений,
// изменения из других процессов ловит Watcher
func (r *OrderRepository) Subscribe(ctx context.Context, onChange func()) (service.Subscription, error) {
	return service.NopSubscription{}, nil
}

// foreignWrite сообщает, менял ли файл кто-то кроме этого процесса с момента последнего чтения
func (r *OrderRepository) foreignWrite(ctx context.Context) (bool, error) {
	var rev uint64
	err := r.view(ctx, func(get getter) error {
		rev = decodeRev(get(r.revKey))
		return nil
	})
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return rev != r.knownRev, nil
}

// update выполняет read-modify-write списка в одной транзакции и поднимает ревизию
func (r *OrderRepository) update(ctx context.Context, fn func(b *bolt.Bucket, orders []model.Order) ([]model.Order, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	db, err := r.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	var rev uint64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		orders, err := decodeOrders(b.Get(r.key))
		if err != nil {
			return err
		}
		next, err := fn(b, orders)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrRejected, err)
		}
		if err := b.Put(r.key, raw); err != nil {
			return err
		}
		rev = decodeRev(b.Get(r.revKey)) + 1
		return b.Put(r.revKey, encodeRev(rev))
	})
	if err != nil {
		return classify(err)
	}

	// собственная запись сразу за известной ревизией не требует перечитывания;
	// если между ними вклинился другой процесс, knownRev не двигаем и Watcher это заметит
	r.mu.Lock()
	if rev == r.knownRev+1 {
		r.knownRev = rev
	}
	r.mu.Unlock()
	return nil
}

// getter читает значение по ключу внутри транзакции чтения
type getter func(key []byte) []byte

func noValues([]byte) []byte { return nil }

func (r *OrderRepository) view(ctx context.Context, fn func(get getter) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		// файла ещё нет — значит и заказов нет
		return fn(noValues)
	}

	db, err := r.open(true)
	if err != nil {
		return err
	}
	defer db.Close()

	return classify(db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return fn(noValues)
		}
		return fn(b.Get)
	}))
}

func (r *OrderRepository) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(r.path, 0o600, &bolt.Options{Timeout: r.lockTimeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrTransport, r.path, err)
	}
	return db, nil
}

func decodeOrders(raw []byte) ([]model.Order, error) {
	if len(raw) == 0 {
		return []model.Order{}, nil
	}
	var orders []model.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("%w: corrupted order list: %w", model.ErrRejected, err)
	}
	return orders, nil
}

func decodeRev(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func encodeRev(rev uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rev)
	return buf
}

// classify оставляет доменные ошибки как есть, остальное считает недоступностью хранилища
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrRejected), errors.Is(err, model.ErrTransport):
		return err
	default:
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
}
