package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/asquebay/canteen-orders/internal/model"
)

const ordersTable = "orders"

// OrderRepository инкапсулирует логику работы с заказами в БД
type OrderRepository struct {
	db  *pgxpool.Pool
	sq  squirrel.StatementBuilderType
	log *slog.Logger
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *pgxpool.Pool, log *slog.Logger) *OrderRepository {
	return &OrderRepository{
		db: db,
		// использую плейсхолдеры в стиле PostgreSQL ($1, $2, $3,...)
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}
}

// LoadAll извлекает все заказы из базы данных по возрастанию времени создания
func (r *OrderRepository) LoadAll(ctx context.Context) ([]model.Order, error) {
	const op = "repository.postgres.order.LoadAll"

	sql, args, err := r.sq.
		Select("id", "student_name", "student_id", "items", "total::text", "status", "created_at", "updated_at").
		From(ordersTable).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build select query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query orders: %w", op, classify(err))
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		var (
			o     model.Order
			items []byte
			total string
		)
		if err := rows.Scan(&o.ID, &o.StudentName, &o.StudentID, &items, &total, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: failed to scan order row: %w", op, classify(err))
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("%s: order %d has malformed items: %w", op, o.ID, err)
		}
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("%s: order %d has malformed total: %w", op, o.ID, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to iterate orders: %w", op, classify(err))
	}

	return orders, nil
}

// Insert сохраняет заказ; идентификатор и время создания выдаёт база
func (r *OrderRepository) Insert(ctx context.Context, order model.Order) (model.Order, error) {
	const op = "repository.postgres.order.Insert"

	items, err := json.Marshal(order.Items)
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to encode items: %w", op, err)
	}

	sql, args, err := r.sq.Insert(ordersTable).
		Columns("student_name", "student_id", "items", "total", "status").
		Values(
			order.StudentName,
			order.StudentID,
			squirrel.Expr("?::jsonb", string(items)),
			squirrel.Expr("?::numeric", order.Total.String()),
			string(order.Status),
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if err := r.db.QueryRow(ctx, sql, args...).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to insert order: %w", op, classify(err))
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	return order, nil
}

// UpdateStatus меняет статус заказа
// created_at проставляет сервер, поэтому updated_at не опускается ниже него
func (r *OrderRepository) UpdateStatus(ctx context.Context, id model.OrderID, status model.Status, updatedAt time.Time) error {
	const op = "repository.postgres.order.UpdateStatus"

	sql, args, err := r.sq.Update(ordersTable).
		Set("status", string(status)).
		Set("updated_at", squirrel.Expr("GREATEST(created_at, ?::timestamptz)", updatedAt)).
		Where(squirrel.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	return r.execOne(ctx, op, id, sql, args)
}

// Delete удаляет заказ
func (r *OrderRepository) Delete(ctx context.Context, id model.OrderID) error {
	const op = "repository.postgres.order.Delete"

	sql, args, err := r.sq.Delete(ordersTable).
		Where(squirrel.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	return r.execOne(ctx, op, id, sql, args)
}

// execOne выполняет запрос, который должен затронуть ровно одну строку
func (r *OrderRepository) execOne(ctx context.Context, op string, id model.OrderID, sql string, args []any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: order %d: %w", op, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: order %d: %w", op, id, model.ErrNotFound)
	}
	return nil
}
