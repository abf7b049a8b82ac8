package model

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// OrderID — идентификатор заказа, его выдаёт хранилище
type OrderID int64

// Order представляет заказ студента в столовой
// имена json-полей совпадают с записью, которую хранит фронтенд
type Order struct {
	ID          OrderID         `json:"id"`
	StudentName string          `json:"studentName"`
	StudentID   string          `json:"studentId"`
	Items       []LineItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// LineItem — позиция заказа: ссылка на пункт меню и количество
type LineItem struct {
	ID       int `json:"id" validate:"required,gt=0"`
	Quantity int `json:"qty" validate:"required,gt=0"`
}

// OrderDraft — данные, из которых создаётся новый заказ
// сумма не сверяется с позициями, это забота вызывающей стороны
type OrderDraft struct {
	StudentName string          `json:"studentName" validate:"required"`
	StudentID   string          `json:"studentId" validate:"required"`
	Items       []LineItem      `json:"items" validate:"required,gt=0,dive"`
	Total       decimal.Decimal `json:"total" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// validator не умеет сравнивать decimal.Decimal, поэтому отдаём ему float64
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate проверяет черновик заказа на основе тегов validate
func (d *OrderDraft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s", ErrRejected, err.Error())
	}
	return nil
}

// Tag возвращает тег уведомления для заказа
func (id OrderID) Tag() string {
	return fmt.Sprintf("order-%d", id)
}

// Clone копирует заказ вместе со срезом позиций
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]LineItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// NotBefore возвращает t, но не раньше floor; часы процессов и сервера могут расходиться
func NotBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
