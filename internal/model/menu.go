package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MenuItem — позиция статического меню, не меняется за время жизни процесса
type MenuItem struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

var menu = []MenuItem{
	{ID: 1, Name: "Burger", Price: decimal.NewFromInt(50), Category: "Fast Food"},
	{ID: 2, Name: "Pizza", Price: decimal.NewFromInt(120), Category: "Fast Food"},
	{ID: 3, Name: "Pasta", Price: decimal.NewFromInt(80), Category: "Italian"},
	{ID: 4, Name: "Sandwich", Price: decimal.NewFromInt(40), Category: "Fast Food"},
	{ID: 5, Name: "Rice Bowl", Price: decimal.NewFromInt(60), Category: "Main Course"},
	{ID: 6, Name: "Salad", Price: decimal.NewFromInt(45), Category: "Healthy"},
	{ID: 7, Name: "Coffee", Price: decimal.NewFromInt(30), Category: "Beverages"},
	{ID: 8, Name: "Tea", Price: decimal.NewFromInt(20), Category: "Beverages"},
}

// Menu возвращает копию каталога в исходном порядке
func Menu() []MenuItem {
	out := make([]MenuItem, len(menu))
	copy(out, menu)
	return out
}

// MenuItemByID ищет позицию меню по идентификатору
func MenuItemByID(id int) (MenuItem, bool) {
	for _, item := range menu {
		if item.ID == id {
			return item, true
		}
	}
	return MenuItem{}, false
}

// PriceItems считает сумму заказа по ценам каталога
func PriceItems(items []LineItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, li := range items {
		item, ok := MenuItemByID(li.ID)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: unknown menu item %d", ErrRejected, li.ID)
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return total, nil
}
