package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one product entry of the guest cart as it is persisted.
// Field names are part of the stored format and must not change.
type LineItem struct {
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName"`
	Price       float64   `json:"price"`
	Discount    float64   `json:"discount"`
	ImageURL    string    `json:"imageUrl"`
	Quantity    int       `json:"quantity"`
	AddedAt     time.Time `json:"addedAt"`
}

// NewItem carries the arguments of an add-to-cart action.
type NewItem struct {
	ProductID   int64
	ProductName string
	Price       float64
	Discount    float64
	ImageURL    string
	// Quantity <= 0 means one unit.
	Quantity int
}

// ServerItem is the projection sent to the cart sync endpoint.
type ServerItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var hundred = decimal.NewFromInt(100)

// EffectivePrice is the unit price after the percentage discount.
func (i LineItem) EffectivePrice() decimal.Decimal {
	price := decimal.NewFromFloat(i.Price)
	if i.Discount <= 0 {
		return price
	}
	if i.Discount >= 100 {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(i.Discount).Div(hundred))
	return price.Mul(factor)
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.EffectivePrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i LineItem) ToServerItem() ServerItem {
	return ServerItem{ProductID: i.ProductID, Quantity: i.Quantity}
}
