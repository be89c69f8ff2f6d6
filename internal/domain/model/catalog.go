package model

import (
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
)

// CatalogItem is a purchasable course, workshop or book.
type CatalogItem struct {
	ID       string
	Kind     TargetKind
	Title    string
	Price    decimal.Decimal
	Currency string
	Active   bool
	StartsAt *time.Time // workshops: session start, shown in the confirmation email
}

func NewCatalogItem(id string, kind TargetKind, title string, price decimal.Decimal) (*CatalogItem, error) {
	if id == "" || title == "" || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if kind != TargetCourse && kind != TargetWorkshop && kind != TargetBook {
		return nil, domain.ErrInvalidArgument
	}
	return &CatalogItem{ID: id, Kind: kind, Title: title, Price: price, Currency: DefaultCurrency, Active: true}, nil
}

func (c *CatalogItem) Purchasable() bool { return c != nil && c.Active }

func (c *CatalogItem) Target() PurchaseTarget { return PurchaseTarget{Kind: c.Kind, ID: c.ID} }
