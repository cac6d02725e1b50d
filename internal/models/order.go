package models

import (
	"time"

	"gorm.io/datatypes"
)

// Order is one purchase transaction mirrored from the commerce platform.
// Every sync of the same ExternalID overwrites all fields.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ExternalID  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_id"`
	OrderNumber string `gorm:"index" json:"order_number"`
	Name        string `json:"name"`

	// Weak reference: orders may arrive before their customer is linked
	CustomerID         *uint   `gorm:"index" json:"customer_id"`
	ExternalCustomerID *string `gorm:"type:varchar(64);index" json:"external_customer_id"`
	Email              *string `json:"email"`

	Subtotal       *float64 `json:"subtotal"`
	TotalTax       *float64 `json:"total_tax"`
	TotalDiscounts *float64 `json:"total_discounts"`
	TotalShipping  *float64 `json:"total_shipping"`
	TotalPrice     *float64 `json:"total_price"`
	Currency       *string  `gorm:"type:varchar(8)" json:"currency"`

	ProcessedAt       *time.Time `gorm:"index" json:"processed_at"`
	FinancialStatus   *string    `gorm:"index" json:"financial_status"`
	FulfillmentStatus *string    `gorm:"index" json:"fulfillment_status"`

	Tags datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`

	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// OrderLineItem is one product line of an Order. The set is replaced
// wholesale on every order upsert.
type OrderLineItem struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	OrderID    uint     `gorm:"index;not null" json:"order_id"`
	ExternalID *string  `gorm:"type:varchar(64)" json:"external_id"`
	ProductID  *string  `gorm:"type:varchar(64);index" json:"product_id"`
	VariantID  *string  `gorm:"type:varchar(64);index" json:"variant_id"`
	SKU        *string  `gorm:"column:sku;index" json:"sku"`
	Title      *string  `json:"title"`
	Quantity   *int     `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price"`
	LineTotal  *float64 `json:"line_total"`
	Vendor     *string  `gorm:"index" json:"vendor"`
	UnitCost   *float64 `json:"unit_cost"`
}

func (OrderLineItem) TableName() string { return "order_line_items" }
