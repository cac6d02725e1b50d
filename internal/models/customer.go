package models

import (
	"time"

	"gorm.io/datatypes"
)

// Customer is the CRM identity for a salon account. ExternalID links it to
// the commerce platform; at most one row may carry a given ExternalID.
type Customer struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	ExternalID  *string `gorm:"type:varchar(64);uniqueIndex" json:"external_id"`
	Email       *string `gorm:"type:varchar(255);index" json:"email"` // lowercased, not unique
	DisplayName string  `gorm:"index" json:"display_name"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Company     *string `json:"company"`
	Phone       *string `json:"phone"`
	Address1    *string `json:"address1"`
	Address2    *string `json:"address2"`
	City        *string `json:"city"`
	Province    *string `json:"province"`
	Zip         *string `json:"zip"`
	Country     *string `json:"country"`

	// Denormalized rep assignment
	SalesRep   *string `gorm:"index" json:"sales_rep"`
	SalesRepID *uint   `json:"sales_rep_id"`

	Tags datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`

	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
