package models

import "time"

// SalesRep is the canonical internal representative identity
type SalesRep struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (SalesRep) TableName() string { return "sales_reps" }

// SalesRepAlias maps a normalized free-text spelling to a SalesRep
type SalesRepAlias struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Alias      string    `gorm:"uniqueIndex;not null" json:"alias"`
	SalesRepID uint      `gorm:"index;not null" json:"sales_rep_id"`
	SalesRep   *SalesRep `gorm:"foreignKey:SalesRepID" json:"sales_rep,omitempty"`
}

func (SalesRepAlias) TableName() string { return "sales_rep_aliases" }

// SalesRepTagRule assigns a rep to customers carrying Tag. When several
// rules match, the oldest (CreatedAt, then ID) wins.
type SalesRepTagRule struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Tag        string    `gorm:"index;not null" json:"tag"` // stored lowercased
	SalesRepID uint      `gorm:"index;not null" json:"sales_rep_id"`
	SalesRep   *SalesRep `gorm:"foreignKey:SalesRepID" json:"sales_rep,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (SalesRepTagRule) TableName() string { return "sales_rep_tag_rules" }
