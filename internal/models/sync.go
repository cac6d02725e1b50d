package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState tracks backfill progress per resource so a run can resume
// from the last persisted cursor.
type SyncState struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Resource        string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"resource"`
	PageInfo        string     `gorm:"type:text" json:"page_info"` // empty = start from first page
	PageSize        int        `json:"page_size"`
	LastRunID       string     `gorm:"type:varchar(64)" json:"last_run_id"`
	LastRunAt       *time.Time `json:"last_run_at"`
	LastCompletedAt *time.Time `json:"last_completed_at"` // last time pagination reached the end
	LastStatus      string     `gorm:"type:varchar(50)" json:"last_status"`
	LastError       string     `gorm:"type:text" json:"last_error"`
	Imported        int64      `json:"imported"`
	Failed          int64      `json:"failed"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (SyncState) TableName() string { return "sync_states" }

// Sync status values
const (
	SyncStatusRunning   = "running"
	SyncStatusPartial   = "partial"
	SyncStatusCompleted = "completed"
	SyncStatusError     = "error"
)

// WebhookDelivery is the audit row written for every inbound webhook
type WebhookDelivery struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	DeliveryID string         `gorm:"type:varchar(128);index" json:"delivery_id"`
	Topic      string         `gorm:"type:varchar(100);index" json:"topic"`
	ShopDomain string         `gorm:"type:varchar(255)" json:"shop_domain"`
	State      string         `gorm:"type:varchar(20)" json:"state"`
	Action     string         `gorm:"type:varchar(50)" json:"action"`
	StatusCode int            `json:"status_code"`
	Error      string         `gorm:"type:text" json:"error"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	ReceivedAt time.Time      `gorm:"index" json:"received_at"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
