package models

import (
	"time"

	"gorm.io/gorm"
)

// Device is a registered Expo push target. A user can have several
// devices; the same token re-registered just refreshes its metadata.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	DeviceType string `gorm:"type:varchar(50)" json:"device_type"`
	DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}

// NotificationRequest represents a request to push to a single device
type NotificationRequest struct {
	Token string                 `json:"token"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// BroadcastRequest represents a request to push to many users at once
type BroadcastRequest struct {
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
	UserIDs []uint                 `json:"user_ids,omitempty"`
}

type NotificationHistory struct {
	gorm.Model
	UserID uint      `gorm:"index" json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Data   string    `gorm:"type:text" json:"data,omitempty"`
	Status string    `gorm:"type:varchar(20)" json:"status"` // sent, failed
	SentAt time.Time `json:"sent_at"`
}
