package models

import "time"

type HistoryEntry struct {
	ID             string         `json:"id"`
	UserID         int64          `json:"user_id"`
	TrackingNumber string         `json:"tracking_number"`
	Status         *string        `json:"status,omitempty"`
	Meta           map[string]any `json:"meta_data"`
	Note           *string        `json:"note,omitempty"`
	Pinned         bool           `json:"pinned"`
	CreatedAt      time.Time      `json:"created_at"`
}

type HistoryUpdate struct {
	Note   *string
	Pinned *bool
}
