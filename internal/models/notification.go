package models

import "time"

type NotificationType string

const (
	NotificationTrackingUpdate NotificationType = "tracking_update"
	NotificationDeliveryStatus NotificationType = "delivery_status"
	NotificationSystemAlert    NotificationType = "system_alert"
	NotificationCustom         NotificationType = "custom"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

type Notification struct {
	ID             string               `json:"id"`
	Type           NotificationType     `json:"type"`
	Priority       NotificationPriority `json:"priority"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	TrackingNumber *string              `json:"tracking_number,omitempty"`
	IsRead         bool                 `json:"is_read"`
	ReadAt         *time.Time           `json:"read_at,omitempty"`
	Meta           map[string]any       `json:"meta_data"`
	CreatedAt      time.Time            `json:"created_at"`
}

type NotificationFilter struct {
	Skip       int
	Limit      int
	UnreadOnly bool
	Type       NotificationType
}
