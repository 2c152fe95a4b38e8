package models

import "time"

const ColisStatusPending = "En attente"

type Colis struct {
	ID                string         `json:"id"`
	Reference         string         `json:"reference"`
	TCN               string         `json:"tcn"`
	Barcode           string         `json:"code_barre"`
	Description       string         `json:"description"`
	Status            string         `json:"status"`
	Location          *string        `json:"location,omitempty"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery,omitempty"`
	Meta              map[string]any `json:"meta_data"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Identifiers returns the four values that each resolve to this colis.
func (c *Colis) Identifiers() []string {
	return []string{c.ID, c.Reference, c.TCN, c.Barcode}
}

type ColisUpdate struct {
	Description       *string
	Status            *string
	Location          *string
	EstimatedDelivery *time.Time
	Meta              map[string]any
}

type ColisFilter struct {
	Status   string
	Location string
	Query    string
	Page     int
	PageSize int
}

type ColisStats struct {
	Total                int64            `json:"total"`
	StatusDistribution   map[string]int64 `json:"status_distribution"`
	LocationDistribution map[string]int64 `json:"location_distribution"`
}
