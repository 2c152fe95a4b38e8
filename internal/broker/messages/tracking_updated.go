package messages

import (
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
)

const TopicTrackingUpdated = "tracking.updated"

// TrackingUpdated carries one carrier check. Either Info or Error is set.
type TrackingUpdated struct {
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	CheckedAt      time.Time `json:"checked_at"`

	Info *models.TrackingInfo `json:"info,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Error *string `json:"error,omitempty"`
}

// FromResult converts a carrier lookup into an update message.
func FromResult(trackingNumber string, res models.TrackingResult, checkedAt, nextCheckAt time.Time) TrackingUpdated {
	msg := TrackingUpdated{
		TrackingNumber: trackingNumber,
		Carrier:        models.CarrierFedEx,
		CheckedAt:      checkedAt,
		NextCheckAt:    nextCheckAt,
	}
	if res.Success && res.Data != nil {
		msg.Info = res.Data
		if res.Data.Carrier != "" {
			msg.Carrier = res.Data.Carrier
		}
		return msg
	}
	e := res.Error
	if e == "" {
		e = "unknown tracking failure"
	}
	msg.Error = &e
	return msg
}
