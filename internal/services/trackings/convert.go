package trackings

import (
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
)

// carrier timestamps come with or without an offset
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseCarrierTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func toUpdate(msg messages.TrackingUpdated) pgstore.TrackingUpdate {
	upd := pgstore.TrackingUpdate{
		TrackingNumber: msg.TrackingNumber,
		Carrier:        msg.Carrier,
		CheckedAt:      msg.CheckedAt,
		NextCheckAt:    msg.NextCheckAt,
		Error:          msg.Error,
	}
	if msg.Error != nil && *msg.Error != "" {
		return upd
	}

	info := msg.Info
	if info == nil {
		info = &models.TrackingInfo{TrackingNumber: msg.TrackingNumber, Status: models.TrackingStatusUnknown}
	}
	upd.Status = info.Status
	if upd.Status == "" {
		upd.Status = models.TrackingStatusUnknown
	}
	upd.ServiceType = string(info.ServiceType)
	upd.Snapshot = info
	upd.Meta = snapshotMeta(info)

	var latest *models.StoredEvent
	for _, e := range info.Events {
		se := models.StoredEvent{
			Status:      e.Status,
			Description: e.Description,
			RawTime:     e.Timestamp,
			EventCode:   e.EventCode,
		}
		// unparseable times stay zero; raw_timestamp keeps such events apart
		se.EventTime, _ = parseCarrierTime(e.Timestamp)
		if e.Location != nil {
			se.City = e.Location.City
			se.State = e.Location.State
			se.Country = e.Location.Country
			se.PostalCode = e.Location.PostalCode
		}
		upd.Events = append(upd.Events, se)
		if latest == nil || se.EventTime.After(latest.EventTime) {
			cp := se
			latest = &cp
		}
	}

	if latest != nil {
		if loc := joinLocation(latest.City, latest.State, latest.Country); loc != "" {
			upd.ColisLocation = &loc
		}
	}
	if t, ok := parseCarrierTime(info.DeliveryDetails.EstimatedDelivery); ok {
		upd.EstimatedDelivery = &t
	}
	return upd
}

func joinLocation(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func snapshotMeta(info *models.TrackingInfo) map[string]any {
	m := map[string]any{}
	if info.StatusDescription != "" {
		m["status_description"] = info.StatusDescription
	}
	if name := info.DeliveryDetails.ReceivedByName; name != "" {
		m["customer_name"] = name
	}
	if o := joinLocation(info.Origin.City, info.Origin.Country); o != "" {
		m["origin"] = o
	}
	if d := joinLocation(info.Destination.City, info.Destination.Country); d != "" {
		m["destination"] = d
	}
	return m
}

// historyMeta keeps the fields shown in history exports.
func historyMeta(res models.TrackingResult) map[string]any {
	m := map[string]any{}
	for _, k := range []string{"identifier", "identifier_type", "reference", "tcn", "code_barre"} {
		if v, ok := res.Metadata[k]; ok {
			m[k] = v
		}
	}
	if !res.Success || res.Data == nil {
		m["error"] = res.Error
		return m
	}
	d := res.Data
	m["service_type"] = string(d.ServiceType)
	if len(d.PackageDetails.Weight) > 0 {
		m["weight"] = d.PackageDetails.Weight
	}
	if len(d.PackageDetails.Dimensions) > 0 {
		m["dimensions"] = d.PackageDetails.Dimensions
	}
	m["sender"] = joinLocation(d.Origin.City, d.Origin.State, d.Origin.Country)
	m["recipient"] = joinLocation(d.Destination.City, d.Destination.State, d.Destination.Country)
	return m
}
