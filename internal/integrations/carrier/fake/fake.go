package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
)

var cities = []models.Location{
	{City: "MEMPHIS", State: "TN", Country: "US", PostalCode: "38118"},
	{City: "INDIANAPOLIS", State: "IN", Country: "US", PostalCode: "46241"},
	{City: "PARIS", State: "", Country: "FR", PostalCode: "75001"},
	{City: "CASABLANCA", State: "", Country: "MA", PostalCode: "20000"},
}

// scan times hang off this date so repeated lookups report identical events
var scanEpoch = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

// FakeClient is an offline carrier used when no FedEx credentials are configured.
// The outcome is deterministic per tracking number: roughly one in five is delivered.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

func (f *FakeClient) Track(ctx context.Context, trackingNumber string) models.TrackingResult {
	now := f.now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	status := models.TrackingStatusInTransit
	if v%5 == 0 {
		status = models.TrackingStatusDelivered
	}

	origin := cities[v%uint32(len(cities))]
	dest := cities[(v/7)%uint32(len(cities))]
	pickup := scanEpoch.Add(time.Duration(v%(300*24)) * time.Hour)
	shipped := pickup.Format(time.RFC3339)

	events := []models.TrackingEvent{
		{Status: "PU", EventType: "PU", Description: "Picked up", Timestamp: shipped, Location: &origin},
	}
	keyDates := models.KeyDates{Ship: shipped, ActualPickup: shipped}
	delivery := models.DeliveryDetails{
		EstimatedDelivery:         pickup.Add(72 * time.Hour).Format(time.RFC3339),
		DeliveryOptionEligibility: map[string]bool{},
	}
	if status == models.TrackingStatusDelivered {
		at := pickup.Add(48 * time.Hour).Format(time.RFC3339)
		events = append(events, models.TrackingEvent{Status: "DL", EventType: "DL", Description: "Delivered", Timestamp: at, Location: &dest})
		keyDates.ActualDelivery = at
		delivery.ActualDelivery = at
		delivery.DeliveryDate = at
		delivery.DeliveryAttempts = 1
	} else {
		events = append(events, models.TrackingEvent{Status: "IT", EventType: "IT", Description: "In transit", Timestamp: pickup.Add(24 * time.Hour).Format(time.RFC3339), Location: &origin})
	}

	return models.TrackingResult{
		Success: true,
		Data: &models.TrackingInfo{
			TrackingNumber:  trackingNumber,
			Status:          status,
			Carrier:         models.CarrierFedEx,
			ServiceType:     models.ServiceGround,
			Origin:          origin,
			Destination:     dest,
			PackageDetails:  models.PackageDetails{Weight: map[string]string{"KG": "1.0"}, Dimensions: map[string]models.Dimensions{}, PackageCount: 1},
			DeliveryDetails: delivery,
			Events:          events,
			KeyDates:        keyDates,
			CommercialInfo:  models.CommercialInfo{TrackingNumberUniqueID: fmt.Sprintf("fake~%s", trackingNumber)},
			TrackingURL:     "https://www.fedex.com/tracking?tracknumbers=" + trackingNumber,
		},
		Metadata: map[string]any{
			"timestamp":       now.Format(time.RFC3339),
			"tracking_number": trackingNumber,
		},
	}
}
