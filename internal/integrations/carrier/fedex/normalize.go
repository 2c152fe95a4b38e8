package fedex

import (
	"strings"

	"github.com/BearBump/ColisTrack/internal/models"
)

const trackingURLPrefix = "https://www.fedex.com/tracking?tracknumbers="

// fedex latestStatusDetail codes folded into the coarse status set
var statusCodes = map[string]string{
	"DL": models.TrackingStatusDelivered,
	"IT": models.TrackingStatusInTransit,
	"PU": models.TrackingStatusInTransit,
	"OD": models.TrackingStatusInTransit,
	"AR": models.TrackingStatusInTransit,
	"DP": models.TrackingStatusInTransit,
	"AF": models.TrackingStatusInTransit,
	"FD": models.TrackingStatusInTransit,
	"CC": models.TrackingStatusInTransit,
	"OC": models.TrackingStatusPending,
	"IN": models.TrackingStatusPending,
	"DE": models.TrackingStatusException,
	"SE": models.TrackingStatusException,
	"CA": models.TrackingStatusException,
	"RS": models.TrackingStatusException,
	"HL": models.TrackingStatusInTransit,
}

func mapStatus(code, derived string) string {
	for _, c := range []string{strings.ToUpper(code), strings.ToUpper(derived)} {
		switch c {
		case models.TrackingStatusPending, models.TrackingStatusInTransit,
			models.TrackingStatusDelivered, models.TrackingStatusException:
			return c
		}
		if st, ok := statusCodes[c]; ok {
			return st
		}
	}
	return models.TrackingStatusUnknown
}

func normalize(tr *trackResult) models.TrackingInfo {
	number := tr.TrackingNumberInfo.TrackingNumber.String()

	info := models.TrackingInfo{
		TrackingNumber:    number,
		Status:            mapStatus(tr.LatestStatusDetail.Code.String(), tr.LatestStatusDetail.DerivedCode.String()),
		StatusCode:        tr.LatestStatusDetail.Code.String(),
		StatusDescription: tr.LatestStatusDetail.Description.String(),
		Carrier:           models.CarrierFedEx,
		ServiceType:       models.ParseServiceType(tr.ServiceDetail.Type.String()),
		Origin:            toLocation(&tr.ShipperInformation.Address),
		Destination:       toLocation(&tr.RecipientInformation.Address),
		PackageDetails:    toPackageDetails(tr),
		DeliveryDetails:   toDeliveryDetails(tr),
		Events:            toEvents(tr.ScanEvents),
		KeyDates:          toKeyDates(tr.DateAndTimes),
		CommercialInfo:    toCommercialInfo(tr),
	}
	if info.StatusCode == "" {
		info.StatusCode = models.TrackingStatusUnknown
	}
	if number != "" {
		info.TrackingURL = trackingURLPrefix + number
	}
	return info
}

func toLocation(a *wireAddress) models.Location {
	if a == nil {
		return models.Location{}
	}
	loc := models.Location{
		City:       a.City.String(),
		State:      a.StateOrProvinceCode.String(),
		Country:    a.CountryCode.String(),
		PostalCode: a.PostalCode.String(),
	}

	lat, lng := a.Latitude, a.Longitude
	if (lat == nil || lng == nil) && a.Coordinates != nil {
		lat, lng = a.Coordinates.Latitude, a.Coordinates.Longitude
	}
	if lat != nil && lng != nil {
		loc.Coordinates = &models.Coordinates{Latitude: float64(*lat), Longitude: float64(*lng)}
	}
	return loc
}

func toPackageDetails(tr *trackResult) models.PackageDetails {
	pd := tr.PackageDetails
	out := models.PackageDetails{
		Weight:               make(map[string]string, len(pd.WeightAndDimensions.Weight)),
		Dimensions:           make(map[string]models.Dimensions, len(pd.WeightAndDimensions.Dimensions)),
		ServiceType:          tr.ServiceDetail.Type.String(),
		SpecialHandling:      []string{},
		PackageCount:         int(pd.Count),
		PackagingDescription: pd.PackagingDescription.Description.String(),
	}
	if out.PackageCount == 0 {
		out.PackageCount = 1
	}
	for _, w := range pd.WeightAndDimensions.Weight {
		out.Weight[w.Unit.String()] = w.Value.String()
	}
	for _, d := range pd.WeightAndDimensions.Dimensions {
		out.Dimensions[d.Units.String()] = models.Dimensions{
			Length: float64(d.Length),
			Width:  float64(d.Width),
			Height: float64(d.Height),
		}
	}
	return out
}

func toDeliveryDetails(tr *trackResult) models.DeliveryDetails {
	dd := tr.DeliveryDetails
	eligibility := make(map[string]bool, len(dd.DeliveryOptionEligibilityDetails))
	for _, o := range dd.DeliveryOptionEligibilityDetails {
		eligibility[o.Option.String()] = o.Eligibility.String() == "ELIGIBLE"
	}

	actual := findDate(tr.DateAndTimes, "ACTUAL_DELIVERY")
	out := models.DeliveryDetails{
		DeliveryDate:              actual,
		DeliveryTime:              actual,
		DeliveryAttempts:          int(dd.DeliveryAttempts),
		DeliveryExceptions:        []string{},
		ActualDelivery:            actual,
		EstimatedDelivery:         tr.StandardTransitTimeWindow.Window.Ends.String(),
		ReceivedByName:            dd.ReceivedByName.String(),
		DeliveryOptionEligibility: eligibility,
	}
	if dd.ActualDeliveryAddress != nil {
		loc := toLocation(dd.ActualDeliveryAddress)
		out.DeliveryLocation = &loc
	}
	for _, ev := range tr.ScanEvents {
		if d := ev.ExceptionDescription.String(); d != "" {
			out.DeliveryExceptions = append(out.DeliveryExceptions, d)
		}
	}
	return out
}

func findDate(dates []wireDateTime, typ string) string {
	for _, d := range dates {
		if d.Type.String() == typ {
			return d.DateTime.String()
		}
	}
	return ""
}

func toKeyDates(dates []wireDateTime) models.KeyDates {
	var kd models.KeyDates
	for _, d := range dates {
		v := d.DateTime.String()
		switch d.Type.String() {
		case "ACTUAL_DELIVERY":
			kd.ActualDelivery = v
		case "ACTUAL_PICKUP":
			kd.ActualPickup = v
		case "SHIP":
			kd.Ship = v
		case "ACTUAL_TENDER":
			kd.ActualTender = v
		case "ANTICIPATED_TENDER":
			kd.AnticipatedTender = v
		}
	}
	return kd
}

func toEvents(scans []wireScanEvent) []models.TrackingEvent {
	out := make([]models.TrackingEvent, 0, len(scans))
	for _, ev := range scans {
		var loc *models.Location
		if ev.ScanLocation != nil {
			l := toLocation(ev.ScanLocation)
			loc = &l
		}
		out = append(out, models.TrackingEvent{
			Status:               ev.EventType.String(),
			Description:          ev.EventDescription.String(),
			Timestamp:            ev.Date.String(),
			Location:             loc,
			EventType:            ev.EventType.String(),
			EventCode:            ev.ExceptionCode.String(),
			ExceptionCode:        ev.ExceptionCode.String(),
			ExceptionDescription: ev.ExceptionDescription.String(),
		})
	}
	return out
}

func toCommercialInfo(tr *trackResult) models.CommercialInfo {
	ci := models.CommercialInfo{
		TrackingNumberUniqueID: tr.TrackingNumberInfo.TrackingNumberUniqueID.String(),
		PackageIdentifiers:     []models.PackageIdentifier{},
		ServiceDetail:          tr.ServiceDetail.Description.String(),
		AvailableNotifications: make([]string, 0, len(tr.AvailableNotifications)),
	}
	for _, pi := range tr.AdditionalTrackingInfo.PackageIdentifiers {
		for _, v := range pi.Values {
			ci.PackageIdentifiers = append(ci.PackageIdentifiers, models.PackageIdentifier{
				Type:  pi.Type.String(),
				Value: v.String(),
			})
		}
	}
	for _, n := range tr.AvailableNotifications {
		ci.AvailableNotifications = append(ci.AvailableNotifications, n.String())
	}
	return ci
}
