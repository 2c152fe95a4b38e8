package fedex

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The flex types accept whatever shape FedEx sends (number, string, null) and
// fall back to the zero value instead of failing the whole decode.

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if json.Unmarshal(b, &s) == nil {
			*f = flexString(s)
		}
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		*f = ""
		return nil
	}
	*f = flexString(string(b))
	return nil
}

func (f flexString) String() string { return string(f) }

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(int(v))
		return nil
	}
	*f = 0
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}

type trackRequest struct {
	TrackingInfo         []trackingInfoItem `json:"trackingInfo"`
	IncludeDetailedScans bool               `json:"includeDetailedScans"`
}

type trackingInfoItem struct {
	TrackingNumberInfo struct {
		TrackingNumber string `json:"trackingNumber"`
	} `json:"trackingNumberInfo"`
}

type trackResponse struct {
	Output struct {
		CompleteTrackResults []struct {
			TrackingNumber flexString    `json:"trackingNumber"`
			TrackResults   []trackResult `json:"trackResults"`
		} `json:"completeTrackResults"`
	} `json:"output"`
	Errors []wireError `json:"errors"`
}

type wireError struct {
	Code    flexString `json:"code"`
	Message flexString `json:"message"`
}

type wireCoordinates struct {
	Latitude  *flexFloat `json:"latitude"`
	Longitude *flexFloat `json:"longitude"`
}

type wireAddress struct {
	City                flexString       `json:"city"`
	StateOrProvinceCode flexString       `json:"stateOrProvinceCode"`
	CountryCode         flexString       `json:"countryCode"`
	PostalCode          flexString       `json:"postalCode"`
	Latitude            *flexFloat       `json:"latitude"`
	Longitude           *flexFloat       `json:"longitude"`
	Coordinates         *wireCoordinates `json:"coordinates"`
}

type wireDateTime struct {
	Type     flexString `json:"type"`
	DateTime flexString `json:"dateTime"`
}

type wireScanEvent struct {
	Date                 flexString   `json:"date"`
	EventType            flexString   `json:"eventType"`
	EventDescription     flexString   `json:"eventDescription"`
	ExceptionCode        flexString   `json:"exceptionCode"`
	ExceptionDescription flexString   `json:"exceptionDescription"`
	ScanLocation         *wireAddress `json:"scanLocation"`
}

type trackResult struct {
	TrackingNumberInfo struct {
		TrackingNumber         flexString `json:"trackingNumber"`
		TrackingNumberUniqueID flexString `json:"trackingNumberUniqueId"`
	} `json:"trackingNumberInfo"`
	AdditionalTrackingInfo struct {
		PackageIdentifiers []struct {
			Type   flexString   `json:"type"`
			Values []flexString `json:"values"`
		} `json:"packageIdentifiers"`
	} `json:"additionalTrackingInfo"`
	LatestStatusDetail struct {
		Code           flexString `json:"code"`
		DerivedCode    flexString `json:"derivedCode"`
		StatusByLocale flexString `json:"statusByLocale"`
		Description    flexString `json:"description"`
	} `json:"latestStatusDetail"`
	ServiceDetail struct {
		Type        flexString `json:"type"`
		Description flexString `json:"description"`
	} `json:"serviceDetail"`
	ShipperInformation struct {
		Address wireAddress `json:"address"`
	} `json:"shipperInformation"`
	RecipientInformation struct {
		Address wireAddress `json:"address"`
	} `json:"recipientInformation"`
	PackageDetails struct {
		Count                flexInt `json:"count"`
		PackagingDescription struct {
			Description flexString `json:"description"`
		} `json:"packagingDescription"`
		WeightAndDimensions struct {
			Weight []struct {
				Unit  flexString `json:"unit"`
				Value flexString `json:"value"`
			} `json:"weight"`
			Dimensions []struct {
				Units  flexString `json:"units"`
				Length flexFloat  `json:"length"`
				Width  flexFloat  `json:"width"`
				Height flexFloat  `json:"height"`
			} `json:"dimensions"`
		} `json:"weightAndDimensions"`
	} `json:"packageDetails"`
	DeliveryDetails struct {
		DeliveryAttempts                 flexInt      `json:"deliveryAttempts"`
		ReceivedByName                   flexString   `json:"receivedByName"`
		ActualDeliveryAddress            *wireAddress `json:"actualDeliveryAddress"`
		DeliveryOptionEligibilityDetails []struct {
			Option      flexString `json:"option"`
			Eligibility flexString `json:"eligibility"`
		} `json:"deliveryOptionEligibilityDetails"`
	} `json:"deliveryDetails"`
	DateAndTimes              []wireDateTime `json:"dateAndTimes"`
	StandardTransitTimeWindow struct {
		Window struct {
			Ends flexString `json:"ends"`
		} `json:"window"`
	} `json:"standardTransitTimeWindow"`
	ScanEvents             []wireScanEvent `json:"scanEvents"`
	AvailableNotifications []flexString    `json:"availableNotifications"`
	Error                  *wireError      `json:"error"`
}
