package models

import "time"

// Normalized package statuses.
const (
	TrackingStatusPending   = "PENDING"
	TrackingStatusUnknown   = "UNKNOWN"
	TrackingStatusInTransit = "IN_TRANSIT"
	TrackingStatusDelivered = "DELIVERED"
	TrackingStatusException = "EXCEPTION"
)

const CarrierFedEx = "FedEx"

type ServiceType string

const (
	ServiceGround            ServiceType = "GROUND"
	ServiceExpress           ServiceType = "EXPRESS"
	ServiceFirstOvernight    ServiceType = "FIRST_OVERNIGHT"
	ServicePriorityOvernight ServiceType = "PRIORITY_OVERNIGHT"
	ServiceStandardOvernight ServiceType = "STANDARD_OVERNIGHT"
	ServiceInternational     ServiceType = "INTERNATIONAL"
	ServiceHomeDelivery      ServiceType = "HOME_DELIVERY"
	ServiceGroundEconomy     ServiceType = "GROUND_ECONOMY"
	ServiceCustomCritical    ServiceType = "CUSTOM_CRITICAL"
	ServiceFreight           ServiceType = "FREIGHT"
	ServiceSmartPost         ServiceType = "SMART_POST"
	ServiceUnknown           ServiceType = "UNKNOWN"
)

var knownServiceTypes = map[string]ServiceType{
	string(ServiceGround):            ServiceGround,
	string(ServiceExpress):           ServiceExpress,
	string(ServiceFirstOvernight):    ServiceFirstOvernight,
	string(ServicePriorityOvernight): ServicePriorityOvernight,
	string(ServiceStandardOvernight): ServiceStandardOvernight,
	string(ServiceInternational):     ServiceInternational,
	string(ServiceHomeDelivery):      ServiceHomeDelivery,
	string(ServiceGroundEconomy):     ServiceGroundEconomy,
	string(ServiceCustomCritical):    ServiceCustomCritical,
	string(ServiceFreight):           ServiceFreight,
	string(ServiceSmartPost):         ServiceSmartPost,
}

// ParseServiceType maps a carrier service code onto the known set.
// Unrecognized codes become ServiceUnknown.
func ParseServiceType(code string) ServiceType {
	if st, ok := knownServiceTypes[code]; ok {
		return st
	}
	return ServiceUnknown
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Location struct {
	City        string       `json:"city"`
	State       string       `json:"state"`
	Country     string       `json:"country"`
	PostalCode  string       `json:"postal_code,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type PackageDetails struct {
	Weight               map[string]string     `json:"weight"`
	Dimensions           map[string]Dimensions `json:"dimensions"`
	ServiceType          string                `json:"service_type"`
	SignatureRequired    bool                  `json:"signature_required"`
	SpecialHandling      []string              `json:"special_handling"`
	DeclaredValue        float64               `json:"declared_value"`
	CustomsValue         float64               `json:"customs_value"`
	PackageCount         int                   `json:"package_count"`
	PackagingDescription string                `json:"packaging_description"`
}

// DeliveryDetails keeps carrier timestamps as opaque strings in their native format.
type DeliveryDetails struct {
	DeliveryDate              string          `json:"delivery_date,omitempty"`
	DeliveryTime              string          `json:"delivery_time,omitempty"`
	DeliveryLocation          *Location       `json:"delivery_location,omitempty"`
	DeliveryInstructions      string          `json:"delivery_instructions"`
	DeliveryAttempts          int             `json:"delivery_attempts"`
	DeliveryExceptions        []string        `json:"delivery_exceptions"`
	ActualDelivery            string          `json:"actual_delivery,omitempty"`
	EstimatedDelivery         string          `json:"estimated_delivery,omitempty"`
	ReceivedByName            string          `json:"received_by_name"`
	DeliveryOptionEligibility map[string]bool `json:"delivery_option_eligibility"`
}

type KeyDates struct {
	ActualDelivery    string `json:"actual_delivery,omitempty"`
	ActualPickup      string `json:"actual_pickup,omitempty"`
	Ship              string `json:"ship,omitempty"`
	ActualTender      string `json:"actual_tender,omitempty"`
	AnticipatedTender string `json:"anticipated_tender,omitempty"`
}

type PackageIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type CommercialInfo struct {
	TrackingNumberUniqueID string              `json:"tracking_number_unique_id"`
	PackageIdentifiers     []PackageIdentifier `json:"package_identifiers"`
	ServiceDetail          string              `json:"service_detail"`
	AvailableNotifications []string            `json:"available_notifications"`
}

// TrackingEvent is a single carrier scan.
type TrackingEvent struct {
	Status               string    `json:"status"`
	Description          string    `json:"description"`
	Timestamp            string    `json:"timestamp"`
	Location             *Location `json:"location,omitempty"`
	EventType            string    `json:"event_type"`
	EventCode            string    `json:"event_code"`
	ExceptionCode        string    `json:"exception_code"`
	ExceptionDescription string    `json:"exception_description"`
}

// TrackingInfo is the carrier-independent view of a shipment.
type TrackingInfo struct {
	TrackingNumber    string          `json:"tracking_number"`
	Status            string          `json:"status"`
	StatusCode        string          `json:"status_code,omitempty"`
	StatusDescription string          `json:"status_description,omitempty"`
	Carrier           string          `json:"carrier"`
	ServiceType       ServiceType     `json:"service_type"`
	Origin            Location        `json:"origin"`
	Destination       Location        `json:"destination"`
	PackageDetails    PackageDetails  `json:"package_details"`
	DeliveryDetails   DeliveryDetails `json:"delivery_details"`
	Events            []TrackingEvent `json:"events"`
	KeyDates          KeyDates        `json:"key_dates"`
	CommercialInfo    CommercialInfo  `json:"commercial_info"`
	TrackingURL       string          `json:"tracking_url,omitempty"`
}

// TrackingResult is what every tracking lookup returns, successful or not.
type TrackingResult struct {
	Success  bool           `json:"success"`
	Data     *TrackingInfo  `json:"data"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// FailedTracking builds the uniform failure result.
func FailedTracking(trackingNumber, msg string, now time.Time) TrackingResult {
	return TrackingResult{
		Success: false,
		Error:   msg,
		Metadata: map[string]any{
			"timestamp":       now.UTC().Format(time.RFC3339),
			"tracking_number": trackingNumber,
		},
	}
}

// TrackingRecord is the persisted snapshot of the last known tracking state.
type TrackingRecord struct {
	ID             uint64         `json:"id"`
	TrackingNumber string         `json:"tracking_number"`
	Carrier        string         `json:"carrier"`
	Status         string         `json:"status"`
	ServiceType    string         `json:"service_type"`
	ColisID        *string        `json:"colis_id,omitempty"`
	Meta           map[string]any `json:"meta_data"`
	Snapshot       *TrackingInfo  `json:"snapshot,omitempty"`
	LastCheckedAt  *time.Time     `json:"last_checked_at,omitempty"`
	NextCheckAt    time.Time      `json:"next_check_at"`
	CheckFailCount int32          `json:"check_fail_count"`
	LastError      *string        `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StoredEvent is a scan event persisted against a tracking record.
type StoredEvent struct {
	ID          uint64    `json:"id"`
	TrackingID  uint64    `json:"tracking_id"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	EventTime   time.Time `json:"event_time"`
	RawTime     string    `json:"raw_timestamp,omitempty"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Country     string    `json:"country"`
	PostalCode  string    `json:"postal_code"`
	EventCode   string    `json:"event_code"`
	CreatedAt   time.Time `json:"created_at"`
}

// LocationFilter narrows search to records having at least one event matching all set fields.
type LocationFilter struct {
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

func (f LocationFilter) Empty() bool {
	return f.City == "" && f.State == "" && f.Country == "" && f.PostalCode == ""
}

type TrackingFilter struct {
	TrackingNumber string
	Status         string
	Carrier        string
	CustomerName   string
	StartDate      *time.Time
	EndDate        *time.Time
	Location       LocationFilter
	ServiceType    string
	IsDelivered    *bool
	SortBy         string
	SortOrder      string
	Page           int
	PageSize       int
}

type TrackingStats struct {
	Total               int64            `json:"total"`
	Delivered           int64            `json:"delivered"`
	InTransit           int64            `json:"in_transit"`
	Exception           int64            `json:"exception"`
	StatusDistribution  map[string]int64 `json:"status_distribution"`
	CarrierDistribution map[string]int64 `json:"carrier_distribution"`
	DeliveryRate        float64          `json:"delivery_rate"`
}
