package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const maxBatchSize = 40

var errBadRequest = errors.New("bad request")

var validate = validator.New(validator.WithRequiredStructEnabled())

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

// check runs struct validation and flattens the first failure into a 400.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return badRequest("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return badRequest("%s failed %s", fe.Field(), fe.Tag())
	}
	return errors.Wrap(errBadRequest, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return check(v)
}

type batchTrackRequest struct {
	TrackingNumbers []string `json:"tracking_numbers" validate:"required,min=1,max=40,dive,required"`
}

type createColisRequest struct {
	ID          string         `json:"id" validate:"omitempty,max=64"`
	Description string         `json:"description" validate:"required"`
	Meta        map[string]any `json:"meta_data"`
}

type updateColisRequest struct {
	Description       *string        `json:"description"`
	Status            *string        `json:"status" validate:"omitempty,min=1"`
	Location          *string        `json:"location"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery"`
	Meta              map[string]any `json:"meta_data"`
}

type updateHistoryRequest struct {
	Note   *string `json:"note"`
	Pinned *bool   `json:"pinned"`
}

type deleteHistoryRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type pageQuery struct {
	Page     int `validate:"gte=1"`
	PageSize int `validate:"gte=1,lte=100"`
}

type trackingSearchQuery struct {
	pageQuery
	SortBy    string `validate:"omitempty,oneof=created_at updated_at tracking_number status carrier service_type"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

type notificationQuery struct {
	Skip  int                     `validate:"gte=0"`
	Limit int                     `validate:"gte=1,lte=100"`
	Type  models.NotificationType `validate:"omitempty,oneof=tracking_update delivery_status system_alert custom"`
}

type paged[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int64 `json:"total_pages"`
}

func newPaged[T any](items []T, total int64, page, pageSize int) paged[T] {
	if items == nil {
		items = []T{}
	}
	var pages int64
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return paged[T]{Items: items, Total: total, Page: page, PageSize: pageSize, TotalPages: pages}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest("%s must be a boolean", name)
	}
	return &v, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, badRequest("%s must be a date or RFC 3339 timestamp", name)
}

func pageParams(r *http.Request) (pageQuery, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return pageQuery{}, err
	}
	size, err := queryInt(r, "page_size", 10)
	if err != nil {
		return pageQuery{}, err
	}
	q := pageQuery{Page: page, PageSize: size}
	return q, check(q)
}

// userID reads the caller id from X-User-ID. required=false lets anonymous calls through as 0.
func userID(r *http.Request, required bool) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if raw == "" {
		if required {
			return 0, errMissingUser
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("X-User-ID must be a positive integer")
	}
	return id, nil
}
