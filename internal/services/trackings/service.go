package trackings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/cache"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
	"github.com/pkg/errors"
)

const InvalidTrackingNumberMessage = "Invalid tracking number format. FedEx tracking numbers must be 12 digits."

var (
	ErrNotFound         = errors.New("tracking not found")
	ErrInvalidInput     = errors.New("invalid tracking input")
	ErrProofUnsupported = errors.New("carrier does not provide proof of delivery")
)

// SortColumns lists the columns search results can be ordered by.
var SortColumns = []string{"created_at", "updated_at", "tracking_number", "status", "carrier", "service_type"}

type Repository interface {
	ApplyTrackingUpdate(ctx context.Context, upd pgstore.TrackingUpdate) (pgstore.UpdateOutcome, error)
	GetTrackingByNumber(ctx context.Context, trackingNumber string) (*models.TrackingRecord, error)
	SearchTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, int64, error)
	TrackingStats(ctx context.Context) (models.TrackingStats, error)
	ListTrackingEvents(ctx context.Context, trackingID uint64, limit, offset int) ([]*models.StoredEvent, error)
	RefreshTracking(ctx context.Context, trackingNumber string) (bool, error)
}

type ColisResolver interface {
	ResolveOrCreate(ctx context.Context, identifier, description string) (*models.Colis, bool, error)
}

type HistoryLogger interface {
	LogSearch(ctx context.Context, userID int64, trackingNumber string, status *string, meta map[string]any) *models.HistoryEntry
}

type Notifier interface {
	Create(ctx context.Context, n models.Notification) (*models.Notification, error)
}

type Scheduler interface {
	NextCheckDelay(status string) time.Duration
}

type Service struct {
	repo       Repository
	carrier    carrier.Client
	cache      cache.BytesCache
	currentTTL time.Duration

	colis     ColisResolver
	history   HistoryLogger
	notifier  Notifier
	scheduler Scheduler

	now func() time.Time
}

func New(repo Repository, c carrier.Client, bc cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, carrier: c, cache: bc, currentTTL: currentTTL, now: time.Now}
}

func (s *Service) WithColis(r ColisResolver) *Service {
	s.colis = r
	return s
}

func (s *Service) WithHistory(h HistoryLogger) *Service {
	s.history = h
	return s
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithScheduler(sc Scheduler) *Service {
	s.scheduler = sc
	return s
}

// ValidateTrackingNumber reports whether n looks like a FedEx tracking number.
func ValidateTrackingNumber(n string) bool {
	if len(n) != 12 {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Track looks up one tracking number and persists a successful result.
func (s *Service) Track(ctx context.Context, trackingNumber string) models.TrackingResult {
	if !ValidateTrackingNumber(trackingNumber) {
		return models.FailedTracking(trackingNumber, InvalidTrackingNumberMessage, s.now())
	}
	return s.trackAndStore(ctx, trackingNumber)
}

func (s *Service) trackAndStore(ctx context.Context, trackingNumber string) models.TrackingResult {
	res := s.carrier.Track(ctx, trackingNumber)
	if !res.Success || res.Data == nil {
		slog.Warn("tracking lookup failed", "tracking_number", trackingNumber, "error", res.Error)
		return res
	}

	now := s.now().UTC()
	msg := messages.FromResult(trackingNumber, res, now, now.Add(s.nextCheckDelay(res.Data.Status)))
	if err := s.ApplyUpdate(ctx, msg); err != nil {
		slog.Error("store tracking snapshot", "tracking_number", trackingNumber, "error", err.Error())
	}
	return res
}

// TrackIdentifier resolves identifier to a colis, creating one keyed by
// identifier when unknown, and tracks the colis id.
func (s *Service) TrackIdentifier(ctx context.Context, identifier string, userID int64) models.TrackingResult {
	identifier = strings.TrimSpace(identifier)
	now := s.now()

	trackingNumber := identifier
	var c *models.Colis
	if s.colis != nil {
		var err error
		c, _, err = s.colis.ResolveOrCreate(ctx, identifier, "Package with FedEx ID "+identifier)
		if err != nil {
			res := models.FailedTracking(identifier, fmt.Sprintf("Colis with identifier %s not found and could not be created", identifier), now)
			res.Metadata["identifier"] = identifier
			slog.Error("resolve colis", "identifier", identifier, "error", err.Error())
			return res
		}
		trackingNumber = c.ID
	}

	res := s.trackAndStore(ctx, trackingNumber)
	if res.Metadata == nil {
		res.Metadata = map[string]any{"timestamp": now.UTC().Format(time.RFC3339)}
	}
	res.Metadata["identifier"] = identifier
	res.Metadata["identifier_type"] = "fedex_id"
	if c != nil {
		res.Metadata["reference"] = c.Reference
		res.Metadata["tcn"] = c.TCN
		res.Metadata["code_barre"] = c.Barcode
	}

	if userID != 0 && s.history != nil {
		var status *string
		if res.Success && res.Data != nil {
			st := res.Data.Status
			status = &st
		}
		s.history.LogSearch(ctx, userID, trackingNumber, status, historyMeta(res))
	}
	return res
}

// BatchTrack tracks every number in order. Failures stay in their slot.
func (s *Service) BatchTrack(ctx context.Context, numbers []string) []models.TrackingResult {
	out := make([]models.TrackingResult, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, s.Track(ctx, n))
	}
	return out
}

func (s *Service) Search(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, int64, error) {
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if !validSortColumn(f.SortBy) {
		return nil, 0, errors.Wrapf(ErrInvalidInput, "sort_by must be one of %s", strings.Join(SortColumns, ", "))
	}
	switch strings.ToLower(f.SortOrder) {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
		f.SortOrder = strings.ToLower(f.SortOrder)
	default:
		return nil, 0, errors.Wrap(ErrInvalidInput, "sort_order must be asc or desc")
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, 0, errors.Wrap(ErrInvalidInput, "end_date is before start_date")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	return s.repo.SearchTrackings(ctx, f)
}

func validSortColumn(c string) bool {
	for _, v := range SortColumns {
		if v == c {
			return true
		}
	}
	return false
}

func (s *Service) Stats(ctx context.Context) (models.TrackingStats, error) {
	st, err := s.repo.TrackingStats(ctx)
	if err != nil {
		return st, err
	}
	if st.StatusDistribution == nil {
		st.StatusDistribution = map[string]int64{}
	}
	if st.CarrierDistribution == nil {
		st.CarrierDistribution = map[string]int64{}
	}
	st.DeliveryRate = deliveryRate(st.Delivered, st.Total)
	return st, nil
}

// deliveryRate is a percentage rounded to two decimals.
func deliveryRate(delivered, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(delivered)/float64(total)*10000) / 100
}

// GetCurrent returns the stored snapshot of a tracking number, read through the cache.
func (s *Service) GetCurrent(ctx context.Context, trackingNumber string) (*models.TrackingRecord, error) {
	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, currentKey(trackingNumber))
		if err != nil {
			slog.Warn("current tracking cache get", "tracking_number", trackingNumber, "error", err.Error())
		}
		if ok {
			var rec models.TrackingRecord
			if json.Unmarshal(b, &rec) == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.repo.GetTrackingByNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.Wrapf(ErrNotFound, "tracking number %q", trackingNumber)
	}
	s.storeCurrent(ctx, rec)
	return rec, nil
}

func (s *Service) ListEvents(ctx context.Context, trackingNumber string, limit, offset int) ([]*models.StoredEvent, error) {
	rec, err := s.repo.GetTrackingByNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.Wrapf(ErrNotFound, "tracking number %q", trackingNumber)
	}
	return s.repo.ListTrackingEvents(ctx, rec.ID, limit, offset)
}

// RefreshTracking schedules the tracking number for the next worker cycle.
func (s *Service) RefreshTracking(ctx context.Context, trackingNumber string) error {
	ok, err := s.repo.RefreshTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "tracking number %q", trackingNumber)
	}
	return nil
}

func (s *Service) ProofOfDelivery(ctx context.Context, trackingNumber string) ([]byte, error) {
	if !ValidateTrackingNumber(trackingNumber) {
		return nil, errors.Wrap(ErrInvalidInput, InvalidTrackingNumberMessage)
	}
	pp, ok := s.carrier.(carrier.ProofProvider)
	if !ok {
		return nil, ErrProofUnsupported
	}
	b, err := pp.ProofOfDelivery(ctx, trackingNumber)
	if errors.Is(err, carrier.ErrProofNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "proof of delivery for %q", trackingNumber)
	}
	return b, err
}

// ApplyUpdate persists one carrier check, refreshes the current-state cache
// and raises a notification when the status changed.
func (s *Service) ApplyUpdate(ctx context.Context, msg messages.TrackingUpdated) error {
	if msg.TrackingNumber == "" {
		return errors.Wrap(ErrInvalidInput, "tracking_number is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = s.now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	upd := toUpdate(msg)
	out, err := s.repo.ApplyTrackingUpdate(ctx, upd)
	if err != nil {
		return err
	}
	if out.TrackingID == 0 {
		// failure for a number never stored
		return nil
	}

	if msg.Error == nil && out.PreviousStatus != "" && out.PreviousStatus != upd.Status {
		s.notifyStatusChange(ctx, msg.TrackingNumber, out.PreviousStatus, upd.Status)
	}

	if s.cacheEnabled() {
		rec, err := s.repo.GetTrackingByNumber(ctx, msg.TrackingNumber)
		if err == nil && rec != nil {
			s.storeCurrent(ctx, rec)
		}
	}
	return nil
}

func (s *Service) notifyStatusChange(ctx context.Context, trackingNumber, from, to string) {
	if s.notifier == nil {
		return
	}
	n := models.Notification{
		Type:           models.NotificationTrackingUpdate,
		Priority:       models.PriorityMedium,
		Title:          fmt.Sprintf("Package %s status update", trackingNumber),
		Message:        fmt.Sprintf("Status changed from %s to %s", from, to),
		TrackingNumber: &trackingNumber,
		Meta:           map[string]any{"previous_status": from, "status": to},
	}
	if to == models.TrackingStatusDelivered {
		n.Type = models.NotificationDeliveryStatus
		n.Priority = models.PriorityHigh
		n.Title = fmt.Sprintf("Package %s delivered", trackingNumber)
	}
	if to == models.TrackingStatusException {
		n.Priority = models.PriorityHigh
	}
	if _, err := s.notifier.Create(ctx, n); err != nil {
		slog.Error("create status notification", "tracking_number", trackingNumber, "error", err.Error())
	}
}

func (s *Service) nextCheckDelay(status string) time.Duration {
	if s.scheduler != nil {
		return s.scheduler.NextCheckDelay(status)
	}
	if status == models.TrackingStatusDelivered {
		return 365 * 24 * time.Hour
	}
	return time.Hour
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) storeCurrent(ctx context.Context, rec *models.TrackingRecord) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, currentKey(rec.TrackingNumber), b, s.currentTTL); err != nil {
		slog.Warn("current tracking cache set", "tracking_number", rec.TrackingNumber, "error", err.Error())
	}
}

func currentKey(trackingNumber string) string {
	return "tracking:" + trackingNumber + ":current"
}
