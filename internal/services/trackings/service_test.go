package trackings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/integrations/carrier"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubCarrier struct {
	mu      sync.Mutex
	results map[string]models.TrackingResult
	calls   []string
}

func (c *stubCarrier) Track(ctx context.Context, n string) models.TrackingResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, n)
	if r, ok := c.results[n]; ok {
		return r
	}
	return models.FailedTracking(n, "No tracking results found", time.Now())
}

type proofCarrier struct {
	stubCarrier
	pdf []byte
}

func (c *proofCarrier) ProofOfDelivery(ctx context.Context, n string) ([]byte, error) {
	if c.pdf == nil {
		return nil, carrier.ErrProofNotFound
	}
	return c.pdf, nil
}

type fakeRepo struct {
	applied []pgstore.TrackingUpdate
	outcome pgstore.UpdateOutcome
	stats   models.TrackingStats
}

func (f *fakeRepo) ApplyTrackingUpdate(ctx context.Context, upd pgstore.TrackingUpdate) (pgstore.UpdateOutcome, error) {
	f.applied = append(f.applied, upd)
	return f.outcome, nil
}
func (f *fakeRepo) GetTrackingByNumber(ctx context.Context, n string) (*models.TrackingRecord, error) {
	return nil, nil
}
func (f *fakeRepo) SearchTrackings(ctx context.Context, flt models.TrackingFilter) ([]*models.TrackingRecord, int64, error) {
	return nil, 0, nil
}
func (f *fakeRepo) TrackingStats(ctx context.Context) (models.TrackingStats, error) {
	return f.stats, nil
}
func (f *fakeRepo) ListTrackingEvents(ctx context.Context, id uint64, limit, offset int) ([]*models.StoredEvent, error) {
	return nil, nil
}
func (f *fakeRepo) RefreshTracking(ctx context.Context, n string) (bool, error) {
	return true, nil
}

type fakeColis struct {
	byIdent map[string]*models.Colis
	created []string
	err     error
}

func (f *fakeColis) ResolveOrCreate(ctx context.Context, identifier, description string) (*models.Colis, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if c, ok := f.byIdent[identifier]; ok {
		return c, false, nil
	}
	c := &models.Colis{ID: identifier, Reference: "REF-NEW001", TCN: "TCN-20240101-100", Barcode: "CB1000000000", Description: description}
	f.created = append(f.created, description)
	return c, true, nil
}

type historyCall struct {
	userID int64
	number string
	status *string
	meta   map[string]any
}

type fakeHistory struct {
	calls []historyCall
}

func (f *fakeHistory) LogSearch(ctx context.Context, userID int64, n string, status *string, meta map[string]any) *models.HistoryEntry {
	f.calls = append(f.calls, historyCall{userID, n, status, meta})
	return &models.HistoryEntry{ID: "h1", UserID: userID, TrackingNumber: n}
}

type recordingNotifier struct {
	created []models.Notification
	err     error
}

func (r *recordingNotifier) Create(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.created = append(r.created, n)
	return &n, nil
}

func okResult(n, status string) models.TrackingResult {
	return models.TrackingResult{
		Success: true,
		Data: &models.TrackingInfo{
			TrackingNumber: n,
			Status:         status,
			Carrier:        models.CarrierFedEx,
			ServiceType:    models.ServiceGround,
			Origin:         models.Location{City: "Memphis", State: "TN", Country: "US"},
			Destination:    models.Location{City: "Paris", Country: "FR"},
			Events: []models.TrackingEvent{
				{Status: status, Description: "Picked up", Timestamp: "2024-01-01T10:00:00-06:00", Location: &models.Location{City: "Memphis", Country: "US"}},
				{Status: status, Description: "Arrived", Timestamp: "2024-01-02T08:00:00+01:00", Location: &models.Location{City: "Paris", Country: "FR"}},
			},
		},
		Metadata: map[string]any{"timestamp": "2024-01-02T09:00:00Z", "tracking_number": n},
	}
}

func TestValidateTrackingNumber(t *testing.T) {
	require.True(t, ValidateTrackingNumber("123456789012"))
	require.False(t, ValidateTrackingNumber("12345678901"))
	require.False(t, ValidateTrackingNumber("12345678901a"))
	require.False(t, ValidateTrackingNumber(""))
	require.False(t, ValidateTrackingNumber("１23456789012"))
}

func TestTrack_InvalidNumberSkipsCarrier(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{}}
	s := New(&fakeRepo{}, c, nil, 0)

	res := s.Track(context.Background(), "abc")
	require.False(t, res.Success)
	require.Equal(t, InvalidTrackingNumberMessage, res.Error)
	require.Equal(t, "abc", res.Metadata["tracking_number"])
	require.Empty(t, c.calls)
}

func TestTrack_PersistsSuccess(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{"123456789012": okResult("123456789012", models.TrackingStatusInTransit)}}
	repo := &fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1, Created: true}}
	s := New(repo, c, nil, 0)

	res := s.Track(context.Background(), "123456789012")
	require.True(t, res.Success)
	require.Len(t, repo.applied, 1)

	upd := repo.applied[0]
	require.Equal(t, models.TrackingStatusInTransit, upd.Status)
	require.Equal(t, string(models.ServiceGround), upd.ServiceType)
	require.Len(t, upd.Events, 2)
	require.Equal(t, time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC), upd.Events[0].EventTime)
	require.Equal(t, "2024-01-01T10:00:00-06:00", upd.Events[0].RawTime)
	require.NotNil(t, upd.ColisLocation)
	require.Equal(t, "Paris, FR", *upd.ColisLocation)
	require.Equal(t, "Memphis, US", upd.Meta["origin"])
}

func TestToUpdate_EventTimesIgnoreCheckTime(t *testing.T) {
	info := okResult("123456789012", models.TrackingStatusInTransit).Data
	info.Events = append(info.Events, models.TrackingEvent{Status: "IT", Description: "Sorted", Timestamp: "yesterday evening"})

	checked := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	first := toUpdate(messages.TrackingUpdated{TrackingNumber: "123456789012", CheckedAt: checked, Info: info})
	second := toUpdate(messages.TrackingUpdated{TrackingNumber: "123456789012", CheckedAt: checked.Add(2 * time.Hour), Info: info})

	require.Equal(t, first.Events, second.Events)
	require.True(t, first.Events[2].EventTime.IsZero())
	require.Equal(t, "yesterday evening", first.Events[2].RawTime)
	// the unparseable scan never counts as the latest one
	require.Equal(t, "Paris, FR", *first.ColisLocation)
}

func TestTrack_FailureNotPersisted(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{}}
	repo := &fakeRepo{}
	s := New(repo, c, nil, 0)

	res := s.Track(context.Background(), "123456789012")
	require.False(t, res.Success)
	require.Empty(t, repo.applied)
}

func TestBatchTrack_PreservesOrderAndContinues(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{
		"111111111111": okResult("111111111111", models.TrackingStatusDelivered),
		"333333333333": okResult("333333333333", models.TrackingStatusInTransit),
	}}
	s := New(&fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1}}, c, nil, 0)

	in := []string{"111111111111", "bad", "222222222222", "333333333333"}
	out := s.BatchTrack(context.Background(), in)
	require.Len(t, out, 4)
	require.True(t, out[0].Success)
	require.Equal(t, InvalidTrackingNumberMessage, out[1].Error)
	require.False(t, out[2].Success)
	require.True(t, out[3].Success)
	require.Equal(t, "333333333333", out[3].Data.TrackingNumber)
	require.Equal(t, []string{"111111111111", "222222222222", "333333333333"}, c.calls)
}

func TestTrackIdentifier_AutoCreatesAndEnrichesMetadata(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{"123456789012": okResult("123456789012", models.TrackingStatusInTransit)}}
	colis := &fakeColis{byIdent: map[string]*models.Colis{}}
	hist := &fakeHistory{}
	s := New(&fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1}}, c, nil, 0).WithColis(colis).WithHistory(hist)

	res := s.TrackIdentifier(context.Background(), "123456789012", 5)
	require.True(t, res.Success)
	require.Equal(t, "123456789012", res.Data.TrackingNumber)
	require.Equal(t, "fedex_id", res.Metadata["identifier_type"])
	require.Equal(t, "123456789012", res.Metadata["identifier"])
	require.Equal(t, "REF-NEW001", res.Metadata["reference"])
	require.Equal(t, []string{"Package with FedEx ID 123456789012"}, colis.created)

	require.Len(t, hist.calls, 1)
	require.Equal(t, int64(5), hist.calls[0].userID)
	require.Equal(t, models.TrackingStatusInTransit, *hist.calls[0].status)
	require.Equal(t, "Paris, FR", hist.calls[0].meta["recipient"])
}

func TestTrackIdentifier_ByReferenceTracksColisID(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{"123456789012": okResult("123456789012", models.TrackingStatusInTransit)}}
	colis := &fakeColis{byIdent: map[string]*models.Colis{
		"REF-ABCDEF": {ID: "123456789012", Reference: "REF-ABCDEF", TCN: "TCN-20240101-111", Barcode: "CB1111111111"},
	}}
	hist := &fakeHistory{}
	s := New(&fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1}}, c, nil, 0).WithColis(colis).WithHistory(hist)

	res := s.TrackIdentifier(context.Background(), "REF-ABCDEF", 0)
	require.True(t, res.Success)
	require.Equal(t, []string{"123456789012"}, c.calls)
	require.Equal(t, "REF-ABCDEF", res.Metadata["identifier"])
	require.Equal(t, "CB1111111111", res.Metadata["code_barre"])
	require.Empty(t, hist.calls)
}

func TestTrackIdentifier_ResolveFailure(t *testing.T) {
	c := &stubCarrier{results: map[string]models.TrackingResult{}}
	s := New(&fakeRepo{}, c, nil, 0).WithColis(&fakeColis{err: errors.New("db down")})

	res := s.TrackIdentifier(context.Background(), "REF-X", 0)
	require.False(t, res.Success)
	require.Equal(t, "Colis with identifier REF-X not found and could not be created", res.Error)
	require.Empty(t, c.calls)
}

func TestStats_DeliveryRate(t *testing.T) {
	s := New(&fakeRepo{stats: models.TrackingStats{Total: 3, Delivered: 1}}, &stubCarrier{}, nil, 0)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 33.33, st.DeliveryRate, 0.001)
	require.NotNil(t, st.StatusDistribution)

	empty := New(&fakeRepo{}, &stubCarrier{}, nil, 0)
	st, err = empty.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, st.DeliveryRate)
}

func TestApplyUpdate_NotificationFailureIsLogged(t *testing.T) {
	repo := &fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1, PreviousStatus: models.TrackingStatusPending}}
	s := New(repo, &stubCarrier{}, nil, 0).WithNotifier(&recordingNotifier{err: errors.New("insert failed")})

	err := s.ApplyUpdate(context.Background(), messages.TrackingUpdated{
		TrackingNumber: "123456789012",
		Info:           &models.TrackingInfo{Status: models.TrackingStatusInTransit},
	})
	require.NoError(t, err)
}

func TestApplyUpdate_ErrorMessageKeepsStatus(t *testing.T) {
	repo := &fakeRepo{outcome: pgstore.UpdateOutcome{TrackingID: 1, PreviousStatus: models.TrackingStatusInTransit}}
	n := &recordingNotifier{}
	s := New(repo, &stubCarrier{}, nil, 0).WithNotifier(n)

	msg := "HTTP request error while tracking package: timeout"
	require.NoError(t, s.ApplyUpdate(context.Background(), messages.TrackingUpdated{TrackingNumber: "123456789012", Error: &msg}))
	require.Len(t, repo.applied, 1)
	require.Equal(t, msg, *repo.applied[0].Error)
	require.Empty(t, repo.applied[0].Status)
	require.Empty(t, n.created)
}

func TestProofOfDelivery(t *testing.T) {
	s := New(&fakeRepo{}, &stubCarrier{}, nil, 0)
	_, err := s.ProofOfDelivery(context.Background(), "123456789012")
	require.ErrorIs(t, err, ErrProofUnsupported)

	pc := &proofCarrier{}
	s = New(&fakeRepo{}, pc, nil, 0)
	_, err = s.ProofOfDelivery(context.Background(), "123456789012")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.ProofOfDelivery(context.Background(), "bad")
	require.ErrorIs(t, err, ErrInvalidInput)

	pc.pdf = []byte("%PDF")
	b, err := s.ProofOfDelivery(context.Background(), "123456789012")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF"), b)
}
