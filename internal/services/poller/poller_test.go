package poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	topic    string
	key      []byte
	value    []byte
	calls    int
	failures int
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.topic, p.key, p.value = topic, key, value
	return nil
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
	keys    []string
	limits  []int64
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.keys = append(r.keys, key)
	r.limits = append(r.limits, limit)
	return r.allowed, r.count, r.err
}

type fakeCarrier struct {
	res models.TrackingResult
}

func (c fakeCarrier) Track(ctx context.Context, n string) models.TrackingResult {
	return c.res
}

type countingCarrier struct {
	calls int
}

func (c *countingCarrier) Track(ctx context.Context, n string) models.TrackingResult {
	c.calls++
	return models.FailedTracking(n, "x", time.Now())
}

func decode(t *testing.T, b []byte) messages.TrackingUpdated {
	t.Helper()
	var msg messages.TrackingUpdated
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestPoller_processOne_okPublishes(t *testing.T) {
	fp := &fakeProducer{}
	rl := &fakeRL{allowed: true}
	p := New(nil, fakeCarrier{res: models.TrackingResult{
		Success: true,
		Data:    &models.TrackingInfo{TrackingNumber: "123456789012", Status: models.TrackingStatusDelivered, Carrier: models.CarrierFedEx},
	}}, fp, rl, messages.TopicTrackingUpdated)

	tr := &models.TrackingRecord{ID: 42, Carrier: models.CarrierFedEx, TrackingNumber: "123456789012"}
	before := time.Now().UTC()
	require.NoError(t, p.processOne(context.Background(), tr))
	require.Equal(t, 1, fp.calls)
	require.Equal(t, "tracking.updated", fp.topic)
	require.Equal(t, []byte("123456789012"), fp.key)

	msg := decode(t, fp.value)
	require.Nil(t, msg.Error)
	require.Equal(t, models.TrackingStatusDelivered, msg.Info.Status)
	require.WithinDuration(t, before.Add(365*24*time.Hour), msg.NextCheckAt, time.Minute)
	require.Equal(t, []int64{120}, rl.limits)
}

func TestPoller_processOne_errorBackoff(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, fakeCarrier{res: models.FailedTracking("123456789012", "HTTP request error while tracking package: boom", time.Now())},
		fp, nil, messages.TopicTrackingUpdated)
	tr := &models.TrackingRecord{ID: 1, Carrier: models.CarrierFedEx, TrackingNumber: "123456789012", CheckFailCount: 2}

	before := time.Now().UTC()
	require.NoError(t, p.processOne(context.Background(), tr))
	require.Equal(t, 1, fp.calls)

	msg := decode(t, fp.value)
	require.NotNil(t, msg.Error)
	require.Nil(t, msg.Info)
	require.WithinDuration(t, before.Add(30*time.Minute), msg.NextCheckAt, time.Minute)
}

func TestPoller_processOne_retriesPublish(t *testing.T) {
	fp := &fakeProducer{failures: 2}
	p := New(nil, fakeCarrier{res: models.FailedTracking("n", "x", time.Now())}, fp, nil, "t")
	p.publishBackoff = time.Millisecond

	require.NoError(t, p.processOne(context.Background(), &models.TrackingRecord{TrackingNumber: "n"}))
	require.Equal(t, 3, fp.calls)

	fp = &fakeProducer{failures: 100}
	p = New(nil, fakeCarrier{res: models.FailedTracking("n", "x", time.Now())}, fp, nil, "t")
	p.publishBackoff = time.Millisecond
	p.publishAttempts = 3
	require.Error(t, p.processOne(context.Background(), &models.TrackingRecord{TrackingNumber: "n"}))
	require.Equal(t, 3, fp.calls)
}

func TestPoller_carrierRateLimitOverride(t *testing.T) {
	rl := &fakeRL{allowed: true}
	p := New(nil, fakeCarrier{res: models.FailedTracking("n", "x", time.Now())}, &fakeProducer{}, rl, "t").
		WithCarrierRateLimit(models.CarrierFedEx, 7)

	require.NoError(t, p.processOne(context.Background(), &models.TrackingRecord{Carrier: models.CarrierFedEx, TrackingNumber: "n"}))
	require.Equal(t, []int64{7}, rl.limits)
	require.Equal(t, []string{"carrier:FedEx"}, rl.keys)
}

func TestPoller_rateLimitDefersLookup(t *testing.T) {
	c := &countingCarrier{}
	fp := &fakeProducer{}
	rl := &fakeRL{allowed: false, count: 121}
	p := New(nil, c, fp, rl, "t")

	tr := &models.TrackingRecord{Carrier: models.CarrierFedEx, TrackingNumber: "123456789012"}
	require.NoError(t, p.processOne(context.Background(), tr))
	require.Zero(t, c.calls)
	require.Zero(t, fp.calls)
	require.EqualValues(t, 1, p.Stats().TotalThrottled)

	rl.allowed = true
	require.NoError(t, p.processOne(context.Background(), tr))
	require.Equal(t, 1, c.calls)
	require.Equal(t, 1, fp.calls)
	require.EqualValues(t, 1, p.Stats().TotalThrottled)
}

func TestPoller_rateLimiterError(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, fakeCarrier{}, fp, &fakeRL{err: errors.New("redis down")}, "t")
	require.Error(t, p.processOne(context.Background(), &models.TrackingRecord{TrackingNumber: "n"}))
	require.Zero(t, fp.calls)
}

func TestPoller_WithSettings(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, fakeCarrier{}, fp, nil, "t").
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 13)
	require.Equal(t, 5*time.Second, p.pollInterval)
	require.Equal(t, 7, p.batchSize)
	require.Equal(t, 9, p.concurrency)
	require.Equal(t, 11*time.Second, p.lease)
	require.Equal(t, int64(13), p.rateLimitPerMinute)
}
