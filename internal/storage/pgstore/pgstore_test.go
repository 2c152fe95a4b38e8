package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "colistrack_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/colistrack_test?sslmode=disable"

	var st *Storage
	require.Eventually(t, func() bool {
		st, err = New(dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(st.Close)
	return st
}

func newColis(id, ref, tcn, cb string) *models.Colis {
	now := time.Now().UTC()
	return &models.Colis{
		ID: id, Reference: ref, TCN: tcn, Barcode: cb,
		Description: "box", Status: models.ColisStatusPending,
		Meta: map[string]any{"k": "v"}, CreatedAt: now, UpdatedAt: now,
	}
}

func TestPGStore_RepoFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	st := startPostgres(t)

	t.Run("colis", func(t *testing.T) {
		c := newColis("123456789012", "REF-AAAAAA", "TCN-20240101-100", "CB1000000001")
		require.NoError(t, st.CreateColis(ctx, c))

		got, err := st.GetColisBy(ctx, ColumnTCN, "TCN-20240101-100")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, c.ID, got.ID)
		require.Equal(t, "v", got.Meta["k"])

		missing, err := st.GetColisBy(ctx, ColumnReference, "REF-NOPE00")
		require.NoError(t, err)
		require.Nil(t, missing)

		// reference of the new colis equals the id of the first one
		dup := newColis("other", "123456789012", "TCN-20240101-101", "CB1000000002")
		err = st.CreateColis(ctx, dup)
		var conflict *IdentifierConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, "123456789012", conflict.Value)

		loc := "Paris"
		upd, err := st.UpdateColis(ctx, c.ID, models.ColisUpdate{Location: &loc, Meta: map[string]any{"x": 1}})
		require.NoError(t, err)
		require.Equal(t, "Paris", *upd.Location)
		require.Equal(t, "v", upd.Meta["k"])
		require.EqualValues(t, 1, upd.Meta["x"])

		items, total, err := st.SearchColis(ctx, models.ColisFilter{Query: "REF-AAA", Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		require.Len(t, items, 1)

		stats, err := st.ColisStats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, stats.Total)
		require.EqualValues(t, 1, stats.LocationDistribution["Paris"])
	})

	t.Run("trackings", func(t *testing.T) {
		now := time.Now().UTC()
		evTime := now.Add(-time.Hour)
		city := "Memphis"
		upd := TrackingUpdate{
			TrackingNumber: "123456789012",
			CheckedAt:      now,
			Status:         models.TrackingStatusInTransit,
			ServiceType:    string(models.ServiceGround),
			Meta:           map[string]any{"customer_name": "Alice Martin"},
			Snapshot:       &models.TrackingInfo{TrackingNumber: "123456789012", Status: models.TrackingStatusInTransit},
			NextCheckAt:    now.Add(-time.Minute),
			Events: []models.StoredEvent{
				{Status: models.TrackingStatusInTransit, Description: "Departed", EventTime: evTime, City: "Memphis", Country: "US"},
			},
			ColisLocation: &city,
		}

		out, err := st.ApplyTrackingUpdate(ctx, upd)
		require.NoError(t, err)
		require.True(t, out.Created)
		require.True(t, out.ColisLinked)
		require.NotZero(t, out.TrackingID)

		// same events again are deduplicated
		upd.Status = models.TrackingStatusDelivered
		out2, err := st.ApplyTrackingUpdate(ctx, upd)
		require.NoError(t, err)
		require.False(t, out2.Created)
		require.Equal(t, models.TrackingStatusInTransit, out2.PreviousStatus)

		evs, err := st.ListTrackingEvents(ctx, out.TrackingID, 10, 0)
		require.NoError(t, err)
		require.Len(t, evs, 1)
		require.WithinDuration(t, evTime, evs[0].EventTime, time.Second)

		c, err := st.GetColisBy(ctx, ColumnID, "123456789012")
		require.NoError(t, err)
		require.Equal(t, models.TrackingStatusDelivered, c.Status)
		require.Equal(t, "Memphis", *c.Location)

		rec, err := st.GetTrackingByNumber(ctx, "123456789012")
		require.NoError(t, err)
		require.NotNil(t, rec.Snapshot)
		require.Equal(t, "123456789012", *rec.ColisID)

		items, total, err := st.SearchTrackings(ctx, models.TrackingFilter{
			CustomerName: "alice",
			Location:     models.LocationFilter{City: "Memphis"},
			SortBy:       "status",
			SortOrder:    "asc",
		})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)
		require.Len(t, items, 1)

		_, total, err = st.SearchTrackings(ctx, models.TrackingFilter{Location: models.LocationFilter{City: "Lyon"}})
		require.NoError(t, err)
		require.Zero(t, total)

		stats, err := st.TrackingStats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, stats.Delivered)
		require.EqualValues(t, 1, stats.CarrierDistribution[models.CarrierFedEx])
	})

	t.Run("claim due", func(t *testing.T) {
		now := time.Now().UTC()
		for _, n := range []string{"111111111111", "222222222222"} {
			_, err := st.ApplyTrackingUpdate(ctx, TrackingUpdate{
				TrackingNumber: n, CheckedAt: now, Status: models.TrackingStatusInTransit, NextCheckAt: now.Add(time.Hour),
			})
			require.NoError(t, err)
		}
		ok, err := st.RefreshTracking(ctx, "111111111111")
		require.NoError(t, err)
		require.True(t, ok)

		lease := 10 * time.Second
		claimAt := time.Now().UTC().Add(time.Second)
		due, err := st.ClaimDueTrackings(ctx, claimAt, 10, lease)
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.Equal(t, "111111111111", due[0].TrackingNumber)
		require.WithinDuration(t, claimAt.Add(lease), due[0].NextCheckAt, 2*time.Second)

		msg := "boom"
		out, err := st.ApplyTrackingUpdate(ctx, TrackingUpdate{
			TrackingNumber: "111111111111", CheckedAt: now, NextCheckAt: now.Add(5 * time.Minute), Error: &msg,
		})
		require.NoError(t, err)
		require.NotZero(t, out.TrackingID)

		rec, err := st.GetTrackingByNumber(ctx, "111111111111")
		require.NoError(t, err)
		require.EqualValues(t, 1, rec.CheckFailCount)
		require.Equal(t, "boom", *rec.LastError)
	})

	t.Run("search paging", func(t *testing.T) {
		seen := map[string]bool{}
		for page, want := range map[int]int{1: 2, 2: 1, 3: 0} {
			items, total, err := st.SearchTrackings(ctx, models.TrackingFilter{Page: page, PageSize: 2})
			require.NoError(t, err)
			require.EqualValues(t, 3, total)
			require.Len(t, items, want)
			for _, it := range items {
				require.False(t, seen[it.TrackingNumber])
				seen[it.TrackingNumber] = true
			}
		}
		require.Len(t, seen, 3)
	})

	t.Run("repeated scans", func(t *testing.T) {
		checked := time.Now().UTC()
		upd := TrackingUpdate{
			TrackingNumber: "333333333333",
			CheckedAt:      checked,
			Status:         models.TrackingStatusInTransit,
			NextCheckAt:    checked.Add(time.Hour),
			Events: []models.StoredEvent{
				{Status: models.TrackingStatusInTransit, Description: "Sorted", RawTime: "yesterday evening", City: "Lyon"},
				{Status: models.TrackingStatusInTransit, Description: "Sorted", RawTime: "this morning", City: "Lyon"},
			},
		}
		out, err := st.ApplyTrackingUpdate(ctx, upd)
		require.NoError(t, err)

		upd.CheckedAt = checked.Add(2 * time.Hour)
		upd.NextCheckAt = upd.CheckedAt.Add(time.Hour)
		_, err = st.ApplyTrackingUpdate(ctx, upd)
		require.NoError(t, err)

		evs, err := st.ListTrackingEvents(ctx, out.TrackingID, 10, 0)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		for _, e := range evs {
			require.True(t, e.EventTime.IsZero())
		}
	})

	t.Run("history", func(t *testing.T) {
		old := &models.HistoryEntry{ID: "h-old", UserID: 1, TrackingNumber: "A", CreatedAt: time.Now().UTC().AddDate(0, 0, -40)}
		fresh := &models.HistoryEntry{ID: "h-new", UserID: 1, TrackingNumber: "B", CreatedAt: time.Now().UTC()}
		other := &models.HistoryEntry{ID: "h-other", UserID: 2, TrackingNumber: "C", CreatedAt: time.Now().UTC()}
		for _, h := range []*models.HistoryEntry{old, fresh, other} {
			require.NoError(t, st.InsertHistory(ctx, h))
		}

		items, total, err := st.ListHistory(ctx, 1, 1, 10)
		require.NoError(t, err)
		require.EqualValues(t, 2, total)
		require.Equal(t, "h-new", items[0].ID)

		got, err := st.GetHistory(ctx, 1, "h-other")
		require.NoError(t, err)
		require.Nil(t, got)

		note := "gift"
		pinned := true
		h, err := st.UpdateHistory(ctx, 1, "h-new", models.HistoryUpdate{Note: &note, Pinned: &pinned})
		require.NoError(t, err)
		require.Equal(t, "gift", *h.Note)
		require.True(t, h.Pinned)

		n, err := st.DeleteManyHistory(ctx, 1, []string{"h-other", "h-new"})
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		n, err = st.DeleteHistoryOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		left, err := st.ListAllHistory(ctx, 2)
		require.NoError(t, err)
		require.Len(t, left, 1)
	})

	t.Run("notifications", func(t *testing.T) {
		tn := "123456789012"
		for i, typ := range []models.NotificationType{models.NotificationTrackingUpdate, models.NotificationDeliveryStatus} {
			require.NoError(t, st.InsertNotification(ctx, &models.Notification{
				ID: []string{"n1", "n2"}[i], Type: typ, Priority: models.PriorityMedium,
				Title: "t", Message: "m", TrackingNumber: &tn, CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			}))
		}

		list, err := st.ListNotifications(ctx, models.NotificationFilter{Type: models.NotificationDeliveryStatus})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "n2", list[0].ID)

		n, err := st.MarkNotificationRead(ctx, "n1", time.Now())
		require.NoError(t, err)
		require.True(t, n.IsRead)
		require.NotNil(t, n.ReadAt)

		count, err := st.MarkAllNotificationsRead(ctx, time.Now())
		require.NoError(t, err)
		require.EqualValues(t, 1, count)

		unread, err := st.ListNotifications(ctx, models.NotificationFilter{UnreadOnly: true})
		require.NoError(t, err)
		require.Empty(t, unread)

		purged, err := st.DeleteNotificationsOlderThan(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 2, purged)
	})
}
