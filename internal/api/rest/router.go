package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ColisTrack/internal/broker/messages"
	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type TrackingService interface {
	Track(ctx context.Context, trackingNumber string) models.TrackingResult
	TrackIdentifier(ctx context.Context, identifier string, userID int64) models.TrackingResult
	BatchTrack(ctx context.Context, numbers []string) []models.TrackingResult
	Search(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, int64, error)
	Stats(ctx context.Context) (models.TrackingStats, error)
	GetCurrent(ctx context.Context, trackingNumber string) (*models.TrackingRecord, error)
	ListEvents(ctx context.Context, trackingNumber string, limit, offset int) ([]*models.StoredEvent, error)
	RefreshTracking(ctx context.Context, trackingNumber string) error
	ProofOfDelivery(ctx context.Context, trackingNumber string) ([]byte, error)
	ApplyUpdate(ctx context.Context, msg messages.TrackingUpdated) error
}

type ColisService interface {
	Create(ctx context.Context, in colis.CreateInput) (*models.Colis, error)
	Resolve(ctx context.Context, identifier string) (*models.Colis, error)
	Update(ctx context.Context, id string, upd models.ColisUpdate) (*models.Colis, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, f models.ColisFilter) ([]*models.Colis, int64, error)
	Stats(ctx context.Context) (models.ColisStats, error)
	BarcodeImage(ctx context.Context, id string) ([]byte, error)
}

type HistoryService interface {
	List(ctx context.Context, userID int64, page, pageSize int) ([]*models.HistoryEntry, int64, error)
	Get(ctx context.Context, userID int64, id string) (*models.HistoryEntry, error)
	Update(ctx context.Context, userID int64, id string, upd models.HistoryUpdate) (*models.HistoryEntry, error)
	Delete(ctx context.Context, userID int64, id string) error
	DeleteMany(ctx context.Context, userID int64, ids []string) (int64, error)
	Export(ctx context.Context, userID int64, format string, f history.ExportFilter) (*history.Export, error)
}

type NotificationService interface {
	List(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) (*models.Notification, error)
	MarkAllRead(ctx context.Context) (int64, error)
}

// Deps are the services behind the routes. Nil services leave their routes unmounted.
type Deps struct {
	Trackings     TrackingService
	Colis         ColisService
	History       HistoryService
	Notifications NotificationService

	WebhookSecret string
	SwaggerPath   string
}

type handler struct {
	Deps
}

// New builds the HTTP handler serving /api/v1 plus health and docs.
func New(deps Deps) http.Handler {
	h := &handler{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mountDocs(r, deps.SwaggerPath)

	r.Route("/api/v1", func(r chi.Router) {
		if h.Trackings != nil {
			r.Get("/track/{identifier}", h.trackIdentifier)
			r.Post("/track/batch", h.batchTrack)
			r.Get("/trackings/search", h.searchTrackings)
			r.Get("/trackings/stats", h.trackingStats)
			r.Get("/trackings/{number}/current", h.currentTracking)
			r.Get("/trackings/{number}/events", h.trackingEvents)
			r.Post("/trackings/{number}/refresh", h.refreshTracking)
			r.Get("/trackings/{number}/proof", h.proofOfDelivery)
			r.Post("/webhook/fedex", h.fedexWebhook)
		}
		if h.Colis != nil {
			r.Post("/colis", h.createColis)
			r.Get("/colis", h.searchColis)
			r.Get("/colis/stats", h.colisStats)
			r.Get("/colis/{id}", h.getColis)
			r.Patch("/colis/{id}", h.updateColis)
			r.Delete("/colis/{id}", h.deleteColis)
			r.Get("/colis/{id}/barcode", h.colisBarcode)
		}
		if h.History != nil {
			r.Get("/history", h.listHistory)
			r.Get("/history/export", h.exportHistory)
			r.Post("/history/delete", h.deleteManyHistory)
			r.Get("/history/{id}", h.getHistory)
			r.Patch("/history/{id}", h.updateHistory)
			r.Delete("/history/{id}", h.deleteHistory)
		}
		if h.Notifications != nil {
			r.Get("/notifications", h.listNotifications)
			r.Post("/notifications/read-all", h.markAllNotificationsRead)
			r.Post("/notifications/{id}/read", h.markNotificationRead)
		}
	})

	return r
}

// mountDocs serves the swagger file and UI when a readable file is configured.
func mountDocs(r chi.Router, swaggerPath string) {
	if swaggerPath == "" {
		return
	}
	fi, err := os.Stat(swaggerPath)
	if err != nil {
		slog.Warn("swagger file not available, docs disabled", "path", swaggerPath, "error", err.Error())
		return
	}

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	swaggerURL := fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
