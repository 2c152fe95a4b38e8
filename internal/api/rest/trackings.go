package rest

import (
	"net/http"
	"strings"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/go-chi/chi/v5"
)

func (h *handler) trackIdentifier(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res := h.Trackings.TrackIdentifier(r.Context(), chi.URLParam(r, "identifier"), uid)
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) batchTrack(w http.ResponseWriter, r *http.Request) {
	var req batchTrackRequest
	if err := decodeBody(r, &req); err != nil {
		if len(req.TrackingNumbers) > maxBatchSize {
			err = badRequest("at most %d tracking numbers per batch", maxBatchSize)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Trackings.BatchTrack(r.Context(), req.TrackingNumbers))
}

func (h *handler) searchTrackings(w http.ResponseWriter, r *http.Request) {
	pq, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	sq := trackingSearchQuery{
		pageQuery: pq,
		SortBy:    q.Get("sort_by"),
		SortOrder: strings.ToLower(q.Get("sort_order")),
	}
	if err := check(sq); err != nil {
		writeError(w, r, err)
		return
	}

	f := models.TrackingFilter{
		TrackingNumber: q.Get("tracking_number"),
		Status:         q.Get("status"),
		Carrier:        q.Get("carrier"),
		CustomerName:   q.Get("customer_name"),
		Location: models.LocationFilter{
			City:       q.Get("city"),
			State:      q.Get("state"),
			Country:    q.Get("country"),
			PostalCode: q.Get("postal_code"),
		},
		ServiceType: q.Get("service_type"),
		SortBy:      sq.SortBy,
		SortOrder:   sq.SortOrder,
		Page:        pq.Page,
		PageSize:    pq.PageSize,
	}
	if f.StartDate, err = queryTime(r, "start_date"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.EndDate, err = queryTime(r, "end_date"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.IsDelivered, err = queryBool(r, "is_delivered"); err != nil {
		writeError(w, r, err)
		return
	}

	items, total, err := h.Trackings.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaged(items, total, pq.Page, pq.PageSize))
}

func (h *handler) trackingStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Trackings.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) currentTracking(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Trackings.GetCurrent(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) trackingEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit < 1 || limit > 500 || offset < 0 {
		writeError(w, r, badRequest("limit must be 1..500 and offset must not be negative"))
		return
	}
	evs, err := h.Trackings.ListEvents(r.Context(), chi.URLParam(r, "number"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if evs == nil {
		evs = []*models.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *handler) refreshTracking(w http.ResponseWriter, r *http.Request) {
	if err := h.Trackings.RefreshTracking(r.Context(), chi.URLParam(r, "number")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

func (h *handler) proofOfDelivery(w http.ResponseWriter, r *http.Request) {
	n := chi.URLParam(r, "number")
	b, err := h.Trackings.ProofOfDelivery(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+n+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
