package rest

import (
	"net/http"
	"strings"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/history"
	"github.com/go-chi/chi/v5"
)

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pq, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, total, err := h.History.List(r.Context(), uid, pq.Page, pq.PageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaged(items, total, pq.Page, pq.PageSize))
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.History.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handler) updateHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateHistoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.History.Update(r.Context(), uid, chi.URLParam(r, "id"), models.HistoryUpdate{Note: req.Note, Pinned: req.Pinned})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.History.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteManyHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req deleteHistoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.History.DeleteMany(r.Context(), uid, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// exportHistory streams the caller's history as an attachment.
// tracking_numbers is a comma separated list.
func (h *handler) exportHistory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "xlsx"
	}
	f := history.ExportFilter{Status: q.Get("status")}
	if raw := q.Get("tracking_numbers"); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				f.TrackingNumbers = append(f.TrackingNumbers, n)
			}
		}
	}

	exp, err := h.History.Export(r.Context(), uid, format, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}
