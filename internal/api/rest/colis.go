package rest

import (
	"net/http"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/BearBump/ColisTrack/internal/services/colis"
	"github.com/go-chi/chi/v5"
)

func (h *handler) createColis(w http.ResponseWriter, r *http.Request) {
	var req createColisRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Colis.Create(r.Context(), colis.CreateInput{ID: req.ID, Description: req.Description, Meta: req.Meta})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// getColis accepts any of the four identifiers.
func (h *handler) getColis(w http.ResponseWriter, r *http.Request) {
	c, err := h.Colis.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) updateColis(w http.ResponseWriter, r *http.Request) {
	var req updateColisRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Colis.Update(r.Context(), chi.URLParam(r, "id"), models.ColisUpdate{
		Description:       req.Description,
		Status:            req.Status,
		Location:          req.Location,
		EstimatedDelivery: req.EstimatedDelivery,
		Meta:              req.Meta,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) deleteColis(w http.ResponseWriter, r *http.Request) {
	if err := h.Colis.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) searchColis(w http.ResponseWriter, r *http.Request) {
	pq, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	items, total, err := h.Colis.Search(r.Context(), models.ColisFilter{
		Status:   q.Get("status"),
		Location: q.Get("location"),
		Query:    q.Get("q"),
		Page:     pq.Page,
		PageSize: pq.PageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaged(items, total, pq.Page, pq.PageSize))
}

func (h *handler) colisStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Colis.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) colisBarcode(w http.ResponseWriter, r *http.Request) {
	b, err := h.Colis.BarcodeImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
