package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const maxWebhookBody = 1 << 20

// fedexWebhook verifies the body signature before anything else reads the payload.
func (h *handler) fedexWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "read webhook body"))
		return
	}
	if h.WebhookSecret != "" && !validSignature(h.WebhookSecret, body, r.Header.Get("X-Fedex-Signature")) {
		writeError(w, r, errInvalidSignature)
		return
	}

	var payload struct {
		TrackingNumber    string `json:"tracking_number"`
		TrackingNumberAlt string `json:"trackingNumber"`
		TrackNo           string `json:"TrackNo"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, r, badRequest("invalid JSON payload"))
		return
	}
	n := firstNonEmpty(payload.TrackingNumber, payload.TrackingNumberAlt, payload.TrackNo)
	if n == "" {
		writeError(w, r, badRequest("tracking number is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.Trackings.Track(r.Context(), n))
}

func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
