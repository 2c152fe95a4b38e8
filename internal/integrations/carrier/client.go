package carrier

import (
	"context"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/pkg/errors"
)

var ErrProofNotFound = errors.New("proof of delivery not found")

// Client looks up a single shipment. Failures are reported inside the result,
// never as an error.
type Client interface {
	Track(ctx context.Context, trackingNumber string) models.TrackingResult
}

// ProofProvider is implemented by carriers able to return a signed delivery proof.
type ProofProvider interface {
	ProofOfDelivery(ctx context.Context, trackingNumber string) ([]byte, error)
}
