package barcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces the alternate identifiers of a colis.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// ID returns a new internal colis id.
func (g *Generator) ID() string {
	return uuid.NewString()
}

// Reference returns "REF-" followed by six uppercase hex characters.
func (g *Generator) Reference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "REF-" + strings.ToUpper(hex[:6])
}

// TCN returns "TCN-YYYYMMDD-NNN" with NNN in [100, 999].
func (g *Generator) TCN() string {
	return fmt.Sprintf("TCN-%s-%d", g.now().UTC().Format("20060102"), randRange(100, 999))
}

// Barcode returns "CB" followed by a ten digit number.
func (g *Generator) Barcode() string {
	return fmt.Sprintf("CB%d", randRange(1_000_000_000, 9_999_999_999))
}

func randRange(min, max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return min + n.Int64()
}
