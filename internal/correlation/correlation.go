// Package correlation mints the id that binds a run request to its event
// stream.
package correlation

import (
	"crypto/rand"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header carries the correlation id on requests and responses.
const Header = "X-Request-ID"

// Correlator generates correlation ids. The zero value uses crypto/rand
// and the wall clock.
type Correlator struct {
	// Random is the entropy source. Nil means crypto/rand.
	Random io.Reader
	// Now is the clock used by the fallback format. Nil means time.Now.
	Now func() time.Time
}

// Next returns a new correlation id: a random UUID, or, when the entropy
// source fails, a "<unix-millis>-<base36>" composite.
func (c Correlator) Next() string {
	src := c.Random
	if src == nil {
		src = rand.Reader
	}
	if id, err := uuid.NewRandomFromReader(src); err == nil {
		return id.String()
	}
	return c.fallback()
}

func (c Correlator) fallback() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	suffix := strconv.FormatInt(now().UnixNano()%1_000_000_007, 36)
	if n, err := rand.Int(rand.Reader, big.NewInt(1<<40)); err == nil {
		suffix = n.Text(36)
	}
	return strconv.FormatInt(now().UnixMilli(), 10) + "-" + suffix
}

// Confirm returns the server-echoed id when present, otherwise the id the
// client generated.
func Confirm(clientID, echoed string) string {
	if e := strings.TrimSpace(echoed); e != "" {
		return e
	}
	return clientID
}
