package correlation

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("no entropy")
}

func TestCorrelator_NextIsUUID(t *testing.T) {
	var c Correlator
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := c.Next()
		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("Next() = %q, not a UUID: %v", id, err)
		}
		if parsed.Version() != 4 {
			t.Errorf("UUID version = %d, want 4", parsed.Version())
		}
		if seen[id] {
			t.Fatalf("Next() returned duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestCorrelator_Fallback(t *testing.T) {
	fixed := time.UnixMilli(1760000000000)
	c := Correlator{Random: failingReader{}, Now: func() time.Time { return fixed }}

	id := c.Next()
	if !strings.HasPrefix(id, "1760000000000-") {
		t.Errorf("Next() = %q, want millisecond prefix", id)
	}
	if !regexp.MustCompile(`^\d+-[0-9a-z]+$`).MatchString(id) {
		t.Errorf("Next() = %q, want <millis>-<base36>", id)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		echoed   string
		want     string
	}{
		{"echo wins", "client", "server", "server"},
		{"missing echo", "client", "", "client"},
		{"blank echo", "client", "   ", "client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confirm(tt.clientID, tt.echoed); got != tt.want {
				t.Errorf("Confirm(%q, %q) = %q, want %q", tt.clientID, tt.echoed, got, tt.want)
			}
		})
	}
}
