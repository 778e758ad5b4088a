// Package reference issues payment identifiers and payable payloads.
package reference

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idPrefix     = "PAY"
	idTimeLayout = "20060102150405"
	idTimeLen    = len(idTimeLayout) + 3 // plus milliseconds
	idRandomLen  = 12
	idLen        = len(idPrefix) + idTimeLen + 1 + idRandomLen
)

// Generator issues payment ids of the form PAY<yyyymmddHHMMSSmmm>-<12 hex>.
// Ids sort by creation millisecond; the suffix carries 48 random bits.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator backed by the given clock (time.Now if nil)
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// NewPaymentID returns a fresh payment id
func (g *Generator) NewPaymentID() string {
	ts := g.now().UTC()
	u := uuid.New()

	var b strings.Builder
	b.Grow(idLen)
	b.WriteString(idPrefix)
	b.WriteString(ts.Format(idTimeLayout))
	fmt.Fprintf(&b, "%03d", ts.Nanosecond()/int(time.Millisecond))
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(hex.EncodeToString(u[10:16])))
	return b.String()
}

// ParsePaymentIDTime decodes the creation time embedded in a payment id
func ParsePaymentIDTime(id string) (time.Time, error) {
	if len(id) != idLen || !strings.HasPrefix(id, idPrefix) || id[len(idPrefix)+idTimeLen] != '-' {
		return time.Time{}, fmt.Errorf("malformed payment id %q", id)
	}

	ts := id[len(idPrefix) : len(idPrefix)+idTimeLen]
	t, err := time.ParseInLocation(idTimeLayout+".000", ts[:len(idTimeLayout)]+"."+ts[len(idTimeLayout):], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed payment id timestamp: %w", err)
	}
	return t, nil
}

// ValidPaymentID reports whether id has the generator's shape
func ValidPaymentID(id string) bool {
	if _, err := ParsePaymentIDTime(id); err != nil {
		return false
	}
	_, err := hex.DecodeString(id[len(id)-idRandomLen:])
	return err == nil
}
