// Package codes generates the external identifiers printed on artwork labels
// (scan codes) and shared with the receiving party of a transfer (transfer
// codes).
//
// Codes are lookup keys, not secrets. They combine a millisecond timestamp
// with a random suffix, which makes collisions practically impossible but
// does not make codes unguessable. Uniqueness is enforced by the store, which
// retries with a fresh code on collision.
package codes

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default prefixes.
const (
	DefaultScanPrefix     = "ART"
	DefaultTransferPrefix = "TXN"
)

// Generator produces scan and transfer codes.
type Generator interface {
	ScanCode() string
	TransferCode() string
}

// TimeRandom generates codes of the form PREFIX-TIMESTAMP-SUFFIX, where
// TIMESTAMP is the base-36 millisecond clock and SUFFIX is 10 random hex
// digits.
type TimeRandom struct {
	ScanPrefix     string
	TransferPrefix string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// New returns a TimeRandom generator with the given prefixes. Empty prefixes
// fall back to the defaults.
func New(scanPrefix, transferPrefix string) *TimeRandom {
	if scanPrefix == "" {
		scanPrefix = DefaultScanPrefix
	}
	if transferPrefix == "" {
		transferPrefix = DefaultTransferPrefix
	}
	return &TimeRandom{ScanPrefix: scanPrefix, TransferPrefix: transferPrefix}
}

// ScanCode returns a new scan code.
func (g *TimeRandom) ScanCode() string {
	return g.code(g.ScanPrefix)
}

// TransferCode returns a new transfer code.
func (g *TimeRandom) TransferCode() string {
	return g.code(g.TransferPrefix)
}

func (g *TimeRandom) code(prefix string) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	stamp := strings.ToUpper(strconv.FormatInt(now().UnixMilli(), 36))

	// The first bytes of a random UUID carry no version or variant bits.
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:5]))

	return prefix + "-" + stamp + "-" + suffix
}

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// ValidPrefix reports whether p can be used as a code prefix: one to eight
// upper-case letters or digits.
func ValidPrefix(p string) bool {
	return prefixPattern.MatchString(p)
}
