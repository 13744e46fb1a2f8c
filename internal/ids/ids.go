package ids

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier, used for request ids.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// UUID returns a random RFC 4122 identifier (facility ids, session ids).
func UUID() string {
	return uuid.NewString()
}

// Token returns n random bytes encoded as unpadded URL-safe base64.
func Token(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Hex returns n random bytes hex encoded.
func Hex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// TrialLicenseKey returns a TRIAL-<32 upper hex> key for new installations.
func TrialLicenseKey() string {
	return "TRIAL-" + strings.ToUpper(Hex(16))
}
