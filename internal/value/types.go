package value

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Value is the persisted entity.
type Value struct {
	ID        string    `json:"_id"`
	Value     float64   `json:"value"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Apply copies the fields set in in onto v.
func (v *Value) Apply(in UpdateInput) {
	if in.Value != nil {
		v.Value = *in.Value
	}
	if in.Name != nil {
		v.Name = *in.Name
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-sortable ULID string.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsValidID reports whether id is a well-formed ULID.
func IsValidID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
