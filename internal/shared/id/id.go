// Package id provides centralized ID generation for the library backend.
//
// Two formats are in use:
//   - Import IDs are plain UUIDs. They name the catalog entry an import
//     produces and the scratch/apps directories that belong to it.
//   - Transfer session and request IDs are prefixed ULIDs (xfer_*, req_*),
//     sortable by creation time and easy to spot in logs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ImportID identifies one pipeline run and the catalog entry it produces
type ImportID string

// TransferID identifies an ephemeral transfer session
type TransferID string

// RequestID identifies an API request
type RequestID string

const (
	TransferPrefix = "xfer"
	RequestPrefix  = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewImportID generates a fresh import identifier
func NewImportID() ImportID {
	return ImportID(uuid.NewString())
}

// NewTransferID generates a new transfer session ID
func NewTransferID() TransferID {
	return TransferID(Default().GenerateWithPrefix(TransferPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ImportID) String() string   { return string(id) }
func (id TransferID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }

// IsImportID reports whether s is a well-formed import identifier.
// Import IDs end up in filesystem paths, so anything else is rejected.
func IsImportID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && !strings.ContainsAny(s, "{}:")
}

// IsTransferID reports whether s looks like a transfer session ID
func IsTransferID(s string) bool {
	rest, ok := strings.CutPrefix(s, TransferPrefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed ULID
func Timestamp(prefixed string) (time.Time, error) {
	_, raw, found := strings.Cut(prefixed, "_")
	if !found {
		raw = prefixed
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
