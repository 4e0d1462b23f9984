package history

import (
	"encoding/json"
	"time"

	"github.com/ValentinKolb/dDoc/lib/serializer"
	"github.com/google/uuid"
)

// Document is the on-disk envelope of every stored value.
// Version is refreshed on every successful write, LastModified records when that happened.
type Document[T any] struct {
	Version      string    `json:"version"`
	LastModified time.Time `json:"lastModified"`
	Payload      T         `json:"payload"`
}

// envelopeHeader decodes the version of an envelope, whatever its payload type.
// Payload stays nil if the key is missing.
type envelopeHeader struct {
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// IsEnvelope reports whether data is an encoded Document. Both the version and the
// payload key must be present: a bare payload may well have a field named version.
func IsEnvelope(ser serializer.ISerializer, data []byte) bool {
	var header envelopeHeader
	if err := ser.Deserialize(data, &header); err != nil {
		return false
	}
	return header.Version != "" && header.Payload != nil
}

// Stamp wraps payload into a new envelope with a fresh random version and now as modification time.
func Stamp[T any](payload T, now time.Time) Document[T] {
	return Document[T]{
		Version:      uuid.NewString(),
		LastModified: now.UTC(),
		Payload:      payload,
	}
}
