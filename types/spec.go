// Package types contains shared domain types used across the confstream engine
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/c360/confstream/errors"
)

// ConfigSpec is one immutable, versioned configuration snapshot.
//
// For a given Name, versions form a totally ordered, append-only history:
// versions are never mutated or deleted, only superseded. New versions are
// created exclusively by the configuration manager's update path.
type ConfigSpec struct {
	Name        string         `json:"name"`        // Unique key within an environment
	Version     int64          `json:"version"`     // Monotonically increasing per name
	Environment string         `json:"environment"` // Opaque passthrough (dev/staging/prod)
	Timestamp   time.Time      `json:"timestamp"`   // Creation time of this version, immutable
	Checksum    string         `json:"checksum"`    // Deterministic hash over Data
	Data        map[string]any `json:"data"`        // Configuration payload
	Metadata    map[string]any `json:"metadata,omitempty"` // Free-form, not validated
}

// Validate ensures the spec has the basic shape required by the engine.
// Payload-level validation is the validate package's job.
func (s *ConfigSpec) Validate() error {
	if s == nil {
		return errors.WrapInvalid(errors.ErrInvalidSpec,
			"ConfigSpec", "Validate", "spec cannot be nil")
	}
	if s.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidSpec,
			"ConfigSpec", "Validate", "name cannot be empty")
	}
	if s.Version < 0 {
		return errors.WrapInvalid(errors.ErrInvalidSpec,
			"ConfigSpec", "Validate", "version cannot be negative")
	}
	return nil
}

// ComputeChecksum computes and stores the checksum of the spec's payload.
func (s *ConfigSpec) ComputeChecksum() (string, error) {
	sum, err := Checksum(s.Data)
	if err != nil {
		return "", err
	}
	s.Checksum = sum
	return sum, nil
}

// Clone returns a deep copy of the spec. Data and Metadata are copied through
// JSON so callers can never mutate a stored version through a returned spec.
func (s *ConfigSpec) Clone() (*ConfigSpec, error) {
	if s == nil {
		return nil, nil
	}

	out := &ConfigSpec{
		Name:        s.Name,
		Version:     s.Version,
		Environment: s.Environment,
		Timestamp:   s.Timestamp,
		Checksum:    s.Checksum,
	}

	var err error
	if out.Data, err = cloneMap(s.Data); err != nil {
		return nil, errors.WrapFatal(err, "ConfigSpec", "Clone", "copy data")
	}
	if out.Metadata, err = cloneMap(s.Metadata); err != nil {
		return nil, errors.WrapFatal(err, "ConfigSpec", "Clone", "copy metadata")
	}
	return out, nil
}

// Marshal serializes the spec to its canonical JSON form.
func (s *ConfigSpec) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WrapFatal(err, "ConfigSpec", "Marshal", "encode spec")
	}
	return data, nil
}

// UnmarshalSpec decodes a spec from its canonical JSON form.
func UnmarshalSpec(data []byte) (*ConfigSpec, error) {
	var spec ConfigSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.WrapInvalid(err, "ConfigSpec", "UnmarshalSpec", "decode spec")
	}
	return &spec, nil
}

// Checksum computes a deterministic SHA-256 hash over a JSON-compatible
// payload. encoding/json marshals map keys in sorted order, so equal payloads
// always produce equal checksums regardless of construction order.
func Checksum(data map[string]any) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", errors.WrapInvalid(err, "types", "Checksum", "encode payload")
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// cloneMap deep-copies a JSON-compatible map. Returns nil for nil input.
func cloneMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}
