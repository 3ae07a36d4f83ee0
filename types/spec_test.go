package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/confstream/errors"
	"github.com/c360/confstream/types"
)

func TestConfigSpecValidate(t *testing.T) {
	tests := []struct {
		name        string
		spec        *types.ConfigSpec
		expectError bool
	}{
		{
			name: "valid spec",
			spec: &types.ConfigSpec{Name: "server", Version: 1, Data: map[string]any{"port": 8080}},
		},
		{
			name:        "nil spec",
			spec:        nil,
			expectError: true,
		},
		{
			name:        "empty name",
			spec:        &types.ConfigSpec{Version: 1},
			expectError: true,
		},
		{
			name:        "negative version",
			spec:        &types.ConfigSpec{Name: "server", Version: -1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChecksumDeterministic(t *testing.T) {
	a := map[string]any{"port": 8080, "host": "localhost", "nested": map[string]any{"x": 1, "y": 2}}
	b := map[string]any{"nested": map[string]any{"y": 2, "x": 1}, "host": "localhost", "port": 8080}

	sumA, err := types.Checksum(a)
	require.NoError(t, err)
	sumB, err := types.Checksum(b)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB, "checksum must not depend on construction order")
	assert.Len(t, sumA, 64)
}

func TestChecksumDetectsChange(t *testing.T) {
	sumA, err := types.Checksum(map[string]any{"port": 8080})
	require.NoError(t, err)
	sumB, err := types.Checksum(map[string]any{"port": 8081})
	require.NoError(t, err)

	assert.NotEqual(t, sumA, sumB)
}

func TestComputeChecksum(t *testing.T) {
	spec := &types.ConfigSpec{Name: "server", Data: map[string]any{"port": 8080}}

	sum, err := spec.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, sum, spec.Checksum)
}

func TestCloneIsDeep(t *testing.T) {
	spec := &types.ConfigSpec{
		Name:      "server",
		Version:   2,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"limits": map[string]any{"rate": float64(100)}},
		Metadata:  map[string]any{"owner": "platform"},
	}

	clone, err := spec.Clone()
	require.NoError(t, err)
	require.NotNil(t, clone)

	clone.Data["limits"].(map[string]any)["rate"] = float64(999)
	clone.Metadata["owner"] = "someone-else"

	assert.Equal(t, float64(100), spec.Data["limits"].(map[string]any)["rate"])
	assert.Equal(t, "platform", spec.Metadata["owner"])
}

func TestMarshalRoundTrip(t *testing.T) {
	spec := &types.ConfigSpec{
		Name:        "server",
		Version:     3,
		Environment: "staging",
		Timestamp:   time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Data:        map[string]any{"port": float64(8080), "debug": true},
		Metadata:    map[string]any{"ticket": "OPS-42"},
	}
	_, err := spec.ComputeChecksum()
	require.NoError(t, err)

	data, err := spec.Marshal()
	require.NoError(t, err)

	decoded, err := types.UnmarshalSpec(data)
	require.NoError(t, err)

	assert.Equal(t, spec.Name, decoded.Name)
	assert.Equal(t, spec.Version, decoded.Version)
	assert.Equal(t, spec.Environment, decoded.Environment)
	assert.True(t, spec.Timestamp.Equal(decoded.Timestamp))
	assert.Equal(t, spec.Checksum, decoded.Checksum)
	assert.Equal(t, spec.Data, decoded.Data)
	assert.Equal(t, spec.Metadata, decoded.Metadata)
}

func TestUnmarshalSpecInvalid(t *testing.T) {
	_, err := types.UnmarshalSpec([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
}
