package shortid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBase62(t *testing.T) {
	tests := []struct {
		name     string
		input    uint64
		expected string
	}{
		{"zero", 0, "0"},
		{"one", 1, "1"},
		{"single digit max", 61, "Z"},
		{"two digits", 62, "10"},
		{"three digits", 3844, "100"},
		{"larger number", 12345, "3d7"},
		{"max int64", 9223372036854775807, "aZl8N0y58M7"},
		{"max uint64", 18446744073709551615, "lYGhA16ahyf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeBase62(tt.input), "EncodeBase62(%d)", tt.input)
		})
	}
}

func TestDecodeBase62(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint64
		wantErr  error
	}{
		{name: "zero", input: "0", expected: 0},
		{name: "single digit max", input: "Z", expected: 61},
		{name: "two digits", input: "10", expected: 62},
		{name: "larger number", input: "3d7", expected: 12345},
		{name: "max uint64", input: "lYGhA16ahyf", expected: 18446744073709551615},
		{name: "invalid character", input: "abc-def", wantErr: ErrInvalidCharacter},
		{name: "overflow", input: "zzzzzzzzzzzz", wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase62(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBase62RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 61, 62, 63, 3843, 3844, 1 << 20, 1 << 41, 1<<63 - 1, 1 << 63, 18446744073709551615}

	for _, v := range values {
		encoded := EncodeBase62(v)
		decoded, err := DecodeBase62(encoded)
		require.NoError(t, err, "DecodeBase62(%q)", encoded)
		assert.Equal(t, v, decoded, "round trip of %d via %q", v, encoded)
	}
}
