// Package shortid produces the short identifiers handed out by the
// shortener. It contains the base62 codec shared by the counter and
// snowflake strategies and the pluggable allocator implementations.
package shortid

import (
	"errors"
	"math"
)

// Base62 character set: digits, lowercase, uppercase. The order matters:
// encoded identifiers are part of the public URL space and must stay stable.
const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const base = 62

var (
	// ErrInvalidCharacter is returned when decoding input that contains a
	// character outside the base62 alphabet.
	ErrInvalidCharacter = errors.New("invalid character in base62 string")

	// ErrOverflow is returned when a decoded value exceeds the uint64 range.
	ErrOverflow = errors.New("decoded value exceeds uint64 range")
)

var charToValue [256]int16

func init() {
	for i := range charToValue {
		charToValue[i] = -1
	}
	for i := 0; i < len(base62Chars); i++ {
		charToValue[base62Chars[i]] = int16(i)
	}
}

// EncodeBase62 encodes a number as a base62 string using positional
// encoding. Zero encodes to "0".
func EncodeBase62(num uint64) string {
	if num == 0 {
		return "0"
	}

	buf := make([]byte, 0, 11) // 11 chars cover the full uint64 range
	for num > 0 {
		buf = append(buf, base62Chars[num%base])
		num /= base
	}

	// Digits were emitted least-significant first.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// DecodeBase62 decodes a base62 string back to the integer it encodes.
func DecodeBase62(s string) (uint64, error) {
	var result uint64
	for i := 0; i < len(s); i++ {
		v := charToValue[s[i]]
		if v < 0 {
			return 0, ErrInvalidCharacter
		}
		if result > (math.MaxUint64-uint64(v))/base {
			return 0, ErrOverflow
		}
		result = result*base + uint64(v)
	}
	return result, nil
}
