package utils

import (
	"crypto/md5"
	"fmt"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// ShortID returns the first 8 hex chars of the input's hash, used for
// deterministic identifiers scoped to their input.
func ShortID(input string) string {
	return HashString(input)[:8]
}
