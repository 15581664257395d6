package db

import "fmt"

// CloseAndWrapOnError runs closeFn and wraps any error it returns around the
// existing error. Meant to be deferred with a named error return.
func CloseAndWrapOnError(closeFn func() error, existingErr *error) {
	if closeErr := closeFn(); closeErr != nil {
		if *existingErr == nil {
			*existingErr = closeErr
			return
		}
		*existingErr = fmt.Errorf(`failed to close because "%v" with existing err "%w"`,
			closeErr, *existingErr)
	}
}

// UpperBound returns the smallest key that is lexicographically greater than
// every key carrying the given prefix. A nil return means no such key exists.
func UpperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			upper := make([]byte, i+1)
			copy(upper, prefix)
			upper[i]++
			return upper
		}
	}
	return nil
}
