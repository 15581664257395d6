package utils

import "fmt"

// RunAndWrapOnError runs the given function and wraps its error, if any,
// around the existing error.
func RunAndWrapOnError(runFn func() error, existingErr error) error {
	if runErr := runFn(); runErr != nil {
		if existingErr == nil {
			return runErr
		}
		return fmt.Errorf(`failed to run because "%v" with existing err "%w"`, runErr, existingErr)
	}
	return existingErr
}
