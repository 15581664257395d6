package service

import "context"

// Service is a long-running component of the process.
type Service interface {
	// Run starts the service. It blocks until ctx is cancelled or the
	// service encounters an error it cannot recover from.
	Run(ctx context.Context) error
}
