package application

import (
	"context"
	"errors"
	"fmt"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Error classes every use case maps its failures onto. Transports match them with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStoreClosed  = errors.New("store is closed")
	ErrPersistence  = errors.New("persistence failure")
	ErrProvider     = errors.New("payment provider failure")
)

// NewValidation returns an ErrInvalidInput carrying msg.
func NewValidation(msg string) error {
	return fmt.Errorf("validation: %w: %s", ErrInvalidInput, msg)
}

// Invalid classifies a domain validation error as ErrInvalidInput, keeping the cause.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("validation: %w: %w", ErrInvalidInput, err)
}
