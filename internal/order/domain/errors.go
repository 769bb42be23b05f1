package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("items unavailable")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

type Shortfall struct {
	Item      string `json:"item"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// AvailabilityError lists every requested item that cannot be covered by stock.
type AvailabilityError struct {
	Shortfalls []Shortfall
}

func (e *AvailabilityError) Error() string {
	if len(e.Shortfalls) == 1 {
		s := e.Shortfalls[0]
		return fmt.Sprintf("items unavailable: %s requested %d, available %d", s.Item, s.Requested, s.Available)
	}
	return fmt.Sprintf("items unavailable: %d items short", len(e.Shortfalls))
}

func (e *AvailabilityError) Is(target error) bool { return target == ErrUnavailable }

type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string { return fmt.Sprintf("unknown status %q", e.Value) }

func (e *UnknownStatusError) Is(target error) bool { return target == ErrUnknownStatus }
