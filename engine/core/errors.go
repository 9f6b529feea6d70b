package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStaleHandle                   = errors.New("stale handle")
	ErrOutOfRange                    = errors.New("handle index out of range")
	ErrConstruction                  = errors.New("resource construction failed")
	ErrInvalidCreateInfo             = errors.New("invalid create info")
	ErrUnsupportedRequiredCapability = errors.New("unsupported required capability")
	ErrNoSuitableQueueFamily         = errors.New("no suitable queue family")
	ErrNotInitialized                = errors.New("not initialized")
	ErrAlreadyInitialized            = errors.New("already initialized")
	ErrInvalidConfig                 = errors.New("invalid configuration")
	ErrUnknown                       = errors.New("unknown")
)

// UnsupportedCapabilityError carries every required capability the hardware
// does not expose.
type UnsupportedCapabilityError struct {
	Missing []string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedRequiredCapability, strings.Join(e.Missing, ", "))
}

func (e *UnsupportedCapabilityError) Is(target error) bool {
	return target == ErrUnsupportedRequiredCapability
}

// NoSuitableQueueFamilyError names the queue role no family could serve.
type NoSuitableQueueFamilyError struct {
	Role fmt.Stringer
}

func (e *NoSuitableQueueFamilyError) Error() string {
	return fmt.Sprintf("%s for role %s", ErrNoSuitableQueueFamily, e.Role)
}

func (e *NoSuitableQueueFamilyError) Is(target error) bool {
	return target == ErrNoSuitableQueueFamily
}
