package controller

import "errors"

var (
	// ErrMissionEnded is returned by Decision when the controller is disarmed
	// or the mission time has run out.
	ErrMissionEnded = errors.New("mission ended")

	// ErrResourcesExhausted is returned when a replenishment drives any
	// reservoir below zero.
	ErrResourcesExhausted = errors.New("all produced quantities are finished")

	ErrInvalidParameter = errors.New("invalid parameter")
)

// IsFatal reports whether err terminates the current mission run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissionEnded) || errors.Is(err, ErrResourcesExhausted)
}
