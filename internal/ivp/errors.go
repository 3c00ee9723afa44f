package ivp

import "errors"

// Domain errors for IVP solving.
var (
	// ErrConfiguration indicates an invalid solve setup: an unknown
	// stepping method, a bad time grid, or a right-hand side whose output
	// does not match the initial state.
	ErrConfiguration = errors.New("ivp: invalid configuration")

	// ErrNonConvergence indicates an adaptive stepper exhausted its step
	// budget before satisfying its tolerance. Never retried.
	ErrNonConvergence = errors.New("ivp: adaptive stepper failed to converge")
)
