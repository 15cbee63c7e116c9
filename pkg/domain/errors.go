package domain

import "errors"

// Sentinel errors for expected not-found and timeout conditions. Callers
// match these with errors.Is rather than inspecting message text.
var (
	ErrWorkerNotFound  = errors.New("worker not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrAwaitTimeout    = errors.New("job await timed out")
	ErrProfileNotFound = errors.New("worker profile not found")
	ErrModelUnresolved = errors.New("model spec could not be resolved")
)
