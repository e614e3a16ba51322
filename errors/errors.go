package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrSessionNotFound     = fmt.Errorf("discussion session not found")
	ErrOrchestratorFailure = fmt.Errorf("orchestrator call failed")
	ErrInvalidPayload      = fmt.Errorf("invalid event payload")
	ErrUnknownPersona      = fmt.Errorf("unknown persona type")
)
