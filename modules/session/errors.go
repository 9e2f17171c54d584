package session

import (
	"errors"
	"fmt"
)

// ErrQuit is the teardown cause when the user asked to quit.
var ErrQuit = errors.New("session: quit requested")

// ConfigurationError reports an invalid session setting. It is returned by
// New, before any goroutine is started.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session: invalid %s: %s", e.Field, e.Reason)
}
