package gql

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrStreamerDoesNotExist is returned when a login resolves to no user.
// Callers remove the streamer from the active set.
var ErrStreamerDoesNotExist = errors.New("streamer does not exist")

// RetryError wraps every per-attempt error of an operation whose attempt
// budget ran out.
type RetryError struct {
	OperationName string
	Errors        []error
}

func (e *RetryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed after %d attempts:", e.OperationName, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n\tattempt %d: %v", i+1, err)
	}
	return b.String()
}

func (e *RetryError) Unwrap() []error { return e.Errors }

// ServerError is a non-transport error reported in a response's errors
// array. Whether it is worth another attempt depends on its message.
type ServerError struct {
	OperationName string
	Message       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error: %s", e.OperationName, e.Message)
}

// recoverableMessages are the server error messages known to be transient.
// Any other message aborts the attempt loop immediately.
var recoverableMessages = map[string]bool{
	"service timeout":     true,
	"service unavailable": true,
	"server error":        true,
	"context deadline exceeded": true,
}

// recoverable reports whether every error message in the batch is one a
// retry can fix.
func recoverable(messages []string) bool {
	if len(messages) == 0 {
		return false
	}
	for _, msg := range messages {
		if !recoverableMessages[strings.ToLower(strings.TrimSpace(msg))] {
			return false
		}
	}
	return true
}

// errorLogLimiterTTL bounds how often the same (operation, message) pair is
// logged. Twitch failures come in bursts; one line a minute is plenty.
const errorLogLimiterTTL = 60 * time.Second

// errorLogLimiter deduplicates repeated error log lines per operation and
// message.
type errorLogLimiter struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newErrorLogLimiter() *errorLogLimiter {
	return &errorLogLimiter{seen: make(map[string]time.Time)}
}

// allow reports whether this (operation, message) pair should be logged now
// and records the decision.
func (l *errorLogLimiter) allow(operation, message string) bool {
	key := operation + "\x00" + message
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.seen[key]; ok && now.Sub(last) < errorLogLimiterTTL {
		return false
	}
	l.seen[key] = now

	// Opportunistic sweep so the map does not grow without bound.
	if len(l.seen) > 256 {
		for k, t := range l.seen {
			if now.Sub(t) >= errorLogLimiterTTL {
				delete(l.seen, k)
			}
		}
	}
	return true
}
