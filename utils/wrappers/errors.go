// Package wrappers provides small aggregation helpers for the shutdown
// path.
package wrappers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Errs collects errors from a sequence of steps that should all run even
// if an earlier one fails, such as persisting the routing-table cache
// and closing storage during Node.Stop.
type Errs struct {
	mu   sync.RWMutex
	errs []error
}

// Add appends err to the collection. A nil err is a no-op, so callers
// can unconditionally Add the result of every step without an if.
func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Errored reports whether any error has been added.
func (e *Errs) Errored() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs) > 0
}

// Err returns nil if no errors were added, the lone error if exactly
// one was added, or a combined error describing all of them.
func (e *Errs) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return errors.New(e.String())
	}
}

// String renders every collected error as a bulleted list.
func (e *Errs) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.errs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error", len(e.errs)))
	if len(e.errs) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(" occurred:")
	for _, err := range e.errs {
		sb.WriteString("\n\t* ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Len returns the number of errors collected.
func (e *Errs) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.errs)
}
