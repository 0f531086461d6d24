package reconcile

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// Messages returned to clients. Causes are logged, never sent.
const (
	SyncFailedMessage  = "There was an error syncing the data changes."
	InvalidBodyMessage = "Invalid request body."
)

var (
	// ErrMalformed marks a request rejected before any change was applied.
	ErrMalformed = errors.New("malformed request")
	// ErrUnsupported marks an operation the backend does not serve.
	ErrUnsupported = errors.New("operation not supported by backend")
)

func malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}

// LoadError reports the collection whose snapshot could not be read.
type LoadError struct {
	Collection string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Collection, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Message is the client-facing description of the failure.
func (e *LoadError) Message() string {
	return fmt.Sprintf("There was an error loading the %s data.", e.Collection)
}

// MissingRowError is returned by strict updates when the target row is gone.
type MissingRowError struct {
	Singular string
	Key      store.Key
}

func (e *MissingRowError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Singular, e.Key)
}

func (e *MissingRowError) Unwrap() error { return store.ErrNotFound }

// InputError rejects a CRUD request whose payload is empty. It wraps
// ErrMalformed.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrMalformed }

// CRUDError reports a failed CRUD call on a collection.
type CRUDError struct {
	Op         string // read, create, update or delete
	Collection string
	Err        error
}

func (e *CRUDError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *CRUDError) Unwrap() error { return e.Err }

// Message is the client-facing description of the failure.
func (e *CRUDError) Message() string {
	name := e.Collection
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	if e.Op == "read" {
		return fmt.Sprintf("%s data could not be read.", name)
	}
	return fmt.Sprintf("%s could not be %sd.", name, e.Op)
}
