package session

import (
	"context"
	"time"
)

// Backend persists encoded session values for the server-side Store.
type Backend interface {
	// Load returns the data saved for id. If there is none, or it has
	// expired, an error satisfying IsNotFoundErr is returned.
	Load(ctx context.Context, id string) ([]byte, error)
	// Save stores data for id. A zero ttl keeps it until deleted.
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Close releases the backend's resources.
	Close() error
}

type errNotFound interface {
	NotFoundErr()
}

// IsNotFoundErr checks to see if the passed error is because the session was
// not found, as opposed to an actual error state. Errors comply to this if
// they have a `NotFoundErr()` method.
func IsNotFoundErr(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

type notFoundError struct {
	error
}

func (*notFoundError) NotFoundErr() {}
