// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers for text primary keys.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Storage Port
// -----------------------------------------------------------------------------

// Storage is the capability contract a persistence backend must satisfy.
// Every call is parametrized by the Model Descriptor of the resource it
// touches; implementations hold no per-request state beyond connection
// pooling. Failures are reported with the rest error taxonomy:
// rest.ErrNotFound for a missing record, *rest.ConstraintViolation for a
// unique-constraint breach.
type Storage interface {
	// Bind prepares the backend for a resource (creates the table if the
	// backend has tables). Called once per descriptor during registration.
	Bind(ctx context.Context, d *model.Descriptor) error

	// Insert stores a new record and returns it with the generated key.
	Insert(ctx context.Context, d *model.Descriptor, fields model.Record) (model.Record, error)

	// Get retrieves one record by primary key.
	Get(ctx context.Context, d *model.Descriptor, key any) (model.Record, error)

	// List retrieves every record, ordered by primary key ascending.
	// Ordering beyond that is a backend detail, not contracted.
	List(ctx context.Context, d *model.Descriptor) ([]model.Record, error)

	// Replace overwrites every non-key field of an existing record.
	Replace(ctx context.Context, d *model.Descriptor, key any, fields model.Record) (model.Record, error)

	// Merge mutates only the supplied fields of an existing record.
	Merge(ctx context.Context, d *model.Descriptor, key any, partial model.Record) (model.Record, error)

	// Delete removes a record, reporting whether it existed.
	Delete(ctx context.Context, d *model.Descriptor, key any) (bool, error)

	// Close releases the connection pool.
	Close() error
}

// -----------------------------------------------------------------------------
// Auth Port
// -----------------------------------------------------------------------------

// Authenticator is consulted by the dispatcher before every operation on a
// non-exempt route. It yields the authenticated identity or an error; the
// dispatcher maps any error to 401 via rest.ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, req rest.Request) (identity string, err error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, req rest.Request) (string, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req rest.Request) (string, error) {
	return f(ctx, req)
}

// Hasher abstracts password hashing for the credentials helper.
type Hasher interface {
	// Hash generates a hash from plaintext.
	Hash(plaintext string) ([]byte, error)
	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}
