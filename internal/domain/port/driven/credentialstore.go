package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/keyhold/internal/domain/model"
)

// ErrNotFound is returned by CredentialStore operations that reference an id
// the store does not hold.
var ErrNotFound = errors.New("credential not found")

// CredentialStore defines the driven port for credential persistence. Every
// mutation is persisted before the method returns.
type CredentialStore interface {
	// List returns all credentials in insertion order.
	List(ctx context.Context) ([]model.Credential, error)

	// Create assigns the next id, stores the credential and returns it.
	Create(ctx context.Context, fields model.CredentialFields) (model.Credential, error)

	// Update merges patch into the credential with the given id and returns
	// the merged result. Returns ErrNotFound if no such credential exists.
	Update(ctx context.Context, id int64, patch model.CredentialPatch) (model.Credential, error)

	// Delete removes the credential with the given id. Returns ErrNotFound if
	// no such credential exists.
	Delete(ctx context.Context, id int64) error
}
