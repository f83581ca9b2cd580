// Package repomanager wires the authority's repositories to a backend,
// PostgreSQL or memory, and runs units of work against them.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/reference"
)

// Repositories is the set of repositories bound to one handle, either the
// shared connection or a transaction.
type Repositories struct {
	Records   records.Repository
	Reference reference.Repository
}

type RepositoryManager interface {
	Repos() Repositories
	// InTx runs fn as one unit of work. Changes are kept only if fn
	// returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
