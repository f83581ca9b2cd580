// Package reference stores the read-only reference data (staff, branches,
// price lists) the authority hands out with every pull.
package reference

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/medsync/internal/server/models"
)

type Repository interface {
	// ReplaceAll swaps the whole snapshot of kind for items.
	ReplaceAll(ctx context.Context, kind string, items []models.ReferenceItem) error
	// ListAll returns every kind's items ordered by id.
	ListAll(ctx context.Context) (map[string][]json.RawMessage, error)
}
