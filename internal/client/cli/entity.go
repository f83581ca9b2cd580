package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/spf13/cobra"
)

type rowView struct {
	Type            models.EntityType `json:"type"`
	ID              string            `json:"id"`
	SyncStatus      models.SyncStatus `json:"syncStatus"`
	Deleted         bool              `json:"deleted,omitempty"`
	LocalUpdatedAt  string            `json:"localUpdatedAt"`
	ServerUpdatedAt string            `json:"serverUpdatedAt,omitempty"`
	Data            json.RawMessage   `json:"data"`
}

func entityTypes() string {
	names := make([]string, 0)
	for _, k := range models.EntityKinds() {
		names = append(names, string(k.Type))
	}
	return strings.Join(names, ", ")
}

func parseEntityType(s string) (models.EntityType, error) {
	k, ok := models.KindOf(models.EntityType(s))
	if !ok || k.Reference {
		return "", fmt.Errorf("%w: unknown entity type %q (want one of %s)", common.ErrValidation, s, entityTypes())
	}
	return k.Type, nil
}

func (a *App) entityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Inspect raw stored records of any entity type",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <type> <id>",
		Short: "Show a stored record with its sync attributes, tombstones included",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				row, err := s.Row(cmd.Context(), t, args[1])
				if err != nil {
					return err
				}
				if row == nil {
					return fmt.Errorf("%s[%s]: %w", t, args[1], common.ErrNotFound)
				}
				v := rowView{
					Type:           t,
					ID:             row.ID,
					SyncStatus:     row.Meta.SyncStatus,
					Deleted:        row.Deleted,
					LocalUpdatedAt: row.Meta.LocalUpdatedAt.Format(timeLayout),
					Data:           row.Data,
				}
				if row.Meta.ServerUpdatedAt != nil {
					v.ServerUpdatedAt = row.Meta.ServerUpdatedAt.Format(timeLayout)
				}
				return a.printJSON(v)
			})
		},
	})
	return cmd
}
