package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/spf13/cobra"
)

func parseReferenceType(s string) (models.EntityType, error) {
	k, ok := models.KindOf(models.EntityType(s))
	if !ok || !k.Reference {
		names := make([]string, 0)
		for _, rk := range models.ReferenceKinds() {
			names = append(names, string(rk.Type))
		}
		return "", fmt.Errorf("%w: unknown reference type %q (want one of %s)", common.ErrValidation, s, strings.Join(names, ", "))
	}
	return k.Type, nil
}

func listReference(ctx context.Context, s *store.Store, t models.EntityType) (any, error) {
	switch t {
	case models.TypeStaff:
		return store.ListReference[models.Staff](ctx, s, t)
	case models.TypeHospital:
		return store.ListReference[models.Hospital](ctx, s, t)
	case models.TypeBranch:
		return store.ListReference[models.Branch](ctx, s, t)
	default:
		return store.ListReference[models.Role](ctx, s, t)
	}
}

func getReference[T any](ctx context.Context, s *store.Store, t models.EntityType, id string) (any, error) {
	v, ok, err := store.GetReference[T](ctx, s, t, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s[%s]: %w", t, id, common.ErrNotFound)
	}
	return v, nil
}

func (a *App) referenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Read the reference data copied from the server (staff, hospital, branch, role)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <type>",
			Short: "List every stored record of a reference type",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := parseReferenceType(args[0])
				if err != nil {
					return err
				}
				return a.withStore(cmd.Context(), func(s *store.Store) error {
					list, err := listReference(cmd.Context(), s, t)
					if err != nil {
						return err
					}
					return a.printJSON(list)
				})
			},
		},
		&cobra.Command{
			Use:   "get <type> <id>",
			Short: "Show one reference record",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := parseReferenceType(args[0])
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				return a.withStore(ctx, func(s *store.Store) error {
					var v any
					switch t {
					case models.TypeStaff:
						v, err = getReference[models.Staff](ctx, s, t, args[1])
					case models.TypeHospital:
						v, err = getReference[models.Hospital](ctx, s, t, args[1])
					case models.TypeBranch:
						v, err = getReference[models.Branch](ctx, s, t, args[1])
					default:
						v, err = getReference[models.Role](ctx, s, t, args[1])
					}
					if err != nil {
						return err
					}
					return a.printJSON(v)
				})
			},
		},
	)
	return cmd
}
