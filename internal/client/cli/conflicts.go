package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/services"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/spf13/cobra"
)

func (a *App) conflictsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review and resolve sync conflicts",
	}
	cmd.AddCommand(a.conflictsListCommand(), a.conflictsShowCommand(), a.conflictsResolveCommand())
	return cmd
}

func (a *App) conflictsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				list, err := services.NewConflictService(s, nil, a.logger).ListUnresolved(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					a.printf("no unresolved conflicts\n")
					return nil
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tENTITY\tSERVER")
				for _, c := range list {
					server := "changed"
					if c.ServerDeleted() {
						server = "deleted"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.CreatedAt.Format(timeLayout), c.EntityType, c.EntityID, server)
				}
				return tw.Flush()
			})
		},
	}
}

func (a *App) conflictsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show both versions of a conflicted record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				c, err := services.NewConflictService(s, nil, a.logger).Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printJSON(c)
			})
		},
	}
}

func (a *App) conflictsResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "resolve <id> <local|server|merged>",
		Short:     "Resolve a conflict by keeping the local, server or merged version",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.ResolutionLocal), string(models.ResolutionServer), string(models.ResolutionMerged)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				svc := services.NewConflictService(s, nil, a.logger)
				if err := svc.Resolve(cmd.Context(), args[0], models.Resolution(args[1])); err != nil {
					return err
				}
				a.printf("conflict %s resolved (%s)\n", args[0], args[1])
				return nil
			})
		},
	}
}
