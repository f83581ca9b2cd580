package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/spf13/cobra"
)

func (a *App) queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and requeue pending mutations",
	}
	cmd.AddCommand(a.queueListCommand(), a.queueCountCommand(), a.queueRequeueCommand())
	return cmd
}

func (a *App) queueListCommand() *cobra.Command {
	var dead bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				var (
					items []models.QueueItem
					err   error
				)
				if dead {
					items, err = s.Repos().Queue.ListDead(cmd.Context())
				} else {
					items, err = s.Repos().Queue.List(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(items) == 0 {
					a.printf("queue is empty\n")
					return nil
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tENTITY\tACTION\tSTATUS\tATTEMPTS\tLAST ERROR")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						it.ID, it.CreatedAt.Format(timeLayout), it.EntityType, it.EntityID,
						it.Action, it.Status, it.Attempts, it.LastError)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&dead, "dead", false, "only dead-lettered items")
	return cmd
}

func (a *App) queueCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued mutations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				n, err := s.Repos().Queue.Count(cmd.Context())
				if err != nil {
					return err
				}
				dead, err := s.Repos().Queue.CountDead(cmd.Context())
				if err != nil {
					return err
				}
				a.printf("%d pending (%d dead)\n", n, dead)
				return nil
			})
		},
	}
}

func (a *App) queueRequeueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [id]",
		Short: "Return a dead-lettered item, or all of them, to the queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				if len(args) == 1 {
					if err := s.Requeue(cmd.Context(), args[0]); err != nil {
						return err
					}
					a.printf("requeued %s\n", args[0])
					return nil
				}
				n, err := s.RequeueDead(cmd.Context())
				if err != nil {
					return err
				}
				a.printf("requeued %d items\n", n)
				return nil
			})
		},
	}
}
