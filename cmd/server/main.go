package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/medsync/internal/server"
	"github.com/dmitrijs2005/medsync/internal/server/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "medsync-server",
		Short:         "Authority server for medsync workstations",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			app, err := server.NewApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
