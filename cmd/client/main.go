package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/medsync/internal/client/cli"
)

func main() {
	root := cli.NewRootCommand(cli.DefaultDeps())
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
