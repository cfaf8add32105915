package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/taskimport/pkg/configuration"
)

type globalOptions struct {
	dsn string
}

func newRootCmd() *cobra.Command {
	var global globalOptions

	cmd := &cobra.Command{
		Use:           "taskimport",
		Short:         "Task CSV import, mapping suggestions and schema tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&global.dsn, "dsn", "", "Postgres connection string (default: DB_* environment)")

	cmd.AddCommand(newImportCmd(&global))
	cmd.AddCommand(newSuggestCmd(&global))
	cmd.AddCommand(newMigrateCmd(&global))
	cmd.AddCommand(newAcceleratorsCmd(&global))
	return cmd
}

func (g *globalOptions) connString() string {
	if dsn := strings.TrimSpace(g.dsn); dsn != "" {
		return dsn
	}
	return configuration.Use().Database.Opts
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
