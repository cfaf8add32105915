package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/taskimport/modules/taskimport"
	"github.com/iota-uz/taskimport/pkg/logging"
	"github.com/iota-uz/taskimport/pkg/migrations"
)

var openDB = migrations.Open

func connectDB(global *globalOptions) (*sqlx.DB, error) {
	db, err := openDB(global.connString())
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return db, nil
}

func newMigrateCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the task import schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectDB(global)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := migrations.NewRunner(db, taskimport.MigrationFiles(), logging.ConsoleLogger(logrus.InfoLevel)).Up(cmd.Context())
			if err != nil {
				return withCode(exitDBWrite, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectDB(global)
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := migrations.NewRunner(db, taskimport.MigrationFiles(), logging.ConsoleLogger(logrus.InfoLevel)).Status(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tPATH")
			for _, s := range statuses {
				state, at := "pending", "-"
				if s.Applied {
					state, at = "applied", s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.Path)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newAcceleratorsCmd(global *globalOptions) *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "accelerators",
		Short: "Inspect or install the optional server-side import routines",
	}
	cmd.PersistentFlags().StringVar(&schema, "schema", "public", "Schema holding the routines")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report which routines are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scripts, err := taskimport.AcceleratorScripts()
			if err != nil {
				return err
			}
			db, err := connectDB(global)
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := migrations.NewInspector(db, schema).Routines(cmd.Context(), routineNames(scripts)...)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeRoutineStatuses(cmd.OutOrStdout(), schema, statuses)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Create or replace the routines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scripts, err := taskimport.AcceleratorScripts()
			if err != nil {
				return err
			}
			db, err := connectDB(global)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.NewInspector(db, schema).Install(cmd.Context(), scripts); err != nil {
				return withCode(exitDBWrite, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %d routines into %s\n", len(scripts), schema)
			return nil
		},
	})
	return cmd
}

func routineNames(scripts map[string]string) []string {
	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeRoutineStatuses(out io.Writer, schema string, statuses []migrations.RoutineStatus) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTINE\tSTATE")
	for _, s := range statuses {
		state := "missing"
		if s.Installed {
			state = "installed"
		}
		fmt.Fprintf(w, "%s.%s\t%s\n", schema, s.Routine, state)
	}
	return w.Flush()
}
