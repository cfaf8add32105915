package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
)

type suggestOptions struct {
	inputPath  string
	outputPath string
	format     mappingFormat
	projectID  uuid.UUID
	actor      composables.Actor
	defaults   services.Defaults
}

func newSuggestCmd(global *globalOptions) *cobra.Command {
	var opts suggestOptions
	var format, project, actor, team string

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Propose a mapping file for a task spreadsheet",
		Long: "Without --project the suggestion uses the default priorities and statuses only.\n" +
			"With --project, --actor and --team it reads the project's vocabulary and team members.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if opts.outputPath != "" {
				f, err := os.Create(opts.outputPath)
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("create output: %w", err))
				}
				defer f.Close()
				out = f
			}
			return runSuggest(cmd.Context(), out, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.inputPath, "input", "", "CSV or XLSX file with a header row (required)")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "Write the mapping here instead of stdout")
	cmd.Flags().StringVar(&format, "format", "yaml", "Mapping format: json, yaml or toml")
	cmd.Flags().StringVar(&project, "project", "", "Project UUID to suggest against")
	cmd.Flags().StringVar(&actor, "actor", "", "Acting user UUID (with --project)")
	cmd.Flags().StringVar(&team, "team", "", "Acting team UUID (with --project)")
	cmd.Flags().StringVar(&opts.defaults.Priority, "default-priority", "Medium", "Priority for values matching no rule")
	cmd.Flags().StringVar(&opts.defaults.Status, "default-status", "To Do", "Status for values matching no rule")
	_ = cmd.MarkFlagRequired("input")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		if opts.format, err = parseMappingFormat(format); err != nil {
			return withCode(exitUsage, err)
		}
		if project == "" {
			return nil
		}
		if opts.projectID, err = parseID("project", project); err != nil {
			return err
		}
		if opts.actor.UserID, err = parseID("actor", actor); err != nil {
			return err
		}
		if opts.actor.TeamID, err = parseID("team", team); err != nil {
			return err
		}
		return nil
	}
	return cmd
}

func runSuggest(ctx context.Context, out io.Writer, global *globalOptions, opts suggestOptions) error {
	table, err := readTable(opts.inputPath, 0)
	if err != nil {
		return err
	}

	var set mapping.Set
	if opts.projectID == uuid.Nil {
		set = services.SuggestOffline(table.Headers, rawRows(table), opts.defaults)
	} else {
		ctx, svc, closeFn, err := newImportService(ctx, global.connString())
		if err != nil {
			return err
		}
		defer closeFn()
		set, err = svc.Suggest(composables.WithActor(ctx, opts.actor), opts.projectID, table.Headers, rawRows(table))
		if err != nil {
			return serviceError(err)
		}
	}

	if err := encodeMapping(out, set, opts.format); err != nil {
		return withCode(exitUsage, fmt.Errorf("encode mapping: %w", err))
	}
	return nil
}
