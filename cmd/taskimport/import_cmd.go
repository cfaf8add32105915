package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/taskimport/modules/taskimport"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/modules/taskimport/services"
	"github.com/iota-uz/taskimport/pkg/composables"
	"github.com/iota-uz/taskimport/pkg/configuration"
)

type importOptions struct {
	projectID   uuid.UUID
	actor       composables.Actor
	inputPath   string
	mappingPath string
	apply       bool
}

type importResult struct {
	DryRun          bool           `json:"dry_run"`
	Message         string         `json:"message,omitempty"`
	ImportedCount   int            `json:"imported_count"`
	InsertedTaskIDs []uuid.UUID    `json:"inserted_task_ids,omitempty"`
	Warnings        []report.Issue `json:"warnings"`
	Errors          []report.Issue `json:"errors"`
	ProjectName     string         `json:"project_name,omitempty"`
	TotalTasks      int            `json:"total_tasks,omitempty"`
	ValidTasks      int            `json:"valid_tasks,omitempty"`
}

// importService is the part of services.ImportService the commands drive.
type importService interface {
	Validate(ctx context.Context, req services.Request) (report.Validation, error)
	Import(ctx context.Context, req services.Request) (*report.Report, error)
	Suggest(ctx context.Context, projectID uuid.UUID, headers []string, rows []candidate.RawRow) (mapping.Set, error)
}

// newImportService connects and returns ctx carrying the pool the service's
// transactions begin from.
var newImportService = func(ctx context.Context, dsn string) (context.Context, importService, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, nil, withCode(exitDB, fmt.Errorf("connect: %w", err))
	}
	svc := taskimport.NewImportService(configuration.Use().Import, nil)
	return composables.WithPool(ctx, pool), svc, pool.Close, nil
}

func newImportCmd(global *globalOptions) *cobra.Command {
	var opts importOptions
	var project, actor, team string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a task file against a project and optionally import it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), global.connString(), opts)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Target project UUID (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "Acting user UUID (required)")
	cmd.Flags().StringVar(&team, "team", "", "Acting team UUID (required)")
	cmd.Flags().StringVar(&opts.inputPath, "input", "", "CSV or XLSX file with a header row (required)")
	cmd.Flags().StringVar(&opts.mappingPath, "mapping", "", "Mapping file: .json, .yaml or .toml (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write tasks (default is dry-run validation)")

	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("mapping")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
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

func parseID(flag, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid --%s: %q", flag, raw))
	}
	return id, nil
}

func runImport(ctx context.Context, out io.Writer, dsn string, opts importOptions) error {
	set, err := readMapping(opts.mappingPath)
	if err != nil {
		return err
	}
	table, err := readTable(opts.inputPath, 0)
	if err != nil {
		return err
	}

	ctx, svc, closeFn, err := newImportService(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx = composables.WithActor(ctx, opts.actor)
	req := services.Request{ProjectID: opts.projectID, Rows: rawRows(table), Mappings: set}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"project": opts.projectID,
		"rows":    len(req.Rows),
		"apply":   opts.apply,
	})

	if !opts.apply {
		validation, err := svc.Validate(ctx, req)
		if err != nil {
			return serviceError(err)
		}
		if err := writeJSON(out, importResult{
			DryRun:     true,
			Warnings:   nonNil(validation.Warnings),
			Errors:     nonNil(validation.Errors),
			TotalTasks: validation.TotalTasks,
			ValidTasks: validation.ValidTasks,
		}); err != nil {
			return err
		}
		if !validation.IsValid {
			return withCode(exitValidation, fmt.Errorf("validation failed with %d errors", len(validation.Errors)))
		}
		logger.Info("dry-run passed")
		return nil
	}

	rep, err := svc.Import(ctx, req)
	if err != nil {
		var valErr *services.ValidationFailedError
		if errors.As(err, &valErr) {
			_ = writeJSON(out, importResult{
				Warnings: nonNil(valErr.Validation.Warnings),
				Errors:   nonNil(valErr.Validation.Errors),
			})
		}
		return serviceError(err)
	}
	logger.WithField("imported", rep.ImportedCount()).Info("import committed")
	return writeJSON(out, importResult{
		Message:         rep.Message(),
		ImportedCount:   rep.ImportedCount(),
		InsertedTaskIDs: rep.InsertedTaskIDs(),
		Warnings:        nonNil(rep.Warnings()),
		Errors:          nonNil(rep.Errors()),
		ProjectName:     rep.ProjectName(),
	})
}

func nonNil(in []report.Issue) []report.Issue {
	if in == nil {
		return []report.Issue{}
	}
	return in
}
