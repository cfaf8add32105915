package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/composables"
	"github.com/iota-uz/taskimport/pkg/eventbus"
)

var tracer = otel.Tracer("taskimport-services")

type Options struct {
	Defaults Defaults
	MaxRows  int
	// Publisher receives ImportCommittedEvent after each commit. Optional.
	Publisher eventbus.EventBus
}

// Request is one import or preview invocation.
type Request struct {
	ProjectID uuid.UUID
	Rows      []candidate.RawRow
	Mappings  mapping.Set
}

type ImportService struct {
	projects  ProjectRepository
	vocab     VocabularyRepository
	members   MemberRepository
	gate      *Gate
	resolver  *IdentityResolver
	committer *Committer
	opts      Options
}

func NewImportService(
	projects ProjectRepository,
	vocab VocabularyRepository,
	members MemberRepository,
	resolver *IdentityResolver,
	committer *Committer,
	opts Options,
) *ImportService {
	return &ImportService{
		projects:  projects,
		vocab:     vocab,
		members:   members,
		gate:      NewGate(vocab),
		resolver:  resolver,
		committer: committer,
		opts:      opts,
	}
}

// Validate runs projection and the validation gate without writing anything.
func (s *ImportService) Validate(ctx context.Context, req Request) (report.Validation, error) {
	ctx, span := tracer.Start(ctx, "taskimport.validate")
	defer span.End()

	actor, projection, err := s.prepare(ctx, &req)
	if err != nil {
		return report.Validation{}, classifyError(err)
	}

	var checked Checked
	err = inTxFn(ctx, func(txCtx context.Context) error {
		project, err := s.projects.GetForTeam(txCtx, req.ProjectID, actor.TeamID)
		if err != nil {
			return err
		}
		checked, err = s.gate.Validate(txCtx, projection, project)
		return err
	})
	if err != nil {
		return report.Validation{}, classifyError(err)
	}
	return checked.Validation, nil
}

// Import runs the whole pipeline in one transaction. Either every candidate is
// committed or nothing is.
func (s *ImportService) Import(ctx context.Context, req Request) (*report.Report, error) {
	ctx, span := tracer.Start(ctx, "taskimport.import")
	defer span.End()
	started := time.Now()

	actor, projection, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, classifyError(err)
	}
	span.SetAttributes(
		attribute.String("taskimport.project_id", req.ProjectID.String()),
		attribute.Int("taskimport.rows", len(req.Rows)),
		attribute.Int("taskimport.candidates", len(projection.Candidates)),
	)

	var out *report.Report
	var strategy string
	err = inTxFn(ctx, func(txCtx context.Context) error {
		project, err := s.projects.GetForTeam(txCtx, req.ProjectID, actor.TeamID)
		if err != nil {
			return err
		}

		checked, err := s.gate.Validate(txCtx, projection, project)
		if err != nil {
			return err
		}
		if !checked.Validation.IsValid {
			return &ValidationFailedError{Validation: checked.Validation}
		}

		resolution, err := s.resolver.Resolve(txCtx, checked.Candidates, req.Mappings, project, actor)
		if err != nil {
			return err
		}

		result, err := s.committer.Commit(txCtx, Batch{
			Project:     project,
			Actor:       actor,
			Candidates:  checked.Candidates,
			Vocabulary:  checked.Vocabulary,
			Assignments: resolution,
		})
		if err != nil {
			return err
		}
		strategy = result.Strategy

		warnings := make([]report.Issue, 0, len(checked.Validation.Warnings)+len(resolution.Warnings)+len(result.Warnings))
		warnings = append(warnings, checked.Validation.Warnings...)
		warnings = append(warnings, resolution.Warnings...)
		warnings = append(warnings, result.Warnings...)
		out = report.New(result.ImportedCount, result.TaskIDs, warnings, result.Errors, project.Name, result.Message)
		return nil
	})
	recordImport(strategy, err)

	fields := logrus.Fields{
		"project_id": req.ProjectID,
		"rows":       len(req.Rows),
		"strategy":   strategy,
		"duration":   time.Since(started),
	}
	if err != nil {
		classified := classifyError(err)
		if svcErr, ok := classified.(*ServiceError); ok && svcErr.Status >= http.StatusInternalServerError {
			fields["error"] = err.Error()
			logWithFields(ctx, logrus.ErrorLevel, "taskimport: import rolled back", fields)
		}
		return nil, classified
	}
	fields["imported"] = out.ImportedCount()
	logWithFields(ctx, logrus.InfoLevel, "taskimport: import committed", fields)

	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(ImportCommittedEvent{
			ProjectID:     req.ProjectID,
			ProjectName:   out.ProjectName(),
			ActorID:       actor.UserID,
			TeamID:        actor.TeamID,
			Strategy:      strategy,
			ImportedCount: out.ImportedCount(),
			TaskIDs:       out.InsertedTaskIDs(),
			Warnings:      len(out.Warnings()),
		})
	}
	return out, nil
}

// prepare checks caller input and projects the rows. It never touches the store.
func (s *ImportService) prepare(ctx context.Context, req *Request) (composables.Actor, Projection, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return composables.Actor{}, Projection{}, err
	}
	if req.ProjectID == uuid.Nil {
		return actor, Projection{}, newServiceError(http.StatusBadRequest, "IMPORT_PROJECT_REQUIRED", "Project ID is required", nil)
	}
	if len(req.Rows) == 0 {
		return actor, Projection{}, newServiceError(http.StatusBadRequest, "IMPORT_ROWS_REQUIRED", "Valid tasks array is required", nil)
	}
	if s.opts.MaxRows > 0 && len(req.Rows) > s.opts.MaxRows {
		return actor, Projection{}, newServiceError(http.StatusRequestEntityTooLarge, "IMPORT_TOO_MANY_ROWS",
			fmt.Sprintf("at most %d rows can be imported at once", s.opts.MaxRows), nil)
	}

	req.Mappings.Normalize()
	if err := req.Mappings.Validate(); err != nil {
		return actor, Projection{}, err
	}

	projection := ProjectRows(req.Rows, req.Mappings, s.opts.Defaults)
	recordRows("candidate", len(projection.Candidates))
	recordRows("dropped", projection.Dropped)
	return actor, projection, nil
}

// TemplateFields lists what a client needs to build mappings for a project.
type TemplateFields struct {
	ProjectName    string
	Statuses       []Status
	Priorities     []Priority
	TeamMembers    []Member
	RequiredFields []mapping.TargetField
	OptionalFields []mapping.TargetField
}

func (s *ImportService) Template(ctx context.Context, projectID uuid.UUID) (TemplateFields, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return TemplateFields{}, classifyError(err)
	}
	if projectID == uuid.Nil {
		return TemplateFields{}, newServiceError(http.StatusBadRequest, "IMPORT_PROJECT_REQUIRED", "Project ID is required", nil)
	}

	var out TemplateFields
	err = inTxFn(ctx, func(txCtx context.Context) error {
		project, err := s.projects.GetForTeam(txCtx, projectID, actor.TeamID)
		if err != nil {
			return err
		}
		out.ProjectName = project.Name
		if out.Statuses, err = s.vocab.ListStatuses(txCtx, project.ID); err != nil {
			return err
		}
		if out.Priorities, err = s.vocab.ListPriorities(txCtx); err != nil {
			return err
		}
		out.TeamMembers, err = s.members.ListTeamMembers(txCtx, project.TeamID)
		return err
	})
	if err != nil {
		return TemplateFields{}, classifyError(err)
	}
	out.RequiredFields = append([]mapping.TargetField(nil), mapping.RequiredFields...)
	out.OptionalFields = append([]mapping.TargetField(nil), mapping.OptionalFields...)
	return out, nil
}
