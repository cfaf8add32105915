package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/pkg/composables"
)

const (
	StrategyAccelerated = "accelerated"
	StrategyDirect      = "direct"
)

var (
	inTxFn        = composables.InTx
	inSavepointFn = composables.InSavepoint
)

// Batch is everything a commit strategy needs. It is built once per import.
type Batch struct {
	Project     Project
	Actor       composables.Actor
	Candidates  []candidate.Task
	Vocabulary  Vocabulary
	Assignments Resolution
}

// CommitResult is the strategy-neutral outcome of a successful attempt.
type CommitResult struct {
	Strategy      string
	ImportedCount int
	TaskIDs       []uuid.UUID
	Warnings      []report.Issue
	Errors        []report.Issue
	Message       string
}

// CommitStrategy writes a batch inside the transaction carried by ctx.
type CommitStrategy interface {
	Name() string
	Available(ctx context.Context) (bool, error)
	Attempt(ctx context.Context, batch Batch) (CommitResult, error)
}

// Committer tries the accelerated strategy in a savepoint and falls back to the
// direct strategy in the same transaction.
type Committer struct {
	accelerated CommitStrategy
	direct      CommitStrategy
}

func NewCommitter(accelerated, direct CommitStrategy) *Committer {
	return &Committer{accelerated: accelerated, direct: direct}
}

func (c *Committer) Commit(ctx context.Context, batch Batch) (CommitResult, error) {
	if c.accelerated != nil {
		result, reason, err := c.tryAccelerated(ctx, batch)
		if err == nil && reason == "" {
			return result, nil
		}
		recordFallback(reason)
		fields := logrus.Fields{
			"project_id": batch.Project.ID,
			"strategy":   c.accelerated.Name(),
			"reason":     reason,
		}
		level := logrus.DebugLevel
		if err != nil {
			fields["error"] = err.Error()
			level = logrus.WarnLevel
		}
		logWithFields(ctx, level, "taskimport: falling back to direct insert", fields)
	}

	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	started := time.Now()
	result, err := c.direct.Attempt(ctx, batch)
	observeCommit(c.direct.Name(), started)
	if err != nil {
		return CommitResult{}, err
	}
	result.Strategy = c.direct.Name()
	return result, nil
}

func (c *Committer) tryAccelerated(ctx context.Context, batch Batch) (CommitResult, string, error) {
	var available bool
	err := inSavepointFn(ctx, func(spCtx context.Context) error {
		var err error
		available, err = c.accelerated.Available(spCtx)
		return err
	})
	if err != nil {
		return CommitResult{}, "probe_error", err
	}
	if !available {
		return CommitResult{}, "unavailable", nil
	}

	started := time.Now()
	var result CommitResult
	err = inSavepointFn(ctx, func(spCtx context.Context) error {
		var err error
		result, err = c.accelerated.Attempt(spCtx, batch)
		return err
	})
	observeCommit(c.accelerated.Name(), started)
	if err != nil {
		return CommitResult{}, "attempt_failed", err
	}
	result.Strategy = c.accelerated.Name()
	return result, "", nil
}

// DirectStrategy inserts candidates one by one in source order.
type DirectStrategy struct {
	tasks    TaskRepository
	vocab    VocabularyRepository
	defaults Defaults
}

func NewDirectStrategy(tasks TaskRepository, vocab VocabularyRepository, defaults Defaults) *DirectStrategy {
	return &DirectStrategy{tasks: tasks, vocab: vocab, defaults: defaults}
}

func (s *DirectStrategy) Name() string { return StrategyDirect }

func (s *DirectStrategy) Available(context.Context) (bool, error) { return true, nil }

func (s *DirectStrategy) Attempt(ctx context.Context, batch Batch) (CommitResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("taskimport.direct.candidates", len(batch.Candidates)))

	vocab := batch.Vocabulary
	if vocab.Empty() {
		priorities := append(distinctValues(batch.Candidates, func(t candidate.Task) string { return t.Priority }), vocabKey(s.defaults.Priority))
		statuses := append(distinctValues(batch.Candidates, func(t candidate.Task) string { return t.Status }), vocabKey(s.defaults.Status))
		var err error
		vocab, err = s.vocab.Lookup(ctx, batch.Project.ID, uniqueStrings(priorities), uniqueStrings(statuses))
		if err != nil {
			return CommitResult{}, fmt.Errorf("vocabulary lookup: %w", err)
		}
	}

	sortOrder, err := s.tasks.NextSortOrder(ctx, batch.Project.ID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("next sort order: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(batch.Candidates))
	for _, c := range batch.Candidates {
		if err := ctx.Err(); err != nil {
			return CommitResult{}, err
		}
		if c.Name == "" {
			continue
		}

		priorityID, ok := s.resolve(vocab.PriorityID, c.Priority, s.defaults.Priority)
		if !ok {
			return CommitResult{}, fmt.Errorf("row %d: %w: priority %q", c.SourceRow, ErrUnknownVocabName, c.Priority)
		}
		statusID, ok := s.resolve(vocab.StatusID, c.Status, s.defaults.Status)
		if !ok {
			return CommitResult{}, fmt.Errorf("row %d: %w: status %q", c.SourceRow, ErrUnknownVocabName, c.Status)
		}

		id, err := s.tasks.Insert(ctx, TaskInsert{
			ID:          c.ID,
			ProjectID:   batch.Project.ID,
			Name:        c.Name,
			Description: c.Description,
			PriorityID:  priorityID,
			StatusID:    statusID,
			SortOrder:   sortOrder,
			StartDate:   c.StartAt,
			DueDate:     c.DueAt,
			ReporterID:  batch.Actor.UserID,
		})
		if err != nil {
			return CommitResult{}, fmt.Errorf("row %d: insert task: %w", c.SourceRow, err)
		}
		sortOrder++

		if a, ok := batch.Assignments.For(c.Assignee); ok {
			if err := s.tasks.InsertAssignee(ctx, id, a.ProjectMemberID, a.TeamMemberID, batch.Actor.UserID); err != nil {
				return CommitResult{}, fmt.Errorf("row %d: assign task: %w", c.SourceRow, err)
			}
		}
		ids = append(ids, id)
	}

	return CommitResult{
		ImportedCount: len(ids),
		TaskIDs:       ids,
		Message:       fmt.Sprintf("Successfully imported %d tasks to %s", len(ids), batch.Project.Name),
	}, nil
}

func (s *DirectStrategy) resolve(lookup func(string) (uuid.UUID, bool), name, fallback string) (uuid.UUID, bool) {
	if name == "" {
		name = fallback
	}
	return lookup(name)
}

// AcceleratedStrategy hands the whole batch to a server-side routine.
type AcceleratedStrategy struct {
	gateway AcceleratorRepository
	cache   *CapabilityCache
	routine string
	enabled bool
}

func NewAcceleratedStrategy(gateway AcceleratorRepository, cache *CapabilityCache, routine string, enabled bool) *AcceleratedStrategy {
	return &AcceleratedStrategy{gateway: gateway, cache: cache, routine: routine, enabled: enabled}
}

func (s *AcceleratedStrategy) Name() string { return StrategyAccelerated }

func (s *AcceleratedStrategy) Available(ctx context.Context) (bool, error) {
	if !s.enabled || s.gateway == nil {
		return false, nil
	}
	return s.cache.Available(ctx, s.routine, s.gateway.RoutineExists)
}

func (s *AcceleratedStrategy) Attempt(ctx context.Context, batch Batch) (CommitResult, error) {
	payload, err := encodeAcceleratedBatch(batch)
	if err != nil {
		return CommitResult{}, err
	}
	raw, err := s.gateway.CallTasksRoutine(ctx, s.routine, batch.Project.ID, payload, batch.Actor.UserID)
	if err != nil {
		return CommitResult{}, err
	}
	return decodeAcceleratedResult(raw)
}
