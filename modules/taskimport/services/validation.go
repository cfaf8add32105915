package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
)

// Gate decides whether a projection may be committed.
type Gate struct {
	vocab VocabularyRepository
}

func NewGate(vocab VocabularyRepository) *Gate {
	return &Gate{vocab: vocab}
}

// Checked is the gate output. Candidates carry parsed dates and ids.
type Checked struct {
	Validation report.Validation
	Vocabulary Vocabulary
	Candidates []candidate.Task
}

// Validate runs the local checks and one batched vocabulary lookup. It never writes.
func (g *Gate) Validate(ctx context.Context, projection Projection, project Project) (Checked, error) {
	candidates := make([]candidate.Task, len(projection.Candidates))
	copy(candidates, projection.Candidates)

	var errs, warnings []report.Issue
	badRows := make(map[int]struct{})
	fail := func(issue report.Issue) {
		errs = append(errs, issue)
		if issue.Row > 0 {
			badRows[issue.Row] = struct{}{}
		}
	}

	if len(candidates) == 0 {
		fail(report.Issue{Type: report.IssueNoTasks, Field: "name", Message: "No tasks with a name were found"})
	}

	for _, d := range projection.Defects {
		switch d.Kind {
		case candidate.DefectUnmappedValue:
			for _, row := range d.Rows {
				fail(report.Issue{
					Type:    report.IssueUnmappedValue,
					Field:   d.Field,
					Row:     row,
					Value:   d.Value,
					Message: fmt.Sprintf("%s value %q has no mapping", d.Field, d.Value),
				})
			}
		case candidate.DefectDuplicateMapping:
			warnings = append(warnings, report.Issue{
				Type:    report.IssueDuplicateMapping,
				Field:   d.Field,
				Value:   d.Value,
				Message: fmt.Sprintf("column %q ignored: %s is already mapped", d.Value, d.Field),
			})
		}
	}

	seenIDs := make(map[uuid.UUID]int)
	for i := range candidates {
		c := &candidates[i]
		if strings.TrimSpace(c.Name) == "" {
			fail(report.Issue{Type: report.IssueMissingName, Field: "name", Row: c.SourceRow, Message: "Task name is required"})
		}

		if c.DueDate != "" {
			if t, err := parseDate(c.DueDate); err != nil {
				fail(dateIssue(*c, "dueDate", c.DueDate))
			} else {
				c.DueAt = &t
			}
		}
		if c.StartDate != "" {
			if t, err := parseDate(c.StartDate); err != nil {
				fail(dateIssue(*c, "startDate", c.StartDate))
			} else {
				c.StartAt = &t
			}
		}
		if c.StartAt != nil && c.DueAt != nil && c.StartAt.After(*c.DueAt) {
			warnings = append(warnings, report.Issue{
				Type:     report.IssueDateOrder,
				Field:    "startDate",
				Row:      c.SourceRow,
				TaskName: c.Name,
				Message:  "Start date is after due date",
			})
		}

		if c.SuggestedID != "" {
			id, ok := canonicalUUID(c.SuggestedID)
			switch {
			case !ok:
				warnings = append(warnings, report.Issue{
					Type:     report.IssueInvalidID,
					Field:    "id",
					Row:      c.SourceRow,
					TaskName: c.Name,
					Value:    c.SuggestedID,
					Message:  "Task id is not a valid UUID; a new id will be assigned",
				})
			default:
				if first, dup := seenIDs[id]; dup {
					fail(report.Issue{
						Type:     report.IssueDuplicateID,
						Field:    "id",
						Row:      c.SourceRow,
						TaskName: c.Name,
						Value:    c.SuggestedID,
						Message:  fmt.Sprintf("Task id duplicates row %d", first),
					})
					continue
				}
				seenIDs[id] = c.SourceRow
				c.ID = id
			}
		}
	}

	vocab := NewVocabulary()
	if len(candidates) > 0 {
		var err error
		vocab, err = g.vocab.Lookup(ctx, project.ID,
			distinctValues(candidates, func(t candidate.Task) string { return t.Priority }),
			distinctValues(candidates, func(t candidate.Task) string { return t.Status }),
		)
		if err != nil {
			return Checked{}, fmt.Errorf("vocabulary lookup: %w", err)
		}
	}

	for _, c := range candidates {
		if _, ok := vocab.PriorityID(c.Priority); !ok {
			fail(report.Issue{
				Type:     report.IssueUnknownPriority,
				Field:    "priority",
				Row:      c.SourceRow,
				TaskName: c.Name,
				Value:    c.Priority,
				Message:  fmt.Sprintf("Priority %q does not exist", c.Priority),
			})
		}
		if _, ok := vocab.StatusID(c.Status); !ok {
			fail(report.Issue{
				Type:     report.IssueUnknownStatus,
				Field:    "status",
				Row:      c.SourceRow,
				TaskName: c.Name,
				Value:    c.Status,
				Message:  fmt.Sprintf("Status %q does not exist in project %s", c.Status, project.Name),
			})
		}
	}

	valid := 0
	for _, c := range candidates {
		if _, bad := badRows[c.SourceRow]; !bad {
			valid++
		}
	}

	return Checked{
		Validation: report.Validation{
			IsValid:    len(errs) == 0,
			TotalTasks: len(candidates),
			ValidTasks: valid,
			Errors:     nonNil(errs),
			Warnings:   nonNil(warnings),
		},
		Vocabulary: vocab,
		Candidates: candidates,
	}, nil
}

func dateIssue(c candidate.Task, field, value string) report.Issue {
	return report.Issue{
		Type:     report.IssueInvalidDate,
		Field:    field,
		Row:      c.SourceRow,
		TaskName: c.Name,
		Value:    value,
		Message:  fmt.Sprintf("%s %q is not a valid date", field, value),
	}
}

// canonicalUUID accepts only the hyphenated 36 character form.
func canonicalUUID(s string) (uuid.UUID, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 36 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func nonNil(issues []report.Issue) []report.Issue {
	if issues == nil {
		return []report.Issue{}
	}
	return issues
}
