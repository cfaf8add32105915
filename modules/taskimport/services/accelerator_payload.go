package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
)

const dateOnly = "2006-01-02"

type acceleratedTask struct {
	Row             int        `json:"row"`
	ID              *uuid.UUID `json:"id,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Priority        string     `json:"priority"`
	PriorityID      *uuid.UUID `json:"priority_id,omitempty"`
	Status          string     `json:"status"`
	StatusID        *uuid.UUID `json:"status_id,omitempty"`
	StartDate       string     `json:"start_date,omitempty"`
	EndDate         string     `json:"end_date,omitempty"`
	Assignee        string     `json:"assignee,omitempty"`
	TeamMemberID    *uuid.UUID `json:"team_member_id,omitempty"`
	ProjectMemberID *uuid.UUID `json:"project_member_id,omitempty"`
}

// encodeAcceleratedBatch renders the enriched candidates in source order.
func encodeAcceleratedBatch(batch Batch) ([]byte, error) {
	tasks := make([]acceleratedTask, 0, len(batch.Candidates))
	for _, c := range batch.Candidates {
		t := acceleratedTask{
			Row:         c.SourceRow,
			Name:        c.Name,
			Description: c.Description,
			Priority:    c.Priority,
			Status:      c.Status,
			Assignee:    c.Assignee,
		}
		if c.HasSuggestedID() {
			id := c.ID
			t.ID = &id
		}
		if id, ok := batch.Vocabulary.PriorityID(c.Priority); ok {
			t.PriorityID = &id
		}
		if id, ok := batch.Vocabulary.StatusID(c.Status); ok {
			t.StatusID = &id
		}
		if c.StartAt != nil {
			t.StartDate = c.StartAt.Format(dateOnly)
		}
		if c.DueAt != nil {
			t.EndDate = c.DueAt.Format(dateOnly)
		}
		if a, ok := batch.Assignments.For(c.Assignee); ok {
			tm, pm := a.TeamMemberID, a.ProjectMemberID
			t.TeamMemberID = &tm
			t.ProjectMemberID = &pm
		}
		tasks = append(tasks, t)
	}
	payload, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("encode accelerated batch: %w", err)
	}
	return payload, nil
}

// decodeAcceleratedResult normalizes the routine's result shapes. A missing or
// non-object result is ErrRoutineNoResult.
func decodeAcceleratedResult(raw []byte) (CommitResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return CommitResult{}, ErrRoutineNoResult
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return CommitResult{}, ErrRoutineNoResult
	}

	var result CommitResult

	count, ok := intField(obj["imported_count"])
	if body, hasBody := obj["body"]; hasBody {
		var nested map[string]json.RawMessage
		if json.Unmarshal(body, &nested) == nil {
			if n, nestedOK := intField(nested["imported_count"]); nestedOK {
				count, ok = n, true
			}
		}
	}
	if ok {
		result.ImportedCount = count
	}

	for _, key := range []string{"inserted_task_ids", "task_ids"} {
		if v, has := obj[key]; has {
			var ids []uuid.UUID
			if err := json.Unmarshal(v, &ids); err != nil {
				return CommitResult{}, fmt.Errorf("decode %s: %w", key, err)
			}
			result.TaskIDs = ids
			break
		}
	}
	if !ok {
		result.ImportedCount = len(result.TaskIDs)
	}

	result.Errors = issuesField(obj, "import_errors", "errors")
	result.Warnings = issuesField(obj, "validation_warnings", "warnings")

	if v, has := obj["message"]; has {
		_ = json.Unmarshal(v, &result.Message)
	}
	return result, nil
}

func intField(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func issuesField(obj map[string]json.RawMessage, keys ...string) []report.Issue {
	for _, key := range keys {
		raw, has := obj[key]
		if !has {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]report.Issue, 0, len(items))
		for _, item := range items {
			var text string
			if err := json.Unmarshal(item, &text); err == nil {
				out = append(out, report.Issue{Type: report.IssueImportError, Message: text})
				continue
			}
			var issue report.Issue
			if err := json.Unmarshal(item, &issue); err != nil {
				continue
			}
			if issue.Type == "" {
				issue.Type = report.IssueImportError
			}
			out = append(out, issue)
		}
		return out
	}
	return nil
}
