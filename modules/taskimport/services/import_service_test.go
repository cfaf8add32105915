package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/report"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/composables"
	"github.com/iota-uz/taskimport/pkg/eventbus"
)

func ownerRequest(h *testHarness, m1 Member, extraRow candidate.RawRow) Request {
	rows := []candidate.RawRow{
		{"Title": "Write docs", "Owner": "a@x.com", "Sev": "P1"},
		{"Title": "Fix login", "Owner": "", "Sev": "P1"},
		{"Title": "Ship it", "Owner": "", "Sev": "P1"},
	}
	if extraRow != nil {
		rows = append(rows, extraRow)
	}
	return Request{
		ProjectID: h.store.project.ID,
		Rows:      rows,
		Mappings: mapping.Set{
			Fields: fields("Title", "name", "Owner", "assignee", "Sev", "priority"),
			Values: []mapping.ValueMapping{{SourceValue: "P1", TargetValue: "High", FieldType: mapping.TypePriority}},
			Identities: []mapping.IdentityMapping{
				{SourceIdentity: "a@x.com", Action: mapping.ActionMap, TargetMemberRef: m1.TeamMemberID.String()},
			},
		},
	}
}

func TestImportService_Import_MappedRowsAndAssignee(t *testing.T) {
	h := newHarness(t, false)
	m1 := h.store.addMember("a@x.com", true)
	ctx, _ := actorCtx(h.store)

	rep, err := h.service.Import(ctx, ownerRequest(h, m1, nil))
	require.NoError(t, err)
	require.Equal(t, 3, rep.ImportedCount())
	require.Empty(t, rep.Errors())
	require.Equal(t, "Launch", rep.ProjectName())
	require.Len(t, h.store.tasks, 3)
	for _, task := range h.store.tasks {
		require.Equal(t, h.store.priorityID("High"), task.PriorityID)
	}

	first := rep.InsertedTaskIDs()[0]
	a, ok := h.store.assigneeOf(first)
	require.True(t, ok)
	require.Equal(t, m1.TeamMemberID, a.TeamMemberID)
	require.Len(t, h.store.assignees, 1)
	require.Equal(t, 1, h.store.commits)
}

func TestImportService_Import_UnmappedValueWritesNothing(t *testing.T) {
	h := newHarness(t, true)
	h.accel.exists[testTasksRoutine] = true
	m1 := h.store.addMember("a@x.com", true)
	ctx, _ := actorCtx(h.store)
	req := ownerRequest(h, m1, candidate.RawRow{"Title": "Mystery", "Owner": "", "Sev": "P9"})

	validation, err := h.service.Validate(ctx, req)
	require.NoError(t, err)
	require.False(t, validation.IsValid)
	require.Equal(t, report.IssueUnmappedValue, validation.Errors[0].Type)

	_, err = h.service.Import(ctx, req)
	var valErr *ValidationFailedError
	require.ErrorAs(t, err, &valErr)
	require.False(t, valErr.Validation.IsValid)
	require.Zero(t, h.accel.tasksCalls)
	require.Zero(t, h.accel.probeCalls)
	require.Empty(t, h.store.tasks)
	require.Equal(t, 1, h.store.rollbacks)
}

func TestImportService_Import_ProbeFalseUsesDirectWithSortPositions(t *testing.T) {
	h := newHarness(t, true)
	h.store.maxSort = 41
	ctx, _ := actorCtx(h.store)
	req := Request{
		ProjectID: h.store.project.ID,
		Rows: []candidate.RawRow{
			{"Task": "a"},
			{"Task": ""},
			{"Task": "c"},
			{"Task": "d"},
		},
		Mappings: mapping.Set{Fields: fields("Task", "name")},
	}

	rep, err := h.service.Import(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, h.accel.probeCalls)
	require.Zero(t, h.accel.tasksCalls)
	require.Equal(t, 3, rep.ImportedCount())
	require.Len(t, h.store.tasks, 3)
	for i, task := range h.store.tasks {
		require.Equal(t, 42+i, task.SortOrder)
	}
	require.Equal(t, []string{"a", "c", "d"}, []string{h.store.tasks[0].Name, h.store.tasks[1].Name, h.store.tasks[2].Name})
}

func TestImportService_Import_AcceleratedAndDirectAgree(t *testing.T) {
	run := func(t *testing.T, accelerated bool) []TaskInsert {
		h := newHarness(t, accelerated)
		h.accel.exists[testTasksRoutine] = accelerated
		m1 := h.store.addMember("a@x.com", true)
		ctx, _ := actorCtx(h.store)

		rep, err := h.service.Import(ctx, ownerRequest(h, m1, nil))
		require.NoError(t, err)
		require.Equal(t, 3, rep.ImportedCount())
		return h.store.tasks
	}

	direct := run(t, false)
	accel := run(t, true)
	require.Len(t, accel, len(direct))
	for i := range direct {
		require.Equal(t, direct[i].Name, accel[i].Name)
		require.Equal(t, direct[i].SortOrder, accel[i].SortOrder)
	}
}

func TestImportService_Import_FailureRollsBackEverything(t *testing.T) {
	h := newHarness(t, false)
	h.store.failInsertAt = 3
	h.store.insertErr = errors.New("connection lost")
	ctx, _ := actorCtx(h.store)
	req := Request{
		ProjectID: h.store.project.ID,
		Rows:      []candidate.RawRow{{"T": "a"}, {"T": "b"}, {"T": "c"}},
		Mappings:  mapping.Set{Fields: fields("T", "name")},
	}

	_, err := h.service.Import(ctx, req)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, http.StatusInternalServerError, svcErr.Status)
	require.Empty(t, h.store.tasks)
	require.Equal(t, 1, h.store.rollbacks)
}

func TestImportService_Import_IdentityProblemsAreWarnings(t *testing.T) {
	h := newHarness(t, false)
	h.store.addMember("outsider@x.com", false)
	ctx, _ := actorCtx(h.store)
	req := Request{
		ProjectID: h.store.project.ID,
		Rows: []candidate.RawRow{
			{"T": "a", "Who": "ghost@x.com"},
			{"T": "b", "Who": "outsider@x.com"},
		},
		Mappings: mapping.Set{Fields: fields("T", "name", "Who", "assignee")},
	}

	rep, err := h.service.Import(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 2, rep.ImportedCount())
	require.Equal(t, []report.IssueType{report.IssueAssigneeUnresolved, report.IssueAssigneeNotMember}, issueTypes(rep.Warnings()))
	require.Empty(t, h.store.assignees)
}

func TestImportService_Import_SuggestedIDs(t *testing.T) {
	h := newHarness(t, false)
	ctx, _ := actorCtx(h.store)
	id := uuid.New()
	req := Request{
		ProjectID: h.store.project.ID,
		Rows: []candidate.RawRow{
			{"ID": id.String(), "T": "a"},
			{"ID": "legacy-7", "T": "b"},
		},
		Mappings: mapping.Set{Fields: fields("ID", "id", "T", "name")},
	}

	rep, err := h.service.Import(ctx, req)
	require.NoError(t, err)
	require.Equal(t, id, rep.InsertedTaskIDs()[0])
	require.NotEqual(t, uuid.Nil, rep.InsertedTaskIDs()[1])
	require.Equal(t, []report.IssueType{report.IssueInvalidID}, issueTypes(rep.Warnings()))
}

func TestImportService_RejectsBadInput(t *testing.T) {
	h := newHarness(t, false)
	ctx, _ := actorCtx(h.store)
	valid := mapping.Set{Fields: fields("T", "name")}
	rows := []candidate.RawRow{{"T": "a"}}

	cases := []struct {
		name   string
		ctx    context.Context
		req    Request
		status int
		code   string
	}{
		{"no actor", context.Background(), Request{ProjectID: h.store.project.ID, Rows: rows, Mappings: valid}, http.StatusUnauthorized, "IMPORT_UNAUTHENTICATED"},
		{"no project", ctx, Request{Rows: rows, Mappings: valid}, http.StatusBadRequest, "IMPORT_PROJECT_REQUIRED"},
		{"no rows", ctx, Request{ProjectID: h.store.project.ID, Mappings: valid}, http.StatusBadRequest, "IMPORT_ROWS_REQUIRED"},
		{"name unmapped", ctx, Request{ProjectID: h.store.project.ID, Rows: rows, Mappings: mapping.Set{Fields: fields("T", "description")}}, http.StatusBadRequest, "IMPORT_INVALID_MAPPING"},
		{"foreign project", ctx, Request{ProjectID: uuid.New(), Rows: rows, Mappings: valid}, http.StatusForbidden, "IMPORT_PROJECT_ACCESS_DENIED"},
		{"too many rows", ctx, Request{ProjectID: h.store.project.ID, Rows: make([]candidate.RawRow, 101), Mappings: valid}, http.StatusRequestEntityTooLarge, "IMPORT_TOO_MANY_ROWS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.Import(tc.ctx, tc.req)
			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			require.Equal(t, tc.status, svcErr.Status)
			require.Equal(t, tc.code, svcErr.Code)
		})
	}
	require.Empty(t, h.store.tasks)
}

func TestImportService_ValidateNeverWrites(t *testing.T) {
	h := newHarness(t, true)
	h.accel.exists[testTasksRoutine] = true
	ctx, _ := actorCtx(h.store)
	req := Request{
		ProjectID: h.store.project.ID,
		Rows:      []candidate.RawRow{{"T": "a", "Due": "2024-02-30"}},
		Mappings:  mapping.Set{Fields: fields("T", "name", "Due", "dueDate")},
	}

	validation, err := h.service.Validate(ctx, req)
	require.NoError(t, err)
	require.False(t, validation.IsValid)
	require.Equal(t, 1, validation.TotalTasks)
	require.Zero(t, validation.ValidTasks)
	require.Empty(t, h.store.tasks)
	require.Zero(t, h.accel.probeCalls)
}

func TestImportService_Template(t *testing.T) {
	h := newHarness(t, false)
	h.store.addMember("a@x.com", true)
	ctx, _ := actorCtx(h.store)

	tpl, err := h.service.Template(ctx, h.store.project.ID)
	require.NoError(t, err)
	require.Equal(t, "Launch", tpl.ProjectName)
	require.Len(t, tpl.Statuses, 3)
	require.Len(t, tpl.Priorities, 3)
	require.Len(t, tpl.TeamMembers, 1)
	require.Equal(t, mapping.RequiredFields, tpl.RequiredFields)

	_, err = h.service.Template(composables.WithActor(context.Background(), composables.Actor{UserID: uuid.New(), TeamID: uuid.New()}), h.store.project.ID)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, http.StatusForbidden, svcErr.Status)
}

func TestImportService_PublishesCommittedEvent(t *testing.T) {
	h := newHarness(t, true)
	h.accel.exists[testTasksRoutine] = true
	bus := eventbus.NewEventPublisher(nil)
	h.service.opts.Publisher = bus

	var events []ImportCommittedEvent
	bus.Subscribe(func(e ImportCommittedEvent) { events = append(events, e) })

	m1 := h.store.addMember("a@x.com", true)
	ctx, actor := actorCtx(h.store)
	rep, err := h.service.Import(ctx, ownerRequest(h, m1, nil))
	require.NoError(t, err)

	require.Len(t, events, 1)
	require.Equal(t, h.store.project.ID, events[0].ProjectID)
	require.Equal(t, actor.UserID, events[0].ActorID)
	require.Equal(t, "accelerated", events[0].Strategy)
	require.Equal(t, rep.InsertedTaskIDs(), events[0].TaskIDs)

	_, err = h.service.Import(ctx, ownerRequest(h, m1, candidate.RawRow{"Title": "Mystery", "Sev": "P9"}))
	require.Error(t, err)
	require.Len(t, events, 1)
}
