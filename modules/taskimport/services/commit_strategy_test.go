package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
)

func testBatch(store *fakeStore, candidates ...candidate.Task) Batch {
	vocab := NewVocabulary()
	for _, p := range store.priorities {
		vocab.Priorities[vocabKey(p.Name)] = p.ID
	}
	for _, s := range store.statuses {
		vocab.Statuses[vocabKey(s.Name)] = s.ID
	}
	_, actor := actorCtx(store)
	return Batch{
		Project:     store.project,
		Actor:       actor,
		Candidates:  candidates,
		Vocabulary:  vocab,
		Assignments: newResolution(),
	}
}

func threeTasks() []candidate.Task {
	return []candidate.Task{
		{SourceRow: 1, Name: "One", Priority: "High", Status: "To Do"},
		{SourceRow: 2, Name: "Two", Priority: "Low", Status: "Done"},
		{SourceRow: 4, Name: "Four", Priority: "Medium", Status: "In Progress"},
	}
}

func TestDirectStrategy_InsertsInOrderWithSortPositions(t *testing.T) {
	store := newFakeStore()
	store.maxSort = 9
	batch := testBatch(store, threeTasks()...)

	result, err := NewDirectStrategy(store, store, testDefaults).Attempt(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 3, result.ImportedCount)
	require.Len(t, result.TaskIDs, 3)
	require.Equal(t, "Successfully imported 3 tasks to Launch", result.Message)

	require.Len(t, store.tasks, 3)
	for i, task := range store.tasks {
		require.Equal(t, batch.Candidates[i].Name, task.Name)
		require.Equal(t, 10+i, task.SortOrder)
		require.Equal(t, result.TaskIDs[i], task.ID)
		require.Equal(t, batch.Actor.UserID, task.ReporterID)
	}
	require.Equal(t, store.priorityID("High"), store.tasks[0].PriorityID)
	require.Equal(t, store.statusID("Done"), store.tasks[1].StatusID)
}

func TestDirectStrategy_UsesSuggestedIDsAndAssignments(t *testing.T) {
	store := newFakeStore()
	member := store.addMember("alice@example.com", true)
	id := uuid.New()
	batch := testBatch(store,
		candidate.Task{SourceRow: 1, Name: "One", Priority: "High", Status: "To Do", ID: id, Assignee: "alice@example.com"},
		candidate.Task{SourceRow: 2, Name: "Two", Priority: "High", Status: "To Do", Assignee: "nobody"},
	)
	batch.Assignments.TeamMembers["alice@example.com"] = member.TeamMemberID
	batch.Assignments.ProjectMembers["alice@example.com"] = member.ProjectMemberID.UUID

	result, err := NewDirectStrategy(store, store, testDefaults).Attempt(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, id, result.TaskIDs[0])
	require.Len(t, store.assignees, 1)
	a, ok := store.assigneeOf(id)
	require.True(t, ok)
	require.Equal(t, member.TeamMemberID, a.TeamMemberID)
	require.Equal(t, member.ProjectMemberID.UUID, a.ProjectMemberID)
	require.Equal(t, batch.Actor.UserID, a.AssignedBy)
}

func TestDirectStrategy_LooksUpVocabularyWhenMissing(t *testing.T) {
	store := newFakeStore()
	batch := testBatch(store, threeTasks()...)
	batch.Vocabulary = Vocabulary{}

	_, err := NewDirectStrategy(store, store, testDefaults).Attempt(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, store.lookupCalls)
}

func TestDirectStrategy_UnknownVocabularyFails(t *testing.T) {
	store := newFakeStore()
	batch := testBatch(store, candidate.Task{SourceRow: 1, Name: "One", Priority: "Blocker", Status: "To Do"})

	_, err := NewDirectStrategy(store, store, testDefaults).Attempt(context.Background(), batch)
	require.ErrorIs(t, err, ErrUnknownVocabName)
}

func TestDirectStrategy_StopsOnCancellation(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirectStrategy(store, store, testDefaults).Attempt(ctx, testBatch(store, threeTasks()...))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.tasks)
}

func TestCommitter_UsesAcceleratedWhenAvailable(t *testing.T) {
	store := newFakeStore()
	useFakeTx(t, store)
	accel := &fakeAccelerator{store: store, exists: map[string]bool{testTasksRoutine: true}}
	committer := NewCommitter(
		NewAcceleratedStrategy(accel, NewCapabilityCache(0), testTasksRoutine, true),
		NewDirectStrategy(store, store, testDefaults),
	)

	result, err := committer.Commit(context.Background(), testBatch(store, threeTasks()...))
	require.NoError(t, err)
	require.Equal(t, StrategyAccelerated, result.Strategy)
	require.Equal(t, 3, result.ImportedCount)
	require.Equal(t, "imported by routine", result.Message)
	require.Equal(t, 1, accel.tasksCalls)
	require.Len(t, store.tasks, 3)
}

func TestCommitter_FallsBack(t *testing.T) {
	cases := []struct {
		name  string
		setup func(a *fakeAccelerator)
	}{
		{"routine missing", func(a *fakeAccelerator) {}},
		{"probe error", func(a *fakeAccelerator) {
			a.exists[testTasksRoutine] = true
			a.probeErr = errors.New("catalog locked")
		}},
		{"routine error", func(a *fakeAccelerator) {
			a.exists[testTasksRoutine] = true
			a.tasksErr = errors.New("function failed")
		}},
		{"partial write then error", func(a *fakeAccelerator) {
			a.exists[testTasksRoutine] = true
			a.partialThenFail = true
			a.tasksErr = errors.New("constraint violated late")
		}},
		{"no result", func(a *fakeAccelerator) {
			a.exists[testTasksRoutine] = true
			a.tasksResult = []byte("null")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.maxSort = 4
			useFakeTx(t, store)
			accel := &fakeAccelerator{store: store, exists: map[string]bool{}}
			tc.setup(accel)
			committer := NewCommitter(
				NewAcceleratedStrategy(accel, NewCapabilityCache(0), testTasksRoutine, true),
				NewDirectStrategy(store, store, testDefaults),
			)

			result, err := committer.Commit(context.Background(), testBatch(store, threeTasks()...))
			require.NoError(t, err)
			require.Equal(t, StrategyDirect, result.Strategy)
			require.Equal(t, 3, result.ImportedCount)
			require.Len(t, store.tasks, 3)
			for i, task := range store.tasks {
				require.Equal(t, 5+i, task.SortOrder)
				require.Equal(t, result.TaskIDs[i], task.ID)
			}
		})
	}
}

func TestCommitter_DisabledAcceleratorNeverProbes(t *testing.T) {
	store := newFakeStore()
	useFakeTx(t, store)
	accel := &fakeAccelerator{store: store, exists: map[string]bool{testTasksRoutine: true}}
	committer := NewCommitter(
		NewAcceleratedStrategy(accel, NewCapabilityCache(0), testTasksRoutine, false),
		NewDirectStrategy(store, store, testDefaults),
	)

	result, err := committer.Commit(context.Background(), testBatch(store, threeTasks()...))
	require.NoError(t, err)
	require.Equal(t, StrategyDirect, result.Strategy)
	require.Zero(t, accel.probeCalls)
}

func TestCommitter_DirectFailureIsReturned(t *testing.T) {
	store := newFakeStore()
	useFakeTx(t, store)
	store.failInsertAt = 2
	store.insertErr = errors.New("disk full")
	committer := NewCommitter(nil, NewDirectStrategy(store, store, testDefaults))

	_, err := committer.Commit(context.Background(), testBatch(store, threeTasks()...))
	require.ErrorIs(t, err, store.insertErr)
}

func TestDecodeAcceleratedResult(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()

	t.Run("flat shape", func(t *testing.T) {
		raw := []byte(`{"imported_count":2,"inserted_task_ids":["` + id1.String() + `","` + id2.String() + `"],"message":"ok"}`)
		result, err := decodeAcceleratedResult(raw)
		require.NoError(t, err)
		require.Equal(t, 2, result.ImportedCount)
		require.Equal(t, []uuid.UUID{id1, id2}, result.TaskIDs)
		require.Equal(t, "ok", result.Message)
	})

	t.Run("nested count as string", func(t *testing.T) {
		raw := []byte(`{"body":{"imported_count":"7"},"task_ids":[]}`)
		result, err := decodeAcceleratedResult(raw)
		require.NoError(t, err)
		require.Equal(t, 7, result.ImportedCount)
	})

	t.Run("count derived from ids", func(t *testing.T) {
		raw := []byte(`{"task_ids":["` + id1.String() + `"]}`)
		result, err := decodeAcceleratedResult(raw)
		require.NoError(t, err)
		require.Equal(t, 1, result.ImportedCount)
	})

	t.Run("issues as strings and objects", func(t *testing.T) {
		raw := []byte(`{"imported_count":1,"import_errors":["row 3 skipped"],"warnings":[{"type":"date_order","message":"late","row":2}]}`)
		result, err := decodeAcceleratedResult(raw)
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		require.Equal(t, "row 3 skipped", result.Errors[0].Message)
		require.Len(t, result.Warnings, 1)
		require.Equal(t, 2, result.Warnings[0].Row)
	})

	for _, raw := range []string{"", "null", "[]", `"done"`, "42"} {
		_, err := decodeAcceleratedResult([]byte(raw))
		require.ErrorIs(t, err, ErrRoutineNoResult, raw)
	}
}

func TestEncodeAcceleratedBatch_CarriesResolvedReferences(t *testing.T) {
	store := newFakeStore()
	member := store.addMember("alice@example.com", true)
	batch := testBatch(store, candidate.Task{SourceRow: 3, Name: "One", Priority: "High", Status: "Done", Assignee: "alice@example.com"})
	batch.Assignments.TeamMembers["alice@example.com"] = member.TeamMemberID
	batch.Assignments.ProjectMembers["alice@example.com"] = member.ProjectMemberID.UUID

	payload, err := encodeAcceleratedBatch(batch)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"row":3`)
	require.Contains(t, string(payload), `"priority_id":"`+store.priorityID("High").String()+`"`)
	require.Contains(t, string(payload), `"team_member_id":"`+member.TeamMemberID.String()+`"`)
	require.NotContains(t, string(payload), `"id":`)
}
