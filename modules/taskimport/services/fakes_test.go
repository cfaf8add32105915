package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/iota-uz/taskimport/pkg/composables"
)

type fakeAssignee struct {
	TaskID          uuid.UUID
	ProjectMemberID uuid.UUID
	TeamMemberID    uuid.UUID
	AssignedBy      uuid.UUID
}

// fakeStore is an in-memory project store. Writes are undone by the fake
// transaction helpers installed with useFakeTx.
type fakeStore struct {
	mu sync.Mutex

	project    Project
	priorities []Priority
	statuses   []Status
	members    []Member
	maxSort    int

	tasks     []TaskInsert
	assignees []fakeAssignee

	lookupCalls     int
	emailLookups    [][]string
	idLookups       [][]uuid.UUID
	failInsertAt    int
	insertErr       error
	lookupErr       error
	commits         int
	rollbacks       int
	savepoints      int
	savepointAborts int
}

type storeSnapshot struct {
	tasks     []TaskInsert
	assignees []fakeAssignee
	members   []Member
}

func newFakeStore() *fakeStore {
	teamID := uuid.New()
	return &fakeStore{
		project: Project{ID: uuid.New(), TeamID: teamID, Name: "Launch"},
		priorities: []Priority{
			{ID: uuid.New(), Name: "Low", Value: 0},
			{ID: uuid.New(), Name: "Medium", Value: 1},
			{ID: uuid.New(), Name: "High", Value: 2},
		},
		statuses: []Status{
			{ID: uuid.New(), Name: "To Do", Category: "todo", SortOrder: 0},
			{ID: uuid.New(), Name: "In Progress", Category: "doing", SortOrder: 1},
			{ID: uuid.New(), Name: "Done", Category: "done", SortOrder: 2, IsDone: true},
		},
		maxSort: -1,
	}
}

func (s *fakeStore) addMember(email string, projectMember bool) Member {
	m := Member{TeamMemberID: uuid.New(), UserID: uuid.New(), Name: strings.Split(email, "@")[0], Email: email}
	if projectMember {
		m.ProjectMemberID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	}
	s.members = append(s.members, m)
	return m
}

func (s *fakeStore) priorityID(name string) uuid.UUID {
	for _, p := range s.priorities {
		if strings.EqualFold(p.Name, name) {
			return p.ID
		}
	}
	return uuid.Nil
}

func (s *fakeStore) statusID(name string) uuid.UUID {
	for _, st := range s.statuses {
		if strings.EqualFold(st.Name, name) {
			return st.ID
		}
	}
	return uuid.Nil
}

func (s *fakeStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSnapshot{
		tasks:     append([]TaskInsert(nil), s.tasks...),
		assignees: append([]fakeAssignee(nil), s.assignees...),
		members:   append([]Member(nil), s.members...),
	}
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = snap.tasks
	s.assignees = snap.assignees
	s.members = snap.members
}

// useFakeTx replaces the transaction and savepoint helpers with snapshot based
// versions over store.
func useFakeTx(t *testing.T, store *fakeStore) {
	t.Helper()
	prevTx, prevSp := inTxFn, inSavepointFn
	t.Cleanup(func() {
		inTxFn = prevTx
		inSavepointFn = prevSp
	})

	inTxFn = func(ctx context.Context, fn func(context.Context) error) error {
		snap := store.snapshot()
		if err := fn(ctx); err != nil {
			store.restore(snap)
			store.rollbacks++
			return err
		}
		store.commits++
		return nil
	}
	inSavepointFn = func(ctx context.Context, fn func(context.Context) error) error {
		store.savepoints++
		snap := store.snapshot()
		if err := fn(ctx); err != nil {
			store.restore(snap)
			store.savepointAborts++
			return err
		}
		return nil
	}
}

func actorCtx(store *fakeStore) (context.Context, composables.Actor) {
	actor := composables.Actor{UserID: uuid.New(), TeamID: store.project.TeamID}
	return composables.WithActor(context.Background(), actor), actor
}

// ProjectRepository

func (s *fakeStore) GetForTeam(_ context.Context, projectID, teamID uuid.UUID) (Project, error) {
	if projectID != s.project.ID || teamID != s.project.TeamID {
		return Project{}, ErrProjectNotFound
	}
	return s.project, nil
}

// VocabularyRepository

func (s *fakeStore) Lookup(_ context.Context, _ uuid.UUID, priorities, statuses []string) (Vocabulary, error) {
	s.lookupCalls++
	if s.lookupErr != nil {
		return Vocabulary{}, s.lookupErr
	}
	v := NewVocabulary()
	for _, name := range priorities {
		if id := s.priorityID(name); id != uuid.Nil {
			v.Priorities[vocabKey(name)] = id
		}
	}
	for _, name := range statuses {
		if id := s.statusID(name); id != uuid.Nil {
			v.Statuses[vocabKey(name)] = id
		}
	}
	return v, nil
}

func (s *fakeStore) ListPriorities(context.Context) ([]Priority, error) {
	return s.priorities, nil
}

func (s *fakeStore) ListStatuses(context.Context, uuid.UUID) ([]Status, error) {
	return s.statuses, nil
}

// MemberRepository

func (s *fakeStore) FindByEmails(_ context.Context, _, _ uuid.UUID, emails []string) ([]Member, error) {
	s.emailLookups = append(s.emailLookups, emails)
	var out []Member
	for _, m := range s.members {
		for _, e := range emails {
			if strings.EqualFold(m.Email, e) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindByIDs(_ context.Context, _, _ uuid.UUID, ids []uuid.UUID) ([]Member, error) {
	s.idLookups = append(s.idLookups, ids)
	var out []Member
	for _, m := range s.members {
		for _, id := range ids {
			if m.TeamMemberID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListTeamMembers(context.Context, uuid.UUID) ([]Member, error) {
	return s.members, nil
}

// TaskRepository

func (s *fakeStore) NextSortOrder(context.Context, uuid.UUID) (int, error) {
	return s.maxSort + 1, nil
}

func (s *fakeStore) Insert(ctx context.Context, task TaskInsert) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertAt > 0 && len(s.tasks)+1 == s.failInsertAt {
		return uuid.Nil, s.insertErr
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	for _, existing := range s.tasks {
		if existing.ID == task.ID {
			return uuid.Nil, errors.New("duplicate task id")
		}
	}
	s.tasks = append(s.tasks, task)
	return task.ID, nil
}

func (s *fakeStore) InsertAssignee(_ context.Context, taskID, projectMemberID, teamMemberID, assignedBy uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignees = append(s.assignees, fakeAssignee{
		TaskID:          taskID,
		ProjectMemberID: projectMemberID,
		TeamMemberID:    teamMemberID,
		AssignedBy:      assignedBy,
	})
	return nil
}

func (s *fakeStore) assigneeOf(taskID uuid.UUID) (fakeAssignee, bool) {
	for _, a := range s.assignees {
		if a.TaskID == taskID {
			return a, true
		}
	}
	return fakeAssignee{}, false
}

// fakeAccelerator emulates the server-side routines against a fakeStore.
type fakeAccelerator struct {
	store *fakeStore

	exists     map[string]bool
	probeErr   error
	probeCalls int

	// partialThenFail makes the tasks routine write every task and then fail.
	partialThenFail bool
	tasksErr        error
	tasksResult     []byte
	tasksCalls      int

	usersErr   error
	usersCalls int
	usersSeen  []provisionRequest
}

func (a *fakeAccelerator) RoutineExists(_ context.Context, routine string) (bool, error) {
	a.probeCalls++
	if a.probeErr != nil {
		return false, a.probeErr
	}
	return a.exists[routine], nil
}

func (a *fakeAccelerator) CallTasksRoutine(ctx context.Context, _ string, projectID uuid.UUID, payload []byte, actorID uuid.UUID) ([]byte, error) {
	a.tasksCalls++
	if a.tasksErr != nil && !a.partialThenFail {
		return nil, a.tasksErr
	}
	if a.tasksResult != nil {
		return a.tasksResult, nil
	}

	var tasks []acceleratedTask
	if err := json.Unmarshal(payload, &tasks); err != nil {
		return nil, err
	}
	sortOrder, _ := a.store.NextSortOrder(ctx, projectID)
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		in := TaskInsert{
			ProjectID:   projectID,
			Name:        t.Name,
			Description: t.Description,
			PriorityID:  a.store.priorityID(t.Priority),
			StatusID:    a.store.statusID(t.Status),
			SortOrder:   sortOrder,
			ReporterID:  actorID,
		}
		if t.ID != nil {
			in.ID = *t.ID
		}
		id, err := a.store.Insert(ctx, in)
		if err != nil {
			return nil, err
		}
		sortOrder++
		if t.TeamMemberID != nil && t.ProjectMemberID != nil {
			_ = a.store.InsertAssignee(ctx, id, *t.ProjectMemberID, *t.TeamMemberID, actorID)
		}
		ids = append(ids, id)
	}
	if a.partialThenFail {
		return nil, a.tasksErr
	}
	return json.Marshal(map[string]any{
		"imported_count":    len(ids),
		"inserted_task_ids": ids,
		"message":           "imported by routine",
	})
}

func (a *fakeAccelerator) CallUsersRoutine(_ context.Context, _ string, _ uuid.UUID, payload []byte, _ uuid.UUID) ([]byte, error) {
	a.usersCalls++
	if a.usersErr != nil {
		return nil, a.usersErr
	}
	var reqs []provisionRequest
	if err := json.Unmarshal(payload, &reqs); err != nil {
		return nil, err
	}
	a.usersSeen = append(a.usersSeen, reqs...)
	for _, r := range reqs {
		a.store.addMember(r.Email, true)
	}
	return []byte(`{"created":true}`), nil
}

const (
	testTasksRoutine = "create_tasks_from_csv_import"
	testUsersRoutine = "create_users_from_csv_import"
)

type testHarness struct {
	store   *fakeStore
	accel   *fakeAccelerator
	cache   *CapabilityCache
	service *ImportService
}

func newHarness(t *testing.T, acceleratorEnabled bool) *testHarness {
	t.Helper()
	store := newFakeStore()
	useFakeTx(t, store)
	accel := &fakeAccelerator{store: store, exists: map[string]bool{}}
	cache := NewCapabilityCache(0)
	defaults := Defaults{Priority: "Medium", Status: "To Do"}

	resolver := NewIdentityResolver(store, accel, cache, testUsersRoutine, acceleratorEnabled)
	committer := NewCommitter(
		NewAcceleratedStrategy(accel, cache, testTasksRoutine, acceleratorEnabled),
		NewDirectStrategy(store, store, defaults),
	)
	svc := NewImportService(store, store, store, resolver, committer, Options{Defaults: defaults, MaxRows: 100})
	return &testHarness{store: store, accel: accel, cache: cache, service: svc}
}
