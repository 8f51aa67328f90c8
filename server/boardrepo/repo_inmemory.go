package boardrepo

import (
	"errors"
	"sort"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu            sync.RWMutex
	projects      map[int]*ProjectRecord
	tasks         map[int]*TaskRecord
	members       map[int][]MemberRecord // By project ID, in join order
	nextProjectID int
	nextTaskID    int
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		projects:      make(map[int]*ProjectRecord),
		tasks:         make(map[int]*TaskRecord),
		members:       make(map[int][]MemberRecord),
		nextProjectID: 1,
		nextTaskID:    1,
	}
}

// CreateProject assigns p its ID.
func (r *InMemoryRepo) CreateProject(p *ProjectRecord) error {
	if p == nil {
		return errors.New("project cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = r.nextProjectID
	r.nextProjectID++
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *InMemoryRepo) UpdateProject(p *ProjectRecord) error {
	if p == nil {
		return errors.New("project cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *InMemoryRepo) GetProject(id int) (*ProjectRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepo) DeleteProject(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[id]; !ok {
		return ErrNotFound
	}
	delete(r.projects, id)
	delete(r.members, id)
	for tid, t := range r.tasks {
		if t.ProjectID == id {
			delete(r.tasks, tid)
		}
	}
	return nil
}

func (r *InMemoryRepo) ListProjects() ([]*ProjectRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProjectRecord, 0, len(r.projects))
	for _, p := range r.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateTask assigns t its ID. The project must exist.
func (r *InMemoryRepo) CreateTask(t *TaskRecord) error {
	if t == nil {
		return errors.New("task cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[t.ProjectID]; !ok {
		return ErrNotFound
	}
	t.ID = r.nextTaskID
	r.nextTaskID++
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *InMemoryRepo) UpdateTask(t *TaskRecord) error {
	if t == nil {
		return errors.New("task cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *InMemoryRepo) GetTask(id int) (*TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryRepo) DeleteTask(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *InMemoryRepo) ListTasks(projectID int) ([]*TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TaskRecord, 0)
	for _, t := range r.tasks {
		if projectID != 0 && t.ProjectID != projectID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *InMemoryRepo) AddMember(m MemberRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[m.ProjectID]; !ok {
		return false, ErrNotFound
	}
	for _, existing := range r.members[m.ProjectID] {
		if existing.UserID == m.UserID {
			return false, nil
		}
	}
	r.members[m.ProjectID] = append(r.members[m.ProjectID], m)
	return true, nil
}

func (r *InMemoryRepo) RemoveMember(projectID, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.members[projectID]
	for i, m := range list {
		if m.UserID == userID {
			r.members[projectID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *InMemoryRepo) Members(projectID int) ([]MemberRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]MemberRecord(nil), r.members[projectID]...), nil
}
