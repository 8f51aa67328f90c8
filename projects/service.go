package projects

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/api"
	"github.com/jrsteele09/taskboard/users"
)

const (
	PathProjects     = "projects/"
	PathUserProjects = "projects/user-projects/"
	PathLatest       = "projects/latest/"
	PathBulkDelete   = "projects/bulk-delete/"
	PathTasks        = "tasks/"
	PathMyTasks      = "mytasks/"
)

func ProjectPath(id int) string      { return fmt.Sprintf("projects/%d/", id) }
func ProjectTasksPath(id int) string { return fmt.Sprintf("projects/%d/tasks/", id) }
func TaskPath(id int) string         { return fmt.Sprintf("tasks/%d/", id) }

// Caller sends a JSON request through the authenticated client.
// *api.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method, path string, query url.Values, in, out any) error
}

// ProjectFilter narrows a project listing. Zero fields are not sent.
type ProjectFilter struct {
	Page   int
	Status ProjectStatus
	UserID int
}

func (f ProjectFilter) query() url.Values {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.UserID > 0 {
		q.Set("user_id", strconv.Itoa(f.UserID))
	}
	return q
}

// TaskFilter narrows a task listing. AssignedUser matches a username.
type TaskFilter struct {
	Status       TaskStatus
	Priority     Priority
	AssignedUser string
}

func (f TaskFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.AssignedUser != "" {
		q.Set("assigned_user", f.AssignedUser)
	}
	return q
}

// Service is the client side of the project, task and user endpoints.
// Inputs are validated locally before anything is sent.
type Service struct {
	caller Caller
	now    func() time.Time
}

type Option func(*Service)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(caller Caller, options ...Option) *Service {
	s := &Service{caller: caller, now: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) (*Page[Project], error) {
	var page Page[Project]
	if err := s.caller.Call(ctx, http.MethodGet, PathProjects, filter.query(), nil, &page); err != nil {
		return nil, errors.Wrap(err, "[Service.ListProjects]")
	}
	return &page, nil
}

// UserProjects lists the projects relevant to the caller's role: all for an
// admin, created ones for a manager, member ones for an employee.
func (s *Service) UserProjects(ctx context.Context, status ProjectStatus) ([]Project, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []Project
	if err := s.caller.Call(ctx, http.MethodGet, PathUserProjects, q, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Service.UserProjects]")
	}
	return out, nil
}

func (s *Service) LatestProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := s.caller.Call(ctx, http.MethodGet, PathLatest, nil, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Service.LatestProjects]")
	}
	return out, nil
}

func (s *Service) GetProject(ctx context.Context, id int) (*Project, error) {
	var p Project
	if err := s.caller.Call(ctx, http.MethodGet, ProjectPath(id), nil, nil, &p); err != nil {
		return nil, errors.Wrapf(err, "[Service.GetProject] project %d", id)
	}
	return &p, nil
}

func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (*Project, error) {
	if err := in.Validate(s.now()); err != nil {
		return nil, err
	}
	var p Project
	if err := s.caller.Call(ctx, http.MethodPost, PathProjects, nil, in, &p); err != nil {
		return nil, errors.Wrap(err, "[Service.CreateProject]")
	}
	return &p, nil
}

func (s *Service) UpdateProject(ctx context.Context, id int, in ProjectInput) (*Project, error) {
	if err := in.ValidateUpdate(); err != nil {
		return nil, err
	}
	var p Project
	if err := s.caller.Call(ctx, http.MethodPut, ProjectPath(id), nil, in, &p); err != nil {
		return nil, errors.Wrapf(err, "[Service.UpdateProject] project %d", id)
	}
	return &p, nil
}

func (s *Service) PatchProject(ctx context.Context, id int, patch ProjectPatch) (*Project, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var p Project
	if err := s.caller.Call(ctx, http.MethodPatch, ProjectPath(id), nil, patch, &p); err != nil {
		return nil, errors.Wrapf(err, "[Service.PatchProject] project %d", id)
	}
	return &p, nil
}

func (s *Service) DeleteProject(ctx context.Context, id int) error {
	if err := s.caller.Call(ctx, http.MethodDelete, ProjectPath(id), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "[Service.DeleteProject] project %d", id)
	}
	return nil
}

// BulkDeleteRequest is the body of the bulk delete call.
type BulkDeleteRequest struct {
	ProjectIDs []int `json:"project_ids"`
}

// BulkDeleteResult reports how many of the requested projects were removed.
type BulkDeleteResult struct {
	Deleted int `json:"deleted"`
}

func (s *Service) BulkDeleteProjects(ctx context.Context, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var res BulkDeleteResult
	if err := s.caller.Call(ctx, http.MethodPost, PathBulkDelete, nil, BulkDeleteRequest{ProjectIDs: ids}, &res); err != nil {
		return 0, errors.Wrap(err, "[Service.BulkDeleteProjects]")
	}
	return res.Deleted, nil
}

func (s *Service) ProjectTasks(ctx context.Context, projectID int, filter TaskFilter) ([]Task, error) {
	var out []Task
	if err := s.caller.Call(ctx, http.MethodGet, ProjectTasksPath(projectID), filter.query(), nil, &out); err != nil {
		return nil, errors.Wrapf(err, "[Service.ProjectTasks] project %d", projectID)
	}
	return out, nil
}

func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var out []Task
	if err := s.caller.Call(ctx, http.MethodGet, PathTasks, filter.query(), nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Service.ListTasks]")
	}
	return out, nil
}

// MyTasks lists every task for an admin, created tasks for a manager and
// assigned tasks for an employee.
func (s *Service) MyTasks(ctx context.Context) ([]Task, error) {
	var out []Task
	if err := s.caller.Call(ctx, http.MethodGet, PathMyTasks, nil, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Service.MyTasks]")
	}
	return out, nil
}

func (s *Service) GetTask(ctx context.Context, id int) (*Task, error) {
	var t Task
	if err := s.caller.Call(ctx, http.MethodGet, TaskPath(id), nil, nil, &t); err != nil {
		return nil, errors.Wrapf(err, "[Service.GetTask] task %d", id)
	}
	return &t, nil
}

// CreateTask validates in against window (when known) and creates it.
func (s *Service) CreateTask(ctx context.Context, in TaskInput, window *Window) (*Task, error) {
	if err := in.Validate(s.now(), window); err != nil {
		return nil, err
	}
	var t Task
	if err := s.caller.Call(ctx, http.MethodPost, PathTasks, nil, in, &t); err != nil {
		return nil, errors.Wrap(err, "[Service.CreateTask]")
	}
	return &t, nil
}

func (s *Service) UpdateTask(ctx context.Context, id int, in TaskInput, window *Window) (*Task, error) {
	if err := in.Validate(s.now(), window); err != nil {
		return nil, err
	}
	var t Task
	if err := s.caller.Call(ctx, http.MethodPut, TaskPath(id), nil, in, &t); err != nil {
		return nil, errors.Wrapf(err, "[Service.UpdateTask] task %d", id)
	}
	return &t, nil
}

func (s *Service) SetTaskStatus(ctx context.Context, id int, status TaskStatus) (*Task, error) {
	body := StatusUpdate{Status: status}
	if err := body.Validate(); err != nil {
		return nil, err
	}
	var t Task
	if err := s.caller.Call(ctx, http.MethodPatch, TaskPath(id), nil, body, &t); err != nil {
		return nil, errors.Wrapf(err, "[Service.SetTaskStatus] task %d", id)
	}
	return &t, nil
}

func (s *Service) DeleteTask(ctx context.Context, id int) error {
	if err := s.caller.Call(ctx, http.MethodDelete, TaskPath(id), nil, nil, nil); err != nil {
		return errors.Wrapf(err, "[Service.DeleteTask] task %d", id)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]users.User, error) {
	var out []users.User
	if err := s.caller.Call(ctx, http.MethodGet, api.PathUsers, nil, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[Service.ListUsers]")
	}
	return out, nil
}

// Dashboard gathers the projects and tasks behind the caller's dashboard
// and summarizes them.
func (s *Service) Dashboard(ctx context.Context) (Summary, error) {
	ps, err := s.UserProjects(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	ts, err := s.MyTasks(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ps, ts, s.now()), nil
}
