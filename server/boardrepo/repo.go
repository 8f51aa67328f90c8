// Package boardrepo stores the development backend's projects, tasks and
// project memberships.
package boardrepo

import (
	"errors"
	"time"

	"github.com/jrsteele09/taskboard/projects"
)

var ErrNotFound = errors.New("not found")

type ProjectRecord struct {
	ID          int
	Title       string
	Description string
	StartDate   projects.Date
	EndDate     projects.Date
	Status      projects.ProjectStatus
	CreatedBy   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskRecord references users by ID; 0 means unassigned.
type TaskRecord struct {
	ID          int
	Title       string
	Description string
	ProjectID   int
	AssignedTo  int
	CreatedBy   int
	Status      projects.TaskStatus
	Priority    projects.Priority
	StartDate   projects.Date
	DueDate     projects.Date
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MemberRecord struct {
	ProjectID int
	UserID    int
	Role      projects.MemberRole
	JoinedAt  time.Time
}

// Repo lists are ordered newest first. Records are returned as copies.
type Repo interface {
	CreateProject(p *ProjectRecord) error
	UpdateProject(p *ProjectRecord) error
	GetProject(id int) (*ProjectRecord, error)
	DeleteProject(id int) error // Cascades to tasks and members
	ListProjects() ([]*ProjectRecord, error)

	CreateTask(t *TaskRecord) error
	UpdateTask(t *TaskRecord) error
	GetTask(id int) (*TaskRecord, error)
	DeleteTask(id int) error
	ListTasks(projectID int) ([]*TaskRecord, error) // 0 lists every task

	// AddMember keeps an existing membership's role.
	AddMember(m MemberRecord) (created bool, err error)
	RemoveMember(projectID, userID int) error
	Members(projectID int) ([]MemberRecord, error)
}
