// Package projects holds the project and task models served by the backend
// and the client services that read and mutate them.
package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/taskboard/users"
)

var ErrInvalidChoice = errors.New("invalid choice")

type ProjectStatus string

const (
	ProjectPlanned   ProjectStatus = "planned"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

func ProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectPlanned, ProjectActive, ProjectCompleted}
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanned, ProjectActive, ProjectCompleted:
		return true
	}
	return false
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	if st := ProjectStatus(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: project status %q", ErrInvalidChoice, s)
}

type TaskStatus string

const (
	TaskToDo       TaskStatus = "to-do"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskToDo, TaskInProgress, TaskDone}
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskToDo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	if st := TaskStatus(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: task status %q", ErrInvalidChoice, s)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	if p := Priority(s); p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("%w: priority %q", ErrInvalidChoice, s)
}

const dateLayout = "2006-01-02"

// Date is a calendar day without a time of day, encoded as "YYYY-MM-DD".
// The zero Date encodes as null.
type Date struct {
	t time.Time
}

// DateOf returns the calendar day t falls on in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool           { return d.t.IsZero() }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) AddDays(n int) Date     { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Time() time.Time        { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Member is a user's role within one project.
type Member struct {
	UserID   int        `json:"user_id"`
	Username string     `json:"username"`
	Role     MemberRole `json:"role"`
}

type MemberRole string

const (
	MemberOwner  MemberRole = "owner"
	MemberAdmin  MemberRole = "admin"
	MemberMember MemberRole = "member"
	MemberViewer MemberRole = "viewer"
)

// TaskState is the status-only task shape embedded in a project.
type TaskState struct {
	Status TaskStatus `json:"status"`
}

type Project struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	StartDate   Date           `json:"start_date"`
	EndDate     Date           `json:"end_date"`
	Status      ProjectStatus  `json:"status"`
	CreatedBy   *users.Summary `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Members     []Member       `json:"members,omitempty"`
	Tasks       []TaskState    `json:"tasks,omitempty"`
}

// HasMember reports whether userID holds any role in p.
func (p *Project) HasMember(userID int) bool {
	for _, m := range p.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Window is the span a task's dates must fall inside.
func (p *Project) Window() Window {
	return Window{Start: p.StartDate, End: p.EndDate}
}

// ProjectRef is the trimmed project embedded in a task.
type ProjectRef struct {
	ID        int           `json:"id"`
	Title     string        `json:"title"`
	StartDate Date          `json:"start_date"`
	EndDate   Date          `json:"end_date"`
	Status    ProjectStatus `json:"status"`
}

type Task struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Project     *ProjectRef    `json:"project,omitempty"`
	AssignedTo  *users.Summary `json:"assigned_to"`
	CreatedBy   *users.Summary `json:"created_by,omitempty"`
	Status      TaskStatus     `json:"status"`
	Priority    Priority       `json:"priority"`
	StartDate   Date           `json:"start_date"`
	DueDate     Date           `json:"due_date"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Overdue is true for an unfinished task whose due date is before today.
func (t *Task) Overdue(today Date) bool {
	return t.Status != TaskDone && !t.DueDate.IsZero() && t.DueDate.Before(today)
}

// Page is one page of a page-number paginated listing.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// HasNext reports whether a further page exists.
func (p *Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// Pages returns the number of pages for count items at size per page.
func Pages(count, size int) int {
	if size <= 0 || count <= 0 {
		return 0
	}
	return (count + size - 1) / size
}
