package projects

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/session"
)

// Window is an inclusive span of days.
type Window struct {
	Start Date
	End   Date
}

func (w Window) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// ProjectInput is the body of a project create or full update.
type ProjectInput struct {
	Title       string        `json:"title" validate:"required,max=200"`
	Description string        `json:"description"`
	StartDate   Date          `json:"start_date" validate:"-"`
	EndDate     Date          `json:"end_date" validate:"-"`
	Status      ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=planned active completed"`
}

// Validate checks a new project against today's date in now's location.
func (in ProjectInput) Validate(now time.Time) error {
	today := DateOf(now)
	return in.validate(&today)
}

// ValidateUpdate is Validate without the start-date-in-the-past rule, so
// running projects stay editable.
func (in ProjectInput) ValidateUpdate() error {
	return in.validate(nil)
}

func (in ProjectInput) validate(today *Date) error {
	fields := map[string]string{}
	switch {
	case in.StartDate.IsZero():
		fields["start_date"] = "This field is required."
	case today != nil && in.StartDate.Before(*today):
		fields["start_date"] = "Start date cannot be in the past."
	}
	switch {
	case in.EndDate.IsZero():
		fields["end_date"] = "This field is required."
	case !in.StartDate.IsZero() && !in.EndDate.After(in.StartDate):
		fields["end_date"] = "End date must be after start date."
	}
	return withFields(session.ValidateStruct(in), fields)
}

// ProjectPatch carries the fields of a partial update; nil fields are left
// unchanged.
type ProjectPatch struct {
	Title       *string        `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string        `json:"description,omitempty"`
	StartDate   *Date          `json:"start_date,omitempty" validate:"-"`
	EndDate     *Date          `json:"end_date,omitempty" validate:"-"`
	Status      *ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=planned active completed"`
}

func (p ProjectPatch) Validate() error {
	fields := map[string]string{}
	if p.StartDate != nil && p.EndDate != nil && !p.EndDate.After(*p.StartDate) {
		fields["end_date"] = "End date must be after start date."
	}
	return withFields(session.ValidateStruct(p), fields)
}

// Apply overlays the set fields of p onto in.
func (p ProjectPatch) Apply(in ProjectInput) ProjectInput {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.StartDate != nil {
		in.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		in.EndDate = *p.EndDate
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	return in
}

// TaskInput is the body of a task create or full update.
type TaskInput struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description"`
	ProjectID    int        `json:"project_id" validate:"required,min=1"`
	AssignedToID *int       `json:"assigned_to_id,omitempty"`
	Status       TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=to-do in-progress done"`
	Priority     Priority   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	StartDate    Date       `json:"start_date" validate:"-"`
	DueDate      Date       `json:"due_date" validate:"-"`
}

// Validate checks a task locally. When window is non-nil the dates must fall
// inside it.
func (in TaskInput) Validate(now time.Time, window *Window) error {
	today := DateOf(now)
	fields := map[string]string{}
	if !in.StartDate.IsZero() && in.StartDate.Before(today) {
		fields["start_date"] = "Start date cannot be in the past."
	}
	if !in.StartDate.IsZero() && !in.DueDate.IsZero() && !in.DueDate.After(in.StartDate) {
		fields["due_date"] = "Due date must be after the start date."
	}
	if window != nil {
		span := fmt.Sprintf("between %s and %s.", window.Start, window.End)
		if !in.StartDate.IsZero() && !window.Contains(in.StartDate) {
			fields["start_date"] = "Start date must be " + span
		}
		if !in.DueDate.IsZero() && !window.Contains(in.DueDate) {
			fields["due_date"] = "Due date must be " + span
		}
	}
	return withFields(session.ValidateStruct(in), fields)
}

// StatusUpdate is the body of the employee status patch.
type StatusUpdate struct {
	Status TaskStatus `json:"status" validate:"required,oneof=to-do in-progress done"`
}

func (s StatusUpdate) Validate() error {
	return session.ValidateStruct(s)
}

// withFields merges extra field messages into the validation error err. A tag
// failure on the same field wins.
func withFields(err error, extra map[string]string) error {
	if len(extra) == 0 {
		return err
	}
	var verr *apierror.Error
	if err == nil {
		verr = apierror.Validation(nil)
	} else if !errors.As(err, &verr) {
		return err
	}
	for field, msg := range extra {
		if _, ok := verr.Fields[field]; !ok {
			verr.Fields[field] = []string{msg}
		}
	}
	return verr
}
