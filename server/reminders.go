package server

import (
	"context"
	"time"

	"github.com/jrsteele09/taskboard/projects"
)

// Reminder is one due-tomorrow notice for an assignee.
type Reminder struct {
	TaskID  int
	Title   string
	Email   string
	DueDate projects.Date
}

// DueReminders lists assigned tasks that are not done and fall due the day
// after now.
func (s *Server) DueReminders() ([]Reminder, error) {
	tasks, err := s.repos.Board.ListTasks(0)
	if err != nil {
		return nil, err
	}
	tomorrow := projects.DateOf(s.now()).AddDays(1)

	var out []Reminder
	for _, t := range tasks {
		if t.AssignedTo == 0 || t.Status == projects.TaskDone || t.DueDate != tomorrow {
			continue
		}
		u, err := s.repos.Users.GetByID(t.AssignedTo)
		if err != nil {
			s.logger.Warn().Int("task_id", t.ID).Int("user_id", t.AssignedTo).Msg("reminder skipped, assignee not found")
			continue
		}
		out = append(out, Reminder{TaskID: t.ID, Title: t.Title, Email: u.Email, DueDate: t.DueDate})
	}
	return out, nil
}

// RunReminders logs due-tomorrow reminders every interval until ctx is done.
func (s *Server) RunReminders(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reminders, err := s.DueReminders()
			if err != nil {
				s.logger.Err(err).Msg("RunReminders: failed to list tasks")
				continue
			}
			for _, r := range reminders {
				s.logger.Info().
					Int("task_id", r.TaskID).
					Str("to", r.Email).
					Str("due_date", r.DueDate.String()).
					Msgf("Reminder: Task %q is due tomorrow", r.Title)
			}
		}
	}
}
