package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/users"
)

func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (a *App) printSummary(s projects.Summary) {
	w := a.table()
	fmt.Fprintf(w, "Projects\t%d\n", s.TotalProjects)
	for _, st := range projects.ProjectStatuses() {
		fmt.Fprintf(w, "  %s\t%d\n", st, s.ProjectsByStatus[st])
	}
	fmt.Fprintf(w, "Tasks\t%d\n", s.TotalTasks)
	for _, st := range projects.TaskStatuses() {
		fmt.Fprintf(w, "  %s\t%d\n", st, s.TasksByStatus[st])
	}
	for _, p := range projects.Priorities() {
		fmt.Fprintf(w, "  %s priority\t%d\n", p, s.TasksByPriority[p])
	}
	fmt.Fprintf(w, "Completed\t%.0f%%\n", s.CompletionRate()*100)
	_ = w.Flush()

	if len(s.Overdue) == 0 {
		return
	}
	fmt.Fprintln(a.out, "\nOverdue")
	a.printTasks(s.Overdue)
}

func (a *App) printProjects(list []projects.Project) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No projects")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSTART\tEND\tTASKS")
	for _, p := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", p.ID, p.Title, p.Status, orDash(p.StartDate.String()), orDash(p.EndDate.String()), len(p.Tasks))
	}
	_ = w.Flush()
}

func (a *App) printProject(p *projects.Project) {
	w := a.table()
	fmt.Fprintf(w, "Project\t%d %s\n", p.ID, p.Title)
	fmt.Fprintf(w, "Status\t%s\n", p.Status)
	fmt.Fprintf(w, "Dates\t%s to %s\n", orDash(p.StartDate.String()), orDash(p.EndDate.String()))
	if p.CreatedBy != nil {
		fmt.Fprintf(w, "Created by\t%s\n", p.CreatedBy.Username)
	}
	if p.Description != "" {
		fmt.Fprintf(w, "Description\t%s\n", p.Description)
	}
	for _, m := range p.Members {
		fmt.Fprintf(w, "Member\t%s (%s)\n", m.Username, m.Role)
	}
	_ = w.Flush()
}

func (a *App) printTasks(list []projects.Task) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No tasks")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tTITLE\tPROJECT\tSTATUS\tPRIORITY\tDUE\tASSIGNEE")
	for _, t := range list {
		project, assignee := "-", "-"
		if t.Project != nil {
			project = t.Project.Title
		}
		if t.AssignedTo != nil {
			assignee = t.AssignedTo.Username
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, project, t.Status, t.Priority, orDash(t.DueDate.String()), assignee)
	}
	_ = w.Flush()
}

func (a *App) printTask(t *projects.Task) {
	w := a.table()
	fmt.Fprintf(w, "Task\t%d %s\n", t.ID, t.Title)
	if t.Project != nil {
		fmt.Fprintf(w, "Project\t%d %s\n", t.Project.ID, t.Project.Title)
	}
	fmt.Fprintf(w, "Status\t%s\n", t.Status)
	fmt.Fprintf(w, "Priority\t%s\n", t.Priority)
	fmt.Fprintf(w, "Dates\t%s to %s\n", orDash(t.StartDate.String()), orDash(t.DueDate.String()))
	if t.AssignedTo != nil {
		fmt.Fprintf(w, "Assigned to\t%s\n", t.AssignedTo.Username)
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "Completed\t%s\n", t.CompletedAt.Format("2006-01-02 15:04"))
	}
	if t.Description != "" {
		fmt.Fprintf(w, "Description\t%s\n", t.Description)
	}
	_ = w.Flush()
}

func (a *App) printUsers(list []users.User) {
	w := a.table()
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE")
	for _, u := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role)
	}
	_ = w.Flush()
}
