package projects

import (
	"sort"
	"time"
)

// Summary holds the dashboard tiles.
type Summary struct {
	TotalProjects    int
	ProjectsByStatus map[ProjectStatus]int
	TotalTasks       int
	TasksByStatus    map[TaskStatus]int
	TasksByPriority  map[Priority]int
	Overdue          []Task // Oldest due date first
}

// Summarize counts projects and tasks. A task is overdue when it is not done
// and its due date is before the day now falls on.
func Summarize(projects []Project, tasks []Task, now time.Time) Summary {
	s := Summary{
		TotalProjects:    len(projects),
		ProjectsByStatus: make(map[ProjectStatus]int, 3),
		TotalTasks:       len(tasks),
		TasksByStatus:    make(map[TaskStatus]int, 3),
		TasksByPriority:  make(map[Priority]int, 3),
	}
	for _, st := range ProjectStatuses() {
		s.ProjectsByStatus[st] = 0
	}
	for _, st := range TaskStatuses() {
		s.TasksByStatus[st] = 0
	}
	for _, p := range Priorities() {
		s.TasksByPriority[p] = 0
	}

	for _, p := range projects {
		s.ProjectsByStatus[p.Status]++
	}

	today := DateOf(now)
	for _, t := range tasks {
		s.TasksByStatus[t.Status]++
		s.TasksByPriority[t.Priority]++
		if t.Overdue(today) {
			s.Overdue = append(s.Overdue, t)
		}
	}
	sort.SliceStable(s.Overdue, func(i, j int) bool {
		return s.Overdue[i].DueDate.Before(s.Overdue[j].DueDate)
	})
	return s
}

// CompletionRate is the share of tasks that are done, 0 when there are none.
func (s Summary) CompletionRate() float64 {
	if s.TotalTasks == 0 {
		return 0
	}
	return float64(s.TasksByStatus[TaskDone]) / float64(s.TotalTasks)
}
