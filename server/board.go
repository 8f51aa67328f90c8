package server

import (
	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/server/boardrepo"
	"github.com/jrsteele09/taskboard/users"
)

// Role rules for the board. Admins see and may change everything. Managers
// create projects and tasks. Employees see the projects they belong to and
// the tasks assigned to them.

func isMember(members []boardrepo.MemberRecord, userID int, roles ...projects.MemberRole) bool {
	for _, m := range members {
		if m.UserID != userID {
			continue
		}
		if len(roles) == 0 {
			return true
		}
		for _, r := range roles {
			if m.Role == r {
				return true
			}
		}
	}
	return false
}

var projectManagerRoles = []projects.MemberRole{projects.MemberOwner, projects.MemberAdmin}

// boardView is one request's read of the board, loaded once.
type boardView struct {
	user     *users.User
	projects []*boardrepo.ProjectRecord
	tasks    []*boardrepo.TaskRecord
	members  map[int][]boardrepo.MemberRecord
}

func (s *Server) loadBoard(user *users.User) (*boardView, error) {
	ps, err := s.repos.Board.ListProjects()
	if err != nil {
		return nil, err
	}
	ts, err := s.repos.Board.ListTasks(0)
	if err != nil {
		return nil, err
	}
	v := &boardView{user: user, projects: ps, tasks: ts, members: make(map[int][]boardrepo.MemberRecord, len(ps))}
	for _, p := range ps {
		ms, err := s.repos.Board.Members(p.ID)
		if err != nil {
			return nil, err
		}
		v.members[p.ID] = ms
	}
	return v, nil
}

func (v *boardView) isAdmin() bool {
	return v.user.Role == users.RoleAdmin
}

func (v *boardView) assignedIn(projectID int) bool {
	for _, t := range v.tasks {
		if t.ProjectID == projectID && t.AssignedTo == v.user.ID {
			return true
		}
	}
	return false
}

// visibleProjects is the general listing: every project for an admin, else
// projects the user created, belongs to or holds a task in.
func (v *boardView) visibleProjects() []*boardrepo.ProjectRecord {
	if v.isAdmin() {
		return v.projects
	}
	var out []*boardrepo.ProjectRecord
	for _, p := range v.projects {
		if p.CreatedBy == v.user.ID || isMember(v.members[p.ID], v.user.ID) || v.assignedIn(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// userProjects is the dashboard listing: every project for an admin, created
// ones for a manager, member or assigned ones for an employee.
func (v *boardView) userProjects() []*boardrepo.ProjectRecord {
	if v.isAdmin() {
		return v.projects
	}
	var out []*boardrepo.ProjectRecord
	for _, p := range v.projects {
		switch v.user.Role {
		case users.RoleManager:
			if p.CreatedBy == v.user.ID {
				out = append(out, p)
			}
		default:
			if isMember(v.members[p.ID], v.user.ID) || v.assignedIn(p.ID) {
				out = append(out, p)
			}
		}
	}
	return out
}

func (v *boardView) project(id int) *boardrepo.ProjectRecord {
	for _, p := range v.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (v *boardView) canViewProject(p *boardrepo.ProjectRecord) bool {
	return v.isAdmin() || p.CreatedBy == v.user.ID || isMember(v.members[p.ID], v.user.ID) || v.assignedIn(p.ID)
}

// canManageProject covers update and delete.
func (v *boardView) canManageProject(p *boardrepo.ProjectRecord) bool {
	if v.isAdmin() {
		return true
	}
	return v.user.IsManagerial() && isMember(v.members[p.ID], v.user.ID, projectManagerRoles...)
}

// visibleTasks is every task for an admin, else tasks the user created, is
// assigned or whose project the user belongs to.
func (v *boardView) visibleTasks() []*boardrepo.TaskRecord {
	if v.isAdmin() {
		return v.tasks
	}
	var out []*boardrepo.TaskRecord
	for _, t := range v.tasks {
		if t.CreatedBy == v.user.ID || t.AssignedTo == v.user.ID || isMember(v.members[t.ProjectID], v.user.ID) {
			out = append(out, t)
		}
	}
	return out
}

// myTasks is every task for an admin, created ones for a manager and
// assigned ones for an employee.
func (v *boardView) myTasks() []*boardrepo.TaskRecord {
	if v.isAdmin() {
		return v.tasks
	}
	var out []*boardrepo.TaskRecord
	for _, t := range v.tasks {
		if (v.user.Role == users.RoleManager && t.CreatedBy == v.user.ID) ||
			(v.user.Role == users.RoleEmployee && t.AssignedTo == v.user.ID) {
			out = append(out, t)
		}
	}
	return out
}

func (v *boardView) task(id int) *boardrepo.TaskRecord {
	for _, t := range v.visibleTasks() {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// canEditTask: managerial users, the creator, the assignee or a project
// owner/admin.
func (v *boardView) canEditTask(t *boardrepo.TaskRecord) bool {
	return v.user.IsManagerial() || t.CreatedBy == v.user.ID || t.AssignedTo == v.user.ID ||
		isMember(v.members[t.ProjectID], v.user.ID, projectManagerRoles...)
}

func filterProjects(ps []*boardrepo.ProjectRecord, keep func(*boardrepo.ProjectRecord) bool) []*boardrepo.ProjectRecord {
	var out []*boardrepo.ProjectRecord
	for _, p := range ps {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func filterTasks(ts []*boardrepo.TaskRecord, keep func(*boardrepo.TaskRecord) bool) []*boardrepo.TaskRecord {
	var out []*boardrepo.TaskRecord
	for _, t := range ts {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Rendering into the wire models.

func (s *Server) userSummary(id int) *users.Summary {
	if id == 0 {
		return nil
	}
	u, err := s.repos.Users.GetByID(id)
	if err != nil {
		return nil
	}
	sum := u.Summary()
	return &sum
}

func (s *Server) renderProject(p *boardrepo.ProjectRecord, members []boardrepo.MemberRecord, tasks []*boardrepo.TaskRecord) projects.Project {
	out := projects.Project{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Status:      p.Status,
		CreatedBy:   s.userSummary(p.CreatedBy),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Members:     make([]projects.Member, 0, len(members)),
		Tasks:       make([]projects.TaskState, 0),
	}
	for _, m := range members {
		name := ""
		if u := s.userSummary(m.UserID); u != nil {
			name = u.Username
		}
		out.Members = append(out.Members, projects.Member{UserID: m.UserID, Username: name, Role: m.Role})
	}
	for _, t := range tasks {
		if t.ProjectID == p.ID {
			out.Tasks = append(out.Tasks, projects.TaskState{Status: t.Status})
		}
	}
	return out
}

func (s *Server) renderProjects(v *boardView, ps []*boardrepo.ProjectRecord) []projects.Project {
	out := make([]projects.Project, 0, len(ps))
	for _, p := range ps {
		out = append(out, s.renderProject(p, v.members[p.ID], v.tasks))
	}
	return out
}

func (s *Server) renderTask(t *boardrepo.TaskRecord, p *boardrepo.ProjectRecord) projects.Task {
	out := projects.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AssignedTo:  s.userSummary(t.AssignedTo),
		CreatedBy:   s.userSummary(t.CreatedBy),
		Status:      t.Status,
		Priority:    t.Priority,
		StartDate:   t.StartDate,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if p != nil {
		out.Project = &projects.ProjectRef{ID: p.ID, Title: p.Title, StartDate: p.StartDate, EndDate: p.EndDate, Status: p.Status}
	}
	return out
}

func (s *Server) renderTasks(v *boardView, ts []*boardrepo.TaskRecord) []projects.Task {
	out := make([]projects.Task, 0, len(ts))
	for _, t := range ts {
		out = append(out, s.renderTask(t, v.project(t.ProjectID)))
	}
	return out
}
