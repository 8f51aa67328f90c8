package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/taskboard/internal/utils"
	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/server/boardrepo"
)

const (
	msgNotFound      = "Not found."
	msgForbidden     = "You do not have permission to perform this action."
	msgServerError   = "A server error occurred."
	maxPageSize      = 100
	latestProjectCap = 2
)

// withBoard loads the caller's board view, answering 500 itself on failure.
func (s *Server) withBoard(w http.ResponseWriter, r *http.Request) (*boardView, bool) {
	v, err := s.loadBoard(userFromContext(r.Context()))
	if err != nil {
		s.logger.Err(err).Str("path", r.URL.Path).Msg("failed to load board")
		writeDetail(w, http.StatusInternalServerError, msgServerError)
		return nil, false
	}
	return v, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return 0, false
	}
	return id, true
}

// paginate slices items into the page named by ?page= (1-based) using
// ?page_size= or the configured default.
func paginate[T any](r *http.Request, items []T, defaultSize int) (projects.Page[T], bool) {
	q := r.URL.Query()
	size := defaultSize
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		size = min(n, maxPageSize)
	}
	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return projects.Page[T]{}, false
		}
		page = n
	}
	pages := max(projects.Pages(len(items), size), 1)
	if page > pages {
		return projects.Page[T]{}, false
	}

	start := (page - 1) * size
	end := min(start+size, len(items))
	out := projects.Page[T]{Count: len(items), Results: append(make([]T, 0, end-start), items[start:end]...)}
	if page < pages {
		out.Next = utils.Ptr(pageURL(r, page+1))
	}
	if page > 1 {
		out.Previous = utils.Ptr(pageURL(r, page-1))
	}
	return out, true
}

func pageURL(r *http.Request, page int) string {
	u := url.URL{Scheme: getScheme(r), Host: r.Host, Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Projects

func (s *Server) ListProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		ps := v.visibleProjects()
		if raw := q.Get("user_id"); raw != "" {
			uid, _ := strconv.Atoi(raw)
			ps = filterProjects(ps, func(p *boardrepo.ProjectRecord) bool {
				return p.CreatedBy == uid || isMember(v.members[p.ID], uid)
			})
		}
		if status := q.Get("status"); status != "" {
			ps = filterProjects(ps, func(p *boardrepo.ProjectRecord) bool { return string(p.Status) == status })
		}

		page, ok := paginate(r, s.renderProjects(v, ps), s.config.GetPageSize())
		if !ok {
			writeDetail(w, http.StatusNotFound, "Invalid page.")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) UserProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		ps := v.userProjects()
		if status := r.URL.Query().Get("status"); status != "" {
			ps = filterProjects(ps, func(p *boardrepo.ProjectRecord) bool { return string(p.Status) == status })
		}
		writeJSON(w, http.StatusOK, s.renderProjects(v, ps))
	}
}

func (s *Server) LatestProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		ps := v.visibleProjects()
		if len(ps) > latestProjectCap {
			ps = ps[:latestProjectCap]
		}
		writeJSON(w, http.StatusOK, s.renderProjects(v, ps))
	}
}

func (s *Server) GetProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		p := v.project(id)
		if p == nil || !v.canViewProject(p) {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s.renderProject(p, v.members[p.ID], v.tasks))
	}
}

// CreateProject makes the caller the project's owner.
func (s *Server) CreateProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in projects.ProjectInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := in.Validate(s.now()); err != nil {
			writeValidation(w, err, false)
			return
		}
		user := userFromContext(r.Context())
		now := s.now()
		rec := &boardrepo.ProjectRecord{
			Title:       in.Title,
			Description: in.Description,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Status:      in.Status,
			CreatedBy:   user.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if rec.Status == "" {
			rec.Status = projects.ProjectPlanned
		}
		if err := s.repos.Board.CreateProject(rec); err != nil {
			s.logger.Err(err).Msg("CreateProject: failed to store project")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		owner := boardrepo.MemberRecord{ProjectID: rec.ID, UserID: user.ID, Role: projects.MemberOwner, JoinedAt: now}
		if _, err := s.repos.Board.AddMember(owner); err != nil {
			s.logger.Err(err).Int("project_id", rec.ID).Msg("CreateProject: failed to add owner")
		}
		members, _ := s.repos.Board.Members(rec.ID)
		writeJSON(w, http.StatusCreated, s.renderProject(rec, members, nil))
	}
}

// UpdateProject serves both PUT (full body) and PATCH (partial body).
func (s *Server) UpdateProject(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		p := v.project(id)
		if p == nil || !v.canViewProject(p) {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		if !v.canManageProject(p) {
			writeDetail(w, http.StatusForbidden, msgForbidden)
			return
		}

		var in projects.ProjectInput
		if partial {
			var patch projects.ProjectPatch
			if !decodeJSON(w, r, &patch) {
				return
			}
			if err := patch.Validate(); err != nil {
				writeValidation(w, err, false)
				return
			}
			in = patch.Apply(projects.ProjectInput{
				Title: p.Title, Description: p.Description, StartDate: p.StartDate, EndDate: p.EndDate, Status: p.Status,
			})
		} else if !decodeJSON(w, r, &in) {
			return
		}
		if err := in.ValidateUpdate(); err != nil {
			writeValidation(w, err, false)
			return
		}

		p.Title, p.Description, p.StartDate, p.EndDate = in.Title, in.Description, in.StartDate, in.EndDate
		if in.Status != "" {
			p.Status = in.Status
		}
		p.UpdatedAt = s.now()
		if err := s.repos.Board.UpdateProject(p); err != nil {
			s.logger.Err(err).Int("project_id", id).Msg("UpdateProject: failed to store project")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		writeJSON(w, http.StatusOK, s.renderProject(p, v.members[p.ID], v.tasks))
	}
}

func (s *Server) DeleteProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		p := v.project(id)
		if p == nil || !v.canViewProject(p) {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		if !v.canManageProject(p) {
			writeDetail(w, http.StatusForbidden, msgForbidden)
			return
		}
		if err := s.repos.Board.DeleteProject(id); err != nil {
			s.logger.Err(err).Int("project_id", id).Msg("DeleteProject: failed to delete project")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// BulkDeleteProjects deletes the listed projects the caller may manage and
// skips the rest.
func (s *Server) BulkDeleteProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body projects.BulkDeleteRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		if len(body.ProjectIDs) == 0 {
			writeError(w, http.StatusBadRequest, "No project IDs provided")
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		deleted := 0
		for _, id := range body.ProjectIDs {
			p := v.project(id)
			if p == nil || !v.canManageProject(p) {
				continue
			}
			if err := s.repos.Board.DeleteProject(id); err != nil {
				s.logger.Err(err).Int("project_id", id).Msg("BulkDeleteProjects: failed to delete project")
				continue
			}
			deleted++
		}
		writeJSON(w, http.StatusOK, projects.BulkDeleteResult{Deleted: deleted})
	}
}

func taskFilter(r *http.Request) func(*boardrepo.TaskRecord) bool {
	q := r.URL.Query()
	status, priority := q.Get("status"), q.Get("priority")
	return func(t *boardrepo.TaskRecord) bool {
		return (status == "" || string(t.Status) == status) && (priority == "" || string(t.Priority) == priority)
	}
}

func (s *Server) ProjectTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		p := v.project(id)
		if p == nil || !v.canViewProject(p) {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		keep := taskFilter(r)
		ts := filterTasks(v.tasks, func(t *boardrepo.TaskRecord) bool { return t.ProjectID == id && keep(t) })
		writeJSON(w, http.StatusOK, s.renderTasks(v, ts))
	}
}

// Tasks

func (s *Server) ListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		keep := taskFilter(r)
		assigned := r.URL.Query().Get("assigned_user")
		ts := filterTasks(v.visibleTasks(), func(t *boardrepo.TaskRecord) bool {
			if !keep(t) {
				return false
			}
			if assigned == "" {
				return true
			}
			u := s.userSummary(t.AssignedTo)
			return u != nil && u.Username == assigned
		})
		writeJSON(w, http.StatusOK, s.renderTasks(v, ts))
	}
}

func (s *Server) MyTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.renderTasks(v, v.myTasks()))
	}
}

func (s *Server) GetTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		t := v.task(id)
		if t == nil {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s.renderTask(t, v.project(t.ProjectID)))
	}
}

// assignmentErrors enforces the assignment rules: one task per user per
// project, and no two high-priority tasks for a user on the same due date.
func assignmentErrors(v *boardView, t *boardrepo.TaskRecord) map[string][]string {
	if t.AssignedTo == 0 {
		return nil
	}
	for _, other := range v.tasks {
		if other.ID == t.ID || other.AssignedTo != t.AssignedTo {
			continue
		}
		if other.ProjectID == t.ProjectID {
			return map[string][]string{"assigned_to": {"User is already assigned to a task in this project."}}
		}
		if t.Priority == projects.PriorityHigh && other.Priority == projects.PriorityHigh &&
			!t.DueDate.IsZero() && other.DueDate == t.DueDate {
			return map[string][]string{"assigned_to": {"User cannot be assigned another high-priority task with the same deadline."}}
		}
	}
	return nil
}

// markCompletion stamps completed_at when a task becomes done and clears it
// otherwise.
func markCompletion(t *boardrepo.TaskRecord, now time.Time) {
	switch {
	case t.Status == projects.TaskDone && t.CompletedAt == nil:
		t.CompletedAt = utils.Ptr(now)
	case t.Status != projects.TaskDone:
		t.CompletedAt = nil
	}
}

func (s *Server) lookupAssignee(id *int) (int, map[string][]string) {
	if id == nil || *id == 0 {
		return 0, nil
	}
	if _, err := s.repos.Users.GetByID(*id); err != nil {
		return 0, map[string][]string{"assigned_to_id": {fmt.Sprintf(`Invalid pk "%d" - object does not exist.`, *id)}}
	}
	return *id, nil
}

// CreateTask adds the assignee to the project as a member.
func (s *Server) CreateTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in projects.TaskInput
		if !decodeJSON(w, r, &in) {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		p := v.project(in.ProjectID)
		if p == nil && in.ProjectID != 0 {
			writeFieldErrors(w, map[string][]string{"project_id": {fmt.Sprintf(`Invalid pk "%d" - object does not exist.`, in.ProjectID)}}, true)
			return
		}
		var window *projects.Window
		if p != nil {
			window = &projects.Window{Start: p.StartDate, End: p.EndDate}
		}
		if err := in.Validate(s.now(), window); err != nil {
			writeValidation(w, err, true)
			return
		}
		assignee, fieldErrs := s.lookupAssignee(in.AssignedToID)
		if fieldErrs != nil {
			writeFieldErrors(w, fieldErrs, true)
			return
		}

		now := s.now()
		t := &boardrepo.TaskRecord{
			Title:       in.Title,
			Description: in.Description,
			ProjectID:   p.ID,
			AssignedTo:  assignee,
			CreatedBy:   userFromContext(r.Context()).ID,
			Status:      in.Status,
			Priority:    in.Priority,
			StartDate:   in.StartDate,
			DueDate:     in.DueDate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if t.Status == "" {
			t.Status = projects.TaskToDo
		}
		if t.Priority == "" {
			t.Priority = projects.PriorityMedium
		}
		if errs := assignmentErrors(v, t); errs != nil {
			writeFieldErrors(w, errs, true)
			return
		}
		markCompletion(t, now)

		if err := s.repos.Board.CreateTask(t); err != nil {
			s.logger.Err(err).Msg("CreateTask: failed to store task")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		if t.AssignedTo != 0 {
			s.addMember(p.ID, t.AssignedTo, now)
		}
		writeJSON(w, http.StatusCreated, s.renderTask(t, p))
	}
}

func (s *Server) addMember(projectID, userID int, now time.Time) {
	m := boardrepo.MemberRecord{ProjectID: projectID, UserID: userID, Role: projects.MemberMember, JoinedAt: now}
	if _, err := s.repos.Board.AddMember(m); err != nil {
		s.logger.Err(err).Int("project_id", projectID).Int("user_id", userID).Msg("failed to add project member")
	}
}

// dropMemberIfIdle removes a plain member who no longer holds a task in the
// project.
func (s *Server) dropMemberIfIdle(projectID, userID int) {
	ts, err := s.repos.Board.ListTasks(projectID)
	if err != nil {
		return
	}
	for _, t := range ts {
		if t.AssignedTo == userID {
			return
		}
	}
	members, err := s.repos.Board.Members(projectID)
	if err != nil || !isMember(members, userID, projects.MemberMember) {
		return
	}
	if err := s.repos.Board.RemoveMember(projectID, userID); err != nil {
		s.logger.Err(err).Int("project_id", projectID).Int("user_id", userID).Msg("failed to remove project member")
	}
}

// optionalInt distinguishes an absent field from an explicit null.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	o.Value = &n
	return nil
}

// taskUpdate is the body of a task PUT or PATCH. Only present fields change.
type taskUpdate struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	AssignedToID optionalInt          `json:"assigned_to_id"`
	Status       *projects.TaskStatus `json:"status"`
	Priority     *projects.Priority   `json:"priority"`
	StartDate    *projects.Date       `json:"start_date"`
	DueDate      *projects.Date       `json:"due_date"`
}

// UpdateTask moves project membership along with a reassignment.
func (s *Server) UpdateTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body taskUpdate
		if !decodeJSON(w, r, &body) {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		t := v.task(id)
		if t == nil {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		if !v.canEditTask(t) {
			writeDetail(w, http.StatusForbidden, msgForbidden)
			return
		}
		p := v.project(t.ProjectID)
		oldAssignee := t.AssignedTo

		updated := *t
		updated.Title = utils.ValueOr(body.Title, t.Title)
		updated.Description = utils.ValueOr(body.Description, t.Description)
		updated.Status = utils.ValueOr(body.Status, t.Status)
		updated.Priority = utils.ValueOr(body.Priority, t.Priority)
		updated.StartDate = utils.ValueOr(body.StartDate, t.StartDate)
		updated.DueDate = utils.ValueOr(body.DueDate, t.DueDate)

		// Date rules apply to the dates sent, as on create.
		check := projects.TaskInput{
			Title:     updated.Title,
			ProjectID: updated.ProjectID,
			Status:    updated.Status,
			Priority:  updated.Priority,
			StartDate: utils.Value(body.StartDate),
			DueDate:   utils.Value(body.DueDate),
		}
		var window *projects.Window
		if p != nil {
			window = &projects.Window{Start: p.StartDate, End: p.EndDate}
		}
		if err := check.Validate(s.now(), window); err != nil {
			writeValidation(w, err, true)
			return
		}
		if body.AssignedToID.Set {
			assignee, fieldErrs := s.lookupAssignee(body.AssignedToID.Value)
			if fieldErrs != nil {
				writeFieldErrors(w, fieldErrs, true)
				return
			}
			updated.AssignedTo = assignee
		}
		if errs := assignmentErrors(v, &updated); errs != nil {
			writeFieldErrors(w, errs, true)
			return
		}

		now := s.now()
		updated.UpdatedAt = now
		markCompletion(&updated, now)
		if err := s.repos.Board.UpdateTask(&updated); err != nil {
			s.logger.Err(err).Int("task_id", id).Msg("UpdateTask: failed to store task")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		if oldAssignee != updated.AssignedTo {
			if oldAssignee != 0 {
				s.dropMemberIfIdle(updated.ProjectID, oldAssignee)
			}
			if updated.AssignedTo != 0 {
				s.addMember(updated.ProjectID, updated.AssignedTo, now)
			}
		}
		writeJSON(w, http.StatusOK, s.renderTask(&updated, p))
	}
}

func (s *Server) DeleteTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, ok := s.withBoard(w, r)
		if !ok {
			return
		}
		t := v.task(id)
		if t == nil {
			writeDetail(w, http.StatusNotFound, msgNotFound)
			return
		}
		if err := s.repos.Board.DeleteTask(id); err != nil {
			s.logger.Err(err).Int("task_id", id).Msg("DeleteTask: failed to delete task")
			writeDetail(w, http.StatusInternalServerError, msgServerError)
			return
		}
		if t.AssignedTo != 0 {
			s.dropMemberIfIdle(t.ProjectID, t.AssignedTo)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
