package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/taskboard/internal/config"
	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/server"
	"github.com/jrsteele09/taskboard/server/boardrepo"
	refreshrepofake "github.com/jrsteele09/taskboard/token/refresh/repofake"
	"github.com/jrsteele09/taskboard/users"
	fakeuserrepo "github.com/jrsteele09/taskboard/users/repofake"
)

const (
	adminEmail    = "admin@taskboard.local"
	adminPassword = "admin12345"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	server *server.Server
	http   *httptest.Server
	repos  server.Repos
	clock  *testClock
}

type tokens struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    *users.User `json:"user"`
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("DEVSERVER_ADMIN_EMAIL", adminEmail)
	t.Setenv("DEVSERVER_ADMIN_PASSWORD", adminPassword)

	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	repos := server.Repos{
		Users:         fakeuserrepo.NewFakeUserRepo(),
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
		Board:         boardrepo.NewInMemoryRepo(),
	}
	s, err := server.New(config.New(), repos, server.WithNowFunc(clock.Now))
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return &testFixture{server: s, http: ts, repos: repos, clock: clock}
}

// do sends a JSON request and decodes the response into out when non-nil.
func (f *testFixture) do(t *testing.T, method, path, access string, body, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *testFixture) signup(t *testing.T, fields map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := f.http.Client().Post(f.http.URL+server.RouteSignup, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *testFixture) login(t *testing.T, email, password string) tokens {
	t.Helper()
	var tok tokens
	status := f.do(t, http.MethodPost, server.RouteToken, "", map[string]string{"email": email, "password": password}, &tok)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, tok.Access)
	require.NotEmpty(t, tok.Refresh)
	return tok
}

// newUser signs up a user with the given role and logs them in.
func (f *testFixture) newUser(t *testing.T, name string, role users.Role) tokens {
	t.Helper()
	email := name + "@example.com"
	status := f.signup(t, map[string]string{
		"email": email, "username": name, "password": "password123", "password2": "password123", "role": string(role),
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	return f.login(t, email, "password123")
}

func (f *testFixture) createProject(t *testing.T, access, title string) projects.Project {
	t.Helper()
	var p projects.Project
	status := f.do(t, http.MethodPost, server.RouteProjects, access, map[string]any{
		"title": title, "start_date": "2026-03-10", "end_date": "2026-04-10",
	}, &p)
	require.Equal(t, http.StatusCreated, status)
	return p
}

func (f *testFixture) createTask(t *testing.T, access string, body map[string]any) (int, projects.Task) {
	t.Helper()
	var task projects.Task
	status := f.do(t, http.MethodPost, server.RouteTasks, access, body, &task)
	return status, task
}

func projectPath(id int) string { return fmt.Sprintf("/projects/%d/", id) }
func taskPath(id int) string    { return fmt.Sprintf("/tasks/%d/", id) }

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	f := setupTestFixture(t)

	_, err := server.New(config.New(), f.repos, server.WithNowFunc(f.clock.Now))
	require.NoError(t, err)

	list, err := f.repos.Users.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, users.RoleAdmin, list[0].Role)

	tok := f.login(t, adminEmail, adminPassword)
	require.Equal(t, users.RoleAdmin, tok.User.Role)
}

func TestSignup(t *testing.T) {
	f := setupTestFixture(t)
	valid := func() map[string]string {
		return map[string]string{
			"email": "emp@example.com", "username": "emp", "password": "password123", "password2": "password123", "role": "employee",
		}
	}

	var created map[string]any
	require.Equal(t, http.StatusCreated, f.signup(t, valid(), &created))
	require.Equal(t, "User created successfully", created["message"])
	require.NotContains(t, created, "access")

	tests := []struct {
		name   string
		mutate func(map[string]string)
		field  string
		msg    string
	}{
		{name: "duplicate email", mutate: func(map[string]string) {}, field: "email", msg: "user with this email already exists."},
		{name: "admin role", mutate: func(m map[string]string) { m["email"] = "a2@example.com"; m["role"] = "admin" }, field: "role"},
		{name: "password mismatch", mutate: func(m map[string]string) { m["email"] = "a3@example.com"; m["password2"] = "different1" }, field: "password2"},
		{name: "short username", mutate: func(m map[string]string) { m["email"] = "a4@example.com"; m["username"] = "ab" }, field: "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid()
			tt.mutate(form)
			var errs map[string][]string
			require.Equal(t, http.StatusBadRequest, f.signup(t, form, &errs))
			require.Contains(t, errs, tt.field)
			if tt.msg != "" {
				require.Equal(t, []string{tt.msg}, errs[tt.field])
			}
		})
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	f := setupTestFixture(t)

	var body map[string]string
	status := f.do(t, http.MethodPost, server.RouteToken, "", map[string]string{"email": adminEmail, "password": "wrong-password"}, &body)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "No active account found with the given credentials", body["detail"])
}

func TestRequireAuth(t *testing.T) {
	f := setupTestFixture(t)

	var body map[string]string
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteProjects, "", nil, &body))
	require.Equal(t, "Authentication credentials were not provided.", body["detail"])

	body = nil
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteProjects, "not-a-jwt", nil, &body))
	require.Equal(t, "token_not_valid", body["code"])
}

func TestRefreshAfterAccessExpiry(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.login(t, adminEmail, adminPassword)

	f.clock.Advance(6 * time.Minute)
	var body map[string]string
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteProjects, tok.Access, nil, &body))
	require.Equal(t, "token_not_valid", body["code"])

	var refreshed map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{"refresh": tok.Refresh}, &refreshed))
	require.NotEmpty(t, refreshed["access"])
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteProjects, refreshed["access"], nil, nil))

	var verify map[string]any
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteTokenVerify, "", map[string]string{"token": refreshed["access"]}, &verify))

	body = nil
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{}, &body))
	require.Equal(t, "Refresh token is required", body["error"])
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.login(t, adminEmail, adminPassword)

	var body map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteLogout, tok.Access, map[string]string{"refresh_token": tok.Refresh}, &body))
	require.Equal(t, "Successfully logged out and token blacklisted", body["message"])

	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, server.RouteProjects, tok.Access, nil, nil))
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{"refresh": tok.Refresh}, nil))

	body = nil
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, server.RouteLogout, "", map[string]string{"refresh_token": tok.Refresh}, &body))
	require.Equal(t, "Invalid refresh token or logout failed", body["error"])
}

func TestLogoutEverywhere(t *testing.T) {
	f := setupTestFixture(t)
	first := f.login(t, adminEmail, adminPassword)
	second := f.login(t, adminEmail, adminPassword)

	body := map[string]any{"refresh_token": first.Refresh, "everywhere": true}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteLogout, "", body, nil))
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{"refresh": second.Refresh}, nil))
}

func TestProjectRoles(t *testing.T) {
	f := setupTestFixture(t)
	manager := f.newUser(t, "manager", users.RoleManager)
	employee := f.newUser(t, "employee", users.RoleEmployee)

	var denied map[string]string
	status := f.do(t, http.MethodPost, server.RouteProjects, employee.Access, map[string]any{
		"title": "Nope", "start_date": "2026-03-10", "end_date": "2026-04-10",
	}, &denied)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "You do not have permission to perform this action.", denied["detail"])

	var errs map[string][]string
	status = f.do(t, http.MethodPost, server.RouteProjects, manager.Access, map[string]any{
		"title": "Late", "start_date": "2026-03-01", "end_date": "2026-04-10",
	}, &errs)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, []string{"Start date cannot be in the past."}, errs["start_date"])

	p := f.createProject(t, manager.Access, "Launch")
	require.Equal(t, projects.ProjectPlanned, p.Status)
	require.Equal(t, manager.User.ID, p.CreatedBy.ID)
	require.Len(t, p.Members, 1)
	require.Equal(t, projects.MemberOwner, p.Members[0].Role)

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, projectPath(p.ID), employee.Access, nil, nil))

	var patched projects.Project
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, projectPath(p.ID), manager.Access, map[string]string{"status": "active"}, &patched))
	require.Equal(t, projects.ProjectActive, patched.Status)
	require.Equal(t, "Launch", patched.Title)

	other := f.newUser(t, "othermanager", users.RoleManager)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, projectPath(p.ID), other.Access, nil, nil))
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, projectPath(p.ID), manager.Access, nil, nil))
}

func TestTaskAssignment(t *testing.T) {
	f := setupTestFixture(t)
	manager := f.newUser(t, "manager", users.RoleManager)
	employee := f.newUser(t, "employee", users.RoleEmployee)
	p := f.createProject(t, manager.Access, "Launch")

	base := func() map[string]any {
		return map[string]any{
			"title": "Write docs", "project_id": p.ID, "assigned_to_id": employee.User.ID,
			"priority": "high", "start_date": "2026-03-11", "due_date": "2026-03-20",
		}
	}

	status, task := f.createTask(t, manager.Access, base())
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, employee.User.ID, task.AssignedTo.ID)
	require.Equal(t, projects.TaskToDo, task.Status)
	require.Equal(t, p.ID, task.Project.ID)

	var mine []projects.Project
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteUserProjects, employee.Access, nil, &mine))
	require.Len(t, mine, 1)
	var myTasks []projects.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteMyTasks, employee.Access, nil, &myTasks))
	require.Len(t, myTasks, 1)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{name: "already assigned in project", mutate: func(map[string]any) {}, field: "assigned_to"},
		{name: "due outside project", mutate: func(m map[string]any) { m["due_date"] = "2026-05-01" }, field: "due_date"},
		{name: "unknown project", mutate: func(m map[string]any) { m["project_id"] = 999 }, field: "project_id"},
		{name: "unknown assignee", mutate: func(m map[string]any) { m["assigned_to_id"] = 999 }, field: "assigned_to_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			var errs struct {
				Error   string              `json:"error"`
				Details map[string][]string `json:"details"`
			}
			require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, server.RouteTasks, manager.Access, body, &errs))
			require.Equal(t, "Validation failed", errs.Error)
			require.Contains(t, errs.Details, tt.field)
		})
	}

	t.Run("employee cannot create", func(t *testing.T) {
		status, _ := f.createTask(t, employee.Access, base())
		require.Equal(t, http.StatusForbidden, status)
	})
}

func TestTaskStatusAndReassignment(t *testing.T) {
	f := setupTestFixture(t)
	manager := f.newUser(t, "manager", users.RoleManager)
	employee := f.newUser(t, "employee", users.RoleEmployee)
	p := f.createProject(t, manager.Access, "Launch")
	status, task := f.createTask(t, manager.Access, map[string]any{
		"title": "Write docs", "project_id": p.ID, "assigned_to_id": employee.User.ID, "due_date": "2026-03-20",
	})
	require.Equal(t, http.StatusCreated, status)

	var updated projects.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, taskPath(task.ID), employee.Access, map[string]string{"status": "done"}, &updated))
	require.Equal(t, projects.TaskDone, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	updated = projects.Task{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, taskPath(task.ID), employee.Access, map[string]string{"status": "to-do"}, &updated))
	require.Nil(t, updated.CompletedAt)

	require.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, taskPath(task.ID), employee.Access, nil, nil))

	updated = projects.Task{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, taskPath(task.ID), manager.Access, map[string]any{"assigned_to_id": nil}, &updated))
	require.Nil(t, updated.AssignedTo)

	var mine []projects.Project
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteUserProjects, employee.Access, nil, &mine))
	require.Empty(t, mine)
}

func TestProjectPagination(t *testing.T) {
	t.Setenv("DEVSERVER_PAGE_SIZE", "2")
	f := setupTestFixture(t)
	admin := f.login(t, adminEmail, adminPassword)
	for i := 1; i <= 3; i++ {
		f.createProject(t, admin.Access, fmt.Sprintf("P%d", i))
	}

	var page projects.Page[projects.Project]
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteProjects, admin.Access, nil, &page))
	require.Equal(t, 3, page.Count)
	require.Len(t, page.Results, 2)
	require.Equal(t, "P3", page.Results[0].Title)
	require.NotNil(t, page.Next)
	require.True(t, strings.HasSuffix(*page.Next, "page=2"))
	require.Nil(t, page.Previous)

	page = projects.Page[projects.Project]{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteProjects+"?page=2", admin.Access, nil, &page))
	require.Len(t, page.Results, 1)
	require.Nil(t, page.Next)
	require.NotNil(t, page.Previous)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, server.RouteProjects+"?page=3", admin.Access, nil, &body))
	require.Equal(t, "Invalid page.", body["detail"])

	var latest []projects.Project
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteLatest, admin.Access, nil, &latest))
	require.Len(t, latest, 2)
}

func TestBulkDeleteProjects(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, adminEmail, adminPassword)
	a := f.createProject(t, admin.Access, "A")
	b := f.createProject(t, admin.Access, "B")

	var res projects.BulkDeleteResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, server.RouteBulkDelete, admin.Access,
		projects.BulkDeleteRequest{ProjectIDs: []int{a.ID, b.ID, 999}}, &res))
	require.Equal(t, 2, res.Deleted)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, server.RouteBulkDelete, admin.Access,
		projects.BulkDeleteRequest{}, nil))
}

func TestDueReminders(t *testing.T) {
	f := setupTestFixture(t)
	manager := f.newUser(t, "manager", users.RoleManager)
	employee := f.newUser(t, "employee", users.RoleEmployee)
	p := f.createProject(t, manager.Access, "Launch")
	status, task := f.createTask(t, manager.Access, map[string]any{
		"title": "Ship", "project_id": p.ID, "assigned_to_id": employee.User.ID, "start_date": "2026-03-10", "due_date": "2026-03-11",
	})
	require.Equal(t, http.StatusCreated, status)

	reminders, err := f.server.DueReminders()
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	require.Equal(t, "employee@example.com", reminders[0].Email)
	require.Equal(t, task.ID, reminders[0].TaskID)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, taskPath(task.ID), employee.Access, map[string]string{"status": "done"}, nil))
	reminders, err = f.server.DueReminders()
	require.NoError(t, err)
	require.Empty(t, reminders)
}

func TestMetricsAndPreflight(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, adminEmail, adminPassword)

	resp, err := f.http.Client().Get(f.http.URL + server.RouteMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), `taskboard_devserver_logins_total{outcome="success"} 1`)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+server.RouteProjects, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	pre, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer pre.Body.Close()
	require.Equal(t, http.StatusNoContent, pre.StatusCode)
	require.Equal(t, "http://localhost:3000", pre.Header.Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, pre.Header.Get("X-Request-ID"))

	var health map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, server.RouteHealth, "", nil, &health))
	require.Equal(t, "ok", health["status"])
}
