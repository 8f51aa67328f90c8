package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/guard"
	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/users"
)

func (a *App) commandTable() map[string]command {
	return map[string]command{
		"signup":     {usage: "register (-email -username -password -password2 -role [-avatar file])", run: a.signup},
		"login":      {usage: "log in as an employee or manager (-email -password)", run: a.login(guard.StandardEntry)},
		"adminlogin": {usage: "log in as an admin (-email -password)", run: a.login(guard.AdminEntry)},
		"logout":     {usage: "end the session", run: a.logout},
		"whoami":     {usage: "show the current session", run: a.whoami},
		"open":       {usage: "open a route, e.g. open /dashboard", run: a.openCmd},
		"projects":   {usage: "list|create|update|delete projects", run: a.projectsCmd},
		"tasks":      {usage: "list|mine|create|status|delete tasks", run: a.tasksCmd},
		"users":      {usage: "list users", run: a.usersCmd},
	}
}

func (a *App) signup(ctx context.Context, args []string) error {
	fs := a.flags("signup")
	email := fs.String("email", "", "email address")
	username := fs.String("username", "", "display name")
	password := fs.String("password", "", "password")
	password2 := fs.String("password2", "", "password confirmation")
	role := fs.String("role", string(users.RoleEmployee), "employee or manager")
	avatar := fs.String("avatar", "", "profile picture file")
	if err := parse(fs, args); err != nil {
		return err
	}

	form := session.SignupForm{
		Email:     *email,
		Username:  *username,
		Password:  *password,
		Password2: *password2,
		Role:      users.Role(*role),
	}
	if *avatar != "" {
		data, err := os.ReadFile(*avatar)
		if err != nil {
			return errors.Wrap(err, "read avatar")
		}
		form.ProfilePic = &session.Upload{Filename: filepath.Base(*avatar), Data: data}
	}

	user, err := a.manager.Signup(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed up as %s (%s)\n", user.Username, user.Role)
	return a.land(ctx, guard.AfterLogin(guard.StandardEntry, user))
}

func (a *App) login(entry guard.Entry) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		fs := a.flags("login")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *password == "" {
			*password = os.Getenv("TASKBOARD_PASSWORD")
		}

		user, err := a.manager.Login(ctx, session.LoginForm{Email: *email, Password: *password})
		if err != nil {
			return err
		}
		return a.land(ctx, guard.AfterLogin(entry, user))
	}
}

// land applies the post-login policy. A rejected role ends the session
// before anything is shown.
func (a *App) land(ctx context.Context, l guard.Landing) error {
	if l.Teardown {
		if err := a.manager.Logout(ctx); err != nil {
			a.manager.Teardown(l.Err())
		}
		fmt.Fprintf(a.out, "%s\n", l.Message)
		return l.Err()
	}
	snap := a.manager.Snapshot()
	if snap.User != nil {
		fmt.Fprintf(a.out, "Logged in as %s (%s)\n", snap.User.Username, snap.User.Role)
	}
	return a.open(ctx, l.Path)
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) whoami(_ context.Context, _ []string) error {
	snap := a.manager.Snapshot()
	if !snap.Authenticated() || snap.User == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	u := snap.User
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid:   %d\n", u.Username, u.Email, u.Role, u.ID)
	if claims, err := token.Inspect(snap.AccessToken); err == nil && !claims.ExpiresAt.IsZero() {
		left := claims.ExpiresAt.Sub(a.now()).Round(time.Second)
		if left > 0 {
			fmt.Fprintf(a.out, "access token expires in %s\n", left)
		} else {
			fmt.Fprintln(a.out, "access token expired, it is refreshed on the next call")
		}
	}
	return nil
}

func (a *App) openCmd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: taskboard open <route>")
		return ErrUsage
	}
	return a.open(ctx, args[0])
}

// open runs the guard for path and renders it, or prints the redirect. A
// refresh failure while rendering tears the session down, so the guard is
// consulted again.
func (a *App) open(ctx context.Context, path string) error {
	decision, err := a.policy.Navigate(a.manager.Snapshot(), path)
	if err != nil {
		return err
	}
	if !decision.Renders() {
		fmt.Fprintf(a.out, "Redirected to %s\n", decision.Redirect)
		return nil
	}

	err = a.render(ctx, path)
	if apierror.KindOf(err) == apierror.KindRefreshFailed {
		if again, navErr := a.policy.Navigate(a.manager.Snapshot(), path); navErr == nil && !again.Renders() {
			fmt.Fprintf(a.out, "Session expired. Redirected to %s\n", again.Redirect)
		}
	}
	return err
}

func (a *App) render(ctx context.Context, path string) error {
	route, params, _ := a.policy.Match(path)
	switch route.Pattern {
	case guard.PathDashboard, guard.PathHRDashboard:
		summary, err := a.projects.Dashboard(ctx)
		if err != nil {
			return err
		}
		a.printSummary(summary)
	case "/admindashboard":
		list, err := a.projects.ListUsers(ctx)
		if err != nil {
			return err
		}
		a.printUsers(list)
		latest, err := a.projects.LatestProjects(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "\nLatest projects")
		a.printProjects(latest)
	case "/projects":
		page, err := a.projects.ListProjects(ctx, projects.ProjectFilter{})
		if err != nil {
			return err
		}
		a.printProjects(page.Results)
		fmt.Fprintf(a.out, "%d of %d\n", len(page.Results), page.Count)
	case "/myprojects":
		list, err := a.projects.UserProjects(ctx, "")
		if err != nil {
			return err
		}
		a.printProjects(list)
	case "/projects/:id", "/myprojects/:id":
		id, err := strconv.Atoi(params["id"])
		if err != nil {
			return errors.Errorf("invalid project id %q", params["id"])
		}
		return a.showProject(ctx, id)
	case "/tasklist":
		list, err := a.projects.MyTasks(ctx)
		if err != nil {
			return err
		}
		a.printTasks(list)
	case "/task/:id":
		id, err := strconv.Atoi(params["id"])
		if err != nil {
			return errors.Errorf("invalid task id %q", params["id"])
		}
		t, err := a.projects.GetTask(ctx, id)
		if err != nil {
			return err
		}
		a.printTask(t)
	case "/signup":
		fmt.Fprintln(a.out, "Run: taskboard signup -email ... -username ... -password ... -password2 ... -role employee|manager")
	case guard.PathAdminLogin:
		fmt.Fprintln(a.out, "Run: taskboard adminlogin -email ... -password ...")
	case guard.PathUnauthorized:
		fmt.Fprintln(a.out, "You are not authorized to view this page.")
	default:
		fmt.Fprintln(a.out, "Run: taskboard login -email ... -password ...")
	}
	return nil
}

func (a *App) showProject(ctx context.Context, id int) error {
	p, err := a.projects.GetProject(ctx, id)
	if err != nil {
		return err
	}
	a.printProject(p)
	tasks, err := a.projects.ProjectTasks(ctx, id, projects.TaskFilter{})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out)
	a.printTasks(tasks)
	return nil
}

func (a *App) projectsCmd(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "list")
	switch sub {
	case "list":
		fs := a.flags("projects list")
		status := fs.String("status", "", "planned, active or completed")
		page := fs.Int("page", 1, "page number")
		if err := parse(fs, rest); err != nil {
			return err
		}
		result, err := a.projects.ListProjects(ctx, projects.ProjectFilter{Page: *page, Status: projects.ProjectStatus(*status)})
		if err != nil {
			return err
		}
		a.printProjects(result.Results)
		fmt.Fprintf(a.out, "page %d, %d of %d\n", *page, len(result.Results), result.Count)
		return nil
	case "show":
		id, err := idArg(rest)
		if err != nil {
			return err
		}
		return a.showProject(ctx, id)
	case "create":
		fs := a.flags("projects create")
		in := projects.ProjectInput{}
		fs.StringVar(&in.Title, "title", "", "title")
		fs.StringVar(&in.Description, "description", "", "description")
		start := fs.String("start", "", "start date YYYY-MM-DD")
		end := fs.String("end", "", "end date YYYY-MM-DD")
		status := fs.String("status", "", "planned, active or completed")
		if err := parse(fs, rest); err != nil {
			return err
		}
		var err error
		if in.StartDate, err = optionalDate(*start); err != nil {
			return err
		}
		if in.EndDate, err = optionalDate(*end); err != nil {
			return err
		}
		in.Status = projects.ProjectStatus(*status)
		p, err := a.projects.CreateProject(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created project %d\n", p.ID)
		return nil
	case "update":
		id, err := idArg(rest)
		if err != nil {
			return err
		}
		fs := a.flags("projects update")
		title := fs.String("title", "", "title")
		status := fs.String("status", "", "planned, active or completed")
		end := fs.String("end", "", "end date YYYY-MM-DD")
		if err := parse(fs, rest[1:]); err != nil {
			return err
		}
		var patch projects.ProjectPatch
		if *title != "" {
			patch.Title = title
		}
		if *status != "" {
			s := projects.ProjectStatus(*status)
			patch.Status = &s
		}
		if *end != "" {
			d, err := projects.ParseDate(*end)
			if err != nil {
				return err
			}
			patch.EndDate = &d
		}
		p, err := a.projects.PatchProject(ctx, id, patch)
		if err != nil {
			return err
		}
		a.printProject(p)
		return nil
	case "delete":
		ids, err := idArgs(rest)
		if err != nil {
			return err
		}
		if len(ids) == 1 {
			if err := a.projects.DeleteProject(ctx, ids[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Deleted 1 project")
			return nil
		}
		n, err := a.projects.BulkDeleteProjects(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted %d projects\n", n)
		return nil
	}
	fmt.Fprintf(a.out, "unknown projects command %q\n", sub)
	return ErrUsage
}

func (a *App) tasksCmd(ctx context.Context, args []string) error {
	sub, rest := subcommand(args, "mine")
	switch sub {
	case "mine":
		list, err := a.projects.MyTasks(ctx)
		if err != nil {
			return err
		}
		a.printTasks(list)
		return nil
	case "list":
		fs := a.flags("tasks list")
		status := fs.String("status", "", "to-do, in-progress or done")
		priority := fs.String("priority", "", "low, medium or high")
		assigned := fs.String("assigned", "", "assignee username")
		project := fs.Int("project", 0, "only this project's tasks")
		if err := parse(fs, rest); err != nil {
			return err
		}
		filter := projects.TaskFilter{Status: projects.TaskStatus(*status), Priority: projects.Priority(*priority), AssignedUser: *assigned}
		var (
			list []projects.Task
			err  error
		)
		if *project > 0 {
			list, err = a.projects.ProjectTasks(ctx, *project, filter)
		} else {
			list, err = a.projects.ListTasks(ctx, filter)
		}
		if err != nil {
			return err
		}
		a.printTasks(list)
		return nil
	case "show":
		id, err := idArg(rest)
		if err != nil {
			return err
		}
		t, err := a.projects.GetTask(ctx, id)
		if err != nil {
			return err
		}
		a.printTask(t)
		return nil
	case "create":
		fs := a.flags("tasks create")
		in := projects.TaskInput{}
		fs.StringVar(&in.Title, "title", "", "title")
		fs.StringVar(&in.Description, "description", "", "description")
		fs.IntVar(&in.ProjectID, "project", 0, "project id")
		assign := fs.Int("assign", 0, "assignee user id")
		priority := fs.String("priority", "", "low, medium or high")
		status := fs.String("status", "", "to-do, in-progress or done")
		start := fs.String("start", "", "start date YYYY-MM-DD")
		due := fs.String("due", "", "due date YYYY-MM-DD")
		if err := parse(fs, rest); err != nil {
			return err
		}
		var err error
		if in.StartDate, err = optionalDate(*start); err != nil {
			return err
		}
		if in.DueDate, err = optionalDate(*due); err != nil {
			return err
		}
		if *assign > 0 {
			in.AssignedToID = assign
		}
		in.Priority = projects.Priority(*priority)
		in.Status = projects.TaskStatus(*status)

		var window *projects.Window
		if in.ProjectID > 0 {
			if p, err := a.projects.GetProject(ctx, in.ProjectID); err == nil {
				w := p.Window()
				window = &w
			}
		}
		t, err := a.projects.CreateTask(ctx, in, window)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created task %d\n", t.ID)
		return nil
	case "status":
		if len(rest) != 2 {
			fmt.Fprintln(a.out, "Usage: taskboard tasks status <id> <to-do|in-progress|done>")
			return ErrUsage
		}
		id, err := idArg(rest[:1])
		if err != nil {
			return err
		}
		t, err := a.projects.SetTaskStatus(ctx, id, projects.TaskStatus(rest[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Task %d is %s\n", t.ID, t.Status)
		return nil
	case "delete":
		id, err := idArg(rest)
		if err != nil {
			return err
		}
		if err := a.projects.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted 1 task")
		return nil
	}
	fmt.Fprintf(a.out, "unknown tasks command %q\n", sub)
	return ErrUsage
}

func (a *App) usersCmd(ctx context.Context, _ []string) error {
	list, err := a.projects.ListUsers(ctx)
	if err != nil {
		return err
	}
	a.printUsers(list)
	return nil
}

// subcommand splits off the first non-flag argument, or returns def.
func subcommand(args []string, def string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return def, args
	}
	return args[0], args[1:]
}

func idArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("an id is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func idArgs(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one id is required")
	}
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := idArg([]string{arg})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optionalDate(s string) (projects.Date, error) {
	if s == "" {
		return projects.Date{}, nil
	}
	return projects.ParseDate(s)
}
