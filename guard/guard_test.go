package guard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/guard"
	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/users"
)

func signedIn(role users.Role) session.Snapshot {
	return session.Snapshot{
		User:            &users.User{ID: 1, Role: role},
		AccessToken:     "T1",
		IsAuthenticated: true,
	}
}

func TestDecide(t *testing.T) {
	managers := guard.Roles(users.RoleManager, users.RoleAdmin)

	t.Run("unauthenticated always goes to login", func(t *testing.T) {
		for _, allowed := range []guard.RoleSet{nil, guard.Roles(), managers, guard.Roles(users.AllRoles()...)} {
			require.Equal(t, guard.RedirectTo("/"), guard.Decide(session.Snapshot{}, allowed))
		}
		require.Equal(t, guard.RedirectTo("/"), guard.Decide(nil, managers))
	})

	t.Run("employee outside manager routes", func(t *testing.T) {
		d := guard.Decide(signedIn(users.RoleEmployee), managers)
		require.Equal(t, guard.RedirectTo("/unauthorized"), d)
		require.False(t, d.Renders())
	})

	t.Run("role in set renders", func(t *testing.T) {
		require.Equal(t, guard.Render, guard.Decide(signedIn(users.RoleAdmin), managers))
		require.Equal(t, "render", guard.Render.String())
	})

	t.Run("authenticated without identity is unauthorized", func(t *testing.T) {
		s := session.Snapshot{AccessToken: "T1", IsAuthenticated: true}
		require.Equal(t, guard.RedirectTo("/unauthorized"), guard.Decide(s, managers))
	})
}

func TestPolicy_Navigate(t *testing.T) {
	policy := guard.DefaultPolicy()

	tests := []struct {
		path     string
		snap     session.Snapshot
		expected guard.Decision
	}{
		{"/", session.Snapshot{}, guard.Render},
		{"/signup", session.Snapshot{}, guard.Render},
		{"/adminlogin", signedIn(users.RoleEmployee), guard.Render},
		{"/unauthorized", session.Snapshot{}, guard.Render},
		{"/dashboard", signedIn(users.RoleEmployee), guard.Render},
		{"/dashboard", signedIn(users.RoleManager), guard.RedirectTo("/unauthorized")},
		{"/dashboard", session.Snapshot{}, guard.RedirectTo("/")},
		{"/hrdashboard", signedIn(users.RoleManager), guard.Render},
		{"/hrdashboard", signedIn(users.RoleAdmin), guard.Render},
		{"/hrdashboard", signedIn(users.RoleEmployee), guard.RedirectTo("/unauthorized")},
		{"/projects/42", signedIn(users.RoleManager), guard.Render},
		{"/projects/42/", signedIn(users.RoleEmployee), guard.RedirectTo("/unauthorized")},
		{"/myprojects/7", signedIn(users.RoleEmployee), guard.Render},
		{"/myprojects", signedIn(users.RoleAdmin), guard.RedirectTo("/unauthorized")},
		{"/tasklist", signedIn(users.RoleEmployee), guard.Render},
		{"/task/3", signedIn(users.RoleAdmin), guard.Render},
		{"/admindashboard", signedIn(users.RoleManager), guard.RedirectTo("/unauthorized")},
		{"/admindashboard", signedIn(users.RoleAdmin), guard.Render},
	}
	for _, tt := range tests {
		t.Run(tt.path+" as "+string(tt.snap.UserRole()), func(t *testing.T) {
			d, err := policy.Navigate(tt.snap, tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.expected, d)
		})
	}

	_, err := policy.Navigate(signedIn(users.RoleAdmin), "/nowhere")
	require.ErrorIs(t, err, apierror.ErrUnknownRoute)
	require.Equal(t, "[Policy.Navigate] /nowhere: unknown route", err.Error())
	_, err = policy.Navigate(signedIn(users.RoleAdmin), "/projects/1/edit")
	require.ErrorIs(t, err, apierror.ErrUnknownRoute)
}

func TestPolicy_MatchParams(t *testing.T) {
	r, params, ok := guard.DefaultPolicy().Match("/task/99")
	require.True(t, ok)
	require.Equal(t, "/task/:id", r.Pattern)
	require.Equal(t, map[string]string{"id": "99"}, params)
}

func TestAfterLogin(t *testing.T) {
	tests := []struct {
		name     string
		entry    guard.Entry
		role     users.Role
		expected guard.Landing
	}{
		{"employee", guard.StandardEntry, users.RoleEmployee, guard.Landing{Path: "/dashboard"}},
		{"manager", guard.StandardEntry, users.RoleManager, guard.Landing{Path: "/hrdashboard"}},
		{"admin via standard login", guard.StandardEntry, users.RoleAdmin,
			guard.Landing{Path: "/adminlogin", Teardown: true, Message: guard.MsgUseAdminLogin}},
		{"admin via admin login", guard.AdminEntry, users.RoleAdmin, guard.Landing{Path: "/hrdashboard"}},
		{"manager via admin login", guard.AdminEntry, users.RoleManager,
			guard.Landing{Path: "/adminlogin", Teardown: true, Message: guard.MsgNotAnAdmin}},
		{"employee via admin login", guard.AdminEntry, users.RoleEmployee,
			guard.Landing{Path: "/adminlogin", Teardown: true, Message: guard.MsgNotAnAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			landing := guard.AfterLogin(tt.entry, &users.User{ID: 1, Role: tt.role})
			require.Equal(t, tt.expected, landing)
			if landing.Teardown {
				require.ErrorIs(t, landing.Err(), apierror.ErrAuthRejected)
			} else {
				require.NoError(t, landing.Err())
			}
		})
	}
	require.Equal(t, guard.Landing{Path: "/"}, guard.AfterLogin(guard.StandardEntry, nil))
}
