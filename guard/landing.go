package guard

import (
	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/users"
)

// Entry identifies which login form produced a session.
type Entry int

const (
	StandardEntry Entry = iota // "/"
	AdminEntry                 // "/adminlogin"
)

const (
	MsgUseAdminLogin = "Login through Admin Login"
	MsgNotAnAdmin    = "Not an admin. Login failed"
)

// Landing is where the login caller goes next. When Teardown is set the
// caller must end the session before navigating, and show Message.
type Landing struct {
	Path     string
	Teardown bool
	Message  string
}

// Err returns the teardown reason as an AuthRejected error, or nil.
func (l Landing) Err() error {
	if !l.Teardown {
		return nil
	}
	return apierror.AuthRejected(0, l.Message, nil)
}

// AfterLogin applies the role-to-dashboard policy once, right after a
// successful login. Admin credentials are only accepted through AdminEntry.
func AfterLogin(entry Entry, user *users.User) Landing {
	if user == nil {
		return Landing{Path: PathLogin}
	}
	if entry == AdminEntry {
		if user.Role == users.RoleAdmin {
			return Landing{Path: PathHRDashboard}
		}
		return Landing{Path: PathAdminLogin, Teardown: true, Message: MsgNotAnAdmin}
	}

	switch user.Role {
	case users.RoleEmployee:
		return Landing{Path: PathDashboard}
	case users.RoleManager:
		return Landing{Path: PathHRDashboard}
	case users.RoleAdmin:
		return Landing{Path: PathAdminLogin, Teardown: true, Message: MsgUseAdminLogin}
	}
	return Landing{Path: PathUnauthorized}
}
