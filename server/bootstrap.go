package server

import (
	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/users"
)

const DefaultAdminUsername = "admin"

// InitialiseSystem seeds the admin account from config if it does not exist
// yet. Admins cannot sign up, so this is the only way one is created.
func (s *Server) InitialiseSystem() error {
	email := s.config.GetAdminEmail()
	if existing, err := s.repos.Users.GetByEmail(email); err == nil {
		s.logger.Debug().Int("user_id", existing.ID).Str("email", email).Msg("Bootstrap: admin already exists")
		return nil
	}

	hash, err := users.HashPassword(s.config.GetAdminPassword())
	if err != nil {
		return errors.Wrap(err, "[Server.InitialiseSystem] hash admin password")
	}
	admin := &users.User{
		Username:     DefaultAdminUsername,
		Email:        email,
		Role:         users.RoleAdmin,
		PasswordHash: hash,
		JoinedAt:     s.now(),
	}
	if err := s.repos.Users.Create(admin); err != nil {
		return errors.Wrap(err, "[Server.InitialiseSystem] create admin")
	}

	s.logger.Info().Int("user_id", admin.ID).Str("email", email).Msg("Bootstrap: admin account created")
	return nil
}
