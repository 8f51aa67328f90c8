package server

import (
	"net/http"
)

// exact anchors a trailing-slash route so it does not also match its subtree.
func exact(path string) string {
	return path + "{$}"
}

func (s *Server) initRoutes() {
	authed := s.APIMiddleware(s.RequireAuth())
	managerial := s.APIMiddleware(s.RequireAuth(), s.RequireManagerial())

	// Auth
	s.RegisterRouteHandler("POST "+exact(RouteSignup), ChainMiddleware(s.Signup(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+exact(RouteToken), ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+exact(RouteTokenRefresh), ChainMiddleware(s.TokenRefresh(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+exact(RouteTokenVerify), ChainMiddleware(s.TokenVerify(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+exact(RouteLogout), ChainMiddleware(s.Logout(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+exact(RouteUsers), ChainMiddleware(s.ListUsers(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteUser), ChainMiddleware(s.GetUser(), authed...))

	// Projects
	s.RegisterRouteHandler("GET "+exact(RouteProjects), ChainMiddleware(s.ListProjects(), authed...))
	s.RegisterRouteHandler("POST "+exact(RouteProjects), ChainMiddleware(s.CreateProject(), managerial...))
	s.RegisterRouteHandler("GET "+exact(RouteUserProjects), ChainMiddleware(s.UserProjects(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteLatest), ChainMiddleware(s.LatestProjects(), authed...))
	s.RegisterRouteHandler("POST "+exact(RouteBulkDelete), ChainMiddleware(s.BulkDeleteProjects(), managerial...))
	s.RegisterRouteHandler("GET "+exact(RouteProject), ChainMiddleware(s.GetProject(), authed...))
	s.RegisterRouteHandler("PUT "+exact(RouteProject), ChainMiddleware(s.UpdateProject(false), authed...))
	s.RegisterRouteHandler("PATCH "+exact(RouteProject), ChainMiddleware(s.UpdateProject(true), authed...))
	s.RegisterRouteHandler("DELETE "+exact(RouteProject), ChainMiddleware(s.DeleteProject(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteProjectTasks), ChainMiddleware(s.ProjectTasks(), authed...))

	// Tasks
	s.RegisterRouteHandler("GET "+exact(RouteTasks), ChainMiddleware(s.ListTasks(), authed...))
	s.RegisterRouteHandler("POST "+exact(RouteTasks), ChainMiddleware(s.CreateTask(), managerial...))
	s.RegisterRouteHandler("GET "+exact(RouteMyTasks), ChainMiddleware(s.MyTasks(), authed...))
	s.RegisterRouteHandler("GET "+exact(RouteTask), ChainMiddleware(s.GetTask(), authed...))
	s.RegisterRouteHandler("PUT "+exact(RouteTask), ChainMiddleware(s.UpdateTask(), authed...))
	s.RegisterRouteHandler("PATCH "+exact(RouteTask), ChainMiddleware(s.UpdateTask(), authed...))
	s.RegisterRouteHandler("DELETE "+exact(RouteTask), ChainMiddleware(s.DeleteTask(), managerial...))

	s.RegisterRouteHandler("GET "+RouteMedia, ChainMiddleware(s.Media(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, s.MetricsHandler())
	s.RegisterRouteFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// CORS preflight for every path
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
}
