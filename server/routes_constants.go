package server

// Route path constants
// All API routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteSignup       = "/api/signup/"
	RouteToken        = "/api/token/"
	RouteTokenRefresh = "/api/token/refresh/"
	RouteTokenVerify  = "/api/token/verify/"
	RouteLogout       = "/api/logout/"
	RouteUsers        = "/api/user/users/"
	RouteUser         = "/api/user/users/{id}/"

	// Project Routes
	RouteProjects     = "/projects/"
	RouteProject      = "/projects/{id}/"
	RouteProjectTasks = "/projects/{id}/tasks/"
	RouteUserProjects = "/projects/user-projects/"
	RouteLatest       = "/projects/latest/"
	RouteBulkDelete   = "/projects/bulk-delete/"

	// Task Routes
	RouteTasks   = "/tasks/"
	RouteTask    = "/tasks/{id}/"
	RouteMyTasks = "/mytasks/"

	// Uploaded avatars
	RouteMedia = "/media/profile_pics/{file}"

	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
