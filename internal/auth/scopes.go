package auth

// Known OAuth scopes used by the progression service.
const (
	ScopeProgressionWrite = "progression:write"
	ScopeProgressionRead  = "progression:read"
)
