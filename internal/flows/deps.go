package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login         LoginDeps
	Refresh       RefreshDeps
	Logout        LogoutDeps
	Introspection IntrospectionDeps
}

// UserRecord is the flow-local user model. Flows never see password
// material; the provider verifies credentials behind Authenticate.
type UserRecord struct {
	UserID string
	Email  string
	Name   string
}
