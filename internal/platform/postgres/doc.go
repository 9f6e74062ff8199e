// Package postgres provides the PostgreSQL audit log for request
// transitions. The processing core does not depend on it: the
// TransitionStore is registered as an event sink and a database outage only
// loses audit rows, never queue state.
//
// Schema changes are embedded goose migrations applied with Migrate.
package postgres
