// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error: bad args, missing --url, unknown
	// task reference.
	UserError = 1

	// AuthError indicates a login or session error.
	AuthError = 2

	// BackendError indicates a failed save, import or other remote error.
	BackendError = 3
)
