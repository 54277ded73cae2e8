package submission

import "github.com/google/uuid"

// newRequestID generates the unique id half of a job's (owner,
// request-id) reply address.
func newRequestID() string {
	return uuid.NewString()
}
