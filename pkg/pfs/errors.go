package pfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound reports that a repository, branch, commit, or path does not
// exist on the remote.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx response from the PFS gateway or the
// mount-server control plane. The engine never retries these itself.
type StatusError struct {
	Op     string
	URL    string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s returned status %d", e.Op, e.URL, e.Code)
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", e.Op, e.URL, e.Code, e.Detail)
}

// IsNotFound reports whether err is ErrNotFound or a 404 StatusError.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == 404
}
