package mount

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotMounted reports an operation that requires a mounted target against
// a configuration with no active mount.
var ErrNotMounted = errors.New("repository is not mounted")

// TimeoutError reports a mount request whose physical mount point never
// appeared within the allowed wait.
type TimeoutError struct {
	Ref  string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mount of %s did not complete within %s", e.Ref, e.Wait)
}
