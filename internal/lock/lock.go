// Package lock serialises submissions for one learner session.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

// ErrBusy is returned when the lock could not be taken before the deadline.
var ErrBusy = errors.New("session is busy")

// Locker hands out exclusive, expiring locks by key. The returned release
// func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key names the lock for one learner's session on one case.
func Key(learnerID, caseID string) string {
	return "clinical:lock:" + learnerID + ":" + caseID
}

// Busy converts ErrBusy into the conflict surfaced to callers.
func Busy(err error) error {
	if errors.Is(err, ErrBusy) {
		return clinical.Conflict("another submission for this session is in progress")
	}
	return err
}

const (
	DefaultTTL  = 10 * time.Second
	DefaultWait = 3 * time.Second
	retryEvery  = 25 * time.Millisecond
)
