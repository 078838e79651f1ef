package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-clinical/internal/rbac"
)

const guestPrefix = "guest|"

// GuestCookie names the cookie that keeps a browser on the same guest
// learner across visits.
const GuestCookie = "me_guest_id"

// Guest returns the guest learner identified by id when it is still valid,
// or provisions a new one. Guests are learners without a password.
func (u *Users) Guest(ctx context.Context, id string) (User, error) {
	if strings.HasPrefix(id, guestPrefix) {
		if usr, err := u.Get(ctx, id); err == nil && usr.Role == rbac.RoleLearner {
			return usr, nil
		}
	}
	sfx := strconv.FormatInt(time.Now().UnixNano(), 36)
	return u.insert(ctx, guestPrefix+sfx, "guest-"+sfx[len(sfx)-6:], rbac.RoleLearner, "")
}
