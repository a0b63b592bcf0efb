package chat

import (
	"context"
	"errors"

	"github.com/voss-dev/forumsync/internal/client/api"
	"github.com/voss-dev/forumsync/internal/client/debug"
)

// ErrSessionMismatch is returned when the server's session no longer points
// at the locally held user.
var ErrSessionMismatch = errors.New("chat: session no longer valid")

type sessionResolver interface {
	Me(ctx context.Context) (api.User, error)
}

// SessionGuard validates that the locally held identity still matches the
// server's notion of the active session. It runs before every mutating
// action; the action proceeds optimistically while the check is in flight.
type SessionGuard struct {
	app      *AppState
	resolver sessionResolver

	// onMismatch performs a full local logout. onError surfaces a failed
	// check as an inline error; check failures never log anyone out.
	onMismatch func(reason string)
	onError    func(err error)
}

func NewSessionGuard(app *AppState, resolver sessionResolver, onMismatch func(string), onError func(error)) *SessionGuard {
	return &SessionGuard{app: app, resolver: resolver, onMismatch: onMismatch, onError: onError}
}

// Check resolves the session token to a user id and compares it against the
// local identity. Mismatch (a different user, or no user at all) escalates
// to a forced logout.
func (g *SessionGuard) Check(ctx context.Context) error {
	u, err := g.resolver.Me(ctx)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && (se.Code == 401 || se.Code == 403) {
			debug.Log("guard: session rejected by server: %v", err)
			g.onMismatch("session expired or signed out elsewhere")
			return ErrSessionMismatch
		}
		g.onError(err)
		return err
	}
	if u.ID != g.app.UserID {
		debug.Log("guard: session resolves to user %d, local user is %d", u.ID, g.app.UserID)
		g.onMismatch("session belongs to another account")
		return ErrSessionMismatch
	}
	return nil
}

// CheckAsync runs Check without blocking the caller; the triggering action
// and the check deliberately race.
func (g *SessionGuard) CheckAsync(ctx context.Context) {
	go g.Check(ctx)
}
