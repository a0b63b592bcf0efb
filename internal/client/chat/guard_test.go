package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/voss-dev/forumsync/internal/client/api"
)

type guardRecorder struct {
	mismatches []string
	errs       []error
}

func newTestGuard(me func(ctx context.Context) (api.User, error)) (*SessionGuard, *guardRecorder) {
	rec := &guardRecorder{}
	app := &AppState{UserID: 1, Nickname: "alice"}
	g := NewSessionGuard(app, &fakeRest{meFn: me},
		func(reason string) { rec.mismatches = append(rec.mismatches, reason) },
		func(err error) { rec.errs = append(rec.errs, err) },
	)
	return g, rec
}

func TestCheckPassesForMatchingUser(t *testing.T) {
	g, rec := newTestGuard(func(ctx context.Context) (api.User, error) {
		return api.User{ID: 1, Nickname: "alice"}, nil
	})

	if err := g.Check(context.Background()); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if len(rec.mismatches) != 0 || len(rec.errs) != 0 {
		t.Fatalf("clean check triggered callbacks: %v %v", rec.mismatches, rec.errs)
	}
}

func TestCheckRejectedSessionForcesLogout(t *testing.T) {
	g, rec := newTestGuard(func(ctx context.Context) (api.User, error) {
		return api.User{}, &api.StatusError{Code: 401, Message: "unauthorized"}
	})

	if err := g.Check(context.Background()); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("Check() error = %v, want ErrSessionMismatch", err)
	}
	if len(rec.mismatches) != 1 {
		t.Fatalf("mismatch callbacks = %d, want 1", len(rec.mismatches))
	}
	if len(rec.errs) != 0 {
		t.Fatalf("rejection also surfaced as inline error")
	}
}

func TestCheckDifferentUserForcesLogout(t *testing.T) {
	g, rec := newTestGuard(func(ctx context.Context) (api.User, error) {
		return api.User{ID: 7, Nickname: "mallory"}, nil
	})

	if err := g.Check(context.Background()); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("Check() error = %v, want ErrSessionMismatch", err)
	}
	if len(rec.mismatches) != 1 {
		t.Fatalf("mismatch callbacks = %d, want 1", len(rec.mismatches))
	}
}

func TestCheckTransientFailureStaysInline(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	g, rec := newTestGuard(func(ctx context.Context) (api.User, error) {
		return api.User{}, netErr
	})

	if err := g.Check(context.Background()); !errors.Is(err, netErr) {
		t.Fatalf("Check() error = %v, want the transport error", err)
	}
	if len(rec.mismatches) != 0 {
		t.Fatalf("transient failure escalated to logout")
	}
	if len(rec.errs) != 1 {
		t.Fatalf("inline error callbacks = %d, want 1", len(rec.errs))
	}
}

func TestCheckServerErrorStaysInline(t *testing.T) {
	g, rec := newTestGuard(func(ctx context.Context) (api.User, error) {
		return api.User{}, &api.StatusError{Code: 500, Message: "internal error"}
	})

	if err := g.Check(context.Background()); err == nil {
		t.Fatalf("Check() succeeded on a 500")
	}
	if len(rec.mismatches) != 0 {
		t.Fatalf("500 escalated to logout")
	}
	if len(rec.errs) != 1 {
		t.Fatalf("inline error callbacks = %d, want 1", len(rec.errs))
	}
}
