package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/voss-dev/forumsync/internal/client/api"
)

// PresenceTracker maintains the known-users set with online flags and a
// client-side cache of each user's latest message time. Ordering is always
// recomputed in full from the current state, never patched incrementally.
type PresenceTracker struct {
	users map[int]*UserEntry
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{users: make(map[int]*UserEntry)}
}

// SetUsers replaces the known set from a server user list. The cached
// LatestMessageAt of retained users survives the refresh.
func (t *PresenceTracker) SetUsers(users []api.User) {
	next := make(map[int]*UserEntry, len(users))
	for _, u := range users {
		e := &UserEntry{ID: u.ID, Nickname: u.Nickname, Online: u.IsOnline}
		if prev, ok := t.users[u.ID]; ok {
			e.LatestMessageAt = prev.LatestMessageAt
		}
		next[u.ID] = e
	}
	t.users = next
}

// KnowsLatest reports whether a latest-message probe is still needed for the
// given user.
func (t *PresenceTracker) KnowsLatest(id int) bool {
	e, ok := t.users[id]
	return ok && e.LatestMessageAt != nil
}

// Touch bumps the cached latest message time for a user. Older timestamps
// never overwrite newer ones.
func (t *PresenceTracker) Touch(id int, at time.Time) {
	e, ok := t.users[id]
	if !ok {
		return
	}
	if e.LatestMessageAt == nil || at.After(*e.LatestMessageAt) {
		ts := at
		e.LatestMessageAt = &ts
	}
}

func (t *PresenceTracker) Clear() {
	t.users = make(map[int]*UserEntry)
}

// Sorted recomputes the display order: users with message history first,
// newest conversation first; then online before offline; then nickname,
// case-insensitive. The order is a pure function of the current entries.
func (t *PresenceTracker) Sorted() []UserEntry {
	out := make([]UserEntry, 0, len(t.users))
	for _, e := range t.users {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LatestMessageAt != nil && b.LatestMessageAt == nil:
			return true
		case a.LatestMessageAt == nil && b.LatestMessageAt != nil:
			return false
		case a.LatestMessageAt != nil && b.LatestMessageAt != nil:
			if !a.LatestMessageAt.Equal(*b.LatestMessageAt) {
				return a.LatestMessageAt.After(*b.LatestMessageAt)
			}
		}
		if a.Online != b.Online {
			return a.Online
		}
		an, bn := strings.ToLower(a.Nickname), strings.ToLower(b.Nickname)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	return out
}
