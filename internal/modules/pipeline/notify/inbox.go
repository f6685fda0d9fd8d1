package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/tourforge-backend/internal/domain/aggregates"
	domain "github.com/yungbote/tourforge-backend/internal/domain/pipeline"
)

// Inbox is one user's in-memory notification list. Read-state operations are
// idempotent.
type Inbox struct {
	mu    sync.Mutex
	owner uuid.UUID
	items []domain.Notification
	now   func() time.Time
}

func NewInbox(owner uuid.UUID) *Inbox {
	return &Inbox{owner: owner, now: time.Now}
}

func (in *Inbox) Add(n domain.Notification) domain.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.OwnerUserID = in.owner
	if n.CreatedAt.IsZero() {
		n.CreatedAt = in.now().UTC()
	}
	in.items = append(in.items, n)
	return n
}

// List returns newest first.
func (in *Inbox) List() []domain.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]domain.Notification, len(in.items))
	copy(out, in.items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, it := range in.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read. Marking it again is a no-op.
func (in *Inbox) MarkRead(id uuid.UUID) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.items {
		if in.items[i].ID == id {
			in.items[i].IsRead = true
			return nil
		}
	}
	return aggregates.NotFound("notify.MarkRead", "notification %s not found", id)
}

// MarkAllRead returns how many notifications changed.
func (in *Inbox) MarkAllRead() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	changed := 0
	for i := range in.items {
		if !in.items[i].IsRead {
			in.items[i].IsRead = true
			changed++
		}
	}
	return changed
}

// ClearAll deletes every notification and returns how many were removed.
func (in *Inbox) ClearAll() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := len(in.items)
	in.items = nil
	return n
}
