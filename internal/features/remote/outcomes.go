package remote

import (
	"sync"
	"time"

	"docsync/internal/common/errs"
)

// outcomeCapacity bounds how many finished operations a synchronous remote
// remembers. Their handles are settled when tracked, so only recent uids are
// ever looked up again.
const outcomeCapacity = 4096

// outcomeLog hands out operation uids for remotes that apply writes
// synchronously and remembers how the most recent operations ended.
type outcomeLog struct {
	mu       sync.Mutex
	seq      int64
	capacity int
	outcomes map[int64]Handle
	order    []int64 // ring of uids, oldest at next
	next     int
}

func newOutcomeLog() *outcomeLog {
	return newOutcomeLogSize(outcomeCapacity)
}

func newOutcomeLogSize(capacity int) *outcomeLog {
	return &outcomeLog{
		// Seeded from the clock so uids stay unique across restarts.
		seq:      time.Now().UnixMicro(),
		capacity: capacity,
		outcomes: make(map[int64]Handle, capacity),
		order:    make([]int64, 0, capacity),
	}
}

func (l *outcomeLog) record(status Status, detail string) *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	h := Handle{
		UID:        l.seq,
		Status:     status,
		Detail:     detail,
		EnqueuedAt: time.Now().UTC(),
	}

	if len(l.order) < l.capacity {
		l.order = append(l.order, h.UID)
	} else {
		delete(l.outcomes, l.order[l.next])
		l.order[l.next] = h.UID
		l.next = (l.next + 1) % l.capacity
	}
	l.outcomes[h.UID] = h
	return &h
}

func (l *outcomeLog) lookup(uid int64) (Status, string, error) {
	l.mu.Lock()
	h, ok := l.outcomes[uid]
	l.mu.Unlock()
	if !ok {
		return "", "", errs.New(errs.NotFound, "operation %d is unknown", uid)
	}
	return h.Status, h.Detail, nil
}
