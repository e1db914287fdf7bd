package actor

import (
	"sync/atomic"

	"github.com/berfenger/healthrecorder/internal/core/domain"
)

// SnapshotCell holds the recording machine as last merged by the session actor.
// Only this package writes it; readers get an immutable value.
type SnapshotCell struct {
	p atomic.Pointer[domain.Machine]
}

func (c *SnapshotCell) Load() (domain.Machine, bool) {
	m := c.p.Load()
	if m == nil {
		return domain.Machine{}, false
	}
	return *m, true
}

func (c *SnapshotCell) store(m domain.Machine) {
	c.p.Store(&m)
}
