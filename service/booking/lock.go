package booking

import "sync"

// instructorLocks hands out one mutex per instructor so that the
// availability check and the insert run as a single step for that
// instructor. Bookings for different instructors never interact, so
// requests for different instructors proceed fully in parallel.
type instructorLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newInstructorLocks() *instructorLocks {
	return &instructorLocks{locks: make(map[uint]*sync.Mutex)}
}

func (l *instructorLocks) forInstructor(id uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}
