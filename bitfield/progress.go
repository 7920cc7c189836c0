package bitfield

import "sync"

// State is one slot's lifecycle stage in a Progress tracker (spec.md §3).
type State int

const (
	Absent State = iota
	InProgress
	Present
)

// Progress is the shared-mutable ternary bitmap the download coordinator
// uses to ensure at most one session owns a given piece at a time
// (spec.md §4.6, §8 invariant 2). Grounded in
// dbermond-XD/src/xd/lib/bittorrent/swarm/torrent.go's
// Missing/Pending/Obtained per-piece states.
type Progress struct {
	mu     sync.Mutex
	states []State
}

// NewProgress allocates a Progress over n pieces, all initially Absent.
func NewProgress(n int) *Progress {
	return &Progress{states: make([]State, n)}
}

// Len returns the number of pieces tracked.
func (p *Progress) Len() int { return len(p.states) }

// State returns the current state of piece i.
func (p *Progress) State(i int) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[i]
}

// Assign atomically picks the first Absent piece that available also has
// and transitions it to InProgress, returning its index. Returns
// ok == false if no such piece exists (the NoPiece outcome of spec.md
// §4.6 step 3).
func (p *Progress) Assign(available *Bitmap) (index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.states {
		if s == Absent && available.Test(i) {
			p.states[i] = InProgress
			return i, true
		}
	}
	return 0, false
}

// Complete transitions piece i to Present once its digest has been
// verified.
func (p *Progress) Complete(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[i] = Present
}

// Release transitions piece i back to Absent — used on abandonment
// (choke, timeout, I/O error, hash mismatch, or session termination,
// spec.md §4.4, §5). A piece that is already Present stays Present.
func (p *Progress) Release(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states[i] != Present {
		p.states[i] = Absent
	}
}

// AllPresent reports whether every piece is Present — the coordinator's
// completion condition (spec.md §4.6 step 6).
func (p *Progress) AllPresent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.states {
		if s != Present {
			return false
		}
	}
	return true
}

// Snapshot returns a Bitmap with a bit set for every Present piece, e.g. to
// advertise availability to a newly-connected seeder-side peer.
func (p *Progress) Snapshot() *Bitmap {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := NewBitmap(len(p.states))
	for i, s := range p.states {
		if s == Present {
			b.Set(i)
		}
	}
	return b
}
