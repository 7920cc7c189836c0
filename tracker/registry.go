// Package tracker implements the announce-tracker service of spec.md
// §4.8: the GET /announce HTTP handler and the in-memory swarm registry
// it updates. Grounded in modasi-mika/http/announce.go for the gin-based
// transport shape, and original_source/tracker/src/torrent.rs (PeerTracker,
// set_peer, dictionary_mode/binary_mode, get_peers) for the per-peer
// fields, the started/stopped/completed state transitions, and the
// dictionary-vs-compact response encodings.
package tracker

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Event mirrors the optional `event` announce parameter.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

// ParseEvent maps the wire value of the `event` query parameter to an
// Event, per original_source/tracker/src/torrent.rs's set_peer_parameter.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "":
		return EventNone, nil
	case "started":
		return EventStarted, nil
	case "stopped":
		return EventStopped, nil
	case "completed":
		return EventCompleted, nil
	default:
		return EventNone, fmt.Errorf("tracker: unexpected event %q", s)
	}
}

// PeerState is a peer's current activity state within a swarm.
type PeerState int

const (
	Active PeerState = iota
	Inactive
)

// Interaction records one announce event against a peer's history.
type Interaction struct {
	At    time.Time
	Event Event
}

// PeerRecord is one swarm member's tracked state.
type PeerRecord struct {
	PeerID       [20]byte
	IP           net.IP
	Port         uint16
	Uploaded     uint64
	Downloaded   uint64
	Left         uint64
	State        PeerState
	Interactions []Interaction
}

func peerKey(peerID [20]byte, ip net.IP, port uint16) string {
	return fmt.Sprintf("%x|%s|%d", peerID, ip.String(), port)
}

// Update describes one announce's effect on a peer's record.
type Update struct {
	PeerID     [20]byte
	IP         net.IP
	Port       uint16
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      Event
}

// Swarm is the set of peer records tracked for a single info-hash.
// A per-swarm mutex scopes writes to just the affected swarm, per
// spec.md §4.9's reader-preferring-outer-map decomposition.
type Swarm struct {
	mu    sync.Mutex
	peers map[string]*PeerRecord
}

func newSwarm() *Swarm {
	return &Swarm{peers: make(map[string]*PeerRecord)}
}

// apply looks up or inserts a peer record by (peer_id, ip, port) and
// updates its counters and interaction history (spec.md §4.8 "Processing").
func (s *Swarm) apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := peerKey(u.PeerID, u.IP, u.Port)
	rec, ok := s.peers[key]
	if !ok {
		rec = &PeerRecord{PeerID: u.PeerID, IP: u.IP, Port: u.Port, State: Active}
		s.peers[key] = rec
	}

	rec.Uploaded = u.Uploaded
	rec.Downloaded = u.Downloaded
	rec.Left = u.Left

	if u.Event != EventNone {
		if u.Event == EventStopped {
			rec.State = Inactive
		} else {
			rec.State = Active
		}
		rec.Interactions = append(rec.Interactions, Interaction{At: time.Now(), Event: u.Event})
	}
}

// Sample returns a uniform random sample of up to numwant active peers,
// excluding the requester's own (peer_id, ip, port) (spec.md §4.8 "Peer
// selection", invariant 5 and 6 of §8).
func (s *Swarm) Sample(excludePeerID [20]byte, excludeIP net.IP, excludePort uint16, numwant int) []PeerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	excludeKey := peerKey(excludePeerID, excludeIP, excludePort)
	candidates := make([]PeerRecord, 0, len(s.peers))
	for key, rec := range s.peers {
		if key == excludeKey || rec.State != Active {
			continue
		}
		candidates = append(candidates, *rec)
	}

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	if numwant < len(candidates) {
		candidates = candidates[:numwant]
	}
	return candidates
}

// Registry maps info-hash to Swarm. A sync.RWMutex guards the outer map;
// most traffic only reads it (looking up an already-known swarm), while
// new-swarm inserts take the write lock briefly (spec.md §4.9).
type Registry struct {
	mu     sync.RWMutex
	swarms map[[20]byte]*Swarm
}

// NewRegistry builds an empty swarm registry.
func NewRegistry() *Registry {
	return &Registry{swarms: make(map[[20]byte]*Swarm)}
}

// Update applies an announce to the swarm for infoHash, creating the
// swarm if this is its first announce, and returns it so the caller can
// sample a peer list for the response.
func (r *Registry) Update(infoHash [20]byte, u Update) *Swarm {
	r.mu.RLock()
	swarm, ok := r.swarms[infoHash]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		swarm, ok = r.swarms[infoHash]
		if !ok {
			swarm = newSwarm()
			r.swarms[infoHash] = swarm
		}
		r.mu.Unlock()
	}

	swarm.apply(u)
	return swarm
}
