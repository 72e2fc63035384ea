package registry

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// PendingID is the ID of a connection that has not registered yet.
const PendingID = -1

var (
	ErrNotRegistered  = errors.New("connection has no registered server")
	ErrServerNotFound = errors.New("server not found")
)

// Owner is the connection that registered a record.
type Owner interface {
	// Close cancels the owning worker and releases its socket. It must be
	// safe to call more than once.
	Close() error
}

// Record is the directory entry of one game server.
type Record struct {
	ID           int       `json:"id"`
	IPv4         string    `json:"ipv4"`
	Name         string    `json:"name"`
	Port         int       `json:"port"`
	Players      int       `json:"players"`
	MaxPlayers   int       `json:"max_players"`
	FirstConnect bool      `json:"first_connect"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// sameIdentity reports whether two records describe the same game server.
func (r Record) sameIdentity(o Record) bool {
	return r.Name == o.Name && r.Port == o.Port && r.IPv4 == o.IPv4
}

type entry struct {
	record Record
	owner  Owner
}

// Registry holds the registered game servers in insertion order.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	now     func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{now: time.Now}
}

// Register inserts rec for owner and returns the stored record with its
// assigned ID, plus how many stale duplicates were evicted. A previous record
// of the same owner is replaced without closing the owner.
func (r *Registry) Register(rec Record, owner Owner) (Record, int) {
	r.mu.Lock()

	var evicted []Owner
	kept := r.entries[:0]
	for _, e := range r.entries {
		switch {
		case e.owner == owner:
			// re-registration on the same connection
		case e.record.sameIdentity(rec):
			evicted = append(evicted, e.owner)
		default:
			kept = append(kept, e)
		}
	}
	clear(r.entries[len(kept):])
	r.entries = kept

	now := r.now()
	rec.ID = r.nextID()
	rec.RegisteredAt = now
	rec.LastSeen = now
	r.entries = append(r.entries, &entry{record: rec, owner: owner})

	r.mu.Unlock()

	for _, o := range evicted {
		o.Close()
	}
	return rec, len(evicted)
}

// nextID must be called with mu held.
func (r *Registry) nextID() int {
	id := 0
	for _, e := range r.entries {
		if e.record.ID != PendingID && e.record.ID >= id {
			id = e.record.ID + 1
		}
	}
	return id
}

// Update applies fn to the record owned by owner. The ID, registration time
// and owner cannot be changed by fn.
func (r *Registry) Update(owner Owner, fn func(*Record)) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.owner != owner {
			continue
		}
		updated := e.record
		fn(&updated)
		updated.ID = e.record.ID
		updated.RegisteredAt = e.record.RegisteredAt
		updated.LastSeen = r.now()
		e.record = updated
		return updated, nil
	}
	return Record{}, ErrNotRegistered
}

// Remove deletes the record owned by owner and closes the owner. Removing an
// absent record is a no-op and returns false.
func (r *Registry) Remove(owner Owner) bool {
	if !r.Release(owner) {
		return false
	}
	owner.Close()
	return true
}

// Release deletes the record owned by owner without closing it. Owners use it
// to deregister themselves while they still have writes to flush.
func (r *Registry) Release(owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.entries, func(e *entry) bool { return e.owner == owner })
	if idx < 0 {
		return false
	}
	r.entries = slices.Delete(r.entries, idx, idx+1)
	return true
}

// Get returns the record with the given ID
func (r *Registry) Get(id int) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.record.ID == id && id != PendingID {
			return e.record, nil
		}
	}
	return Record{}, ErrServerNotFound
}

// List returns a snapshot of all active records in insertion order
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		if e.record.ID != PendingID {
			result = append(result, e.record)
		}
	}
	return result
}

// Page returns up to size active records starting at offset*size. Pages past
// the end are empty, never an error.
func (r *Registry) Page(offset, size int) []Record {
	result := []Record{}
	if offset < 0 || size <= 0 {
		return result
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	skip := offset * size
	for _, e := range r.entries {
		if e.record.ID == PendingID {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		result = append(result, e.record)
		if len(result) == size {
			break
		}
	}
	return result
}

// Count returns the number of active records
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.record.ID != PendingID {
			n++
		}
	}
	return n
}
