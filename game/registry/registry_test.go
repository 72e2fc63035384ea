package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOwner struct {
	name   string
	closed atomic.Int32
}

func (m *mockOwner) Close() error {
	m.closed.Add(1)
	return nil
}

func server(name string, port int) Record {
	return Record{Name: name, IPv4: "10.0.0.1", Port: port, MaxPlayers: 8}
}

func TestRegistry_SequentialIDs(t *testing.T) {
	reg := New()

	owners := make([]*mockOwner, 5)
	for i := range owners {
		owners[i] = &mockOwner{name: fmt.Sprint(i)}
		rec, evicted := reg.Register(server(fmt.Sprintf("server-%d", i), 3700+i), owners[i])
		assert.Equal(t, i, rec.ID)
		assert.Zero(t, evicted)
	}

	require.True(t, reg.Remove(owners[1]))
	require.True(t, reg.Remove(owners[3]))

	rec, _ := reg.Register(server("late", 4000), &mockOwner{})
	assert.Equal(t, 5, rec.ID, "new ID is max(active)+1, removed IDs below the max are not reused")

	var ids []int
	for _, r := range reg.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int{0, 2, 4, 5}, ids)
}

func TestRegistry_IDRestartsWhenEmpty(t *testing.T) {
	reg := New()
	a := &mockOwner{}
	reg.Register(server("a", 1), a)
	reg.Remove(a)

	rec, _ := reg.Register(server("b", 2), &mockOwner{})
	assert.Equal(t, 0, rec.ID)
}

func TestRegistry_DuplicateEviction(t *testing.T) {
	reg := New()
	stale := &mockOwner{name: "stale"}
	other := &mockOwner{name: "other"}

	reg.Register(server("Friday", 3700), stale)
	reg.Register(server("Friday", 3701), other)

	fresh := &mockOwner{name: "fresh"}
	rec, evicted := reg.Register(server("Friday", 3700), fresh)

	assert.Equal(t, 1, evicted)
	assert.Equal(t, int32(1), stale.closed.Load(), "evicted owner is closed once")
	assert.Zero(t, other.closed.Load())
	assert.Zero(t, fresh.closed.Load())

	matches := 0
	for _, r := range reg.List() {
		if r.sameIdentity(rec) {
			matches++
		}
	}
	assert.Equal(t, 1, matches)
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_ReRegisterSameOwner(t *testing.T) {
	reg := New()
	o := &mockOwner{}
	reg.Register(server("a", 1), o)
	rec, evicted := reg.Register(server("a", 1), o)

	assert.Zero(t, evicted)
	assert.Zero(t, o.closed.Load())
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 0, rec.ID)
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	reg := New()
	o := &mockOwner{}
	reg.Register(server("a", 1), o)

	assert.True(t, reg.Remove(o))
	assert.False(t, reg.Remove(o))
	assert.False(t, reg.Remove(&mockOwner{}))
	assert.Equal(t, int32(1), o.closed.Load())
	assert.Zero(t, reg.Count())
}

func TestRegistry_ReleaseKeepsOwnerOpen(t *testing.T) {
	reg := New()
	o := &mockOwner{}
	reg.Register(server("a", 1), o)

	assert.True(t, reg.Release(o))
	assert.False(t, reg.Release(o))
	assert.False(t, reg.Remove(o))
	assert.Zero(t, o.closed.Load())
	assert.Zero(t, reg.Count())
}

func TestRegistry_Update(t *testing.T) {
	reg := New()
	o := &mockOwner{}
	orig, _ := reg.Register(server("a", 1), o)

	rec, err := reg.Update(o, func(r *Record) {
		r.Players = 5
		r.Name = "renamed"
		r.ID = 99
	})
	require.NoError(t, err)
	assert.Equal(t, orig.ID, rec.ID, "ID cannot be changed by an update")
	assert.Equal(t, 5, rec.Players)

	got, err := reg.Get(orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	_, err = reg.Update(&mockOwner{}, func(r *Record) {})
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = reg.Get(42)
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestRegistry_Page(t *testing.T) {
	reg := New()
	for i := 0; i < 14; i++ {
		reg.Register(server(fmt.Sprintf("s%d", i), i), &mockOwner{})
	}

	var all []Record
	for page := 0; ; page++ {
		got := reg.Page(page, 6)
		if len(got) == 0 {
			break
		}
		assert.LessOrEqual(t, len(got), 6)
		all = append(all, got...)
	}
	assert.Equal(t, reg.List(), all, "pages reconstruct the registry in insertion order")

	assert.Len(t, reg.Page(2, 6), 2)

	beyond := reg.Page(10, 6)
	assert.NotNil(t, beyond)
	assert.Empty(t, beyond)
	assert.Empty(t, reg.Page(-1, 6))
	assert.Empty(t, New().Page(0, 6))
}

func TestRegistry_ConcurrentRegistrations(t *testing.T) {
	reg := New()
	const n = 200

	var wg sync.WaitGroup
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _ := reg.Register(server(fmt.Sprintf("s%d", i), i), &mockOwner{})
			ids[i] = rec.ID
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i, id := range ids {
		require.Equal(t, i, id, "IDs must be distinct and gap-free")
	}
	assert.Equal(t, n, reg.Count())
}

func TestRegistry_ConcurrentDuplicates(t *testing.T) {
	reg := New()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Register(server("same", 3700), &mockOwner{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Count(), "racing registrations of one identity leave a single record")
}
