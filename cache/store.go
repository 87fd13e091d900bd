package cache

import (
	"fmt"

	"github.com/google/btree"
)

// entry is one key→value row. Rows are owned exclusively by the store;
// only the *Value handle escapes to readers.
type entry struct {
	key   string
	value *Value

	// liveliness is stamped from a strictly increasing counter on every
	// get/put, so the liveliness index is a total order consistent with
	// real operation order.
	liveliness uint64

	// expiresAt is the absolute expiration deadline in UnixNano.
	// Zero means "never expires".
	expiresAt int64
}

func (e *entry) size() uint64 { return uint64(len(e.value.b)) }

// Index orderings. Each tree holds the same *entry rows as the primary map.

// lessByLiveliness sorts ascending, so the tree minimum is the LRU row.
func lessByLiveliness(a, b *entry) bool { return a.liveliness < b.liveliness }

// lessBySize sorts by value size descending with the key as tie-break, so
// the tree minimum is the largest value.
func lessBySize(a, b *entry) bool {
	if a.size() != b.size() {
		return a.size() > b.size()
	}
	return a.key < b.key
}

// lessByExpiry sorts by deadline ascending with "never expires" rows last,
// key as tie-break, so the tree minimum is the row closest to expiring.
func lessByExpiry(a, b *entry) bool {
	if a.expiresAt != b.expiresAt {
		if a.expiresAt == 0 {
			return false
		}
		if b.expiresAt == 0 {
			return true
		}
		return a.expiresAt < b.expiresAt
	}
	return a.key < b.key
}

// indexDegree is the btree branching factor for all three indices.
const indexDegree = 32

// store is the table of rows plus three synchronized orders over them.
// It is not safe for concurrent use; the engine serializes access.
//
// All mutations go through insert/delete/touch so the primary map, the
// three trees, and totalValueSize can never diverge. Divergence is index
// corruption and fails fast.
type store struct {
	rows         map[string]*entry
	byLiveliness *btree.BTreeG[*entry]
	bySize       *btree.BTreeG[*entry]
	byExpiry     *btree.BTreeG[*entry]

	// totalValueSize is maintained incrementally, never recomputed by a
	// full scan.
	totalValueSize uint64

	nextLiveliness uint64
}

func newStore() *store {
	return &store{
		rows:         make(map[string]*entry),
		byLiveliness: btree.NewG(indexDegree, lessByLiveliness),
		bySize:       btree.NewG(indexDegree, lessBySize),
		byExpiry:     btree.NewG(indexDegree, lessByExpiry),
	}
}

// stepLiveliness returns the next counter value. A 64-bit counter will not
// wrap in any realistic process lifetime.
func (s *store) stepLiveliness() uint64 {
	v := s.nextLiveliness
	s.nextLiveliness++
	return v
}

func (s *store) lookup(key string) (*entry, bool) {
	e, ok := s.rows[key]
	return e, ok
}

func (s *store) len() int { return len(s.rows) }

// insert adds a brand-new row. The caller must have removed any previous
// row for the same key first; a duplicate means the indices are corrupt.
func (s *store) insert(e *entry) {
	if _, dup := s.rows[e.key]; dup {
		panic(fmt.Sprintf("cache: duplicate row for key %q", e.key))
	}
	s.rows[e.key] = e
	s.byLiveliness.ReplaceOrInsert(e)
	s.bySize.ReplaceOrInsert(e)
	s.byExpiry.ReplaceOrInsert(e)
	s.totalValueSize += e.size()
}

// delete removes a resident row from the map and all three indices.
func (s *store) delete(e *entry) {
	if _, ok := s.rows[e.key]; !ok {
		panic(fmt.Sprintf("cache: delete of unknown key %q", e.key))
	}
	delete(s.rows, e.key)
	if _, ok := s.byLiveliness.Delete(e); !ok {
		panic("cache: liveliness index out of sync")
	}
	if _, ok := s.bySize.Delete(e); !ok {
		panic("cache: size index out of sync")
	}
	if _, ok := s.byExpiry.Delete(e); !ok {
		panic("cache: expiration index out of sync")
	}
	if e.size() > s.totalValueSize {
		panic("cache: totalValueSize underflow")
	}
	s.totalValueSize -= e.size()
}

// touch refreshes the row's liveliness. Only the liveliness index changes;
// the row must be detached from the tree before the sort key is mutated.
func (s *store) touch(e *entry) {
	if _, ok := s.byLiveliness.Delete(e); !ok {
		panic("cache: liveliness index out of sync")
	}
	e.liveliness = s.stepLiveliness()
	s.byLiveliness.ReplaceOrInsert(e)
}

// oldest returns the least recently used row, or nil if the store is empty.
func (s *store) oldest() *entry {
	e, ok := s.byLiveliness.Min()
	if !ok {
		return nil
	}
	return e
}

// largest returns the row with the biggest value, or nil if empty.
func (s *store) largest() *entry {
	e, ok := s.bySize.Min()
	if !ok {
		return nil
	}
	return e
}

// soonest returns the row closest to expiring, or nil if empty. Rows
// without a deadline sort last, so the result only matters if its
// expiresAt is non-zero.
func (s *store) soonest() *entry {
	e, ok := s.byExpiry.Min()
	if !ok {
		return nil
	}
	return e
}

// clear drops every row at once. Used on the "cache disabled" fast path.
func (s *store) clear() {
	s.rows = make(map[string]*entry)
	s.byLiveliness.Clear(false)
	s.bySize.Clear(false)
	s.byExpiry.Clear(false)
	s.totalValueSize = 0
}
