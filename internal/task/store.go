package task

import (
	"container/list"
	"fmt"

	"github.com/google/uuid"
)

// RecordStore is a capacity-bounded, insertion-ordered, keyed collection
// of task records. Lookup, removal, and existence checks are O(1);
// predicate searches are linear scans returning snapshots.
//
// The store is not safe for concurrent use on its own; the engine
// serializes access to all four logical queues behind a single mutex.
type RecordStore struct {
	capacity int
	order    *list.List
	byID     map[uuid.UUID]*list.Element
}

// NewRecordStore creates an empty store that holds at most capacity records.
func NewRecordStore(capacity int) *RecordStore {
	return &RecordStore{
		capacity: capacity,
		order:    list.New(),
		byID:     make(map[uuid.UUID]*list.Element),
	}
}

// Add inserts a record at the back of the insertion order. It returns
// ErrCapacityExceeded if the store is already at its capacity limit.
// Add does not deduplicate by id; callers that need idempotency must
// check Has first.
func (s *RecordStore) Add(rec *Record) error {
	if s.order.Len() >= s.capacity {
		return fmt.Errorf("%w: capacity %d reached", ErrCapacityExceeded, s.capacity)
	}
	s.byID[rec.ID] = s.order.PushBack(rec)
	return nil
}

// Remove removes and returns the record with the given id. The second
// return value is false if the id is not present.
func (s *RecordStore) Remove(id uuid.UUID) (*Record, bool) {
	el, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	return s.order.Remove(el).(*Record), true
}

// Get returns the record with the given id, if present.
func (s *RecordStore) Get(id uuid.UUID) (*Record, bool) {
	el, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*Record), true
}

// Has reports whether a record with the given id is present.
func (s *RecordStore) Has(id uuid.UUID) bool {
	_, ok := s.byID[id]
	return ok
}

// Find returns all records matching the predicate, in insertion order.
// The returned slice is a snapshot; mutating the store afterwards does
// not affect it.
func (s *RecordStore) Find(fn func(*Record) bool) []*Record {
	var out []*Record
	for el := s.order.Front(); el != nil; el = el.Next() {
		if rec := el.Value.(*Record); fn(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// FindByUser returns all records owned by the given user.
func (s *RecordStore) FindByUser(userID string) []*Record {
	return s.Find(func(r *Record) bool { return r.UserID == userID })
}

// FindByType returns all records of the given task type.
func (s *RecordStore) FindByType(taskType string) []*Record {
	return s.Find(func(r *Record) bool { return r.Type == taskType })
}

// FindByStatus returns all records with the given status.
func (s *RecordStore) FindByStatus(status Status) []*Record {
	return s.Find(func(r *Record) bool { return r.Status == status })
}

// TakeFirst finds the first record (in insertion order) matching the
// predicate and removes it in one operation. The scheduler uses this to
// pull the next eligible pending task without a second lookup.
func (s *RecordStore) TakeFirst(fn func(*Record) bool) (*Record, bool) {
	for el := s.order.Front(); el != nil; el = el.Next() {
		rec := el.Value.(*Record)
		if fn(rec) {
			delete(s.byID, rec.ID)
			s.order.Remove(el)
			return rec, true
		}
	}
	return nil, false
}

// Replace removes the stored record with the same id and inserts rec in
// its place (a remove-then-add, so rec moves to the back of the insertion
// order). It returns the previous record. If the id is not present the
// new record is not inserted and Replace returns false.
func (s *RecordStore) Replace(rec *Record) (*Record, bool) {
	prev, ok := s.Remove(rec.ID)
	if !ok {
		return nil, false
	}
	s.byID[rec.ID] = s.order.PushBack(rec)
	return prev, true
}

// Len returns the number of records currently stored.
func (s *RecordStore) Len() int {
	return s.order.Len()
}
