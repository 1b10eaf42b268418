// Package demoserver implements a small in-process REST+SSE backend used to
// exercise the adapter and store packages end to end against a real HTTP
// server instead of a hand-rolled fake. It serves one flat, schema-validated
// collection of records, broadcasting create/patch/delete events to
// subscribers over Server-Sent Events.
//
// This condenses the teacher's nested database/document/collection hierarchy
// (database, contents, handlers) down to the single flat id-indexed
// collection the store package's Collection type actually manages, while
// keeping the teacher's skiplist-backed, Upsert-driven storage pattern.
package demoserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/corestateio/corestate/schema"
	"github.com/corestateio/corestate/skiplist"
)

// Metadata records who created/last touched a record and when, mirroring
// contents.Metadata.
type Metadata struct {
	CreatedBy      string `json:"createdBy"`
	CreatedAt      int64  `json:"createdAt"`
	LastModifiedBy string `json:"lastModifiedBy"`
	LastModifiedAt int64  `json:"lastModifiedAt"`
}

// Record is one item in the demo collection.
type Record struct {
	ID       string
	Fields   map[string]any
	Metadata Metadata
}

// MarshalJSON flattens Fields alongside id/meta so a client sees one object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["meta"] = r.Metadata
	return json.Marshal(out)
}

// UnmarshalJSON recovers Fields from everything but the reserved id/meta keys.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["id"].(string); ok {
		r.ID = id
	}
	delete(raw, "id")
	delete(raw, "meta")
	r.Fields = raw
	return nil
}

// recordStore indexes records by id in a skiplist, the same Upsert/Find/
// Remove/Query pattern contents.go and database.go use for documents and
// databases, flattened to a single level.
type recordStore struct {
	records   *skiplist.SkipList[string, Record]
	validator *schema.Validator
}

func newRecordStore(validator *schema.Validator) *recordStore {
	return &recordStore{
		records:   skiplist.NewSkipList[string, Record](),
		validator: validator,
	}
}

func (s *recordStore) list() []Record {
	results, _ := s.records.Query(context.Background(), "", "")
	return results
}

func (s *recordStore) get(id string) (Record, bool) {
	return s.records.Find(id)
}

// put inserts or replaces the record at id, validating the new record
// against the configured schema before committing.
func (s *recordStore) put(id, user string, fields map[string]any) (Record, error) {
	var result Record
	_, err := s.records.Upsert(id, func(key string, current Record, exists bool) (Record, error) {
		next := Record{ID: key, Fields: fields}
		if verr := s.validate(next); verr != nil {
			return current, verr
		}
		now := time.Now().Unix()
		if exists {
			next.Metadata = Metadata{
				CreatedBy:      current.Metadata.CreatedBy,
				CreatedAt:      current.Metadata.CreatedAt,
				LastModifiedBy: user,
				LastModifiedAt: now,
			}
		} else {
			next.Metadata = Metadata{CreatedBy: user, CreatedAt: now, LastModifiedBy: user, LastModifiedAt: now}
		}
		result = next
		return next, nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

// patch merges fields onto the existing record; it fails if id doesn't exist.
func (s *recordStore) patch(id, user string, partial map[string]any) (Record, error) {
	var result Record
	_, err := s.records.Upsert(id, func(key string, current Record, exists bool) (Record, error) {
		if !exists {
			return current, fmt.Errorf("demoserver: record %q does not exist", id)
		}
		merged := make(map[string]any, len(current.Fields)+len(partial))
		for k, v := range current.Fields {
			merged[k] = v
		}
		for k, v := range partial {
			merged[k] = v
		}
		next := Record{ID: key, Fields: merged}
		if verr := s.validate(next); verr != nil {
			return current, verr
		}
		next.Metadata = Metadata{
			CreatedBy:      current.Metadata.CreatedBy,
			CreatedAt:      current.Metadata.CreatedAt,
			LastModifiedBy: user,
			LastModifiedAt: time.Now().Unix(),
		}
		result = next
		return next, nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

func (s *recordStore) delete(id string) (Record, bool) {
	return s.records.Remove(id)
}

func (s *recordStore) validate(r Record) error {
	if s.validator == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.validator.Validate(doc)
}
