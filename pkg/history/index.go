// Package history provides a full-text index over completed tasks'
// exception/traceback text, backing the supplemental
// GET /tasks/search admin endpoint (SPEC_FULL.md's "Admin search over
// failed tasks").
package history

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
)

// Document is one indexed previous-task record.
type Document struct {
	ProcID     string    `json:"proc_id"`
	ModelClass string    `json:"model_class"`
	Exception  string    `json:"exception"`
	Traceback  string    `json:"traceback"`
	Finished   time.Time `json:"finished"`
}

// Index wraps an in-memory bleve index. Records stay until Delete is
// called; nothing removes them when the governor's previous-tasks ring
// buffer overwrites the matching entry, so the index is not bounded by
// that ring.
type Index struct {
	bleveIndex bleve.Index
}

// New builds an empty in-memory index, grounded on the teacher's
// pkg/search/manager.go use of a bleve mapping for free-text fields.
func New() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("history: building index: %w", err)
	}
	return &Index{bleveIndex: idx}, nil
}

// Upsert indexes (or re-indexes) one completed task's record.
func (i *Index) Upsert(doc Document) error {
	return i.bleveIndex.Index(doc.ProcID, doc)
}

// Delete removes one record from the index.
func (i *Index) Delete(procID string) error {
	return i.bleveIndex.Delete(procID)
}

// Search runs a free-text query and returns matching proc_ids, most
// relevant first, capped at limit.
func (i *Index) Search(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	result, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history: search %q: %w", query, err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index's resources.
func (i *Index) Close() error {
	return i.bleveIndex.Close()
}
