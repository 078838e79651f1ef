package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore keeps the raw bytes of imported case packs so an import can be
// audited or replayed later.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}

// PackKey names the archive object for a case pack imported at t.
func PackKey(t time.Time) string {
	return fmt.Sprintf("case-packs/%s-%s.yaml", t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}
