package report

import (
	"sync/atomic"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

// Artifact is one cached report document. Artifacts are immutable once stored.
type Artifact struct {
	Kind        v1.ReportKind `json:"kind"`
	HTML        string        `json:"-"`
	GeneratedAt time.Time     `json:"generated_at"`
	Nodes       int           `json:"nodes"`
	Failed      int           `json:"failed"`
	Err         string        `json:"error,omitempty"` // last failed regeneration; HTML is the last good document
}

type slot struct {
	art        atomic.Pointer[Artifact]
	generating atomic.Bool
}

// Cache holds the latest document per report kind. Reads never block and
// never observe a partial write; concurrent regenerations of the same kind
// race and the last writer wins.
type Cache struct {
	slots map[v1.ReportKind]*slot // fixed at construction
}

// NewCache returns a cache with every slot holding a "not generated" document.
func NewCache() *Cache {
	c := &Cache{slots: make(map[v1.ReportKind]*slot, len(titles))}
	for kind := range titles {
		s := &slot{}
		s.art.Store(&Artifact{Kind: kind, HTML: NotGenerated(kind)})
		c.slots[kind] = s
	}
	return c
}

// Get returns the current artifact for kind.
func (c *Cache) Get(kind v1.ReportKind) (Artifact, bool) {
	s, ok := c.slots[kind]
	if !ok {
		return Artifact{}, false
	}
	return *s.art.Load(), true
}

// Generating reports whether a regeneration of kind is in progress.
func (c *Cache) Generating(kind v1.ReportKind) bool {
	s, ok := c.slots[kind]
	return ok && s.generating.Load()
}

// Store replaces the artifact for kind.
func (c *Cache) Store(art Artifact) {
	if s, ok := c.slots[art.Kind]; ok {
		a := art
		s.art.Store(&a)
	}
}

// Fail attaches err to the current artifact for kind, keeping its document.
// A document stored concurrently is never replaced by an older one.
func (c *Cache) Fail(kind v1.ReportKind, err error) {
	s, ok := c.slots[kind]
	if !ok || err == nil {
		return
	}
	s.fail(s.art.Load(), err)
}

// fail attaches err to cur and reports whether cur was still current.
func (s *slot) fail(cur *Artifact, err error) bool {
	a := *cur
	a.Err = err.Error()
	return s.art.CompareAndSwap(cur, &a)
}

func (c *Cache) setGenerating(kind v1.ReportKind, v bool) {
	if s, ok := c.slots[kind]; ok {
		s.generating.Store(v)
	}
}
