package archive

import (
	"sync/atomic"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

// Job is one materialised archive. Exactly one of Bytes or Path is set once
// the archive has been generated. Jobs are immutable once stored.
type Job struct {
	Kind        v1.ArchiveKind `json:"kind"`
	Name        string         `json:"name"` // download file name
	InMemory    bool           `json:"in_memory"`
	Bytes       []byte         `json:"-"`
	Path        string         `json:"path,omitempty"`
	Size        int64          `json:"size"`
	EstimatedMB float64        `json:"estimated_mb"`
	Entries     int            `json:"entries"`
	Failed      int            `json:"failed"`
	GeneratedAt time.Time      `json:"generated_at"`
	Err         string         `json:"error,omitempty"`
}

// Ready reports whether the job holds a downloadable archive.
func (j Job) Ready() bool {
	return !j.GeneratedAt.IsZero() && (j.Bytes != nil || j.Path != "")
}

type slot struct {
	job        atomic.Pointer[Job]
	generating atomic.Bool
}

// Slots holds the latest Job per archive kind. Last writer wins.
type Slots struct {
	slots map[v1.ArchiveKind]*slot // fixed at construction
}

// NewSlots returns one empty slot per archive kind.
func NewSlots() *Slots {
	s := &Slots{slots: make(map[v1.ArchiveKind]*slot, len(v1.ArchiveKinds))}
	for _, kind := range v1.ArchiveKinds {
		sl := &slot{}
		sl.job.Store(&Job{Kind: kind, Name: FileName(kind)})
		s.slots[kind] = sl
	}
	return s
}

// FileName is the download name for kind.
func FileName(kind v1.ArchiveKind) string {
	return string(kind) + ".zip"
}

// Get returns the current job for kind.
func (s *Slots) Get(kind v1.ArchiveKind) (Job, bool) {
	sl, ok := s.slots[kind]
	if !ok {
		return Job{}, false
	}
	return *sl.job.Load(), true
}

// Generating reports whether kind is being regenerated.
func (s *Slots) Generating(kind v1.ArchiveKind) bool {
	sl, ok := s.slots[kind]
	return ok && sl.generating.Load()
}

// Store replaces the job for its kind.
func (s *Slots) Store(job Job) {
	if sl, ok := s.slots[job.Kind]; ok {
		j := job
		sl.job.Store(&j)
	}
}

// Fail attaches err to the current job, keeping its archive. A job stored
// concurrently is never replaced by an older one.
func (s *Slots) Fail(kind v1.ArchiveKind, err error) {
	sl, ok := s.slots[kind]
	if !ok || err == nil {
		return
	}
	sl.fail(sl.job.Load(), err)
}

// fail attaches err to cur and reports whether cur was still current.
func (sl *slot) fail(cur *Job, err error) bool {
	j := *cur
	j.Err = err.Error()
	return sl.job.CompareAndSwap(cur, &j)
}

func (s *Slots) setGenerating(kind v1.ArchiveKind, v bool) {
	if sl, ok := s.slots[kind]; ok {
		sl.generating.Store(v)
	}
}
