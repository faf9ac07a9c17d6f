package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is a finished recording, downloadable under URL until revoked.
type Artifact struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`

	Data []byte `json:"-"`
}

// ArtifactStore keeps artifacts addressable by a URL under prefix.
type ArtifactStore struct {
	prefix string

	mu    sync.RWMutex
	items map[string]*Artifact
}

func NewArtifactStore(prefix string) *ArtifactStore {
	return &ArtifactStore{
		prefix: prefix,
		items:  make(map[string]*Artifact),
	}
}

func (s *ArtifactStore) Put(filename, mimeType string, data []byte, chunks int, at time.Time) *Artifact {
	id := uuid.NewString()
	a := &Artifact{
		ID:        id,
		URL:       s.prefix + id,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      len(data),
		Chunks:    chunks,
		CreatedAt: at,
		Data:      data,
	}
	s.mu.Lock()
	s.items[id] = a
	s.mu.Unlock()
	return a
}

func (s *ArtifactStore) Get(id string) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	return a, ok
}

// Revoke makes the artifact's URL invalid. It reports whether it existed.
func (s *ArtifactStore) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
