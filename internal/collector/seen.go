package collector

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/errors"
)

const (
	// Sized for several months of top-ladder collection
	seenCapacity  = 500000
	seenFalseRate = 0.001
)

// SeenIndex remembers match IDs fetched by earlier runs so a scheduled
// collection does not download them again. A false positive skips a match
// that was never fetched, which is acceptable for a sampling workload.
type SeenIndex struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	path   string
	added  int
}

// NewSeenIndex returns an empty in-memory index.
func NewSeenIndex() *SeenIndex {
	return &SeenIndex{filter: bloom.NewWithEstimates(seenCapacity, seenFalseRate)}
}

// LoadSeenIndex reads the index persisted at path, or starts an empty one
// if the file does not exist yet.
func LoadSeenIndex(path string) (*SeenIndex, error) {
	idx := NewSeenIndex()
	idx.path = path

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open seen index %s", path)
	}
	defer f.Close()

	if _, err := idx.filter.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.Wrapf(err, "read seen index %s", path)
	}
	return idx, nil
}

// Seen reports whether matchID was probably recorded before.
func (s *SeenIndex) Seen(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(matchID)
}

// Mark records matchID.
func (s *SeenIndex) Mark(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.AddString(matchID)
	s.added++
}

// Added returns how many IDs were marked since the index was loaded.
func (s *SeenIndex) Added() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added
}

// Save writes the index back to the path it was loaded from. An index
// created with NewSeenIndex has no path and Save is a no-op.
func (s *SeenIndex) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "create seen index directory")
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create seen index")
	}
	w := bufio.NewWriter(f)
	if _, err := s.filter.WriteTo(w); err != nil {
		f.Close()
		return errors.Wrap(err, "write seen index")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush seen index")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close seen index")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replace seen index")
}
