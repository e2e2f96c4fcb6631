package storage

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"tftstats/internal/logging"
)

const (
	// Rotation triggers
	MaxMatchesPerFile = 1000
	MaxFileAge        = 1 * time.Hour
)

// RawLine is one archived match payload.
type RawLine struct {
	MatchID   string          `json:"match_id"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// FileRotator appends raw match payloads to rotating JSONL files. Files
// are written under hot/, moved to warm/ when rotated and gzipped into
// cold/ by Archive.
type FileRotator struct {
	mu sync.Mutex

	// Directories
	hotDir  string // Active writes
	warmDir string // Closed files awaiting compression
	coldDir string // Compressed archives

	// Current file state
	currentFile   *os.File
	currentWriter *bufio.Writer
	currentPath   string
	matchCount    int
	fileOpenedAt  time.Time
	fileSeq       int

	maxMatches int
	maxAge     time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// RotatorOption configures a FileRotator
type RotatorOption func(*FileRotator)

// WithRotation overrides the rotation triggers.
func WithRotation(maxMatches int, maxAge time.Duration) RotatorOption {
	return func(r *FileRotator) {
		r.maxMatches = maxMatches
		r.maxAge = maxAge
	}
}

func WithRotatorLogger(logger *logging.Logger) RotatorOption {
	return func(r *FileRotator) { r.logger = logger }
}

// NewFileRotator creates a new rotator with the given base directory
func NewFileRotator(baseDir string, opts ...RotatorOption) (*FileRotator, error) {
	r := &FileRotator{
		hotDir:     filepath.Join(baseDir, "hot"),
		warmDir:    filepath.Join(baseDir, "warm"),
		coldDir:    filepath.Join(baseDir, "cold"),
		maxMatches: MaxMatchesPerFile,
		maxAge:     MaxFileAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	r.logger = r.logger.With("component", "rotator")

	for _, dir := range []string{r.hotDir, r.warmDir, r.coldDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create directory %s", dir)
		}
	}

	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteRaw appends one match payload and rotates the file when a trigger
// is reached.
func (r *FileRotator) WriteRaw(matchID string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return errors.New("rotator is closed")
	}

	line := RawLine{MatchID: matchID, FetchedAt: r.now().UTC(), Payload: body}
	if len(body) == 0 || !json.Valid(body) {
		line.Payload = json.RawMessage("null")
	}
	data, err := json.Marshal(line)
	if err != nil {
		return errors.Wrapf(err, "marshal raw match %s", matchID)
	}
	if _, err := r.currentWriter.Write(data); err != nil {
		return errors.Wrap(err, "write raw match")
	}
	if err := r.currentWriter.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write newline")
	}

	r.matchCount++
	if err := r.currentWriter.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}

	if r.shouldRotate() {
		return r.rotate()
	}
	return nil
}

func (r *FileRotator) shouldRotate() bool {
	if r.currentFile == nil {
		return true
	}
	if r.matchCount >= r.maxMatches {
		return true
	}
	return r.now().Sub(r.fileOpenedAt) >= r.maxAge
}

// rotate closes current file and opens a new one
func (r *FileRotator) rotate() error {
	if err := r.closeCurrent(); err != nil {
		return err
	}

	opened := r.now()
	r.fileSeq++
	filename := fmt.Sprintf("raw_matches_%s_%04d.jsonl", opened.Format("2006-01-02_15-04-05"), r.fileSeq)
	r.currentPath = filepath.Join(r.hotDir, filename)

	file, err := os.Create(r.currentPath)
	if err != nil {
		return errors.Wrap(err, "create raw file")
	}

	r.currentFile = file
	r.currentWriter = bufio.NewWriterSize(file, 64*1024)
	r.matchCount = 0
	r.fileOpenedAt = opened

	r.logger.Debug("Opened new file", "file", filename)
	return nil
}

// closeCurrent flushes the open file and moves it to warm, or removes it
// when nothing was written.
func (r *FileRotator) closeCurrent() error {
	if r.currentFile == nil {
		return nil
	}
	if err := r.currentWriter.Flush(); err != nil {
		return errors.Wrap(err, "flush before rotation")
	}
	if err := r.currentFile.Close(); err != nil {
		return errors.Wrap(err, "close file")
	}
	r.currentFile = nil

	if r.matchCount == 0 {
		return errors.Wrap(os.Remove(r.currentPath), "remove empty file")
	}

	warmPath := filepath.Join(r.warmDir, filepath.Base(r.currentPath))
	if err := os.Rename(r.currentPath, warmPath); err != nil {
		return errors.Wrap(err, "move to warm storage")
	}
	r.logger.Info("Moved file to warm storage", "file", filepath.Base(r.currentPath), "matches", r.matchCount)
	return nil
}

// Close flushes the current file, moves it to warm and compresses every
// warm file into cold.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.closeCurrent(); err != nil {
		return err
	}
	return r.archiveLocked()
}

// Archive compresses every warm file into cold storage.
func (r *FileRotator) Archive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.archiveLocked()
}

func (r *FileRotator) archiveLocked() error {
	warm, err := filepath.Glob(filepath.Join(r.warmDir, "*.jsonl"))
	if err != nil {
		return errors.Wrap(err, "list warm files")
	}
	sort.Strings(warm)
	for _, path := range warm {
		if err := CompressToCold(path, r.coldDir); err != nil {
			return err
		}
		r.logger.Info("Compressed to cold storage", "file", filepath.Base(path))
	}
	return nil
}

// Stats returns current rotator statistics
func (r *FileRotator) Stats() (matchesInCurrentFile int, currentFileName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchCount, filepath.Base(r.currentPath)
}

// CompressToCold gzips a warm file into coldDir and removes the original.
func CompressToCold(warmPath, coldDir string) error {
	src, err := os.Open(warmPath)
	if err != nil {
		return errors.Wrap(err, "open warm file")
	}
	defer src.Close()

	coldPath := filepath.Join(coldDir, filepath.Base(warmPath)+".gz")
	dst, err := os.Create(coldPath)
	if err != nil {
		return errors.Wrap(err, "create cold file")
	}
	defer dst.Close()

	gzWriter := gzip.NewWriter(dst)
	if _, err := io.Copy(gzWriter, src); err != nil {
		return errors.Wrap(err, "compress")
	}
	if err := gzWriter.Close(); err != nil {
		return errors.Wrap(err, "finish gzip stream")
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "close cold file")
	}

	return errors.Wrap(os.Remove(warmPath), "remove warm file")
}
