package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

const (
	ParsedDir  = "parsed"
	CleanedDir = "cleaned_csv"
)

// ErrNoRecords is returned when an artifact would be written empty.
var ErrNoRecords = errors.New("no records to write")

// FileSink writes the parsed and cleaned artifacts of a run under one
// output directory.
type FileSink struct {
	baseDir string
}

// NewFileSink creates the artifact directories below baseDir.
func NewFileSink(baseDir string) (*FileSink, error) {
	for _, dir := range []string{ParsedDir, CleanedDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s directory", dir)
		}
	}
	return &FileSink{baseDir: baseDir}, nil
}

// ArtifactName names a batch after its first and last match ID and its
// record count, e.g. NA1_1_NA1_9_16.
func ArtifactName(records []PlayerRecord) string {
	if len(records) == 0 {
		return "empty_0"
	}
	first := records[0].MatchID
	last := records[len(records)-1].MatchID
	return fmt.Sprintf("%s_%s_%d", sanitize(first), sanitize(last), len(records))
}

// WriteParsed writes records as a pretty-printed JSON array and returns
// the file path. An empty batch is refused with ErrNoRecords.
func (s *FileSink) WriteParsed(records []PlayerRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}
	path := filepath.Join(s.baseDir, ParsedDir, ArtifactName(records)+".json")

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal parsed records")
	}
	if err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCleaned writes one cleaned table produced by write and returns the
// file path.
func (s *FileSink) WriteCleaned(name string, write func(io.Writer) error) (string, error) {
	path := filepath.Join(s.baseDir, CleanedDir, sanitize(name)+".csv")
	if err := WriteFileAtomic(path, write); err != nil {
		return "", err
	}
	return path, nil
}

// ReadParsed loads a parsed artifact written by WriteParsed.
func ReadParsed(path string) ([]PlayerRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var records []PlayerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return records, nil
}

// WriteFileAtomic writes to path.tmp and renames it into place. On failure
// neither file is left behind.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "flush %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", path)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", path)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, name)
}
