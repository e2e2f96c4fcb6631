package storage

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"tftstats/internal/logging"
)

// Match detail payloads run to a few hundred KB.
const maxRawLineBytes = 8 << 20

// ArchiveFiles lists the raw files below a rotator base directory: warm
// .jsonl files and cold .jsonl.gz archives, oldest name first. Files still
// being written under hot/ are not included.
func ArchiveFiles(baseDir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{
		filepath.Join(baseDir, "warm", "*.jsonl"),
		filepath.Join(baseDir, "cold", "*.jsonl.gz"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Wrap(err, "scan archive")
		}
		files = append(files, matches...)
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

// ReadRawLines calls fn for every line of a raw file, gunzipping .gz files.
// Lines that do not decode are logged and skipped; an error from fn stops
// the scan.
func ReadRawLines(path string, logger *logging.Logger, fn func(RawLine) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open raw file")
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return errors.Wrapf(err, "open gzip stream %s", filepath.Base(path))
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxRawLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var line RawLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			logger.Warn("Skipping malformed raw line", "file", filepath.Base(path), "line", lineNum, "error", err)
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "read %s", filepath.Base(path))
}
