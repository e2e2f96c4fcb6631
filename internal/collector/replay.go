package collector

import (
	"bytes"
	"path/filepath"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"tftstats/internal/logging"
	"tftstats/internal/riot"
	"tftstats/internal/storage"
)

// ReplayReport counts what a replay found in the archive.
type ReplayReport struct {
	Files      int
	Lines      int
	Duplicates int
	Failed     int
	Matches    int
}

// Replay re-parses every archived payload below a raw directory without
// touching the API. A match archived more than once is parsed once; a
// payload that does not parse is logged and skipped.
func Replay(rawDir string, logger *logging.Logger) ([]storage.PlayerRecord, ReplayReport, error) {
	var report ReplayReport
	if logger == nil {
		logger = logging.Default()
	}

	files, err := storage.ArchiveFiles(rawDir)
	if err != nil {
		return nil, report, err
	}
	report.Files = len(files)

	seen := NewMatchIDSet()
	var records []storage.PlayerRecord
	for _, path := range files {
		err := storage.ReadRawLines(path, logger, func(line storage.RawLine) error {
			report.Lines++
			if line.MatchID == "" {
				report.Failed++
				logger.Warn("Skipping archived line without match id", "file", filepath.Base(path))
				return nil
			}
			if !seen.Add(line.MatchID) {
				report.Duplicates++
				return nil
			}

			parsed, err := parsePayload(line)
			if err != nil {
				report.Failed++
				logger.Warn("Skipping archived match", "match_id", line.MatchID, "error", err)
				return nil
			}
			report.Matches++
			records = append(records, parsed...)
			return nil
		})
		if err != nil {
			return records, report, err
		}
	}

	logger.Info("Archive replayed", "files", report.Files, "matches", report.Matches,
		"duplicates", report.Duplicates, "failed", report.Failed, "records", len(records))
	return records, report, nil
}

func parsePayload(line storage.RawLine) ([]storage.PlayerRecord, error) {
	if len(line.Payload) == 0 || bytes.Equal(line.Payload, []byte("null")) {
		return nil, errors.Mark(errors.Newf("match %s: archived payload is empty", line.MatchID), riot.ErrDecode)
	}
	raw := &riot.RawMatch{MatchID: line.MatchID, Body: line.Payload}
	if err := json.Unmarshal(line.Payload, &raw.Match); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode archived match %s", line.MatchID), riot.ErrDecode)
	}
	return ParseMatch(raw)
}
