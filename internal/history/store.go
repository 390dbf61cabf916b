// Package history persists the append-only time-series of usage snapshots
// and derives the windowed trend series consumed by the metrics engine.
//
// The store is a single JSON document that is read and rewritten wholesale on
// each append. Concurrent runs against the same path are not safe; there is
// no file locking. That is an accepted limitation for a tool invoked at most
// a few times per scheduling interval.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ALastoff/LicenseView/internal/models"
)

// RetentionDays is the retained history span; snapshots older than this are
// pruned on every append.
const RetentionDays = 90

// WindowPeriods are the trend window lengths, in days.
var WindowPeriods = []int{7, 30, 90}

// document is the on-disk shape of the history file.
type document struct {
	Snapshots []models.Snapshot `json:"snapshots"`
}

// Store reads and writes the snapshot history file.
type Store struct {
	path   string
	logger *logrus.Logger
}

// NewStore creates a Store for the given history file path. The file does not
// need to exist yet.
func NewStore(path string, logger *logrus.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the persisted snapshots. A missing file yields an empty history.
// An unreadable or malformed file yields a *models.HistoryCorruptionError;
// callers recover by treating history as empty; corruption is never fatal.
func (s *Store) Load() ([]models.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.HistoryCorruptionError{Path: s.path, Cause: err}
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &models.HistoryCorruptionError{Path: s.path, Cause: err}
	}
	return doc.Snapshots, nil
}

// Append loads the existing history, appends the snapshot, prunes entries
// older than the retention window relative to now, and rewrites the file.
// It returns the surviving snapshots. Corrupt existing history is logged and
// treated as empty rather than failing the append.
func (s *Store) Append(snapshot models.Snapshot, now time.Time) ([]models.Snapshot, error) {
	snapshots, err := s.Load()
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"path":  s.path,
			"error": err,
		}).Warn("History file unreadable, starting with empty history")
		snapshots = nil
	}

	snapshots = append(snapshots, snapshot)
	snapshots = prune(snapshots, now)

	if err := s.write(snapshots); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"path":      s.path,
		"snapshots": len(snapshots),
	}).Debug("History updated")

	return snapshots, nil
}

// write persists the snapshots, creating the parent directory when needed.
func (s *Store) write(snapshots []models.Snapshot) error {
	raw, err := json.MarshalIndent(document{Snapshots: snapshots}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

// prune drops snapshots older than the retention window.
func prune(snapshots []models.Snapshot, now time.Time) []models.Snapshot {
	cutoff := now.AddDate(0, 0, -RetentionDays)
	kept := snapshots[:0]
	for _, snap := range snapshots {
		if !snap.Timestamp.Before(cutoff) {
			kept = append(kept, snap)
		}
	}
	return kept
}

// Windows derives the trend series for each window period. For every period
// it selects the snapshots within [now-period, now], keeps the most recent
// snapshot per calendar day (insertion order breaks exact-timestamp ties:
// last appended wins), sorts ascending by time, and emits MM/DD-labeled
// protected-unit counts. A period with no qualifying snapshots yields an
// empty series. Windows is a pure function of its inputs.
func Windows(snapshots []models.Snapshot, now time.Time) map[int]models.TrendWindow {
	windows := make(map[int]models.TrendWindow, len(WindowPeriods))

	for _, period := range WindowPeriods {
		cutoff := now.AddDate(0, 0, -period)

		// Latest snapshot per calendar day; >= keeps the later-appended
		// snapshot on identical timestamps.
		perDay := make(map[string]models.Snapshot)
		for _, snap := range snapshots {
			ts := snap.Timestamp.UTC()
			if ts.Before(cutoff) || ts.After(now) {
				continue
			}
			day := ts.Format("2006-01-02")
			if existing, ok := perDay[day]; !ok || !snap.Timestamp.Before(existing.Timestamp) {
				perDay[day] = snap
			}
		}

		daily := make([]models.Snapshot, 0, len(perDay))
		for _, snap := range perDay {
			daily = append(daily, snap)
		}
		sort.Slice(daily, func(i, j int) bool {
			return daily[i].Timestamp.Before(daily[j].Timestamp)
		})

		series := make([]models.TrendPoint, 0, len(daily))
		for _, snap := range daily {
			series = append(series, models.TrendPoint{
				Label: snap.Timestamp.UTC().Format("01/02"),
				Value: snap.ProtectedUnits,
			})
		}

		windows[period] = models.TrendWindow{PeriodDays: period, Series: series}
	}

	return windows
}
