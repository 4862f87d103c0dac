package service

import (
	"context"
	"fmt"

	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/metrics"
	"qr-tracker/pkg/storage"
)

// Synchronizer copies archived scan events back into the local log. Running
// it again inserts nothing new.
type Synchronizer struct {
	archive storage.ScanArchive
	local   storage.ScanStorage
	logger  *logging.Logger
}

func NewSynchronizer(archive storage.ScanArchive, local storage.ScanStorage, logger *logging.Logger) *Synchronizer {
	return &Synchronizer{archive: archive, local: local, logger: logger}
}

// Restore returns the number of events inserted. Undecodable archive rows
// are skipped; a local write failure aborts the run.
func (s *Synchronizer) Restore(ctx context.Context) (int, error) {
	events, skipped, err := s.archive.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read archive: %w", err)
	}
	if skipped > 0 {
		metrics.SyncRows.WithLabelValues("skipped").Add(float64(skipped))
		s.logger.Warn(ctx, "skipped malformed archive rows", "count", skipped)
	}

	inserted, duplicates := 0, 0
	for i := range events {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		ok, err := s.local.InsertIfAbsent(ctx, &events[i])
		if err != nil {
			return inserted, fmt.Errorf("insert scan for %q: %w", events[i].ShortCode, err)
		}
		if ok {
			inserted++
			metrics.SyncRows.WithLabelValues("inserted").Inc()
		} else {
			duplicates++
			metrics.SyncRows.WithLabelValues("duplicate").Inc()
		}
	}

	s.logger.Info(ctx, "scan log restored from archive",
		"inserted", inserted, "duplicates", duplicates, "skipped", skipped)
	return inserted, nil
}
