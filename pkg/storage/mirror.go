package storage

import (
	"context"

	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/metrics"
)

// MirroredScanLog writes to a local ScanStorage and copies appends and
// deletes to a remote archive. The local log is authoritative; archive
// failures are logged and never returned.
type MirroredScanLog struct {
	ScanStorage
	archive ScanArchive
	logger  *logging.Logger
}

func NewMirroredScanLog(local ScanStorage, archive ScanArchive, logger *logging.Logger) *MirroredScanLog {
	return &MirroredScanLog{ScanStorage: local, archive: archive, logger: logger}
}

func (m *MirroredScanLog) Append(ctx context.Context, event *ScanEvent) error {
	if err := m.ScanStorage.Append(ctx, event); err != nil {
		return err
	}
	if err := m.archive.Append(ctx, event); err != nil {
		metrics.ScanLogFailures.WithLabelValues("archive").Inc()
		m.logger.Warn(ctx, "archive append failed", "code", event.ShortCode, "error", err)
	}
	return nil
}

func (m *MirroredScanLog) DeleteByCode(ctx context.Context, code string) (int64, error) {
	n, err := m.ScanStorage.DeleteByCode(ctx, code)
	if err != nil {
		return n, err
	}
	if _, err := m.archive.DeleteByCode(ctx, code); err != nil {
		metrics.ScanLogFailures.WithLabelValues("archive").Inc()
		m.logger.Warn(ctx, "archive delete failed", "code", code, "error", err)
	}
	return n, nil
}
