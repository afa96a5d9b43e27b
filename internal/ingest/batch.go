package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/security"
	"wamirror/internal/service"
)

// BatchReport summarizes one pass over a payload directory.
type BatchReport struct {
	Files     int          `json:"files"`
	Malformed int          `json:"malformed"`
	Units     IngestReport `json:"units"`
}

// Batch feeds payload files from a directory through an Ingestor.
type Batch struct {
	ingestor *Ingestor
	dir      string
	logger   *logrus.Logger
}

func NewBatch(ingestor *Ingestor, dir string, logger *logrus.Logger) *Batch {
	return &Batch{ingestor: ingestor, dir: dir, logger: logger}
}

// RunOnce ingests every payload file in the directory in name order. A
// malformed file is logged and skipped; only an unreadable directory fails.
func (b *Batch) RunOnce(ctx context.Context) (BatchReport, error) {
	var report BatchReport

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return report, fmt.Errorf("failed to read payload directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && isPayloadFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	b.logger.WithFields(logrus.Fields{
		service.LogFieldCount:    len(names),
		service.LogFieldFilePath: b.dir,
	}).Info("Starting batch ingest")

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		units, err := b.IngestFile(ctx, filepath.Join(b.dir, name))
		report.Files++
		if err != nil {
			report.Malformed++
			continue
		}
		report.Units.add(units)
	}

	b.logger.WithFields(logrus.Fields{
		"files":        report.Files,
		"malformed":    report.Malformed,
		"messages":     report.Units.Messages,
		"statuses":     report.Units.Statuses,
		"placeholders": report.Units.Placeholders,
		"skipped":      report.Units.Skipped,
		"failed":       report.Units.Failed,
	}).Info("Completed batch ingest")

	return report, nil
}

// IngestFile reads and ingests one payload file.
func (b *Batch) IngestFile(ctx context.Context, path string) (IngestReport, error) {
	fields := logrus.Fields{service.LogFieldFileName: filepath.Base(path)}

	if err := security.ValidateFilePathWithBase(path, b.dir); err != nil {
		b.logger.WithFields(fields).WithError(err).Warn("Skipping payload file outside the batch directory")
		return IngestReport{}, apperrors.NewMalformedPayloadError(path, err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		b.logger.WithFields(fields).WithError(err).Error("Failed to read payload file")
		return IngestReport{}, apperrors.NewMalformedPayloadError(path, err)
	}

	report, err := b.ingestor.IngestJSON(ctx, path, body)
	if err != nil {
		b.ingestor.errLogger.LogError(err, "Skipping malformed payload file", fields)
		return report, err
	}
	return report, nil
}

func isPayloadFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), constants.PayloadFileExtension)
}
