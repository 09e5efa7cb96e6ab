package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/export"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

// Report formats accepted by RenderReport.
const (
	ReportFormatJSON = "json"
	ReportFormatCSV  = "csv"
	ReportFormatPDF  = "pdf"
)

// orphanGracePeriod is how old an unreferenced blob must be before it counts as orphaned.
const orphanGracePeriod = 15 * time.Minute

var healthReportHeaders = []string{"dataset_id", "name", "user_id", "status", "recorded_size", "actual_size", "reasons"}

type healthDatasetLister interface {
	ListAll(ctx context.Context) ([]models.Dataset, error)
}

// HealthCheckService reconciles dataset rows with their stored blobs.
type HealthCheckService struct {
	datasets    healthDatasetLister
	blobs       storage.BlobStore
	metrics     *MetricsService
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
}

// NewHealthCheckService constructs the reconciler.
func NewHealthCheckService(datasets healthDatasetLister, blobs storage.BlobStore, metrics *MetricsService, logger *zap.Logger, concurrency int) *HealthCheckService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &HealthCheckService{
		datasets:    datasets,
		blobs:       blobs,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
	}
}

// Run checks that every dataset blob exists, is readable and has the recorded size,
// then lists blobs no dataset row points at and older than orphanGracePeriod.
func (s *HealthCheckService) Run(ctx context.Context) (*models.HealthReport, error) {
	start := s.now()
	datasets, err := s.datasets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	results := make([]models.DatasetHealth, len(datasets))
	known := make(map[string]struct{}, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range datasets {
		i := i
		known[datasets[i].FilePath] = struct{}{}
		g.Go(func() error {
			results[i] = s.check(gctx, &datasets[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orphans := make([]string, 0)
	walkErr := s.blobs.Walk(ctx, func(info storage.ObjectInfo) error {
		if _, ok := known[info.Key]; ok {
			return nil
		}
		// Uploads write the blob before their row commits.
		if !info.ModTime.IsZero() && start.Sub(info.ModTime) < orphanGracePeriod {
			return nil
		}
		orphans = append(orphans, info.Key)
		return nil
	})
	if walkErr != nil {
		s.logger.Warn("orphan scan incomplete", zap.Error(walkErr))
	}
	sort.Strings(orphans)

	report := &models.HealthReport{
		CheckedAt: start.UTC(),
		Total:     len(results),
		Results:   results,
		Orphans:   orphans,
	}
	for _, r := range results {
		if r.Status == models.HealthStatusHealthy {
			report.Healthy++
		} else {
			report.Unhealthy++
		}
	}
	report.Duration = s.now().Sub(start).Round(time.Millisecond).String()

	s.metrics.ObserveHealthReport(report)
	s.logger.Info("dataset health check finished",
		zap.Int("total", report.Total),
		zap.Int("unhealthy", report.Unhealthy),
		zap.Int("orphans", len(report.Orphans)),
		zap.String("duration", report.Duration),
	)
	return report, nil
}

func (s *HealthCheckService) check(ctx context.Context, dataset *models.Dataset) models.DatasetHealth {
	result := models.DatasetHealth{
		DatasetID:    dataset.ID,
		Name:         dataset.Name,
		UserID:       dataset.UserID,
		FilePath:     dataset.FilePath,
		RecordedSize: dataset.FileSize,
		Status:       models.HealthStatusHealthy,
		Reasons:      []string{},
	}
	fail := func(reason string) models.DatasetHealth {
		result.Status = models.HealthStatusUnhealthy
		result.Reasons = append(result.Reasons, reason)
		return result
	}

	info, err := s.blobs.Stat(ctx, dataset.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fail("blob missing")
		}
		return fail("blob stat failed: " + err.Error())
	}
	size := info.Size
	result.ActualSize = &size
	if size != dataset.FileSize {
		fail(fmt.Sprintf("size mismatch: recorded %d, stored %d", dataset.FileSize, size))
	}

	reader, err := s.blobs.Open(ctx, dataset.FilePath)
	if err != nil {
		return fail("blob unreadable: " + err.Error())
	}
	defer reader.Close()
	if size > 0 {
		if _, err := io.ReadFull(reader, make([]byte, 1)); err != nil {
			return fail("blob unreadable: " + err.Error())
		}
	}
	return result
}

// Table converts a report into rows shared by the CSV and PDF renderers.
func (s *HealthCheckService) Table(report *models.HealthReport) export.Table {
	table := export.Table{Headers: healthReportHeaders}
	for _, r := range report.Results {
		actual := ""
		if r.ActualSize != nil {
			actual = strconv.FormatInt(*r.ActualSize, 10)
		}
		table.Rows = append(table.Rows, map[string]string{
			"dataset_id":    r.DatasetID,
			"name":          r.Name,
			"user_id":       r.UserID,
			"status":        string(r.Status),
			"recorded_size": strconv.FormatInt(r.RecordedSize, 10),
			"actual_size":   actual,
			"reasons":       strings.Join(r.Reasons, "; "),
		})
	}
	table.Notes = append(table.Notes,
		fmt.Sprintf("Checked at %s in %s", report.CheckedAt.Format(time.RFC3339), report.Duration),
		fmt.Sprintf("%d datasets, %d healthy, %d unhealthy", report.Total, report.Healthy, report.Unhealthy),
	)
	if len(report.Orphans) > 0 {
		table.Notes = append(table.Notes, fmt.Sprintf("%d orphan blobs: %s", len(report.Orphans), strings.Join(report.Orphans, ", ")))
	}
	return table
}

// RenderReport encodes the report as json, csv or pdf.
func (s *HealthCheckService) RenderReport(report *models.HealthReport, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", ReportFormatJSON:
		return json.MarshalIndent(report, "", "  ")
	case ReportFormatCSV:
		return s.csv.Render(s.Table(report))
	case ReportFormatPDF:
		return s.pdf.Render(s.Table(report), "Dataset health report")
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
