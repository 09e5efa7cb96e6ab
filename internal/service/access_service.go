package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/models"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
)

type accessLogStore interface {
	Create(ctx context.Context, entry *models.DatasetAccessLog) error
	CountByDataset(ctx context.Context, datasetID string) (int64, error)
	CountByType(ctx context.Context, datasetID string) ([]models.AccessTypeCount, error)
	ListRecent(ctx context.Context, datasetID string, limit int) ([]models.DatasetAccessLog, error)
}

const recentAccessLimit = 20

type accessLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AccessService appends ledger rows for dataset reads and throttles repeated reads.
type AccessService struct {
	repo    accessLogStore
	limiter accessLimiter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAccessService constructs the ledger service. limiter may be nil.
func NewAccessService(repo accessLogStore, limiter accessLimiter, metrics *MetricsService, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{repo: repo, limiter: limiter, metrics: metrics, logger: logger}
}

// Record appends one ledger row. The dataset must already be visible to the caller.
// Download writes must succeed; view and metadata write failures are logged and dropped.
func (s *AccessService) Record(ctx context.Context, datasetID, actorID string, accessType models.AccessType, reqCtx models.RequestContext) error {
	if err := s.throttle(ctx, datasetID, actorID, reqCtx); err != nil {
		return err
	}

	entry := &models.DatasetAccessLog{
		DatasetID:  datasetID,
		AccessType: accessType,
		UserAgent:  truncate(reqCtx.UserAgent, 512),
		IPAddress:  reqCtx.IPAddress,
	}
	if actorID != "" {
		entry.AccessedByUserID = &actorID
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.RecordAccess(accessType, true)
		if accessType == models.AccessTypeDownload {
			return appErrors.Internal(err, "failed to record dataset download")
		}
		s.logger.Warn("dataset access not recorded",
			zap.String("dataset_id", datasetID),
			zap.String("access_type", string(accessType)),
			zap.Error(err),
		)
		return nil
	}
	s.metrics.RecordAccess(accessType, false)
	return nil
}

// Count returns the number of ledger rows for a dataset.
func (s *AccessService) Count(ctx context.Context, datasetID string) (int64, error) {
	count, err := s.repo.CountByDataset(ctx, datasetID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count dataset access")
	}
	return count, nil
}

// Summary returns ledger counts grouped by access type, zero filled, plus the latest entries.
func (s *AccessService) Summary(ctx context.Context, datasetID string) (*models.AccessSummary, error) {
	rows, err := s.repo.CountByType(ctx, datasetID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarise dataset access")
	}
	summary := &models.AccessSummary{DatasetID: datasetID, ByType: make(map[models.AccessType]int64, len(models.AccessTypes))}
	for _, t := range models.AccessTypes {
		summary.ByType[t] = 0
	}
	for _, row := range rows {
		summary.ByType[row.AccessType] += row.Count
		summary.Total += row.Count
	}
	recent, err := s.repo.ListRecent(ctx, datasetID, recentAccessLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list recent dataset access")
	}
	if recent == nil {
		recent = []models.DatasetAccessLog{}
	}
	summary.Recent = recent
	return summary, nil
}

func (s *AccessService) throttle(ctx context.Context, datasetID, actorID string, reqCtx models.RequestContext) error {
	if s.limiter == nil {
		return nil
	}
	client := actorID
	if client == "" {
		client = "ip:" + reqCtx.IPAddress
	}
	allowed, err := s.limiter.Allow(ctx, datasetID+":"+client)
	if err != nil {
		s.logger.Debug("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrRateLimited, "too many reads of this dataset, retry later")
	}
	return nil
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
