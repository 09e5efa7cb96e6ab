package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rastion/rastion-datasets/internal/dto"
	"github.com/rastion/rastion-datasets/internal/models"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
	"github.com/rastion/rastion-datasets/pkg/jobs"
	"github.com/rastion/rastion-datasets/pkg/scoring"
)

const scoreJobType = "dataset.score"

type compatibilityStore interface {
	Upsert(ctx context.Context, row *models.DatasetCompatibility) error
	ListByDataset(ctx context.Context, datasetID string) ([]models.DatasetCompatibility, error)
}

type scoringDatasetSource interface {
	GetByID(ctx context.Context, id string) (*models.Dataset, error)
	ListAll(ctx context.Context) ([]models.Dataset, error)
}

type repositoryCatalog interface {
	Repositories(ctx context.Context) ([]models.ProblemRepository, error)
}

// CompatibilityConfig sizes the background scoring workers.
type CompatibilityConfig struct {
	Workers     int
	Retries     int
	RetryDelay  time.Duration
	Concurrency int
}

// CompatibilityService scores datasets against the repository catalog and persists the results.
type CompatibilityService struct {
	datasets    scoringDatasetSource
	store       compatibilityStore
	catalog     repositoryCatalog
	scorer      *scoring.Scorer
	queue       *jobs.Queue
	metrics     *MetricsService
	logger      *zap.Logger
	concurrency int
}

// NewCompatibilityService constructs the service and its job queue. Call Start before scheduling.
func NewCompatibilityService(datasets scoringDatasetSource, store compatibilityStore, catalog repositoryCatalog, scorer *scoring.Scorer, metrics *MetricsService, logger *zap.Logger, cfg CompatibilityConfig) *CompatibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = scoring.NewScorer(scoring.DefaultWeights())
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	svc := &CompatibilityService{
		datasets:    datasets,
		store:       store,
		catalog:     catalog,
		scorer:      scorer,
		metrics:     metrics,
		logger:      logger,
		concurrency: cfg.Concurrency,
	}
	svc.queue = jobs.NewQueue("compatibility", svc.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: 256,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the scoring workers.
func (s *CompatibilityService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *CompatibilityService) Stop() {
	s.queue.Stop()
}

// Schedule queues asynchronous scoring of one dataset without blocking. Repeated requests for a
// dataset still waiting in the queue collapse into one job.
func (s *CompatibilityService) Schedule(datasetID string) error {
	return s.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    scoreJobType,
		Key:     datasetID,
		Payload: datasetID,
	})
}

// List returns stored scores for a dataset visible to the actor, best first.
func (s *CompatibilityService) List(ctx context.Context, datasetID string, actor *models.JWTClaims) ([]models.DatasetCompatibility, error) {
	dataset, err := s.loadDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !dataset.VisibleTo(actor.Identity()) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
	}
	rows, err := s.store.ListByDataset(ctx, dataset.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list compatibility")
	}
	return rows, nil
}

// Recompute rescores one dataset synchronously. Owner only.
func (s *CompatibilityService) Recompute(ctx context.Context, datasetID string, actor *models.JWTClaims) ([]models.DatasetCompatibility, error) {
	actorID := actor.Identity()
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	dataset, err := s.loadDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !dataset.VisibleTo(actorID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
	}
	if !dataset.OwnedBy(actorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can rescore this dataset")
	}
	repos, err := s.catalog.Repositories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "repository catalog unavailable")
	}
	rows, err := s.scoreAgainst(ctx, dataset, repos)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to persist compatibility")
	}
	return rows, nil
}

// ScoreDataset scores one dataset against the whole catalog.
func (s *CompatibilityService) ScoreDataset(ctx context.Context, dataset *models.Dataset) ([]models.DatasetCompatibility, error) {
	repos, err := s.catalog.Repositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load repository catalog: %w", err)
	}
	return s.scoreAgainst(ctx, dataset, repos)
}

// RecomputeAll rescores every dataset against the catalog with bounded fan-out.
// A failing dataset is logged and counted; it does not stop the others.
func (s *CompatibilityService) RecomputeAll(ctx context.Context) (*dto.RecomputeSummary, error) {
	start := time.Now()
	repos, err := s.catalog.Repositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load repository catalog: %w", err)
	}
	datasets, err := s.datasets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	var pairs, failed int64
	sem := semaphore.NewWeighted(int64(s.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i := range datasets {
		dataset := &datasets[i]
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			rows, err := s.scoreAgainst(gctx, dataset, repos)
			atomic.AddInt64(&pairs, int64(len(rows)))
			if err != nil {
				atomic.AddInt64(&failed, 1)
				s.logger.Warn("dataset rescoring failed", zap.String("dataset_id", dataset.ID), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &dto.RecomputeSummary{
		Datasets:     len(datasets),
		Repositories: len(repos),
		Pairs:        int(pairs),
		Failed:       int(failed),
		Duration:     time.Since(start).Round(time.Millisecond).String(),
	}
	s.logger.Info("compatibility recomputed",
		zap.Int("datasets", summary.Datasets),
		zap.Int("repositories", summary.Repositories),
		zap.Int("failed", summary.Failed),
		zap.String("duration", summary.Duration),
	)
	return summary, nil
}

// scoreAgainst upserts one row per repository and returns the rows written, best first.
func (s *CompatibilityService) scoreAgainst(ctx context.Context, dataset *models.Dataset, repos []models.ProblemRepository) ([]models.DatasetCompatibility, error) {
	start := time.Now()
	input := scoring.InputFromMetadata(dataset.FormatType, dataset.Hint(), dataset.Metadata.Metadata)

	rows := make([]models.DatasetCompatibility, 0, len(repos))
	var firstErr error
	failures := 0
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		score, detail := s.scorer.Score(input, repo.DeclaredSchema.Schema)
		row := models.DatasetCompatibility{
			DatasetID:            dataset.ID,
			ProblemType:          repo.ProblemType,
			RepositoryOwner:      repo.Owner,
			RepositoryName:       repo.Name,
			CompatibilityScore:   score,
			CompatibilityDetails: models.CompatibilityDetails{Detail: detail},
		}
		if err := s.store.Upsert(ctx, &row); err != nil {
			failures++
			if firstErr == nil {
				firstErr = fmt.Errorf("upsert %s: %w", repo.FullName(), err)
			}
			continue
		}
		rows = append(rows, row)
	}
	s.metrics.ObserveScoring(len(repos), failures, time.Since(start))

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CompatibilityScore > rows[j].CompatibilityScore
	})
	return rows, firstErr
}

func (s *CompatibilityService) handleJob(ctx context.Context, job jobs.Job) error {
	datasetID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	dataset, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	_, err = s.ScoreDataset(ctx, dataset)
	return err
}

func (s *CompatibilityService) loadDataset(ctx context.Context, id string) (*models.Dataset, error) {
	dataset, err := s.datasets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
		}
		return nil, appErrors.Internal(err, "failed to load dataset")
	}
	return dataset, nil
}
