package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/dto"
	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/dataformat"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

type datasetStore interface {
	CreateAtomic(ctx context.Context, dataset *models.Dataset, persist func(ctx context.Context) (string, error)) error
	GetByID(ctx context.Context, id string) (*models.Dataset, error)
	List(ctx context.Context, filter models.DatasetFilter) ([]models.Dataset, int, error)
	Update(ctx context.Context, id string, patch models.DatasetPatch, updatedAt time.Time) (*models.Dataset, error)
	Delete(ctx context.Context, id string) error
}

type datasetRecorder interface {
	Record(ctx context.Context, datasetID, actorID string, accessType models.AccessType, reqCtx models.RequestContext) error
}

type scoringScheduler interface {
	Schedule(datasetID string) error
}

// autoValue in format_type or problem_type keeps the detected value.
const autoValue = "auto"

var errSizeMismatch = errors.New("stored size differs from upload size")

// DatasetUpload carries the upload stream and its declared size.
type DatasetUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// DatasetDownload bundles an open blob with the headers needed to stream it.
type DatasetDownload struct {
	Reader   io.ReadCloser
	Filename string
	MimeType string
	Size     int64
}

// DatasetServiceConfig holds ingestion limits.
type DatasetServiceConfig struct {
	MaxFileSize int64
	PrefixBytes int
}

// DatasetService owns dataset ingestion, visibility and lifecycle.
type DatasetService struct {
	repo      datasetStore
	blobs     storage.BlobStore
	access    datasetRecorder
	scheduler scoringScheduler
	sniffer   *dataformat.Sniffer
	extractor *dataformat.Extractor
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewDatasetService constructs the service. scheduler and metrics may be nil.
func NewDatasetService(repo datasetStore, blobs storage.BlobStore, access datasetRecorder, scheduler scoringScheduler, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg DatasetServiceConfig) *DatasetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DatasetService{
		repo:      repo,
		blobs:     blobs,
		access:    access,
		scheduler: scheduler,
		sniffer:   dataformat.NewSniffer(cfg.MaxFileSize),
		extractor: dataformat.NewExtractor(cfg.PrefixBytes, logger),
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create validates, classifies and stores an upload. The row and the blob are
// committed together; a failure at any step leaves neither behind.
func (s *DatasetService) Create(ctx context.Context, req dto.CreateDatasetRequest, upload DatasetUpload, actor *models.JWTClaims) (*models.Dataset, error) {
	ownerID := actor.Identity()
	if ownerID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset payload")
	}
	if upload.Content == nil {
		return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, "file is required"))
	}

	if upload.Size > s.sniffer.MaxSize() {
		return nil, s.reject(appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d bytes limit", s.sniffer.MaxSize())))
	}
	prefix, err := readPrefix(upload.Content, s.extractor.Limit())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read upload")
	}
	sniffed, err := s.sniffer.Sniff(upload.Filename, upload.Size, prefix)
	if err != nil {
		return nil, s.reject(sniffError(err, upload.Filename))
	}

	format := sniffed.Format
	if raw := strings.TrimSpace(req.FormatType); !isAuto(raw) {
		explicit, ok := dataformat.ParseFormatType(raw)
		if !ok {
			return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown format_type %q", raw)))
		}
		format = explicit
	}

	meta := s.extractor.Extract(format, prefix)
	meta.ByteSize = upload.Size
	meta.Truncated = int64(len(prefix)) < upload.Size

	id := uuid.NewString()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSuffix(filepath.Base(upload.Filename), filepath.Ext(upload.Filename)))
	}
	if name == "" {
		return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, "name is required"))
	}
	dataset := &models.Dataset{
		ID:               id,
		UserID:           ownerID,
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		FilePath:         blobKey(ownerID, id, upload.Filename),
		FileSize:         upload.Size,
		MimeType:         sniffed.MIMEType,
		FormatType:       format,
		Metadata:         models.DatasetMetadata{Metadata: meta},
		IsPublic:         req.IsPublic,
		OriginalFilename: filepath.Base(upload.Filename),
	}
	if hint := strings.ToLower(strings.TrimSpace(req.ProblemType)); !isAuto(hint) {
		dataset.ProblemHint = &hint
	}

	body := io.MultiReader(bytes.NewReader(prefix), upload.Content)
	err = s.repo.CreateAtomic(ctx, dataset, func(ctx context.Context) (string, error) {
		hasher := sha256.New()
		limited := io.LimitReader(body, upload.Size+1)
		written, err := s.blobs.Put(ctx, dataset.FilePath, io.TeeReader(limited, hasher))
		if err != nil {
			return "", fmt.Errorf("store dataset blob: %w", err)
		}
		if written != upload.Size {
			return "", fmt.Errorf("%w: wrote %d of %d bytes", errSizeMismatch, written, upload.Size)
		}
		return hex.EncodeToString(hasher.Sum(nil)), nil
	})
	if err != nil {
		s.discardBlob(dataset.FilePath)
		if errors.Is(err, errSizeMismatch) {
			return nil, s.reject(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "upload size does not match content"))
		}
		return nil, appErrors.Internal(err, "failed to store dataset")
	}

	s.metrics.RecordIngest(string(dataset.FormatType), dataset.FileSize)
	s.logger.Info("dataset ingested",
		zap.String("dataset_id", dataset.ID),
		zap.String("user_id", ownerID),
		zap.String("format", string(dataset.FormatType)),
		zap.Int64("size", dataset.FileSize),
	)

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(dataset.ID); err != nil {
			s.logger.Warn("compatibility scoring not scheduled", zap.String("dataset_id", dataset.ID), zap.Error(err))
		}
	}
	return dataset, nil
}

// Get returns dataset metadata and records a metadata read.
func (s *DatasetService) Get(ctx context.Context, id string, actor *models.JWTClaims, reqCtx models.RequestContext) (*models.Dataset, error) {
	dataset, err := s.loadVisible(ctx, id, actor.Identity())
	if err != nil {
		return nil, err
	}
	if err := s.access.Record(ctx, dataset.ID, actor.Identity(), models.AccessTypeMetadata, reqCtx); err != nil {
		return nil, err
	}
	return dataset, nil
}

// List returns the caller's datasets plus public ones, newest first.
func (s *DatasetService) List(ctx context.Context, query dto.ListDatasetsQuery, actor *models.JWTClaims) ([]models.Dataset, int, error) {
	filter := models.DatasetFilter{ViewerID: actor.Identity(), OnlyOwned: query.Mine}
	if query.Mine && filter.ViewerID == "" {
		return nil, 0, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required to list own datasets")
	}
	if raw := strings.TrimSpace(query.FormatType); raw != "" {
		format, ok := dataformat.ParseFormatType(raw)
		if !ok {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown format_type %q", raw))
		}
		filter.FormatType = format
	}
	page, size := normalizePage(query.Page, query.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Internal(err, "failed to list datasets")
	}
	return items, total, nil
}

// Update changes the description or visibility. Owner only.
func (s *DatasetService) Update(ctx context.Context, id string, req dto.UpdateDatasetRequest, actor *models.JWTClaims) (*models.Dataset, error) {
	actorID := actor.Identity()
	if actorID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dataset patch")
	}
	patch := models.DatasetPatch{Description: req.Description, IsPublic: req.IsPublic}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	dataset, err := s.loadVisible(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if !dataset.OwnedBy(actorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can modify this dataset")
	}
	if patch.Description != nil {
		trimmed := strings.TrimSpace(*patch.Description)
		patch.Description = &trimmed
	}

	updated, err := s.repo.Update(ctx, dataset.ID, patch, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
		}
		return nil, appErrors.Internal(err, "failed to update dataset")
	}
	return updated, nil
}

// Delete removes the dataset, its ledger and compatibility rows, then its blob. Owner only.
func (s *DatasetService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	actorID := actor.Identity()
	if actorID == "" {
		return appErrors.ErrUnauthorized
	}
	dataset, err := s.loadVisible(ctx, id, actorID)
	if err != nil {
		return err
	}
	if !dataset.OwnedBy(actorID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner can delete this dataset")
	}

	if err := s.repo.Delete(ctx, dataset.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
		}
		return appErrors.Internal(err, "failed to delete dataset")
	}
	if err := s.blobs.Delete(ctx, dataset.FilePath); err != nil {
		s.logger.Error("dataset blob not removed", zap.String("dataset_id", dataset.ID), zap.String("key", dataset.FilePath), zap.Error(err))
	}
	s.metrics.RecordDelete()
	s.logger.Info("dataset deleted", zap.String("dataset_id", dataset.ID), zap.String("user_id", actorID))
	return nil
}

// Stream checks visibility, opens the blob and records the download.
// The caller must close the returned reader.
func (s *DatasetService) Stream(ctx context.Context, id string, actor *models.JWTClaims, reqCtx models.RequestContext) (*DatasetDownload, error) {
	dataset, err := s.loadVisible(ctx, id, actor.Identity())
	if err != nil {
		return nil, err
	}
	reader, err := s.blobs.Open(ctx, dataset.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Error("dataset blob missing", zap.String("dataset_id", dataset.ID), zap.String("key", dataset.FilePath))
		}
		return nil, appErrors.Internal(err, "dataset content unavailable")
	}
	if err := s.access.Record(ctx, dataset.ID, actor.Identity(), models.AccessTypeDownload, reqCtx); err != nil {
		_ = reader.Close()
		return nil, err
	}
	return &DatasetDownload{
		Reader:   reader,
		Filename: dataset.OriginalFilename,
		MimeType: dataset.MimeType,
		Size:     dataset.FileSize,
	}, nil
}

// isAuto reports whether an upload field asks for the detected value.
func isAuto(value string) bool {
	return value == "" || strings.EqualFold(value, autoValue)
}

// Visible loads a dataset the actor may read without touching the ledger.
func (s *DatasetService) Visible(ctx context.Context, id string, actor *models.JWTClaims) (*models.Dataset, error) {
	return s.loadVisible(ctx, id, actor.Identity())
}

// loadVisible hides private datasets from non-owners behind NotFound.
func (s *DatasetService) loadVisible(ctx context.Context, id, actorID string) (*models.Dataset, error) {
	dataset, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
		}
		return nil, appErrors.Internal(err, "failed to load dataset")
	}
	if !dataset.VisibleTo(actorID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
	}
	return dataset, nil
}

func (s *DatasetService) reject(err *appErrors.Error) error {
	s.metrics.RecordIngestRejected(err.Code)
	return err
}

// discardBlob runs detached from the request context so cancelled uploads are still cleaned up.
func (s *DatasetService) discardBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("partial dataset blob not removed", zap.String("key", key), zap.Error(err))
	}
}

func sniffError(err error, filename string) *appErrors.Error {
	switch {
	case errors.Is(err, dataformat.ErrFileTooLarge):
		return appErrors.Clone(appErrors.ErrFileTooLarge, "")
	case errors.Is(err, dataformat.ErrEmptyFile):
		return appErrors.Clone(appErrors.ErrEmptyFile, "")
	case errors.Is(err, dataformat.ErrUnsupportedFormat):
		return appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported dataset format for %q", filepath.Base(filename)))
	default:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload")
	}
}

// blobKey is datasets/<owner>/<id><ext> with owner reduced to a safe path segment.
func blobKey(ownerID, id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	owner := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, ownerID)
	owner = strings.Trim(owner, ".")
	if owner == "" {
		owner = "_"
	}
	return path.Join("datasets", owner, id+ext)
}

func readPrefix(r io.Reader, limit int) ([]byte, error) {
	buf := make([]byte, limit)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
