package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/internal/dto"
	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/dataformat"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
	"github.com/rastion/rastion-datasets/pkg/scoring"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

const berlin52 = `NAME: berlin52
TYPE: TSP
COMMENT: 52 locations in Berlin (Groetschel)
DIMENSION: 52
EDGE_WEIGHT_TYPE: EUC_2D
NODE_COORD_SECTION
1 565.0 575.0
2 25.0 185.0
3 345.0 750.0
EOF
`

type datasetFixture struct {
	svc       *DatasetService
	repo      *datasetRepoStub
	blobs     storage.BlobStore
	recorder  *recorderStub
	scheduler *schedulerStub
}

func newDatasetFixture(t *testing.T, blobs storage.BlobStore) *datasetFixture {
	t.Helper()
	if blobs == nil {
		blobs = newLocalStore(t)
	}
	f := &datasetFixture{
		repo:      newDatasetRepoStub(),
		blobs:     blobs,
		recorder:  &recorderStub{},
		scheduler: &schedulerStub{},
	}
	f.svc = NewDatasetService(f.repo, f.blobs, f.recorder, f.scheduler, nil, nil, nil, DatasetServiceConfig{MaxFileSize: 1024})
	return f
}

func upload(name, content string) DatasetUpload {
	return DatasetUpload{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func (f *datasetFixture) create(t *testing.T, owner, name, content string, public bool) *models.Dataset {
	t.Helper()
	dataset, err := f.svc.Create(context.Background(), dto.CreateDatasetRequest{IsPublic: public}, upload(name, content), claims(owner))
	require.NoError(t, err)
	return dataset
}

func (f *datasetFixture) blobCount(t *testing.T) int {
	t.Helper()
	count := 0
	require.NoError(t, f.blobs.Walk(context.Background(), func(storage.ObjectInfo) error {
		count++
		return nil
	}))
	return count
}

func requireCode(t *testing.T, err error, target *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, target)
	require.Equal(t, target.Status, appErrors.FromError(err).Status)
}

func TestDatasetServiceCreateTSPLIB(t *testing.T) {
	f := newDatasetFixture(t, nil)

	dataset := f.create(t, "alice", "berlin52.tsp", berlin52, false)

	require.Equal(t, dataformat.FormatTSPLIB, dataset.FormatType)
	require.Equal(t, 52, dataset.Metadata.Dimension)
	require.Equal(t, "berlin52", dataset.Name)
	require.Equal(t, "alice", dataset.UserID)
	require.EqualValues(t, len(berlin52), dataset.Metadata.ByteSize)
	require.False(t, dataset.Metadata.Truncated)
	require.Equal(t, "tsp", dataset.Hint())
	require.True(t, strings.HasPrefix(dataset.FilePath, "datasets/alice/"))
	require.True(t, strings.HasSuffix(dataset.FilePath, ".tsp"))

	sum := sha256.Sum256([]byte(berlin52))
	require.Equal(t, hex.EncodeToString(sum[:]), dataset.Checksum)
	require.Equal(t, []string{dataset.ID}, f.scheduler.ids)

	reader, err := f.blobs.Open(context.Background(), dataset.FilePath)
	require.NoError(t, err)
	defer reader.Close()
	stored, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, berlin52, string(stored))
}

func TestDatasetServiceCreateEmptyFile(t *testing.T) {
	f := newDatasetFixture(t, nil)

	_, err := f.svc.Create(context.Background(), dto.CreateDatasetRequest{}, upload("empty.csv", ""), claims("alice"))

	requireCode(t, err, appErrors.ErrEmptyFile)
	require.Empty(t, f.repo.items)
	require.Empty(t, f.scheduler.ids)
	require.Zero(t, f.blobCount(t))
}

func TestDatasetServiceCreateRejections(t *testing.T) {
	f := newDatasetFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dto.CreateDatasetRequest{}, upload("model.pkl", "binary"), claims("alice"))
	requireCode(t, err, appErrors.ErrUnsupportedFormat)

	_, err = f.svc.Create(ctx, dto.CreateDatasetRequest{}, upload("big.csv", strings.Repeat("a,b\n", 300)), claims("alice"))
	requireCode(t, err, appErrors.ErrFileTooLarge)

	_, err = f.svc.Create(ctx, dto.CreateDatasetRequest{FormatType: "parquet"}, upload("data.csv", "a,b\n1,2\n"), claims("alice"))
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(ctx, dto.CreateDatasetRequest{Name: "  "}, upload(".csv", "a,b\n1,2\n"), claims("alice"))
	requireCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(ctx, dto.CreateDatasetRequest{}, upload("data.csv", "a,b\n1,2\n"), nil)
	requireCode(t, err, appErrors.ErrUnauthorized)

	require.Empty(t, f.repo.items)
	require.Zero(t, f.blobCount(t))
}

func TestDatasetServiceCreateExplicitFormatAndHint(t *testing.T) {
	f := newDatasetFixture(t, nil)

	dataset, err := f.svc.Create(context.Background(),
		dto.CreateDatasetRequest{Name: "cities", FormatType: "CSV", ProblemType: "TSP"},
		upload("cities.txt", "city x y\nberlin 1 2\n"), claims("alice"))

	require.NoError(t, err)
	require.Equal(t, dataformat.FormatCSV, dataset.FormatType)
	require.Equal(t, "cities", dataset.Name)
	require.NotNil(t, dataset.ProblemHint)
	require.Equal(t, "tsp", *dataset.ProblemHint)

	for _, auto := range []string{"auto", " AUTO "} {
		detected, err := f.svc.Create(context.Background(),
			dto.CreateDatasetRequest{FormatType: auto, ProblemType: auto},
			upload("berlin52.tsp", berlin52), claims("alice"))

		require.NoError(t, err)
		require.Equal(t, dataformat.FormatTSPLIB, detected.FormatType)
		require.Nil(t, detected.ProblemHint)
		require.Equal(t, "tsp", detected.Hint())
	}
}

func TestDatasetServiceAutoHintKeepsProblemTypeCredit(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset, err := f.svc.Create(context.Background(),
		dto.CreateDatasetRequest{ProblemType: "auto"},
		upload("berlin52.tsp", berlin52), claims("alice"))
	require.NoError(t, err)

	schema, err := scoring.ParseSchema([]byte(`{"type":"problem","problem_name":"tsp","default_params":{"distance_matrix":null}}`))
	require.NoError(t, err)
	score, detail := scoring.NewScorer(scoring.DefaultWeights()).Score(
		scoring.InputFromMetadata(dataset.FormatType, dataset.Hint(), dataset.Metadata.Metadata), schema)

	require.GreaterOrEqual(t, score, 0.5)
	require.True(t, detail.MatchedProblemType)
}

func TestDatasetServiceCreateBlobFailureLeavesNothing(t *testing.T) {
	failing := &failingBlobStore{BlobStore: newLocalStore(t)}
	f := newDatasetFixture(t, failing)

	_, err := f.svc.Create(context.Background(), dto.CreateDatasetRequest{}, upload("berlin52.tsp", berlin52), claims("alice"))

	requireCode(t, err, appErrors.ErrInternal)
	require.Empty(t, f.repo.items)
	require.Len(t, failing.deletes, 1)
	require.Empty(t, f.scheduler.ids)
}

func TestDatasetServiceCreateSizeMismatch(t *testing.T) {
	f := newDatasetFixture(t, nil)
	content := "a,b\n1,2\n"

	_, err := f.svc.Create(context.Background(), dto.CreateDatasetRequest{},
		DatasetUpload{Filename: "short.csv", Size: int64(len(content)) + 10, Content: strings.NewReader(content)}, claims("alice"))

	requireCode(t, err, appErrors.ErrValidation)
	require.Empty(t, f.repo.items)
	require.Zero(t, f.blobCount(t), "partial blob removed")
}

func TestDatasetServiceCreateRowFailure(t *testing.T) {
	f := newDatasetFixture(t, nil)
	f.repo.createFn = func() error { return errors.New("connection reset") }

	_, err := f.svc.Create(context.Background(), dto.CreateDatasetRequest{}, upload("berlin52.tsp", berlin52), claims("alice"))

	requireCode(t, err, appErrors.ErrInternal)
	require.Empty(t, f.repo.items)
	require.Zero(t, f.blobCount(t))
}

func TestDatasetServiceVisibilityMatrix(t *testing.T) {
	f := newDatasetFixture(t, nil)
	private := f.create(t, "alice", "private.csv", "a,b\n1,2\n", false)
	public := f.create(t, "alice", "public.csv", "a,b\n3,4\n", true)
	ctx := context.Background()

	cases := []struct {
		name    string
		dataset *models.Dataset
		actor   *models.JWTClaims
		allowed bool
	}{
		{"owner private", private, claims("alice"), true},
		{"stranger private", private, claims("bob"), false},
		{"anonymous private", private, nil, false},
		{"owner public", public, claims("alice"), true},
		{"stranger public", public, claims("bob"), true},
		{"anonymous public", public, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			download, err := f.svc.Stream(ctx, tc.dataset.ID, tc.actor, models.RequestContext{IPAddress: "10.0.0.1"})
			if !tc.allowed {
				requireCode(t, err, appErrors.ErrNotFound)
				require.Nil(t, download)
				return
			}
			require.NoError(t, err)
			defer download.Reader.Close()
			body, err := io.ReadAll(download.Reader)
			require.NoError(t, err)
			require.EqualValues(t, len(body), download.Size)
			require.Equal(t, tc.dataset.OriginalFilename, download.Filename)
		})
	}

	require.Len(t, f.recorder.entries, 4, "denied reads are not recorded")
	for _, entry := range f.recorder.entries {
		require.Equal(t, models.AccessTypeDownload, entry)
	}
}

func TestDatasetServiceStreamRequiresLedger(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "public.csv", "a,b\n1,2\n", true)
	f.recorder.err = appErrors.Internal(errors.New("db down"), "failed to record dataset download")

	download, err := f.svc.Stream(context.Background(), dataset.ID, nil, models.RequestContext{})

	requireCode(t, err, appErrors.ErrInternal)
	require.Nil(t, download)
}

func TestDatasetServiceStreamMissingBlob(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "public.csv", "a,b\n1,2\n", true)
	require.NoError(t, f.blobs.Delete(context.Background(), dataset.FilePath))

	_, err := f.svc.Stream(context.Background(), dataset.ID, claims("alice"), models.RequestContext{})

	requireCode(t, err, appErrors.ErrInternal)
	require.Empty(t, f.recorder.entries)
}

func TestDatasetServiceGetRecordsMetadataRead(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "public.csv", "a,b\n1,2\n", true)

	got, err := f.svc.Get(context.Background(), dataset.ID, claims("bob"), models.RequestContext{})
	require.NoError(t, err)
	require.Equal(t, dataset.ID, got.ID)
	require.Equal(t, []models.AccessType{models.AccessTypeMetadata}, f.recorder.entries)
	require.Equal(t, []string{"bob"}, f.recorder.actors)

	_, err = f.svc.Get(context.Background(), "missing", nil, models.RequestContext{})
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestDatasetServiceDeleteByNonOwnerRemovesNothing(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "public.csv", "a,b\n1,2\n", true)

	err := f.svc.Delete(context.Background(), dataset.ID, claims("bob"))

	requireCode(t, err, appErrors.ErrForbidden)
	_, err = f.repo.GetByID(context.Background(), dataset.ID)
	require.NoError(t, err)
	_, err = f.blobs.Stat(context.Background(), dataset.FilePath)
	require.NoError(t, err)
	require.Empty(t, f.repo.deleted)
}

func TestDatasetServiceDeleteByOwner(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "private.csv", "a,b\n1,2\n", false)

	require.NoError(t, f.svc.Delete(context.Background(), dataset.ID, claims("alice")))

	require.Equal(t, []string{dataset.ID}, f.repo.deleted)
	_, err := f.blobs.Stat(context.Background(), dataset.FilePath)
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	err = f.svc.Delete(context.Background(), dataset.ID, claims("alice"))
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestDatasetServiceDeleteHiddenPrivate(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "private.csv", "a,b\n1,2\n", false)

	requireCode(t, f.svc.Delete(context.Background(), dataset.ID, claims("bob")), appErrors.ErrNotFound)
	requireCode(t, f.svc.Delete(context.Background(), dataset.ID, nil), appErrors.ErrUnauthorized)
	require.Empty(t, f.repo.deleted)
}

func TestDatasetServiceUpdate(t *testing.T) {
	f := newDatasetFixture(t, nil)
	dataset := f.create(t, "alice", "data.csv", "a,b\n1,2\n", false)
	public := true
	desc := "  city coordinates "

	updated, err := f.svc.Update(context.Background(), dataset.ID, dto.UpdateDatasetRequest{Description: &desc, IsPublic: &public}, claims("alice"))
	require.NoError(t, err)
	require.True(t, updated.IsPublic)
	require.Equal(t, "city coordinates", updated.Description)

	_, err = f.svc.Update(context.Background(), dataset.ID, dto.UpdateDatasetRequest{IsPublic: &public}, claims("bob"))
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Update(context.Background(), dataset.ID, dto.UpdateDatasetRequest{}, claims("alice"))
	requireCode(t, err, appErrors.ErrValidation)
}

func TestDatasetServiceList(t *testing.T) {
	f := newDatasetFixture(t, nil)
	f.create(t, "alice", "a.csv", "a,b\n1,2\n", false)
	f.create(t, "bob", "b.csv", "a,b\n1,2\n", true)
	f.create(t, "bob", "c.csv", "a,b\n1,2\n", false)

	items, total, err := f.svc.List(context.Background(), dto.ListDatasetsQuery{Page: 2, PageSize: 500, FormatType: "CSV"}, claims("alice"))
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 2)
	require.Equal(t, 100, f.repo.filter.Limit)
	require.Equal(t, 100, f.repo.filter.Offset)
	require.Equal(t, dataformat.FormatCSV, f.repo.filter.FormatType)

	_, _, err = f.svc.List(context.Background(), dto.ListDatasetsQuery{Mine: true}, nil)
	requireCode(t, err, appErrors.ErrUnauthorized)

	_, _, err = f.svc.List(context.Background(), dto.ListDatasetsQuery{FormatType: "parquet"}, nil)
	requireCode(t, err, appErrors.ErrValidation)
}

func TestBlobKeySanitisesOwner(t *testing.T) {
	require.Equal(t, "datasets/alice/id.tsp", blobKey("alice", "id", "Berlin.TSP"))
	require.Equal(t, "datasets/_/id.csv", blobKey("..", "id", "x.csv"))
	require.Equal(t, "datasets/a_b/id", blobKey("a/b", "id", "noext"))
}
