package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"github.com/inpaintx/dataset-ingestion-service/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLedger struct {
	mu           sync.Mutex
	reserveErr   error
	confirmErr   error
	refundErr    error
	reservations []entity.TokenReservation
	confirms     []string
	refunds      []string
}

func (l *fakeLedger) Reserve(_ context.Context, userID string, amount float64, _, _ string) (*entity.TokenReservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserveErr != nil {
		return nil, l.reserveErr
	}
	res := entity.TokenReservation{
		ID:     fmt.Sprintf("res-%d", len(l.reservations)+1),
		UserID: userID,
		Amount: amount,
	}
	l.reservations = append(l.reservations, res)
	return &res, nil
}

func (l *fakeLedger) Confirm(_ context.Context, reservationID string) (*entity.SettlementOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirms = append(l.confirms, reservationID)
	if l.confirmErr != nil {
		return nil, l.confirmErr
	}
	return &entity.SettlementOutcome{TokensSpent: 0.65, RemainingBalance: 99}, nil
}

func (l *fakeLedger) Refund(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, reservationID)
	return l.refundErr
}

func (l *fakeLedger) GetBalance(context.Context, string) (*entity.Balance, error) {
	return &entity.Balance{Balance: 100}, nil
}

func (l *fakeLedger) GetRecentTransactions(context.Context, string, int) ([]entity.Transaction, error) {
	return nil, nil
}

type fakeRepo struct {
	mu       sync.Mutex
	datasets map[string]*entity.Dataset
	getErr    error
	updateErr error
	// dropItemsOnWrite simulates a persistence layer that silently loses
	// part of an update.
	dropItemsOnWrite bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{datasets: make(map[string]*entity.Dataset)}
}

func (r *fakeRepo) key(userID, name string) string { return userID + "/" + name }

func (r *fakeRepo) seed(ds *entity.Dataset) {
	r.datasets[r.key(ds.UserID, ds.Name)] = ds
}

func (r *fakeRepo) Exists(_ context.Context, userID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.datasets[r.key(userID, name)]
	return ok, nil
}

func (r *fakeRepo) GetByUserAndName(_ context.Context, userID, name string) (*entity.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	ds, ok := r.datasets[r.key(userID, name)]
	if !ok {
		return nil, nil
	}
	copied := *ds
	copied.Items = append([]entity.Item(nil), ds.Items...)
	return &copied, nil
}

func (r *fakeRepo) Create(_ context.Context, ds *entity.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(ds.UserID, ds.Name)
	if _, ok := r.datasets[key]; ok {
		return apperr.New(apperr.ResourceConflict, "dataset exists")
	}
	r.datasets[key] = ds
	return nil
}

func (r *fakeRepo) Update(_ context.Context, userID, name string, update port.DatasetUpdate) (*entity.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	ds, ok := r.datasets[r.key(userID, name)]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "dataset %q not found", name)
	}
	items := update.Items
	if r.dropItemsOnWrite && len(items) > 0 {
		items = items[:len(items)-1]
	}
	ds.Items = items
	ds.NextUploadIndex = update.NextUploadIndex
	return ds, nil
}

func (r *fakeRepo) Delete(_ context.Context, userID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.datasets, r.key(userID, name))
	return nil
}

type fakeUploadStorage struct {
	mu      sync.Mutex
	staged  map[string][]byte
	cleaned [][]string
}

func (s *fakeUploadStorage) SaveFile(_ context.Context, _ []byte, suggestedName, subfolder string) (string, error) {
	return subfolder + "/" + suggestedName, nil
}

func (s *fakeUploadStorage) ReadFile(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.staged[path]; ok {
		return data, nil
	}
	return nil, errors.New("object not staged")
}

func (s *fakeUploadStorage) CleanupTempFiles(_ context.Context, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = append(s.cleaned, paths)
}

func (s *fakeUploadStorage) PresignedReadURL(_ context.Context, p string, _ time.Duration) (string, error) {
	return "https://storage.local/" + p, nil
}

type fakePairProcessor struct {
	err   error
	items func(uploadIndex int) []entity.Item
}

func (p *fakePairProcessor) ProcessPair(_ context.Context, _ media.Pair, subfolder string, uploadIndex int) ([]entity.Item, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.items != nil {
		return p.items(uploadIndex), nil
	}
	return []entity.Item{{
		ImagePath:   subfolder + "/img.png",
		MaskPath:    subfolder + "/mask.png",
		UploadIndex: uploadIndex,
	}}, nil
}

type fakeArchiveHandler struct {
	err    error
	result *media.ArchiveResult
}

func (a *fakeArchiveHandler) Process(_ context.Context, _ []byte, _ string, _ int) (*media.ArchiveResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []entity.IngestStatusMessage
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var decoded entity.IngestStatusMessage
	if err := json.Unmarshal(msg, &decoded); err != nil {
		return err
	}
	p.messages = append(p.messages, decoded)
	return nil
}

type fakeAlerts struct {
	mu    sync.Mutex
	calls []string
}

func (a *fakeAlerts) NotifyRefundFailure(_ context.Context, _, reservationID string, _ float64, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, reservationID)
	return nil
}

type ingestFixture struct {
	uc        *IngestUploadUseCase
	ledger    *fakeLedger
	repo      *fakeRepo
	storage   *fakeUploadStorage
	pairs     *fakePairProcessor
	archives  *fakeArchiveHandler
	publisher *fakePublisher
	alerts    *fakeAlerts
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		ledger:    &fakeLedger{},
		repo:      newFakeRepo(),
		storage:   &fakeUploadStorage{},
		pairs:     &fakePairProcessor{},
		archives:  &fakeArchiveHandler{},
		publisher: &fakePublisher{},
		alerts:    &fakeAlerts{},
	}
	log := zap.NewNop()
	estimator := NewCostEstimator(&stubFrameCounter{frames: 3}, log)
	mutator := NewDatasetMutator(f.repo, log)
	f.uc = NewIngestUploadUseCase(
		estimator, f.ledger, f.repo, f.storage,
		f.pairs, f.archives, mutator,
		f.publisher, f.alerts, log,
	)
	f.repo.seed(entity.NewDataset("user1", "scenes", nil))
	return f
}

func imagePairInput() IngestUploadInput {
	return IngestUploadInput{
		UserID:      "user1",
		DatasetName: "scenes",
		ImageName:   "img.png",
		ImageData:   []byte("image-bytes"),
		MaskName:    "mask.png",
		MaskData:    []byte("mask-bytes"),
	}
}

func TestIngest_ImagePairHappyPath(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.uc.Execute(context.Background(), imagePairInput())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProcessedItems)
	assert.Equal(t, "res-1", result.ReservationID)
	assert.Equal(t, 0.65, result.TokenCost)

	ds, _ := f.repo.GetByUserAndName(context.Background(), "user1", "scenes")
	require.Len(t, ds.Items, 1)
	assert.Equal(t, 0, ds.Items[0].UploadIndex)
	assert.Nil(t, ds.Items[0].FrameIndex)
	assert.Equal(t, 1, ds.NextUploadIndex)

	assert.Len(t, f.ledger.confirms, 1)
	assert.Empty(t, f.ledger.refunds)

	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, entity.IngestStatusCompleted, f.publisher.messages[0].Status)
}

func TestIngest_IndexMonotonicity(t *testing.T) {
	f := newIngestFixture(t)

	for call := 0; call < 3; call++ {
		_, err := f.uc.Execute(context.Background(), imagePairInput())
		require.NoError(t, err)

		ds, _ := f.repo.GetByUserAndName(context.Background(), "user1", "scenes")
		assert.Equal(t, call+1, ds.NextUploadIndex)
		assert.Equal(t, call, ds.Items[len(ds.Items)-1].UploadIndex)
	}
}

func TestIngest_EstimatorRejectionBeforeReserve(t *testing.T) {
	f := newIngestFixture(t)
	input := imagePairInput()
	input.MaskName = "mask.mp4" // image + video is unsupported

	_, err := f.uc.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidFormat, apperr.KindOf(err))

	assert.Empty(t, f.ledger.reservations, "no reservation may exist before estimation passes")
	assert.Empty(t, f.ledger.confirms)
	assert.Empty(t, f.ledger.refunds)
}

func TestIngest_ReserveFailureNeedsNoRefund(t *testing.T) {
	f := newIngestFixture(t)
	f.ledger.reserveErr = errors.New("insufficient balance")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)

	assert.Empty(t, f.ledger.confirms)
	assert.Empty(t, f.ledger.refunds)
}

func TestIngest_DatasetNotFoundRefunds(t *testing.T) {
	f := newIngestFixture(t)
	input := imagePairInput()
	input.DatasetName = "missing"

	_, err := f.uc.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	assert.Equal(t, []string{"res-1"}, f.ledger.refunds)
	assert.Empty(t, f.ledger.confirms)
}

func TestIngest_ExtractionFailureRefunds(t *testing.T) {
	f := newIngestFixture(t)
	f.pairs.err = apperr.New(apperr.ValidationFailed, "mask is not binary")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))

	assert.Equal(t, []string{"res-1"}, f.ledger.refunds)
	assert.Empty(t, f.ledger.confirms)
}

func TestIngest_PersistFailureRefunds(t *testing.T) {
	f := newIngestFixture(t)
	f.repo.updateErr = errors.New("connection reset")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)

	assert.Equal(t, []string{"res-1"}, f.ledger.refunds)
	assert.Empty(t, f.ledger.confirms)
}

func TestIngest_PersistenceInconsistencyRefunds(t *testing.T) {
	f := newIngestFixture(t)
	f.repo.dropItemsOnWrite = true

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)
	assert.Equal(t, apperr.PersistenceInconsistency, apperr.KindOf(err))

	assert.Equal(t, []string{"res-1"}, f.ledger.refunds)
	assert.Empty(t, f.ledger.confirms)
}

func TestIngest_RefundFailureKeepsOriginalError(t *testing.T) {
	f := newIngestFixture(t)
	f.pairs.err = apperr.New(apperr.ValidationFailed, "mask is not binary")
	f.ledger.refundErr = errors.New("ledger down")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)
	// The refund failure never masks the original cause.
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))

	assert.Equal(t, []string{"res-1"}, f.alerts.calls)
}

func TestIngest_ConfirmFailureDoesNotRefund(t *testing.T) {
	f := newIngestFixture(t)
	f.ledger.confirmErr = errors.New("ledger hiccup")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)

	// Settlement was attempted via confirm; stacking a refund could
	// settle the reservation twice.
	assert.Len(t, f.ledger.confirms, 1)
	assert.Empty(t, f.ledger.refunds)
}

func TestIngest_AtMostOneSettlement(t *testing.T) {
	scenarios := map[string]func(f *ingestFixture){
		"success":            func(*ingestFixture) {},
		"extraction failure": func(f *ingestFixture) { f.pairs.err = errors.New("boom") },
		"persist failure":    func(f *ingestFixture) { f.repo.updateErr = errors.New("boom") },
		"missing dataset":    func(f *ingestFixture) { f.repo.datasets = map[string]*entity.Dataset{} },
	}
	for name, arrange := range scenarios {
		t.Run(name, func(t *testing.T) {
			f := newIngestFixture(t)
			arrange(f)

			_, _ = f.uc.Execute(context.Background(), imagePairInput())

			if len(f.ledger.reservations) == 1 {
				settlements := len(f.ledger.confirms) + len(f.ledger.refunds)
				assert.Equal(t, 1, settlements, "exactly one of confirm/refund per reservation")
			}
		})
	}
}

func TestIngest_TempPathCleanupOnEveryPath(t *testing.T) {
	scenarios := map[string]func(f *ingestFixture, in *IngestUploadInput){
		"success":             func(*ingestFixture, *IngestUploadInput) {},
		"estimator rejection": func(_ *ingestFixture, in *IngestUploadInput) { in.MaskName = "mask.mp4" },
		"reserve failure":     func(f *ingestFixture, _ *IngestUploadInput) { f.ledger.reserveErr = errors.New("no funds") },
		"extraction failure":  func(f *ingestFixture, _ *IngestUploadInput) { f.pairs.err = errors.New("boom") },
		"persist failure":     func(f *ingestFixture, _ *IngestUploadInput) { f.repo.updateErr = errors.New("boom") },
	}
	for name, arrange := range scenarios {
		t.Run(name, func(t *testing.T) {
			f := newIngestFixture(t)
			input := imagePairInput()
			input.TempPaths = []string{"tmp/upload-1", "tmp/upload-2"}
			arrange(f, &input)

			_, _ = f.uc.Execute(context.Background(), input)

			require.Len(t, f.storage.cleaned, 1)
			assert.Equal(t, input.TempPaths, f.storage.cleaned[0])
		})
	}
}

func TestIngest_ArchiveAdvancesIndexPerPair(t *testing.T) {
	f := newIngestFixture(t)
	f.archives.result = &media.ArchiveResult{
		Items: []entity.Item{
			{ImagePath: "a/img", MaskPath: "a/mask", UploadIndex: 0},
			{ImagePath: "b/img", MaskPath: "b/mask", UploadIndex: 1},
		},
		PairsProcessed: 2,
	}

	archive := buildTestZip(t, "a/img.png", "a/mask.png", "b/img.png", "b/mask.png")
	input := IngestUploadInput{
		UserID:      "user1",
		DatasetName: "scenes",
		ImageName:   "bundle.zip",
		ImageData:   archive,
	}

	result, err := f.uc.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedItems)
	// Two countable archive entries at 0.7 apiece.
	assert.InDelta(t, 1.4, result.TokenCost, 1e-9)

	ds, _ := f.repo.GetByUserAndName(context.Background(), "user1", "scenes")
	assert.Equal(t, 2, ds.NextUploadIndex)
}

func TestIngest_ZeroItemsIsHardFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.pairs.items = func(int) []entity.Item { return nil }

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Equal(t, []string{"res-1"}, f.ledger.refunds)
}

func TestIngest_FailurePublishesStatus(t *testing.T) {
	f := newIngestFixture(t)
	f.pairs.err = apperr.New(apperr.ValidationFailed, "mask is not binary")

	_, err := f.uc.Execute(context.Background(), imagePairInput())
	require.Error(t, err)

	require.Len(t, f.publisher.messages, 1)
	msg := f.publisher.messages[0]
	assert.Equal(t, entity.IngestStatusFailed, msg.Status)
	assert.Equal(t, string(apperr.ValidationFailed), msg.ErrorKind)
}
