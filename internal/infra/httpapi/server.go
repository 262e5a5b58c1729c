package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/port"
	"github.com/inpaintx/dataset-ingestion-service/internal/usecase"
	"go.uber.org/zap"
)

// Server is the thin HTTP adapter over the ingestion pipeline. It parses
// requests, runs use cases and maps tagged errors to status codes; it holds
// no business logic of its own.
type Server struct {
	ingest     *usecase.IngestUploadUseCase
	create     *usecase.CreateDatasetUseCase
	ledger     port.TokenLedger
	repo       port.DatasetRepository
	storage    port.FileStorage
	presignTTL time.Duration
	logger     *zap.Logger
}

func NewServer(
	ingest *usecase.IngestUploadUseCase,
	create *usecase.CreateDatasetUseCase,
	ledger port.TokenLedger,
	repo port.DatasetRepository,
	storage port.FileStorage,
	presignTTL time.Duration,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingest:     ingest,
		create:     create,
		ledger:     ledger,
		repo:       repo,
		storage:    storage,
		presignTTL: presignTTL,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/datasets", s.handleCreateDataset)
		r.Post("/datasets/{name}/uploads", s.handleUpload)
		r.Get("/datasets/{name}", s.handleGetDataset)
		r.Delete("/datasets/{name}", s.handleDeleteDataset)
		r.Get("/datasets/{name}/items/{index}/image-url", s.handleImageURL)
		r.Get("/tokens/balance", s.handleBalance)
		r.Get("/tokens/transactions", s.handleTransactions)
	})

	return r
}
