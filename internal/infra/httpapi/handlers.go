package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/usecase"
	"go.uber.org/zap"
)

const maxUploadMemory = 64 << 20

// userID is resolved by the authenticating gateway in front of this
// service and forwarded in a header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

type createDatasetRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Wrap(apperr.InvalidFormat, err, "decode request body"))
		return
	}
	if req.Name == "" {
		s.writeError(w, apperr.New(apperr.InvalidFormat, "dataset name is required"))
		return
	}

	ds, err := s.create.Execute(r.Context(), userID(r), req.Name, req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"name":              ds.Name,
		"tags":              ds.Tags,
		"type":              ds.Type(),
		"next_upload_index": ds.NextUploadIndex,
		"created_at":        ds.CreatedAt,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, apperr.Wrap(apperr.InvalidFormat, err, "parse multipart form"))
		return
	}

	imageName, imageData, err := formFile(r, "image")
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.InvalidFormat, err, "image file is required"))
		return
	}

	// The mask is absent on archive uploads; the estimator rejects any
	// other maskless combination.
	maskName, maskData, err := formFile(r, "mask")
	if err != nil {
		maskName, maskData = "", nil
	}

	result, err := s.ingest.Execute(r.Context(), usecase.IngestUploadInput{
		UserID:      userID(r),
		DatasetName: chi.URLParam(r, "name"),
		ImageName:   imageName,
		ImageData:   imageData,
		MaskName:    maskName,
		MaskData:    maskData,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ds, err := s.repo.GetByUserAndName(r.Context(), userID(r), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ds == nil {
		s.writeError(w, apperr.New(apperr.NotFound, "dataset %q not found", name))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":              ds.Name,
		"tags":              ds.Tags,
		"type":              ds.Type(),
		"item_count":        len(ds.Items),
		"next_upload_index": ds.NextUploadIndex,
		"created_at":        ds.CreatedAt,
		"updated_at":        ds.UpdatedAt,
	})
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), userID(r), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImageURL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, apperr.New(apperr.InvalidFormat, "item index must be an integer"))
		return
	}

	ds, err := s.repo.GetByUserAndName(r.Context(), userID(r), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ds == nil {
		s.writeError(w, apperr.New(apperr.NotFound, "dataset %q not found", name))
		return
	}
	if index < 0 || index >= len(ds.Items) {
		s.writeError(w, apperr.New(apperr.NotFound, "item %d not found in dataset %q", index, name))
		return
	}

	url, err := s.storage.PresignedReadURL(r.Context(), ds.Items[index].ImagePath, s.presignTTL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"url":         url,
		"expires_in":  s.presignTTL.Seconds(),
		"frame_index": ds.Items[index].FrameIndex,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.GetBalance(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	txs, err := s.ledger.GetRecentTransactions(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func formFile(r *http.Request, field string) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	s.writeJSON(w, statusForKind(kind), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidFormat:
		return http.StatusBadRequest
	case apperr.ValidationFailed:
		return http.StatusUnprocessableEntity
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.ResourceConflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	case apperr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
