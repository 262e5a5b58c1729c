package port

import (
	"context"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
)

// TokenLedger is the external billing service. It owns its own consistency
// guarantees; the pipeline only drives the reserve/confirm/refund protocol.
type TokenLedger interface {
	Reserve(ctx context.Context, userID string, amount float64, operationType, idempotencyKey string) (*entity.TokenReservation, error)
	Confirm(ctx context.Context, reservationID string) (*entity.SettlementOutcome, error)
	Refund(ctx context.Context, reservationID string) error
	GetBalance(ctx context.Context, userID string) (*entity.Balance, error)
	GetRecentTransactions(ctx context.Context, userID string, limit int) ([]entity.Transaction, error)
}
