package entity

// Token prices per unit of ingested content. These values are part of the
// billing contract and must not drift.
const (
	PricePerImagePair   = 0.65
	PricePerVideoFrame  = 0.4
	PricePerArchivePair = 0.7
)

// OperationDatasetUpload is the ledger operation type under which ingestion
// reservations are made.
const OperationDatasetUpload = "dataset_upload"

// TokenReservation is the ephemeral handle returned by the ledger for funds
// provisionally held against one ingestion call. Exactly one of confirm or
// refund terminates it.
type TokenReservation struct {
	ID     string
	UserID string
	Amount float64
}

// CostEstimate is the estimator's verdict on an upload before any tokens
// are held. FrameCount is set only on the video path, where pricing
// required a real decode.
type CostEstimate struct {
	TokenCost  float64
	FrameCount *int
}

// IngestionResult is what one successful ingestion call returns to its
// caller. It is transient and never persisted.
type IngestionResult struct {
	ProcessedItems int     `json:"processed_items"`
	ReservationID  string  `json:"reservation_id"`
	TokenCost      float64 `json:"token_cost"`
}

// Balance mirrors the ledger's balance lookup.
type Balance struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}

// Transaction is one entry of the ledger's recent-transaction history.
type Transaction struct {
	ID            string  `json:"id"`
	OperationType string  `json:"operation_type"`
	Amount        float64 `json:"amount"`
	CreatedAt     string  `json:"created_at"`
}

// SettlementOutcome mirrors what the ledger reports after a confirm.
type SettlementOutcome struct {
	TokensSpent      float64 `json:"tokens_spent"`
	RemainingBalance float64 `json:"remaining_balance"`
}
