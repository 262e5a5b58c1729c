package entity

// IngestRequestMessage is the inbound message from the dataset.ingest queue.
// It references files already staged in object storage rather than carrying
// bytes inline.
type IngestRequestMessage struct {
	UserID      string `json:"user_id"`
	DatasetName string `json:"dataset_name"`
	ImageKey    string `json:"image_key"`
	ImageName   string `json:"image_name"`
	MaskKey     string `json:"mask_key"`
	MaskName    string `json:"mask_name"`
	UserEmail   string `json:"user_email,omitempty"`
}

// IngestStatusMessage is the outbound message published to the
// dataset.status queue after every terminal ingestion outcome.
type IngestStatusMessage struct {
	UserID         string  `json:"user_id"`
	DatasetName    string  `json:"dataset_name"`
	Status         string  `json:"status"`
	ProcessedItems int     `json:"processed_items,omitempty"`
	ReservationID  string  `json:"reservation_id,omitempty"`
	TokenCost      float64 `json:"token_cost,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

const (
	IngestStatusCompleted = "COMPLETED"
	IngestStatusFailed    = "FAILED"
)
