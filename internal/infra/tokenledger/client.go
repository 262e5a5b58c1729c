package tokenledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/domain/apperr"
	"github.com/inpaintx/dataset-ingestion-service/internal/domain/entity"
)

// Client talks JSON over HTTP to the token ledger service. The ledger owns
// all accounting; this client only drives its protocol.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type reserveRequest struct {
	UserID         string  `json:"user_id"`
	Amount         float64 `json:"amount"`
	OperationType  string  `json:"operation_type"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type reserveResponse struct {
	ReservationID string `json:"reservation_id"`
}

func (c *Client) Reserve(ctx context.Context, userID string, amount float64, operationType, idempotencyKey string) (*entity.TokenReservation, error) {
	req := reserveRequest{
		UserID:         userID,
		Amount:         amount,
		OperationType:  operationType,
		IdempotencyKey: idempotencyKey,
	}
	var resp reserveResponse
	if err := c.post(ctx, "/v1/reservations", req, &resp); err != nil {
		return nil, fmt.Errorf("reserve tokens: %w", err)
	}
	return &entity.TokenReservation{
		ID:     resp.ReservationID,
		UserID: userID,
		Amount: amount,
	}, nil
}

func (c *Client) Confirm(ctx context.Context, reservationID string) (*entity.SettlementOutcome, error) {
	var outcome entity.SettlementOutcome
	path := "/v1/reservations/" + url.PathEscape(reservationID) + "/confirm"
	if err := c.post(ctx, path, nil, &outcome); err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	return &outcome, nil
}

func (c *Client) Refund(ctx context.Context, reservationID string) error {
	path := "/v1/reservations/" + url.PathEscape(reservationID) + "/refund"
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("refund reservation: %w", err)
	}
	return nil
}

func (c *Client) GetBalance(ctx context.Context, userID string) (*entity.Balance, error) {
	var balance entity.Balance
	path := "/v1/users/" + url.PathEscape(userID) + "/balance"
	if err := c.get(ctx, path, &balance); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &balance, nil
}

func (c *Client) GetRecentTransactions(ctx context.Context, userID string, limit int) ([]entity.Transaction, error) {
	var txs []entity.Transaction
	path := "/v1/users/" + url.PathEscape(userID) + "/transactions?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, &txs); err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	return txs, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "ledger unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ledger returned %d: %s", resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
