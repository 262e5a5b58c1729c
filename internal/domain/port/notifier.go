package port

import "context"

// RefundAlertNotifier tells operations about a refund that failed and
// therefore left tokens held against a dead reservation.
type RefundAlertNotifier interface {
	NotifyRefundFailure(ctx context.Context, userID, reservationID string, amount float64, cause string) error
}
