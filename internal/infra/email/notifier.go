package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// SMTPNotifier alerts the operations mailbox when a refund fails and leaves
// tokens held against a dead reservation.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from, to string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, to: to, logger: logger}
}

func (n *SMTPNotifier) NotifyRefundFailure(_ context.Context, userID, reservationID string, amount float64, cause string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	subject := fmt.Sprintf("Token Refund Failed [Reservation %s]", reservationID)
	body := fmt.Sprintf(
		"A token refund failed and the reservation is still holding funds.\r\n\r\n"+
			"User: %s\r\n"+
			"Reservation: %s\r\n"+
			"Amount: %.2f tokens\r\n"+
			"Cause: %s\r\n\r\n"+
			"The reservation needs manual release in the ledger.\r\n\r\n"+
			"-- dataset-ingestion-service",
		userID, reservationID, amount, cause,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, n.to, subject, body,
	)

	err := smtp.SendMail(addr, nil, n.from, []string{n.to}, []byte(msg))
	if err != nil {
		n.logger.Error("failed to send refund failure alert",
			zap.String("reservation_id", reservationID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("refund failure alert sent",
		zap.String("reservation_id", reservationID),
		zap.String("user_id", userID),
	)
	return nil
}
