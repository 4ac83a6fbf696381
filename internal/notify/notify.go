// Package notify delivers out-of-band messages to users and publishes
// ledger events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/models"
)

const (
	SubjectNotifications = "notifications.email"
	SubjectTransactions  = "transactions.completed"
)

type Kind string

const (
	KindOTP                 Kind = "otp"
	KindLoanDecision        Kind = "loan_decision"
	KindJointAccountCreated Kind = "joint_account_created"
)

// Message is a single notification addressed to one email.
type Message struct {
	To   string            `json:"to"`
	Kind Kind              `json:"kind"`
	Data map[string]string `json:"data"`
}

// Notifier delivers messages to users.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Publisher announces committed ledger transactions.
type Publisher interface {
	PublishTransaction(ctx context.Context, txn *models.Transaction) error
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subj string, data []byte) error
}

// NATS publishes notifications and transaction events as JSON.
type NATS struct {
	conn Conn
}

func NewNATS(conn Conn) *NATS {
	return &NATS{conn: conn}
}

func (n *NATS) Notify(ctx context.Context, msg Message) error {
	return n.publish(ctx, SubjectNotifications, msg)
}

func (n *NATS) PublishTransaction(ctx context.Context, txn *models.Transaction) error {
	return n.publish(ctx, SubjectTransactions, models.NewTransactionEvent(txn))
}

func (n *NATS) publish(ctx context.Context, subject string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Log writes notifications and events to the application log. It is used
// when no message broker is configured.
type Log struct {
	logger *logrus.Logger
}

func NewLog(logger *logrus.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, msg Message) error {
	fields := logrus.Fields{"to": msg.To, "kind": msg.Kind}
	for k, v := range msg.Data {
		fields["data_"+k] = v
	}
	l.logger.WithFields(fields).Info("notification")
	return nil
}

func (l *Log) PublishTransaction(_ context.Context, txn *models.Transaction) error {
	l.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"type":           txn.Type,
		"amount":         txn.Amount.StringFixed(2),
	}).Debug("transaction completed")
	return nil
}
