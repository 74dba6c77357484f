// Package oplog adapts the ledger's OperationLogger callback to zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/slhventures/investorledger/pkg/ledger"
)

// Logger emits one structured log line per ledger operation.
type Logger struct {
	base *zap.Logger
}

// New wires a Logger on top of a zap logger.
func New(base *zap.Logger) *Logger {
	return &Logger{base: base.Named("ledger")}
}

// LogOperation implements ledger.OperationLogger.
func (logger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("account_id", entry.AccountID.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("currency", entry.Currency.String()),
		zap.String("bucket", entry.Bucket.String()),
	}
	if entry.Counterparty.String() != "" {
		fields = append(fields, zap.String("counterparty", entry.Counterparty.String()))
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		logger.base.Warn("ledger operation failed", fields...)
		return
	}
	logger.base.Info("ledger operation", fields...)
}
