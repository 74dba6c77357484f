package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation    string
	AccountID    AccountID
	Counterparty AccountID
	Amount       decimal.Decimal
	Currency     Currency
	Bucket       Bucket
	Reference    string
	Status       string
	Error        error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}
