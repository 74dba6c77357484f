package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	locks  *accountLocks
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, locks: newAccountLocks()}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance projects the balance for an (account, bucket, currency) tuple as
// sum(in) - sum(out) over the matching entries. It is a pure query; it never
// enforces non-negativity.
func (service *Service) Balance(ctx context.Context, accountID AccountID, bucket Bucket, currency Currency) (decimal.Decimal, error) {
	return service.store.SumEntries(ctx, accountID, bucket, currency)
}

// Statement lists entries newest first, optionally filtered by direction and
// reason. A non-positive limit falls back to the default page size.
func (service *Service) Statement(ctx context.Context, query EntryQuery) ([]Entry, error) {
	if query.Limit <= 0 {
		query.Limit = defaultStatementLimit
	}
	return service.store.ListEntries(ctx, query)
}

// AppendInput describes an administrative ledger movement, e.g. a manually
// confirmed deposit.
type AppendInput struct {
	AccountID AccountID
	Bucket    Bucket
	Currency  Currency
	Direction Direction
	Amount    Amount
	Reason    Reason
	Metadata  MetadataJSON
}

// Append writes a single administrative entry. Corrections are new offsetting
// entries; nothing is ever updated in place.
func (service *Service) Append(ctx context.Context, authorization Authorization, input AppendInput) (int64, error) {
	var entryID int64
	operationError := service.requireAdmin(authorization)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if _, err := transactionStore.GetOrCreateAccount(ctx, input.AccountID); err != nil {
				return err
			}
			appendedID, err := transactionStore.AppendEntry(ctx, EntryInput{
				AccountID:      input.AccountID,
				Bucket:         input.Bucket,
				Currency:       input.Currency,
				Direction:      input.Direction,
				Amount:         input.Amount,
				Reason:         input.Reason,
				Metadata:       input.Metadata,
				CreatedUnixUTC: service.nowFn(),
			})
			if err != nil {
				return err
			}
			entryID = appendedID
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationAppend,
		AccountID: input.AccountID,
		Amount:    input.Amount.Decimal(),
		Currency:  input.Currency,
		Bucket:    input.Bucket,
		Error:     operationError,
	})
	return entryID, operationError
}

// Account returns the account record, creating a candidate row on first
// interaction.
func (service *Service) Account(ctx context.Context, accountID AccountID) (Account, error) {
	return service.store.GetOrCreateAccount(ctx, accountID)
}

// SetAccountStatus applies an admin-driven status transition.
func (service *Service) SetAccountStatus(ctx context.Context, authorization Authorization, accountID AccountID, status AccountStatus) error {
	if err := service.requireAdmin(authorization); err != nil {
		return err
	}
	return service.store.SetAccountStatus(ctx, accountID, status)
}

func (service *Service) requireAdmin(authorization Authorization) error {
	if authorization.Role != RoleAdmin {
		return fmt.Errorf("%w: role %q cannot perform this operation", ErrUnauthorized, authorization.Role)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

const defaultStatementLimit = 10
