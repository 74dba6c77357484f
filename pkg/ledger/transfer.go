package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TransferPoints moves points between two accounts as two entries plus an
// audit row, all in one transaction. Locks are taken in ascending account
// order regardless of which side is the sender; every caller that touches two
// accounts must follow the same order or transfers running in opposite
// directions can deadlock.
func (service *Service) TransferPoints(ctx context.Context, from AccountID, to AccountID, amount Amount, currency Currency, bucket Bucket) (Transfer, error) {
	var transfer Transfer
	operationError := func() error {
		if from.String() == to.String() {
			return fmt.Errorf("%w: cannot transfer to self", ErrInvalidOperation)
		}

		release := service.locks.acquire(from, to)
		defer release()

		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if err := transactionStore.LockAccounts(ctx, sortedAccountIDs(from, to)...); err != nil {
				return err
			}
			if _, err := transactionStore.GetOrCreateAccount(ctx, from); err != nil {
				return err
			}
			if _, err := transactionStore.GetOrCreateAccount(ctx, to); err != nil {
				return err
			}
			// Balance is re-checked under the lock; nothing is cached across
			// the lock boundary.
			senderBalance, err := transactionStore.SumEntries(ctx, from, bucket, currency)
			if err != nil {
				return err
			}
			if senderBalance.LessThan(amount.Decimal()) {
				return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, senderBalance.String(), amount.String())
			}

			transferID := uuid.NewString()
			nowUnixUTC := service.nowFn()
			if _, err := transactionStore.AppendEntry(ctx, EntryInput{
				AccountID: from,
				Bucket:    bucket,
				Currency:  currency,
				Direction: DirectionOut,
				Amount:    amount,
				Reason:    ReasonTransferOut,
				Metadata: NewMetadataFromMap(map[string]string{
					metadataKeyCounterparty: to.String(),
					metadataKeyTransferID:   transferID,
				}),
				CreatedUnixUTC: nowUnixUTC,
			}); err != nil {
				return err
			}
			if _, err := transactionStore.AppendEntry(ctx, EntryInput{
				AccountID: to,
				Bucket:    bucket,
				Currency:  currency,
				Direction: DirectionIn,
				Amount:    amount,
				Reason:    ReasonTransferIn,
				Metadata: NewMetadataFromMap(map[string]string{
					metadataKeyCounterparty: from.String(),
					metadataKeyTransferID:   transferID,
				}),
				CreatedUnixUTC: nowUnixUTC,
			}); err != nil {
				return err
			}

			transfer = Transfer{
				TransferID:     transferID,
				FromAccountID:  from,
				ToAccountID:    to,
				Amount:         amount,
				Currency:       currency,
				Bucket:         bucket,
				CreatedUnixUTC: nowUnixUTC,
			}
			return transactionStore.CreateTransfer(ctx, transfer)
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:    operationTransfer,
		AccountID:    from,
		Counterparty: to,
		Amount:       amount.Decimal(),
		Currency:     currency,
		Bucket:       bucket,
		Reference:    transfer.TransferID,
		Error:        operationError,
	})
	if operationError != nil {
		return Transfer{}, operationError
	}
	return transfer, nil
}
