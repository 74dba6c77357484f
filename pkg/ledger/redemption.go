package ledger

import (
	"context"
	"fmt"
	"strconv"
)

// Redemption requests always settle against the investor bucket.
const redemptionBucket = BucketInvestor

// CreateRedemption locks the requested points via a redeem_lock entry and
// inserts the pending request row in one transaction. The lock is an ordinary
// out movement, so the available balance drops immediately.
func (service *Service) CreateRedemption(ctx context.Context, input RedemptionInput) (Redemption, error) {
	var redemption Redemption
	operationError := func() error {
		if input.Cohort == "" {
			input.Cohort = DefaultCohort
		}
		if input.Policy == "" {
			input.Policy = PolicyRegular
		}

		release := service.locks.acquire(input.AccountID)
		defer release()

		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if err := transactionStore.LockAccounts(ctx, input.AccountID); err != nil {
				return err
			}
			account, err := transactionStore.GetOrCreateAccount(ctx, input.AccountID)
			if err != nil {
				return err
			}
			if !account.WithdrawalsEnabled {
				return fmt.Errorf("%w: withdrawals are disabled for account %s", ErrInvalidOperation, input.AccountID.String())
			}
			balance, err := transactionStore.SumEntries(ctx, input.AccountID, redemptionBucket, input.Currency)
			if err != nil {
				return err
			}
			if balance.LessThan(input.Amount.Decimal()) {
				return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, balance.String(), input.Amount.String())
			}

			nowUnixUTC := service.nowFn()
			created, err := transactionStore.CreateRedemption(ctx, input, nowUnixUTC)
			if err != nil {
				return err
			}
			if _, err := transactionStore.AppendEntry(ctx, EntryInput{
				AccountID: input.AccountID,
				Bucket:    redemptionBucket,
				Currency:  input.Currency,
				Direction: DirectionOut,
				Amount:    input.Amount,
				Reason:    ReasonRedeemLock,
				Metadata: NewMetadataFromMap(map[string]string{
					metadataKeyPolicy:       input.Policy.String(),
					metadataKeyRedemptionID: strconv.FormatInt(created.RedemptionID, 10),
				}),
				CreatedUnixUTC: nowUnixUTC,
			}); err != nil {
				return err
			}
			redemption = created
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeemCreate,
		AccountID: input.AccountID,
		Amount:    input.Amount.Decimal(),
		Currency:  input.Currency,
		Bucket:    redemptionBucket,
		Reference: strconv.FormatInt(redemption.RedemptionID, 10),
		Error:     operationError,
	})
	if operationError != nil {
		return Redemption{}, operationError
	}
	return redemption, nil
}

// ApproveRedemption moves a pending request to approved. The locked points
// stay debited; the eventual payout happens outside this core.
func (service *Service) ApproveRedemption(ctx context.Context, authorization Authorization, redemptionID int64, note string) (Redemption, error) {
	return service.closeRedemption(ctx, authorization, redemptionID, RedemptionStatusApproved, note, operationRedeemApprove)
}

// RejectRedemption moves a pending request to rejected and restores the
// locked points via a redeem_unlock entry in the same transaction.
func (service *Service) RejectRedemption(ctx context.Context, authorization Authorization, redemptionID int64, note string) (Redemption, error) {
	return service.closeRedemption(ctx, authorization, redemptionID, RedemptionStatusRejected, note, operationRedeemReject)
}

func (service *Service) closeRedemption(ctx context.Context, authorization Authorization, redemptionID int64, target RedemptionStatus, note string, operation string) (Redemption, error) {
	var redemption Redemption
	operationError := func() error {
		if err := service.requireAdmin(authorization); err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			current, err := transactionStore.GetRedemption(ctx, redemptionID)
			if err != nil {
				return err
			}
			if current.Status != RedemptionStatusPending {
				return fmt.Errorf("%w: redemption %d is %s, not pending", ErrInvalidState, redemptionID, current.Status)
			}
			if err := transactionStore.LockAccounts(ctx, current.AccountID); err != nil {
				return err
			}
			// Status flips via compare-and-swap; a concurrent terminal
			// transition surfaces as InvalidState, never a double unlock.
			if err := transactionStore.UpdateRedemptionStatus(ctx, redemptionID, RedemptionStatusPending, target, note); err != nil {
				return err
			}
			if target == RedemptionStatusRejected {
				if _, err := transactionStore.AppendEntry(ctx, EntryInput{
					AccountID: current.AccountID,
					Bucket:    redemptionBucket,
					Currency:  current.Currency,
					Direction: DirectionIn,
					Amount:    current.Amount,
					Reason:    ReasonRedeemUnlock,
					Metadata: NewMetadataFromMap(map[string]string{
						metadataKeyRedemptionID: strconv.FormatInt(redemptionID, 10),
					}),
					CreatedUnixUTC: service.nowFn(),
				}); err != nil {
					return err
				}
			}
			redemption = current
			redemption.Status = target
			if note != "" {
				redemption.Note = note
			}
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		AccountID: redemption.AccountID,
		Amount:    redemption.Amount.Decimal(),
		Currency:  redemption.Currency,
		Bucket:    redemptionBucket,
		Reference: strconv.FormatInt(redemptionID, 10),
		Error:     operationError,
	})
	if operationError != nil {
		return Redemption{}, operationError
	}
	return redemption, nil
}

// ListRedemptions lists requests newest first, optionally filtered by status.
func (service *Service) ListRedemptions(ctx context.Context, status RedemptionStatus, limit int) ([]Redemption, error) {
	if limit <= 0 {
		limit = defaultRedemptionListLimit
	}
	return service.store.ListRedemptions(ctx, status, limit)
}

const defaultRedemptionListLimit = 20
