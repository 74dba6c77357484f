package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func timeNow(unixUTC int64) time.Time {
	return time.Unix(unixUTC, 0).UTC()
}

// AccrueDaily credits one day of interest to every active investor account.
// The run is idempotent per calendar day: accounts that already carry an
// interest entry tagged with the day are skipped, and a duplicate insert from
// a racing run is absorbed as a skip. Interest compounds across days by
// construction because each run reads the balance that includes prior credits.
//
// Callers must serialize runs for the same (bucket, currency, day); the guard
// prevents double-credit but not wasted duplicate work.
func (service *Service) AccrueDaily(ctx context.Context, authorization Authorization, input AccrualInput) (AccrualResult, error) {
	result := AccrualResult{TotalInterest: decimal.Zero}
	operationError := func() error {
		if err := service.requireAdmin(authorization); err != nil {
			return err
		}
		if input.APR.IsNegative() {
			return fmt.Errorf("%w: apr must be >= 0", ErrInvalidAmount)
		}
		if input.Day.IsZero() {
			input.Day = NewDay(timeNow(service.nowFn()))
		}
		result.Day = input.Day

		accountIDs, err := service.store.ListActiveInvestorIDs(ctx)
		if err != nil {
			return err
		}
		for _, accountID := range accountIDs {
			result.Processed++
			credited, interest, err := service.accrueAccount(ctx, accountID, input)
			if err != nil {
				return err
			}
			if !credited {
				result.Skipped++
				continue
			}
			result.Credited++
			result.TotalInterest = result.TotalInterest.Add(interest)
		}
		return nil
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAccrue,
		Amount:    result.TotalInterest,
		Currency:  input.Currency,
		Bucket:    input.Bucket,
		Reference: input.Day.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return AccrualResult{TotalInterest: decimal.Zero}, operationError
	}
	return result, nil
}

func (service *Service) accrueAccount(ctx context.Context, accountID AccountID, input AccrualInput) (bool, decimal.Decimal, error) {
	credited := false
	interest := decimal.Zero
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.LockAccounts(ctx, accountID); err != nil {
			return err
		}
		exists, err := transactionStore.HasAccrual(ctx, accountID, input.Bucket, input.Currency, input.Day)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		balance, err := transactionStore.SumEntries(ctx, accountID, input.Bucket, input.Currency)
		if err != nil {
			return err
		}
		if !balance.IsPositive() {
			return nil
		}
		// Truncation, never rounding: the ledger must not over-credit.
		computed := balance.Mul(input.APR).Div(decimal.NewFromInt(daysPerYear)).Truncate(amountScale)
		if !computed.IsPositive() {
			return nil
		}
		amount, err := NewAmount(computed)
		if err != nil {
			return err
		}
		if _, err := transactionStore.AppendEntry(ctx, EntryInput{
			AccountID: accountID,
			Bucket:    input.Bucket,
			Currency:  input.Currency,
			Direction: DirectionIn,
			Amount:    amount,
			Reason:    ReasonInterest,
			Metadata: NewMetadataFromMap(map[string]string{
				metadataKeyAccrualDate: input.Day.String(),
				metadataKeyAPR:         input.APR.String(),
			}),
			AccrualDay:     input.Day,
			CreatedUnixUTC: service.nowFn(),
		}); err != nil {
			return err
		}
		credited = true
		interest = computed
		return nil
	})
	if errors.Is(err, ErrDuplicateAccrual) {
		return false, decimal.Zero, nil
	}
	if err != nil {
		return false, decimal.Zero, err
	}
	return credited, interest, nil
}
