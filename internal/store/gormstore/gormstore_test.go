package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/slhventures/investorledger/pkg/ledger"
)

func newTestStore(test *testing.T) *Store {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/ledger.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	if err := database.AutoMigrate(Models()...); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	return New(database)
}

func mustAccountID(test *testing.T, raw string) ledger.AccountID {
	test.Helper()
	accountID, err := ledger.NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return accountID
}

func mustCurrency(test *testing.T, raw string) ledger.Currency {
	test.Helper()
	currency, err := ledger.NewCurrency(raw)
	if err != nil {
		test.Fatalf("currency %q: %v", raw, err)
	}
	return currency
}

func mustAmount(test *testing.T, raw string) ledger.Amount {
	test.Helper()
	amount, err := ledger.NewAmountFromString(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustDay(test *testing.T, raw string) ledger.Day {
	test.Helper()
	day, err := ledger.ParseDay(raw)
	if err != nil {
		test.Fatalf("day %q: %v", raw, err)
	}
	return day
}

func mustAppend(test *testing.T, store *Store, input ledger.EntryInput) int64 {
	test.Helper()
	entryID, err := store.AppendEntry(context.Background(), input)
	if err != nil {
		test.Fatalf("append entry: %v", err)
	}
	return entryID
}

func entryInput(test *testing.T, accountID ledger.AccountID, direction ledger.Direction, amount string) ledger.EntryInput {
	test.Helper()
	return ledger.EntryInput{
		AccountID:      accountID,
		Bucket:         ledger.BucketInvestor,
		Currency:       mustCurrency(test, "SLHA"),
		Direction:      direction,
		Amount:         mustAmount(test, amount),
		Reason:         ledger.ReasonAdminCredit,
		Metadata:       ledger.NewMetadataFromMap(nil),
		CreatedUnixUTC: 1735689600,
	}
}

func TestSumEntriesProjectsBalance(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")
	currency := mustCurrency(test, "SLHA")

	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "100.5"))
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "0.00000001"))
	mustAppend(test, store, entryInput(test, account, ledger.DirectionOut, "30.25"))

	balance, err := store.SumEntries(context.Background(), account, ledger.BucketInvestor, currency)
	if err != nil {
		test.Fatalf("sum entries: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("70.25000001")) {
		test.Fatalf("expected 70.25000001, got %s", balance)
	}
}

func TestSumEntriesScopesByBucketAndCurrency(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")

	base := entryInput(test, account, ledger.DirectionIn, "10")
	base.Bucket = ledger.BucketBase
	mustAppend(test, store, base)
	other := entryInput(test, account, ledger.DirectionIn, "20")
	other.Currency = mustCurrency(test, "USDT_TON")
	mustAppend(test, store, other)
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "5"))

	balance, err := store.SumEntries(context.Background(), account, ledger.BucketInvestor, mustCurrency(test, "SLHA"))
	if err != nil {
		test.Fatalf("sum entries: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(5)) {
		test.Fatalf("expected 5, got %s", balance)
	}
}

func TestAppendEntryRejectsDuplicateAccrualDay(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")
	day := mustDay(test, "2025-01-02")

	accrual := entryInput(test, account, ledger.DirectionIn, "0.5")
	accrual.Reason = ledger.ReasonInterest
	accrual.AccrualDay = day
	mustAppend(test, store, accrual)

	duplicate := entryInput(test, account, ledger.DirectionIn, "0.5")
	duplicate.Reason = ledger.ReasonInterest
	duplicate.AccrualDay = day
	_, err := store.AppendEntry(context.Background(), duplicate)
	if !errors.Is(err, ledger.ErrDuplicateAccrual) {
		test.Fatalf("expected ErrDuplicateAccrual, got %v", err)
	}

	nextDay := entryInput(test, account, ledger.DirectionIn, "0.5")
	nextDay.Reason = ledger.ReasonInterest
	nextDay.AccrualDay = mustDay(test, "2025-01-03")
	mustAppend(test, store, nextDay)
}

func TestAppendEntryAllowsManyEntriesWithoutAccrualDay(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")

	// NULL accrual days never collide in the unique index.
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "1"))
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "1"))
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "1"))
}

func TestHasAccrualMatchesExactTuple(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")
	currency := mustCurrency(test, "SLHA")
	day := mustDay(test, "2025-01-02")

	accrual := entryInput(test, account, ledger.DirectionIn, "0.5")
	accrual.Reason = ledger.ReasonInterest
	accrual.AccrualDay = day
	mustAppend(test, store, accrual)

	exists, err := store.HasAccrual(context.Background(), account, ledger.BucketInvestor, currency, day)
	if err != nil {
		test.Fatalf("has accrual: %v", err)
	}
	if !exists {
		test.Fatal("expected accrual to exist")
	}
	exists, err = store.HasAccrual(context.Background(), account, ledger.BucketInvestor, currency, mustDay(test, "2025-01-03"))
	if err != nil {
		test.Fatalf("has accrual: %v", err)
	}
	if exists {
		test.Fatal("expected no accrual on the other day")
	}
	exists, err = store.HasAccrual(context.Background(), mustAccountID(test, "investor-2"), ledger.BucketInvestor, currency, day)
	if err != nil {
		test.Fatalf("has accrual: %v", err)
	}
	if exists {
		test.Fatal("expected no accrual for the other account")
	}
}

func TestListEntriesFiltersAndOrders(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "investor-1")

	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "10"))
	out := entryInput(test, account, ledger.DirectionOut, "3")
	out.Reason = ledger.ReasonTransferOut
	mustAppend(test, store, out)
	mustAppend(test, store, entryInput(test, account, ledger.DirectionIn, "7"))

	entries, err := store.ListEntries(context.Background(), ledger.EntryQuery{
		AccountID: account,
		Bucket:    ledger.BucketInvestor,
		Limit:     10,
	})
	if err != nil {
		test.Fatalf("list entries: %v", err)
	}
	if len(entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].EntryID < entries[1].EntryID {
		test.Fatal("expected newest first")
	}

	outgoing, err := store.ListEntries(context.Background(), ledger.EntryQuery{
		AccountID: account,
		Bucket:    ledger.BucketInvestor,
		Direction: ledger.DirectionOut,
		Limit:     10,
	})
	if err != nil {
		test.Fatalf("list entries: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].Reason != ledger.ReasonTransferOut {
		test.Fatalf("unexpected outgoing entries: %+v", outgoing)
	}
}

func TestGetOrCreateAccountDefaultsToCandidate(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	account := mustAccountID(test, "fresh-1")

	created, err := store.GetOrCreateAccount(context.Background(), account)
	if err != nil {
		test.Fatalf("get or create: %v", err)
	}
	if created.Status != ledger.AccountStatusCandidate {
		test.Fatalf("expected candidate, got %s", created.Status)
	}
	again, err := store.GetOrCreateAccount(context.Background(), account)
	if err != nil {
		test.Fatalf("second lookup: %v", err)
	}
	if again.AccountID.String() != account.String() {
		test.Fatalf("unexpected account: %+v", again)
	}
}

func TestSetAccountStatusUnknownAccount(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)

	err := store.SetAccountStatus(context.Background(), mustAccountID(test, "ghost"), ledger.AccountStatusActive)
	if !errors.Is(err, ledger.ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveInvestorIDs(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()

	for _, raw := range []string{"charlie", "alice", "bob"} {
		if _, err := store.GetOrCreateAccount(ctx, mustAccountID(test, raw)); err != nil {
			test.Fatalf("create %s: %v", raw, err)
		}
	}
	if err := store.SetAccountStatus(ctx, mustAccountID(test, "alice"), ledger.AccountStatusActive); err != nil {
		test.Fatalf("activate alice: %v", err)
	}
	if err := store.SetAccountStatus(ctx, mustAccountID(test, "charlie"), ledger.AccountStatusActive); err != nil {
		test.Fatalf("activate charlie: %v", err)
	}

	active, err := store.ListActiveInvestorIDs(ctx)
	if err != nil {
		test.Fatalf("list active: %v", err)
	}
	if len(active) != 2 || active[0].String() != "alice" || active[1].String() != "charlie" {
		test.Fatalf("unexpected active list: %+v", active)
	}
}

func TestRedemptionStatusCompareAndSwap(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	account := mustAccountID(test, "investor-1")

	created, err := store.CreateRedemption(ctx, ledger.RedemptionInput{
		AccountID: account,
		Amount:    mustAmount(test, "100"),
		Currency:  mustCurrency(test, "SLHA"),
		Cohort:    ledger.DefaultCohort,
		Policy:    ledger.PolicyRegular,
	}, 1735689600)
	if err != nil {
		test.Fatalf("create redemption: %v", err)
	}
	if created.Status != ledger.RedemptionStatusPending {
		test.Fatalf("expected pending, got %s", created.Status)
	}

	if err := store.UpdateRedemptionStatus(ctx, created.RedemptionID, ledger.RedemptionStatusPending, ledger.RedemptionStatusApproved, "ok"); err != nil {
		test.Fatalf("approve: %v", err)
	}
	err = store.UpdateRedemptionStatus(ctx, created.RedemptionID, ledger.RedemptionStatusPending, ledger.RedemptionStatusRejected, "")
	if !errors.Is(err, ledger.ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState on second transition, got %v", err)
	}

	current, err := store.GetRedemption(ctx, created.RedemptionID)
	if err != nil {
		test.Fatalf("get redemption: %v", err)
	}
	if current.Status != ledger.RedemptionStatusApproved || current.Note != "ok" {
		test.Fatalf("unexpected redemption: %+v", current)
	}
}

func TestGetRedemptionNotFound(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)

	_, err := store.GetRedemption(context.Background(), 404)
	if !errors.Is(err, ledger.ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()
	account := mustAccountID(test, "investor-1")
	currency := mustCurrency(test, "SLHA")
	errAbort := errors.New("abort")

	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		if _, appendErr := txStore.AppendEntry(ctx, entryInput(test, account, ledger.DirectionIn, "50")); appendErr != nil {
			return appendErr
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		test.Fatalf("expected abort error, got %v", err)
	}

	balance, err := store.SumEntries(ctx, account, ledger.BucketInvestor, currency)
	if err != nil {
		test.Fatalf("sum entries: %v", err)
	}
	if !balance.IsZero() {
		test.Fatalf("expected rollback to zero, got %s", balance)
	}
}

func TestCreateTransferPersistsAuditRow(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	ctx := context.Background()

	transfer := ledger.Transfer{
		TransferID:     "f3b7f2f2-0000-4000-8000-000000000001",
		FromAccountID:  mustAccountID(test, "alice"),
		ToAccountID:    mustAccountID(test, "bob"),
		Amount:         mustAmount(test, "12.25"),
		Currency:       mustCurrency(test, "SLHA"),
		Bucket:         ledger.BucketBase,
		CreatedUnixUTC: 1735689600,
	}
	if err := store.CreateTransfer(ctx, transfer); err != nil {
		test.Fatalf("create transfer: %v", err)
	}

	var row InternalTransfer
	if err := store.db.Where("transfer_id = ?", transfer.TransferID).Take(&row).Error; err != nil {
		test.Fatalf("read transfer row: %v", err)
	}
	if row.FromAccountID != "alice" || row.ToAccountID != "bob" {
		test.Fatalf("unexpected row: %+v", row)
	}
}
