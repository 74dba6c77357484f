package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slhventures/investorledger/pkg/ledger"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectBalance   = "balance"
	errorSubjectEntry     = "entry"
	errorSubjectTransfer  = "transfer"
	errorSubjectRedeem    = "redemption"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLock         = "lock"
	errorCodeLookup       = "lookup"
	errorCodeSum          = "sum"
	errorCodeUpdateStatus = "update_status"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database connection is alive.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// LockAccounts takes row locks on the given accounts in the order supplied.
// Callers pass accounts in the canonical sorted order. Missing rows are
// skipped; they are created later inside the same transaction.
func (store *Store) LockAccounts(ctx context.Context, accountIDs ...ledger.AccountID) error {
	for _, accountID := range accountIDs {
		var row InvestorAccount
		err := store.rowLocking(store.db.WithContext(ctx)).
			Where("account_id = ?", accountID.String()).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return wrapStoreError(errorSubjectAccount, errorCodeLock, err)
		}
	}
	return nil
}

func (store *Store) GetOrCreateAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	row := InvestorAccount{
		AccountID:          accountID.String(),
		Status:             ledger.AccountStatusCandidate.String(),
		DepositsEnabled:    true,
		WithdrawalsEnabled: true,
		CreatedAt:          time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		FirstOrCreate(&row).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return mapAccount(row)
}

func (store *Store) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	var row InvestorAccount
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, fmt.Errorf("%w: account %s", ledger.ErrNotFound, accountID.String()))
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(row)
}

func (store *Store) SetAccountStatus(ctx context.Context, accountID ledger.AccountID, status ledger.AccountStatus) error {
	result := store.db.WithContext(ctx).
		Model(&InvestorAccount{}).
		Where("account_id = ?", accountID.String()).
		Update("status", status.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, fmt.Errorf("%w: account %s", ledger.ErrNotFound, accountID.String()))
	}
	return nil
}

func (store *Store) ListActiveInvestorIDs(ctx context.Context) ([]ledger.AccountID, error) {
	var rawIDs []string
	err := store.db.WithContext(ctx).
		Model(&InvestorAccount{}).
		Where("status = ?", ledger.AccountStatusActive.String()).
		Order("account_id").
		Pluck("account_id", &rawIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accountIDs := make([]ledger.AccountID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		accountID, err := ledger.NewAccountID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accountIDs = append(accountIDs, accountID)
	}
	return accountIDs, nil
}

func (store *Store) AppendEntry(ctx context.Context, entry ledger.EntryInput) (int64, error) {
	var accrualDay *string
	if !entry.AccrualDay.IsZero() {
		value := entry.AccrualDay.String()
		accrualDay = &value
	}
	row := LedgerEntry{
		AccountID:  entry.AccountID.String(),
		Bucket:     entry.Bucket.String(),
		Currency:   entry.Currency.String(),
		Direction:  entry.Direction.String(),
		Amount:     entry.Amount.Decimal(),
		Reason:     entry.Reason.String(),
		Metadata:   datatypes.JSON([]byte(entry.Metadata.String())),
		AccrualDay: accrualDay,
		CreatedAt:  time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() || entry.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateAccrual)
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return row.EntryID, nil
}

// SumEntries projects the balance for one (account, bucket, currency) tuple.
// Amounts are summed in Go with decimal arithmetic; sqlite aggregates numeric
// columns as floats, which must never touch fixed-point money.
func (store *Store) SumEntries(ctx context.Context, accountID ledger.AccountID, bucket ledger.Bucket, currency ledger.Currency) (decimal.Decimal, error) {
	var rows []struct {
		Direction string
		Amount    decimal.Decimal
	}
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("direction", "amount").
		Where("account_id = ? AND bucket = ? AND currency = ?", accountID.String(), bucket.String(), currency.String()).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	total := decimal.Zero
	for _, row := range rows {
		if row.Direction == ledger.DirectionOut.String() {
			total = total.Sub(row.Amount)
			continue
		}
		total = total.Add(row.Amount)
	}
	return total, nil
}

func (store *Store) ListEntries(ctx context.Context, query ledger.EntryQuery) ([]ledger.Entry, error) {
	tx := store.db.WithContext(ctx).
		Where("account_id = ? AND bucket = ?", query.AccountID.String(), query.Bucket.String())
	if !query.Currency.IsZero() {
		tx = tx.Where("currency = ?", query.Currency.String())
	}
	if query.Direction != "" {
		tx = tx.Where("direction = ?", query.Direction.String())
	}
	if query.Reason != "" {
		tx = tx.Where("reason = ?", query.Reason.String())
	}
	var rows []LedgerEntry
	err := tx.Order("entry_id DESC").Limit(query.Limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) HasAccrual(ctx context.Context, accountID ledger.AccountID, bucket ledger.Bucket, currency ledger.Currency, day ledger.Day) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("account_id = ? AND bucket = ? AND currency = ?", accountID.String(), bucket.String(), currency.String()).
		Where("reason = ? AND accrual_day = ?", ledger.ReasonInterest.String(), day.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) CreateTransfer(ctx context.Context, transfer ledger.Transfer) error {
	row := InternalTransfer{
		TransferID:    transfer.TransferID,
		FromAccountID: transfer.FromAccountID.String(),
		ToAccountID:   transfer.ToAccountID.String(),
		Amount:        transfer.Amount.Decimal(),
		Currency:      transfer.Currency.String(),
		Bucket:        transfer.Bucket.String(),
		CreatedAt:     time.Unix(transfer.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectTransfer, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) CreateRedemption(ctx context.Context, input ledger.RedemptionInput, createdUnixUTC int64) (ledger.Redemption, error) {
	row := RedemptionRequest{
		AccountID:     input.AccountID.String(),
		Amount:        input.Amount.Decimal(),
		Currency:      input.Currency.String(),
		Cohort:        input.Cohort,
		Policy:        input.Policy.String(),
		Status:        ledger.RedemptionStatusPending.String(),
		PayoutAddress: input.PayoutAddress,
		Note:          input.Note,
		CreatedAt:     time.Unix(createdUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Redemption{}, wrapStoreError(errorSubjectRedeem, errorCodeCreate, err)
	}
	return mapRedemption(row)
}

func (store *Store) GetRedemption(ctx context.Context, redemptionID int64) (ledger.Redemption, error) {
	var row RedemptionRequest
	err := store.rowLocking(store.db.WithContext(ctx)).
		Where("redemption_id = ?", redemptionID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Redemption{}, wrapStoreError(errorSubjectRedeem, errorCodeGet, fmt.Errorf("%w: redemption %d", ledger.ErrNotFound, redemptionID))
	}
	if err != nil {
		return ledger.Redemption{}, wrapStoreError(errorSubjectRedeem, errorCodeGet, err)
	}
	return mapRedemption(row)
}

func (store *Store) UpdateRedemptionStatus(ctx context.Context, redemptionID int64, from, to ledger.RedemptionStatus, note string) error {
	updates := map[string]any{"status": to.String()}
	if note != "" {
		updates["note"] = note
	}
	result := store.db.WithContext(ctx).
		Model(&RedemptionRequest{}).
		Where("redemption_id = ? AND status = ?", redemptionID, from.String()).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectRedeem, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRedeem, errorCodeUpdateStatus, fmt.Errorf("%w: redemption %d is not %s", ledger.ErrInvalidState, redemptionID, from.String()))
	}
	return nil
}

func (store *Store) ListRedemptions(ctx context.Context, status ledger.RedemptionStatus, limit int) ([]ledger.Redemption, error) {
	tx := store.db.WithContext(ctx)
	if status != "" {
		tx = tx.Where("status = ?", status.String())
	}
	var rows []RedemptionRequest
	err := tx.Order("redemption_id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRedeem, errorCodeList, err)
	}
	redemptions := make([]ledger.Redemption, 0, len(rows))
	for _, row := range rows {
		redemption, err := mapRedemption(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRedeem, errorCodeInvalid, err)
		}
		redemptions = append(redemptions, redemption)
	}
	return redemptions, nil
}

// rowLocking adds FOR UPDATE on postgres. sqlite rejects the clause and its
// single-writer transactions already serialize these paths.
func (store *Store) rowLocking(tx *gorm.DB) *gorm.DB {
	if store.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func mapAccount(row InvestorAccount) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	status, err := ledger.ParseAccountStatus(row.Status)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{
		AccountID:          accountID,
		WalletAddress:      row.WalletAddress,
		Status:             status,
		DepositsEnabled:    row.DepositsEnabled,
		WithdrawalsEnabled: row.WithdrawalsEnabled,
		CreatedUnixUTC:     row.CreatedAt.Unix(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	bucket, err := ledger.ParseBucket(row.Bucket)
	if err != nil {
		return ledger.Entry{}, err
	}
	currency, err := ledger.NewCurrency(row.Currency)
	if err != nil {
		return ledger.Entry{}, err
	}
	direction, err := ledger.ParseDirection(row.Direction)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewAmount(row.Amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	reason, err := ledger.ParseReason(row.Reason)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	var accrualDay ledger.Day
	if row.AccrualDay != nil {
		accrualDay, err = ledger.ParseDay(*row.AccrualDay)
		if err != nil {
			return ledger.Entry{}, err
		}
	}
	return ledger.Entry{
		EntryID:        row.EntryID,
		AccountID:      accountID,
		Bucket:         bucket,
		Currency:       currency,
		Direction:      direction,
		Amount:         amount,
		Reason:         reason,
		Metadata:       metadata,
		AccrualDay:     accrualDay,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapRedemption(row RedemptionRequest) (ledger.Redemption, error) {
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Redemption{}, err
	}
	amount, err := ledger.NewAmount(row.Amount)
	if err != nil {
		return ledger.Redemption{}, err
	}
	currency, err := ledger.NewCurrency(row.Currency)
	if err != nil {
		return ledger.Redemption{}, err
	}
	policy, err := ledger.ParsePolicy(row.Policy)
	if err != nil {
		return ledger.Redemption{}, err
	}
	status, err := ledger.ParseRedemptionStatus(row.Status)
	if err != nil {
		return ledger.Redemption{}, err
	}
	return ledger.Redemption{
		RedemptionID:   row.RedemptionID,
		AccountID:      accountID,
		Amount:         amount,
		Currency:       currency,
		Cohort:         row.Cohort,
		Policy:         policy,
		Status:         status,
		PayoutAddress:  row.PayoutAddress,
		Note:           row.Note,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	if !isDomainError(err) {
		err = fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, err)
	}
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isDomainError(err error) bool {
	domainErrors := []error{
		ledger.ErrNotFound,
		ledger.ErrInvalidState,
		ledger.ErrDuplicateAccrual,
		ledger.ErrInvalidAmount,
		ledger.ErrInvalidAccountID,
		ledger.ErrInvalidCurrency,
		ledger.ErrInvalidBucket,
		ledger.ErrInvalidDirection,
		ledger.ErrInvalidReason,
		ledger.ErrInvalidMetadataJSON,
		ledger.ErrInvalidDay,
		ledger.ErrInvalidPolicy,
		ledger.ErrInvalidStatus,
	}
	for _, domainError := range domainErrors {
		if errors.Is(err, domainError) {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
