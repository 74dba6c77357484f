package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvestorAccount represents the investor_accounts table.
type InvestorAccount struct {
	AccountID          string    `gorm:"primaryKey"`
	WalletAddress      string    `gorm:""`
	Status             string    `gorm:"not null;index:idx_accounts_status"`
	DepositsEnabled    bool      `gorm:"not null"`
	WithdrawalsEnabled bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (InvestorAccount) TableName() string { return "investor_accounts" }

// LedgerEntry mirrors the append-only ledger_entries table. Rows are never
// updated or deleted; corrections are new offsetting entries.
type LedgerEntry struct {
	EntryID   int64           `gorm:"primaryKey;autoIncrement"`
	AccountID string          `gorm:"not null;index:idx_entries_scope,priority:1;index:uniq_entries_accrual,unique,priority:1"`
	Bucket    string          `gorm:"not null;index:idx_entries_scope,priority:2;index:uniq_entries_accrual,unique,priority:2"`
	Currency  string          `gorm:"not null;index:idx_entries_scope,priority:3;index:uniq_entries_accrual,unique,priority:3"`
	Direction string          `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(24,8);not null"`
	Reason    string          `gorm:"not null"`
	Metadata  datatypes.JSON  `gorm:"not null"`
	// AccrualDay is set only on interest entries; the unique index makes the
	// per-day idempotency guard an exact match instead of a substring search.
	AccrualDay *string   `gorm:"index:uniq_entries_accrual,unique,priority:4"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// InternalTransfer mirrors the internal_transfers audit table.
type InternalTransfer struct {
	TransferID    string          `gorm:"primaryKey"`
	FromAccountID string          `gorm:"not null;index:idx_transfers_from"`
	ToAccountID   string          `gorm:"not null;index:idx_transfers_to"`
	Amount        decimal.Decimal `gorm:"type:numeric(24,8);not null"`
	Currency      string          `gorm:"not null"`
	Bucket        string          `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (InternalTransfer) TableName() string { return "internal_transfers" }

// RedemptionRequest mirrors the redemption_requests table. Only status and
// note ever change after insert.
type RedemptionRequest struct {
	RedemptionID  int64           `gorm:"primaryKey;autoIncrement"`
	AccountID     string          `gorm:"not null;index:idx_redemptions_account"`
	Amount        decimal.Decimal `gorm:"type:numeric(24,8);not null"`
	Currency      string          `gorm:"not null"`
	Cohort        string          `gorm:"not null"`
	Policy        string          `gorm:"not null"`
	Status        string          `gorm:"not null;index:idx_redemptions_status"`
	PayoutAddress string          `gorm:""`
	Note          string          `gorm:""`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (RedemptionRequest) TableName() string { return "redemption_requests" }

// Models lists every table for schema migration at boot.
func Models() []any {
	return []any{
		&InvestorAccount{},
		&LedgerEntry{},
		&InternalTransfer{},
		&RedemptionRequest{},
	}
}
