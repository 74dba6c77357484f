package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountID identifies an account owner (the platform's external user id).
type AccountID struct {
	value string
}

// Currency is a normalized symbolic asset code such as "SLHA" or "USDT_TON".
type Currency struct {
	value string
}

// MetadataJSON stores arbitrary audit metadata for an entry.
type MetadataJSON struct {
	value string
}

// Day is a calendar date in UTC, used as the accrual idempotency key.
type Day struct {
	value string
}

// Bucket names a sub-wallet; entries never mix across buckets.
type Bucket string

const (
	BucketBase     Bucket = "base"
	BucketInvestor Bucket = "investor"
)

// Direction encodes the sign of an entry; amounts are always positive.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Reason tags why an entry exists.
type Reason string

const (
	ReasonTransferIn   Reason = "transfer_in"
	ReasonTransferOut  Reason = "transfer_out"
	ReasonInterest     Reason = "interest"
	ReasonRedeemLock   Reason = "redeem_lock"
	ReasonRedeemUnlock Reason = "redeem_unlock"
	ReasonAdminCredit  Reason = "admin_credit"
	ReasonAdminDebit   Reason = "admin_debit"
)

// AccountStatus is the coarse onboarding status of an account.
type AccountStatus string

const (
	AccountStatusCandidate AccountStatus = "candidate"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusRejected  AccountStatus = "rejected"
)

// RedemptionStatus defines the redemption request lifecycle.
type RedemptionStatus string

const (
	RedemptionStatusPending  RedemptionStatus = "pending"
	RedemptionStatusApproved RedemptionStatus = "approved"
	RedemptionStatusRejected RedemptionStatus = "rejected"
	RedemptionStatusPaid     RedemptionStatus = "paid"
)

// Policy classifies a redemption request; stored for audit, never branched on.
type Policy string

const (
	PolicyRegular Policy = "regular"
	PolicyEarly   Policy = "early"
)

// Role gates capability-checked operations.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Authorization carries the caller's identity and role into the service.
type Authorization struct {
	Subject string
	Role    Role
}

// SystemAuthorization is used by in-process callers such as the accrual scheduler.
func SystemAuthorization() Authorization {
	return Authorization{Subject: "system", Role: RoleAdmin}
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// Less defines the total order used for deadlock-free lock acquisition.
func (id AccountID) Less(other AccountID) bool {
	return id.value < other.value
}

// NewCurrency validates and normalizes a currency code to upper case.
func NewCurrency(raw string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return Currency{}, fmt.Errorf("%w: empty value", ErrInvalidCurrency)
	}
	return Currency{value: normalized}, nil
}

// String returns the normalized code.
func (currency Currency) String() string {
	return currency.value
}

// IsZero reports whether the currency is unset (used by optional query filters).
func (currency Currency) IsZero() bool {
	return currency.value == ""
}

// ParseBucket validates a bucket name.
func ParseBucket(raw string) (Bucket, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidBucket)
	}
	return Bucket(normalized), nil
}

// String returns the bucket name.
func (bucket Bucket) String() string {
	return string(bucket)
}

// ParseDirection validates an entry direction.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionIn:
		return DirectionIn, nil
	case DirectionOut:
		return DirectionOut, nil
	}
	return "", fmt.Errorf("%w: must be %q or %q", ErrInvalidDirection, DirectionIn, DirectionOut)
}

// String returns the direction token.
func (direction Direction) String() string {
	return string(direction)
}

// ParseReason validates a reason tag. The known tags have constants but the
// set is open; any non-empty token is accepted.
func ParseReason(raw string) (Reason, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	return Reason(normalized), nil
}

// String returns the reason tag.
func (reason Reason) String() string {
	return string(reason)
}

// ParsePolicy validates a redemption policy, defaulting empty input to regular.
func ParsePolicy(raw string) (Policy, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return PolicyRegular, nil
	}
	switch Policy(normalized) {
	case PolicyRegular, PolicyEarly:
		return Policy(normalized), nil
	}
	return "", fmt.Errorf("%w: unknown policy %q", ErrInvalidPolicy, raw)
}

// String returns the policy token.
func (policy Policy) String() string {
	return string(policy)
}

// ParseRedemptionStatus validates a stored redemption status.
func ParseRedemptionStatus(raw string) (RedemptionStatus, error) {
	normalized := RedemptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case RedemptionStatusPending, RedemptionStatusApproved, RedemptionStatusRejected, RedemptionStatusPaid:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: unknown redemption status %q", ErrInvalidStatus, raw)
}

// String returns the status token.
func (status RedemptionStatus) String() string {
	return string(status)
}

// ParseAccountStatus validates a stored account status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	normalized := AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case AccountStatusCandidate, AccountStatusActive, AccountStatusRejected:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: unknown account status %q", ErrInvalidStatus, raw)
}

// String returns the status token.
func (status AccountStatus) String() string {
	return string(status)
}

// Amount is a strictly positive fixed-point amount with at most eight
// fractional digits. Direction encodes the sign; amounts never carry one.
type Amount struct {
	value decimal.Decimal
}

// NewAmount validates an amount.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if !raw.IsPositive() {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !raw.Equal(raw.Truncate(amountScale)) {
		return Amount{}, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, amountScale)
	}
	return Amount{value: raw}, nil
}

// NewAmountFromString parses and validates an amount.
func NewAmountFromString(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying fixed-point value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount with its stored precision.
func (amount Amount) String() string {
	return amount.value.String()
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// NewMetadataFromMap marshals a key/value map into metadata.
func NewMetadataFromMap(values map[string]string) MetadataJSON {
	if len(values) == 0 {
		return MetadataJSON{value: "{}"}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return MetadataJSON{value: "{}"}
	}
	return MetadataJSON{value: string(raw)}
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// NewDay builds a Day from a point in time, in UTC.
func NewDay(at time.Time) Day {
	return Day{value: at.UTC().Format(dayLayout)}
}

// ParseDay validates a YYYY-MM-DD date string.
func ParseDay(raw string) (Day, error) {
	parsed, err := time.Parse(dayLayout, strings.TrimSpace(raw))
	if err != nil {
		return Day{}, fmt.Errorf("%w: %v", ErrInvalidDay, err)
	}
	return NewDay(parsed), nil
}

// String returns the ISO date.
func (day Day) String() string {
	return day.value
}

// IsZero reports whether the day is unset.
func (day Day) IsZero() bool {
	return day.value == ""
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryID        int64
	AccountID      AccountID
	Bucket         Bucket
	Currency       Currency
	Direction      Direction
	Amount         Amount
	Reason         Reason
	Metadata       MetadataJSON
	AccrualDay     Day
	CreatedUnixUTC int64
}

// EntryInput describes an entry to append; the store assigns the id.
type EntryInput struct {
	AccountID      AccountID
	Bucket         Bucket
	Currency       Currency
	Direction      Direction
	Amount         Amount
	Reason         Reason
	Metadata       MetadataJSON
	AccrualDay     Day
	CreatedUnixUTC int64
}

// Signed returns the amount with the direction's sign applied.
func (entry Entry) Signed() decimal.Decimal {
	if entry.Direction == DirectionOut {
		return entry.Amount.Decimal().Neg()
	}
	return entry.Amount.Decimal()
}

// Account is identity plus enablement flags; status transitions are admin-driven.
type Account struct {
	AccountID          AccountID
	WalletAddress      string
	Status             AccountStatus
	DepositsEnabled    bool
	WithdrawalsEnabled bool
	CreatedUnixUTC     int64
}

// Redemption is a redemption request row.
type Redemption struct {
	RedemptionID   int64
	AccountID      AccountID
	Amount         Amount
	Currency       Currency
	Cohort         string
	Policy         Policy
	Status         RedemptionStatus
	PayoutAddress  string
	Note           string
	CreatedUnixUTC int64
}

// RedemptionInput describes a redemption request to create.
type RedemptionInput struct {
	AccountID     AccountID
	Amount        Amount
	Currency      Currency
	Cohort        string
	Policy        Policy
	PayoutAddress string
	Note          string
}

// Transfer is the audit record of a completed peer-to-peer move.
type Transfer struct {
	TransferID     string
	FromAccountID  AccountID
	ToAccountID    AccountID
	Amount         Amount
	Currency       Currency
	Bucket         Bucket
	CreatedUnixUTC int64
}

// EntryQuery filters a statement listing. Zero-valued filters match everything.
type EntryQuery struct {
	AccountID AccountID
	Bucket    Bucket
	Currency  Currency
	Direction Direction
	Reason    Reason
	Limit     int
}

// AccrualInput parameterizes a daily interest run.
type AccrualInput struct {
	APR      decimal.Decimal
	Currency Currency
	Bucket   Bucket
	Day      Day
}

// AccrualResult summarizes a daily interest run.
type AccrualResult struct {
	Day           Day
	Processed     int
	Credited      int
	Skipped       int
	TotalInterest decimal.Decimal
}

// Store is the persistence contract used by Service. Implementations must make
// WithTx atomic: either every write inside fn is durable or none is.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	LockAccounts(ctx context.Context, accountIDs ...AccountID) error
	GetOrCreateAccount(ctx context.Context, accountID AccountID) (Account, error)
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	SetAccountStatus(ctx context.Context, accountID AccountID, status AccountStatus) error
	ListActiveInvestorIDs(ctx context.Context) ([]AccountID, error)
	AppendEntry(ctx context.Context, entry EntryInput) (int64, error)
	SumEntries(ctx context.Context, accountID AccountID, bucket Bucket, currency Currency) (decimal.Decimal, error)
	ListEntries(ctx context.Context, query EntryQuery) ([]Entry, error)
	HasAccrual(ctx context.Context, accountID AccountID, bucket Bucket, currency Currency, day Day) (bool, error)
	CreateTransfer(ctx context.Context, transfer Transfer) error
	CreateRedemption(ctx context.Context, input RedemptionInput, createdUnixUTC int64) (Redemption, error)
	GetRedemption(ctx context.Context, redemptionID int64) (Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, redemptionID int64, from, to RedemptionStatus, note string) error
	ListRedemptions(ctx context.Context, status RedemptionStatus, limit int) ([]Redemption, error)
}
