package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

const fixedTestUnixUTC = int64(1735689600) // 2025-01-01T00:00:00Z

// stubStore is an in-memory Store with injectable failures. It is not
// transactional; WithTx simply runs fn against the same state.
type stubStore struct {
	mu sync.Mutex

	entries     []Entry
	accounts    map[string]Account
	redemptions map[int64]Redemption
	transfers   []Transfer

	nextEntryID      int64
	nextRedemptionID int64

	lockedAccountOrder []string

	lockError             error
	getAccountError       error
	setStatusError        error
	listActiveError       error
	appendError           error
	appendErrorAtCall     int
	appendCalls           int
	sumError              error
	listEntriesError      error
	hasAccrualError       error
	createTransferError   error
	createRedemptionError error
	getRedemptionError    error
	updateStatusError     error
	listRedemptionsError  error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:         make(map[string]Account),
		redemptions:      make(map[int64]Redemption),
		nextEntryID:      1,
		nextRedemptionID: 1,
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) LockAccounts(ctx context.Context, accountIDs ...AccountID) error {
	if store.lockError != nil {
		return store.lockError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, accountID := range accountIDs {
		store.lockedAccountOrder = append(store.lockedAccountOrder, accountID.String())
	}
	return nil
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if existing, ok := store.accounts[accountID.String()]; ok {
		return existing, nil
	}
	account := Account{
		AccountID:          accountID,
		Status:             AccountStatusCandidate,
		DepositsEnabled:    true,
		WithdrawalsEnabled: true,
		CreatedUnixUTC:     fixedTestUnixUTC,
	}
	store.accounts[accountID.String()] = account
	return account, nil
}

func (store *stubStore) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID.String())
	}
	return account, nil
}

func (store *stubStore) SetAccountStatus(ctx context.Context, accountID AccountID, status AccountStatus) error {
	if store.setStatusError != nil {
		return store.setStatusError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID.String())
	}
	account.Status = status
	store.accounts[accountID.String()] = account
	return nil
}

func (store *stubStore) ListActiveInvestorIDs(ctx context.Context) ([]AccountID, error) {
	if store.listActiveError != nil {
		return nil, store.listActiveError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var accountIDs []AccountID
	for _, account := range store.accounts {
		if account.Status == AccountStatusActive {
			accountIDs = append(accountIDs, account.AccountID)
		}
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i].Less(accountIDs[j]) })
	return accountIDs, nil
}

func (store *stubStore) AppendEntry(ctx context.Context, input EntryInput) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.appendCalls++
	if store.appendError != nil {
		if store.appendErrorAtCall == 0 || store.appendErrorAtCall == store.appendCalls {
			return 0, store.appendError
		}
	}
	if !input.AccrualDay.IsZero() {
		for _, existing := range store.entries {
			if existing.AccountID.String() == input.AccountID.String() &&
				existing.Bucket == input.Bucket &&
				existing.Currency.String() == input.Currency.String() &&
				existing.AccrualDay.String() == input.AccrualDay.String() {
				return 0, ErrDuplicateAccrual
			}
		}
	}
	entry := Entry{
		EntryID:        store.nextEntryID,
		AccountID:      input.AccountID,
		Bucket:         input.Bucket,
		Currency:       input.Currency,
		Direction:      input.Direction,
		Amount:         input.Amount,
		Reason:         input.Reason,
		Metadata:       input.Metadata,
		AccrualDay:     input.AccrualDay,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.nextEntryID++
	store.entries = append(store.entries, entry)
	return entry.EntryID, nil
}

func (store *stubStore) SumEntries(ctx context.Context, accountID AccountID, bucket Bucket, currency Currency) (decimal.Decimal, error) {
	if store.sumError != nil {
		return decimal.Zero, store.sumError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	total := decimal.Zero
	for _, entry := range store.entries {
		if entry.AccountID.String() != accountID.String() || entry.Bucket != bucket || entry.Currency.String() != currency.String() {
			continue
		}
		total = total.Add(entry.Signed())
	}
	return total, nil
}

func (store *stubStore) ListEntries(ctx context.Context, query EntryQuery) ([]Entry, error) {
	if store.listEntriesError != nil {
		return nil, store.listEntriesError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []Entry
	for _, entry := range store.entries {
		if entry.AccountID.String() != query.AccountID.String() || entry.Bucket != query.Bucket {
			continue
		}
		if !query.Currency.IsZero() && entry.Currency.String() != query.Currency.String() {
			continue
		}
		if query.Direction != "" && entry.Direction != query.Direction {
			continue
		}
		if query.Reason != "" && entry.Reason != query.Reason {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].EntryID > matched[j].EntryID })
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

func (store *stubStore) HasAccrual(ctx context.Context, accountID AccountID, bucket Bucket, currency Currency, day Day) (bool, error) {
	if store.hasAccrualError != nil {
		return false, store.hasAccrualError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, entry := range store.entries {
		if entry.AccountID.String() == accountID.String() &&
			entry.Bucket == bucket &&
			entry.Currency.String() == currency.String() &&
			entry.Reason == ReasonInterest &&
			entry.AccrualDay.String() == day.String() {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) CreateTransfer(ctx context.Context, transfer Transfer) error {
	if store.createTransferError != nil {
		return store.createTransferError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.transfers = append(store.transfers, transfer)
	return nil
}

func (store *stubStore) CreateRedemption(ctx context.Context, input RedemptionInput, createdUnixUTC int64) (Redemption, error) {
	if store.createRedemptionError != nil {
		return Redemption{}, store.createRedemptionError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	redemption := Redemption{
		RedemptionID:   store.nextRedemptionID,
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Cohort:         input.Cohort,
		Policy:         input.Policy,
		Status:         RedemptionStatusPending,
		PayoutAddress:  input.PayoutAddress,
		Note:           input.Note,
		CreatedUnixUTC: createdUnixUTC,
	}
	store.nextRedemptionID++
	store.redemptions[redemption.RedemptionID] = redemption
	return redemption, nil
}

func (store *stubStore) GetRedemption(ctx context.Context, redemptionID int64) (Redemption, error) {
	if store.getRedemptionError != nil {
		return Redemption{}, store.getRedemptionError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	redemption, ok := store.redemptions[redemptionID]
	if !ok {
		return Redemption{}, fmt.Errorf("%w: redemption %d", ErrNotFound, redemptionID)
	}
	return redemption, nil
}

func (store *stubStore) UpdateRedemptionStatus(ctx context.Context, redemptionID int64, from, to RedemptionStatus, note string) error {
	if store.updateStatusError != nil {
		return store.updateStatusError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	redemption, ok := store.redemptions[redemptionID]
	if !ok || redemption.Status != from {
		return fmt.Errorf("%w: redemption %d is not %s", ErrInvalidState, redemptionID, from)
	}
	redemption.Status = to
	if note != "" {
		redemption.Note = note
	}
	store.redemptions[redemptionID] = redemption
	return nil
}

func (store *stubStore) ListRedemptions(ctx context.Context, status RedemptionStatus, limit int) ([]Redemption, error) {
	if store.listRedemptionsError != nil {
		return nil, store.listRedemptionsError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []Redemption
	for _, redemption := range store.redemptions {
		if status != "" && redemption.Status != status {
			continue
		}
		matched = append(matched, redemption)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].RedemptionID > matched[j].RedemptionID })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) mustRedemption(test *testing.T, redemptionID int64) Redemption {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	redemption, ok := store.redemptions[redemptionID]
	if !ok {
		test.Fatalf("redemption %d not found", redemptionID)
	}
	return redemption
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return fixedTestUnixUTC }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return accountID
}

func mustCurrency(test *testing.T, raw string) Currency {
	test.Helper()
	currency, err := NewCurrency(raw)
	if err != nil {
		test.Fatalf("currency %q: %v", raw, err)
	}
	return currency
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := NewAmountFromString(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustDay(test *testing.T, raw string) Day {
	test.Helper()
	day, err := ParseDay(raw)
	if err != nil {
		test.Fatalf("day %q: %v", raw, err)
	}
	return day
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}

func adminAuthorization() Authorization {
	return Authorization{Subject: "admin-1", Role: RoleAdmin}
}

func memberAuthorization(subject string) Authorization {
	return Authorization{Subject: subject, Role: RoleMember}
}

// seedBalance appends a single in entry so the account carries a balance.
func seedBalance(test *testing.T, store *stubStore, accountID AccountID, bucket Bucket, currency Currency, amount string) {
	test.Helper()
	if _, err := store.GetOrCreateAccount(context.Background(), accountID); err != nil {
		test.Fatalf("seed account: %v", err)
	}
	if _, err := store.AppendEntry(context.Background(), EntryInput{
		AccountID:      accountID,
		Bucket:         bucket,
		Currency:       currency,
		Direction:      DirectionIn,
		Amount:         mustAmount(test, amount),
		Reason:         ReasonAdminCredit,
		Metadata:       NewMetadataFromMap(nil),
		CreatedUnixUTC: fixedTestUnixUTC,
	}); err != nil {
		test.Fatalf("seed entry: %v", err)
	}
}
