package ledger

import (
	"sort"
	"sync"
)

// accountLocks serializes balance-check-then-append sequences per account
// within this process. Locks are always taken in ascending account order so
// two transfers running in opposite directions cannot deadlock.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (table *accountLocks) lockFor(accountID AccountID) *sync.Mutex {
	table.mu.Lock()
	defer table.mu.Unlock()
	lock, ok := table.locks[accountID.String()]
	if !ok {
		lock = &sync.Mutex{}
		table.locks[accountID.String()] = lock
	}
	return lock
}

// acquire locks the given accounts in sorted order and returns a release
// function that unlocks them in reverse order. Duplicate ids are collapsed.
func (table *accountLocks) acquire(accountIDs ...AccountID) func() {
	unique := make(map[string]AccountID, len(accountIDs))
	for _, accountID := range accountIDs {
		unique[accountID.String()] = accountID
	}
	ordered := make([]AccountID, 0, len(unique))
	for _, accountID := range unique {
		ordered = append(ordered, accountID)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, accountID := range ordered {
		lock := table.lockFor(accountID)
		lock.Lock()
		held = append(held, lock)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// sortedAccountIDs returns the ids in the canonical locking order, for use
// with Store.LockAccounts.
func sortedAccountIDs(accountIDs ...AccountID) []AccountID {
	ordered := append([]AccountID(nil), accountIDs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })
	return ordered
}
