package httpapi

import (
	"encoding/json"

	"github.com/slhventures/investorledger/pkg/ledger"
)

// The platform's points settle in SLHA unless a request says otherwise.
const defaultPointsCurrency = "SLHA"

type appendRequest struct {
	AccountID string            `json:"account_id"`
	Bucket    string            `json:"bucket"`
	Currency  string            `json:"currency"`
	Direction string            `json:"direction"`
	Amount    string            `json:"amount"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata"`
}

type transferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Bucket   string `json:"bucket"`
}

type redemptionRequest struct {
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Cohort        string `json:"cohort"`
	Policy        string `json:"policy"`
	PayoutAddress string `json:"payout_address"`
	Note          string `json:"note"`
}

type redemptionActionRequest struct {
	Note string `json:"note"`
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

type accrualRequest struct {
	APR      string `json:"apr"`
	Currency string `json:"currency"`
	Bucket   string `json:"bucket"`
	Day      string `json:"day"`
}

type entryPayload struct {
	EntryID        int64           `json:"entry_id"`
	AccountID      string          `json:"account_id"`
	Bucket         string          `json:"bucket"`
	Currency       string          `json:"currency"`
	Direction      string          `json:"direction"`
	Amount         string          `json:"amount"`
	Reason         string          `json:"reason"`
	Metadata       json.RawMessage `json:"metadata"`
	AccrualDay     string          `json:"accrual_day,omitempty"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type accountPayload struct {
	AccountID          string `json:"account_id"`
	WalletAddress      string `json:"wallet_address,omitempty"`
	Status             string `json:"status"`
	DepositsEnabled    bool   `json:"deposits_enabled"`
	WithdrawalsEnabled bool   `json:"withdrawals_enabled"`
	CreatedUnixUTC     int64  `json:"created_unix_utc"`
}

type transferPayload struct {
	TransferID     string `json:"transfer_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Bucket         string `json:"bucket"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type redemptionPayload struct {
	RedemptionID   int64  `json:"redemption_id"`
	AccountID      string `json:"account_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Cohort         string `json:"cohort"`
	Policy         string `json:"policy"`
	Status         string `json:"status"`
	PayoutAddress  string `json:"payout_address,omitempty"`
	Note           string `json:"note,omitempty"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type accrualPayload struct {
	Processed     int    `json:"processed"`
	Credited      int    `json:"credited"`
	Skipped       int    `json:"skipped"`
	TotalInterest string `json:"total_interest"`
	Day           string `json:"day"`
}

func toEntryPayload(entry ledger.Entry) entryPayload {
	return entryPayload{
		EntryID:        entry.EntryID,
		AccountID:      entry.AccountID.String(),
		Bucket:         entry.Bucket.String(),
		Currency:       entry.Currency.String(),
		Direction:      entry.Direction.String(),
		Amount:         entry.Amount.String(),
		Reason:         entry.Reason.String(),
		Metadata:       json.RawMessage(entry.Metadata.String()),
		AccrualDay:     entry.AccrualDay.String(),
		CreatedUnixUTC: entry.CreatedUnixUTC,
	}
}

func toAccountPayload(account ledger.Account) accountPayload {
	return accountPayload{
		AccountID:          account.AccountID.String(),
		WalletAddress:      account.WalletAddress,
		Status:             account.Status.String(),
		DepositsEnabled:    account.DepositsEnabled,
		WithdrawalsEnabled: account.WithdrawalsEnabled,
		CreatedUnixUTC:     account.CreatedUnixUTC,
	}
}

func toTransferPayload(transfer ledger.Transfer) transferPayload {
	return transferPayload{
		TransferID:     transfer.TransferID,
		From:           transfer.FromAccountID.String(),
		To:             transfer.ToAccountID.String(),
		Amount:         transfer.Amount.String(),
		Currency:       transfer.Currency.String(),
		Bucket:         transfer.Bucket.String(),
		CreatedUnixUTC: transfer.CreatedUnixUTC,
	}
}

func toRedemptionPayload(redemption ledger.Redemption) redemptionPayload {
	return redemptionPayload{
		RedemptionID:   redemption.RedemptionID,
		AccountID:      redemption.AccountID.String(),
		Amount:         redemption.Amount.String(),
		Currency:       redemption.Currency.String(),
		Cohort:         redemption.Cohort,
		Policy:         redemption.Policy.String(),
		Status:         redemption.Status.String(),
		PayoutAddress:  redemption.PayoutAddress,
		Note:           redemption.Note,
		CreatedUnixUTC: redemption.CreatedUnixUTC,
	}
}
