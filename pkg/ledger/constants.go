package ledger

const (
	operationAppend        = "append"
	operationTransfer      = "transfer"
	operationRedeemCreate  = "redeem_create"
	operationRedeemApprove = "redeem_approve"
	operationRedeemReject  = "redeem_reject"
	operationAccrue        = "accrue"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	amountScale = 8
	daysPerYear = 365
	dayLayout   = "2006-01-02"

	// DefaultCohort is applied when a redemption request carries no cohort tag.
	DefaultCohort = "standard"

	metadataKeyCounterparty = "counterparty"
	metadataKeyTransferID   = "transfer_id"
	metadataKeyPolicy       = "policy"
	metadataKeyRedemptionID = "redemption_id"
	metadataKeyAccrualDate  = "accrual_date"
	metadataKeyAPR          = "apr"
)
