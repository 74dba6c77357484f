package ledger

import (
	"context"
	"fmt"
)

// PayoutRedemption is the future on-chain payout hook. It is intentionally
// disabled: approved requests keep their points debited until the payout path
// is wired to a real settlement backend.
func (service *Service) PayoutRedemption(ctx context.Context, authorization Authorization, redemptionID int64) error {
	if err := service.requireAdmin(authorization); err != nil {
		return err
	}
	return fmt.Errorf("%w: on-chain payout is not enabled", ErrNotImplemented)
}
