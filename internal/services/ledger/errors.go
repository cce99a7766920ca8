package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrSelfTrade         = errors.New("cannot trade with yourself")
	ErrAlreadyRegistered = errors.New("account already registered")
	ErrOnCooldown        = errors.New("command on cooldown")

	ErrAccountNotFound   = accounts.ErrAccountNotFound
	ErrInsufficientFunds = accounts.ErrInsufficientFunds
	ErrInsufficientItems = inventory.ErrInsufficientItems
	ErrInvalidAmount     = wallet.ErrInvalidAmount
)

// CooldownError reports how long until a reward command can run again.
type CooldownError struct {
	Command   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on cooldown for %s", e.Command, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrOnCooldown }

var userErrors = []error{
	ErrItemNotFound,
	ErrSelfTrade,
	ErrAlreadyRegistered,
	ErrOnCooldown,
	ErrAccountNotFound,
	ErrInsufficientFunds,
	ErrInsufficientItems,
	ErrInvalidAmount,
}

// IsUserError reports whether err is a rejected request rather than a
// system fault. Store failures are never user errors.
func IsUserError(err error) bool {
	if err == nil || errors.Is(err, pgutils.ErrStoreUnavailable) {
		return false
	}

	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
