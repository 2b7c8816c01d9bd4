package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/lexfirma/trustledger/internal/money"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrAccountNotFound    = errors.New("trust_account_not_found")
	ErrLedgerNotFound     = errors.New("client_ledger_not_found")
	ErrAccountClosed      = errors.New("trust_account_closed")
	ErrLedgerClosed       = errors.New("client_ledger_closed")
	ErrDuplicateLedger    = errors.New("duplicate_client_ledger")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrInvalidTransaction = errors.New("invalid_transaction")
	ErrCheckNotFound      = errors.New("check_not_found")
	ErrCheckAlreadyVoided = errors.New("check_already_voided")
	ErrLedgerNotEmpty     = errors.New("client_ledger_balance_not_zero")
	ErrAccountHasFunds    = errors.New("trust_account_holds_client_funds")

	ErrStatementsUnavailable = errors.New("statement_rendering_unavailable")
)

// InsufficientFundsError carries the shortfall so callers can surface the
// requested amount against what is actually available.
type InsufficientFundsError struct {
	LedgerID  snowflake.ID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on ledger %s: requested %s, available %s",
		e.LedgerID, money.Format(e.Requested), money.Format(e.Available))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
