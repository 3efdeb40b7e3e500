// Package bank holds the illustrative accounts and transactions the
// governance core protects. It is deliberately small: single-row atomicity
// for reads, one SQL transaction for a transfer pair, nothing more.
package bank

// Account types.
const (
	TypeChecking = "checking"
	TypeSavings  = "savings"
)

// Account is one customer account. Balance is in whole currency units.
type Account struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"created_at"`
}

// Transaction kinds.
const (
	TxnDeposit    = "deposit"
	TxnWithdrawal = "withdrawal"
)

// Transaction is one ledger movement on a single account.
type Transaction struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Timestamp   string  `json:"timestamp"`
}
