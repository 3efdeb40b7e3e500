package bank

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/devchilll/scope/internal/iam"
)

var (
	// ErrAccountNotFound covers lookups of unknown account ids.
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotAccountOwner is returned when a transfer touches an account the
	// caller does not own. No role bypasses this.
	ErrNotAccountOwner = errors.New("account not owned by caller")
	// ErrInvalidAmount rejects zero and negative transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds rejects transfers exceeding the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	balance REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	description TEXT,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
`

// Store is the SQLite-backed account and transaction ledger.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the banking database.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening bank db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount inserts an account with an opening balance.
func (s *Store) CreateAccount(userID, accountType string, opening float64) (Account, error) {
	a := Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      accountType,
		Balance:   opening,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := s.db.Exec(
		`INSERT INTO accounts (id, user_id, type, balance, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Type, a.Balance, a.CreatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return a, nil
}

// AccountsForUser lists a user's accounts. Caller-side visibility rules
// decide whose user id may be passed here.
func (s *Store) AccountsForUser(userID string) ([]Account, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, type, balance, created_at FROM accounts WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Balance, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Account fetches one account by id.
func (s *Store) Account(id string) (Account, error) {
	var a Account
	err := s.db.QueryRow(
		`SELECT id, user_id, type, balance, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.Type, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return a, nil
}

// Transactions lists an account's movements, newest first.
func (s *Store) Transactions(accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, account_id, type, amount, description, timestamp FROM transactions
		 WHERE account_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &desc, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Description = desc.String
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Transfer moves funds between two accounts the principal owns. Ownership
// is checked for both sides regardless of role; administrative visibility
// never extends to moving other people's money. The balance updates and the
// paired withdrawal/deposit rows commit in one SQL transaction.
func (s *Store) Transfer(principal iam.Principal, fromID, toID string, amount float64, description string) error {
	if amount <= 0 || amount != amount {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	from, err := s.Account(fromID)
	if err != nil {
		return err
	}
	to, err := s.Account(toID)
	if err != nil {
		return err
	}
	if from.UserID != principal.ID {
		return fmt.Errorf("%w: %s", ErrNotAccountOwner, fromID)
	}
	if to.UserID != principal.ID {
		return fmt.Errorf("%w: %s", ErrNotAccountOwner, toID)
	}
	if from.Balance < amount {
		return fmt.Errorf("%w: balance %.2f, requested %.2f", ErrInsufficientFunds, from.Balance, amount)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	// Guard the debit with the balance condition again inside the
	// transaction, so concurrent transfers cannot overdraw.
	res, err := tx.Exec(
		`UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?`,
		amount, fromID, amount,
	)
	if err != nil {
		return fmt.Errorf("debiting source: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: balance changed concurrently", ErrInsufficientFunds)
	}

	if _, err := tx.Exec(
		`UPDATE accounts SET balance = balance + ? WHERE id = ?`, amount, toID,
	); err != nil {
		return fmt.Errorf("crediting destination: %w", err)
	}

	for _, row := range []Transaction{
		{ID: uuid.NewString(), AccountID: fromID, Type: TxnWithdrawal, Amount: amount, Description: description, Timestamp: now},
		{ID: uuid.NewString(), AccountID: toID, Type: TxnDeposit, Amount: amount, Description: description, Timestamp: now},
	} {
		if _, err := tx.Exec(
			`INSERT INTO transactions (id, account_id, type, amount, description, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
			row.ID, row.AccountID, row.Type, row.Amount, row.Description, row.Timestamp,
		); err != nil {
			return fmt.Errorf("recording %s: %w", row.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transfer: %w", err)
	}

	s.logger.Info("transfer complete", "user", principal.ID, "amount", amount)
	return nil
}
