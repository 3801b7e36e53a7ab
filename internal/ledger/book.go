package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/joescharf/issuedao/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Book is a local SQLite account book standing in for an external ledger.
// Amounts are stored as decimal text so arbitrarily large balances survive.
type Book struct {
	db *sql.DB
}

// OpenBook opens (or creates) the account book at dbPath.
func OpenBook(dbPath string) (*Book, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Book{db: db}, nil
}

// Migrate applies the embedded ledger migrations not yet recorded in
// schema_migrations, in file name order.
func (b *Book) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create ledger migrations table: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list ledger migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		file := path.Base(name)
		var applied int
		if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", file).Scan(&applied); err != nil {
			return fmt.Errorf("check ledger migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read ledger migration %s: %w", file, err)
		}
		err = b.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", file)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply ledger migration %s: %w", file, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (b *Book) Close() error {
	return b.db.Close()
}

// Escrow implements Provider.
func (b *Book) Escrow(account models.Principal) Ledger {
	return &bookEscrow{book: b, account: account}
}

// Balance returns the balance of account; unknown accounts hold zero.
func (b *Book) Balance(ctx context.Context, account models.Principal) (models.Balance, error) {
	return balanceOf(ctx, b.db, account)
}

// Mint credits account with amount out of thin air. Local development only.
func (b *Book) Mint(ctx context.Context, account models.Principal, amount models.Balance) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if err := credit(ctx, tx, account, amount); err != nil {
			return err
		}
		return record(ctx, tx, "", account, amount, KindMint)
	})
}

// Transfer moves amount from one account to another.
func (b *Book) Transfer(ctx context.Context, from, to models.Principal, amount models.Balance, kind TransferKind) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		current, err := balanceOf(ctx, tx, from)
		if err != nil {
			return err
		}
		remaining, err := current.Sub(amount)
		if err != nil {
			return fmt.Errorf("%s has %s, needs %s: %w", from, current, amount, ErrInsufficientFunds)
		}
		if err := setBalance(ctx, tx, from, remaining); err != nil {
			return err
		}
		if err := credit(ctx, tx, to, amount); err != nil {
			return err
		}
		return record(ctx, tx, from, to, amount, kind)
	})
}

// Transfers lists the most recent transfers touching account, newest first.
// An empty account lists all transfers.
func (b *Book) Transfers(ctx context.Context, account models.Principal, limit int) ([]*Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if account != "" {
		rows, err = b.db.QueryContext(ctx,
			`SELECT id, from_account, to_account, amount, kind, created_at FROM transfers
			WHERE from_account = ? OR to_account = ? ORDER BY id DESC LIMIT ?`, string(account), string(account), limit)
	} else {
		rows, err = b.db.QueryContext(ctx,
			`SELECT id, from_account, to_account, amount, kind, created_at FROM transfers
			ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Transfer
	for rows.Next() {
		t := &Transfer{}
		var from, to, amount, kind string
		if err := rows.Scan(&t.ID, &from, &to, &amount, &kind, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.From = models.Principal(from)
		t.To = models.Principal(to)
		t.Kind = TransferKind(kind)
		if t.Amount, err = models.ParseBalance(amount); err != nil {
			return nil, fmt.Errorf("transfer %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (b *Book) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balanceOf(ctx context.Context, q queryer, account models.Principal) (models.Balance, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE account = ?", string(account)).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.Balance{}, nil
	}
	if err != nil {
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return models.ParseBalance(raw)
}

func setBalance(ctx context.Context, tx *sql.Tx, account models.Principal, v models.Balance) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (account, balance) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET balance = excluded.balance`, string(account), v.String())
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func credit(ctx context.Context, tx *sql.Tx, account models.Principal, amount models.Balance) error {
	current, err := balanceOf(ctx, tx, account)
	if err != nil {
		return err
	}
	return setBalance(ctx, tx, account, current.Add(amount))
}

func record(ctx context.Context, tx *sql.Tx, from, to models.Principal, amount models.Balance, kind TransferKind) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (from_account, to_account, amount, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(from), string(to), amount.String(), string(kind), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

type bookEscrow struct {
	book    *Book
	account models.Principal
}

func (e *bookEscrow) Balance(ctx context.Context, p models.Principal) (models.Balance, error) {
	return e.book.Balance(ctx, p)
}

func (e *bookEscrow) Held(ctx context.Context) (models.Balance, error) {
	return e.book.Balance(ctx, e.account)
}

func (e *bookEscrow) Deposit(ctx context.Context, from models.Principal, amount models.Balance) error {
	return e.book.Transfer(ctx, from, e.account, amount, KindDeposit)
}

func (e *bookEscrow) Pay(ctx context.Context, to models.Principal, amount models.Balance) error {
	return e.book.Transfer(ctx, e.account, to, amount, KindPayout)
}
