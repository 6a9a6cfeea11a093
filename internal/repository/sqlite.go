package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens the local store and creates the syncable tables.
//
// Foreign keys are enabled through the DSN so every pooled connection
// enforces them, and the pool is capped at one connection because SQLite
// allows a single writer.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'expense',
		color TEXT,
		icon TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_categories_sync_status ON categories(sync_status);

	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		name TEXT NOT NULL,
		location TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_stores_sync_status ON stores(sync_status);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		name TEXT NOT NULL,
		category_id TEXT REFERENCES categories(id),
		barcode TEXT,
		unit TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_products_sync_status ON products(sync_status);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		amount REAL NOT NULL DEFAULT 0,
		kind TEXT NOT NULL DEFAULT 'expense',
		description TEXT,
		category_id TEXT REFERENCES categories(id),
		store_id TEXT REFERENCES stores(id),
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_sync_status ON transactions(sync_status);
	CREATE INDEX IF NOT EXISTS idx_transactions_occurred_at ON transactions(occurred_at);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		product_id TEXT NOT NULL REFERENCES products(id),
		store_id TEXT NOT NULL REFERENCES stores(id),
		price REAL NOT NULL DEFAULT 0,
		currency TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listings_sync_status ON listings(sync_status);

	CREATE TABLE IF NOT EXISTS listing_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		listing_id TEXT NOT NULL REFERENCES listings(id),
		price REAL NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		sync_status TEXT CHECK (sync_status IN ('pending', 'synced')),
		deleted_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listing_history_sync_status ON listing_history(sync_status);

	-- Small durable scalars (device id, last sync watermark)
	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}
