/*
migrate.go - Base schema and the ordered, named migration log

Every schema change after the base schema is a named migration. Each one
is applied at most once, recorded in schema_migrations, and logged when
applied. A failing migration aborts startup with the migration's name in
the error; nothing is silently skipped.
*/
package sqlite

import (
	"fmt"
	"log"
	"time"
)

const baseSchema = `
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		purchase_price REAL NOT NULL DEFAULT 0,
		selling_price REAL NOT NULL DEFAULT 0,
		stock REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_products_category
		ON products(category_id);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity REAL NOT NULL,
		date TEXT NOT NULL,
		sale_type TEXT NOT NULL,
		delivery_id INTEGER REFERENCES deliveries(id)
	);

	-- Undo-last-sale hot path
	CREATE INDEX IF NOT EXISTS idx_sales_product_type
		ON sales(product_id, sale_type, id DESC);
	CREATE INDEX IF NOT EXISTS idx_sales_delivery
		ON sales(delivery_id) WHERE delivery_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_sales_date
		ON sales(date);

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		registration_date TEXT NOT NULL,
		bonus_points REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS bonus_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		transaction_type TEXT NOT NULL,
		amount REAL NOT NULL,
		transaction_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bonus_customer
		ON bonus_transactions(customer_id);
	CREATE INDEX IF NOT EXISTS idx_bonus_type_date
		ON bonus_transactions(transaction_type, transaction_date);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);
`

// migration is one named, ordered schema change.
type migration struct {
	name       string
	statements []string
}

// migrations run in order after the base schema. Append only; never edit
// or reorder an entry that has shipped.
var migrations = []migration{
	{
		name: "001-sales-discount",
		statements: []string{
			`ALTER TABLE sales ADD COLUMN discount REAL NOT NULL DEFAULT 0`,
		},
	},
	{
		name: "002-sales-batch-id",
		statements: []string{
			`ALTER TABLE sales ADD COLUMN batch_id TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX IF NOT EXISTS idx_sales_batch ON sales(batch_id) WHERE batch_id <> ''`,
		},
	},
	{
		name: "003-bonus-batch-keys",
		statements: []string{
			`ALTER TABLE bonus_transactions ADD COLUMN delivery_id INTEGER`,
			`ALTER TABLE bonus_transactions ADD COLUMN batch_id TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_bonus_delivery ON bonus_transactions(delivery_id) WHERE delivery_id IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_bonus_batch ON bonus_transactions(batch_id) WHERE batch_id IS NOT NULL`,
		},
	},
	{
		name: "004-bonus-purchase-amount",
		statements: []string{
			`ALTER TABLE bonus_transactions ADD COLUMN purchase_amount REAL`,
		},
	},
	{
		name: "005-categories-unique-name",
		statements: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(name COLLATE NOCASE)`,
		},
	},
}

// migrate applies the base schema and every pending migration.
func (s *Store) migrate() error {
	if _, err := s.sqldb.Exec(baseSchema); err != nil {
		return fmt.Errorf("base schema: %w", err)
	}

	for _, m := range migrations {
		var applied int
		err := s.sqldb.QueryRow(
			`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, m.name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("migration %s: read log: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := s.sqldb.Begin()
		if err != nil {
			return fmt.Errorf("migration %s: begin: %w", m.name, err)
		}
		if err := func() error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
				m.name, fmtTime(time.Now()))
			return err
		}(); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %s: commit: %w", m.name, err)
		}
		log.Printf("migration applied: %s", m.name)
	}
	return nil
}
