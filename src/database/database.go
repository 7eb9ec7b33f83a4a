package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/chainfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		security_family TEXT NOT NULL,
		raw_type TEXT NOT NULL,
		signed_quantity REAL NOT NULL,
		amount REAL NOT NULL,
		strike REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chains (
		chain_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		security_family TEXT NOT NULL,
		chain_start_date TEXT NOT NULL,
		chain_end_date TEXT,
		total_realized_amount REAL NOT NULL,
		is_closed BOOLEAN NOT NULL,
		transaction_count INTEGER NOT NULL,
		run_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chain_transactions (
		chain_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (chain_id, transaction_id),
		FOREIGN KEY(chain_id) REFERENCES chains(chain_id)
	);

	CREATE TABLE IF NOT EXISTS chain_statistics (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		computed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_symbol_date ON transactions(symbol, date, id);
	CREATE INDEX IF NOT EXISTS idx_chains_symbol ON chains(symbol);
	CREATE INDEX IF NOT EXISTS idx_chain_transactions_tx ON chain_transactions(transaction_id);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateTransactionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'transactions' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'transactions' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["strike"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN strike REAL")
		if err != nil {
			logger.L.Error("Error adding 'strike' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'strike' column to 'transactions' table")
		}
	}
}
