// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package conversation

import (
	"database/sql"
	"fmt"
	"os"

	// Registers the "sqlite3" driver (SQLCipher with cgo, modernc without).
	_ "github.com/teradata-labs/weft/internal/sqlitedriver"
)

// DBConfig configures the conversation database.
type DBConfig struct {
	// Path is the SQLite database file path.
	Path string

	// EncryptDatabase enables SQLCipher encryption at rest. Requires
	// the cgo sqlcipher driver build.
	EncryptDatabase bool

	// EncryptionKey is the database key; falls back to WEFT_DB_KEY.
	EncryptionKey string
}

// OpenDB opens the SQLite database with optional encryption support.
//
// When encryption is enabled, the key pragma must be the first
// statement after open; a wrong key surfaces as a ping failure.
func OpenDB(config DBConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.EncryptDatabase {
		key := config.EncryptionKey
		if key == "" {
			key = os.Getenv("WEFT_DB_KEY")
		}
		if key == "" {
			_ = db.Close()
			return nil, fmt.Errorf("encryption enabled but no key provided (set EncryptionKey or WEFT_DB_KEY env var)")
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", key)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set encryption key: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if config.EncryptDatabase {
			return nil, fmt.Errorf("failed to verify encryption key (wrong key or corrupted database): %w", err)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked during appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}
