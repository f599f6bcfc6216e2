// Package store keeps bucket, object and multipart metadata in SQLite and
// object payloads in a storage.StorageEngine.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/eteran/s3mock/pkg/s3err"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// DefaultStorageClass is reported for every stored object.
const DefaultStorageClass = "STANDARD"

// Owner is the single identity every bucket and object belongs to.
type Owner struct {
	ID          string
	DisplayName string
}

// Bucket is a named container of objects.
type Bucket struct {
	Name         string
	CreationDate time.Time

	// RootPath locates the bucket's payloads. It is opaque to callers.
	RootPath string
}

// StoredObject is the metadata of one object.
type StoredObject struct {
	Bucket          string
	Key             string
	Size            int64
	ETag            string
	LastModified    time.Time
	ContentType     string
	ContentEncoding string
	StorageClass    string
	Owner           Owner
	UserMetadata    map[string]string
	KMSKeyID        string

	// Hash is the SHA-256 of the content and addresses the payload in the
	// storage engine. ETag stays the MD5.
	Hash string
}

// GetKey returns the object key.
func (o StoredObject) GetKey() string {
	return o.Key
}

// initSchema initializes the metadata database schema by applying all
// SQL files in the embedded migrations in lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		if _, execError := db.ExecContext(ctx, string(content)); execError != nil {
			return fmt.Errorf("migration %s: %w", path, execError)
		}
		return nil
	})
}

// Open opens (creating if needed) the metadata database in dataDir and
// applies the schema.
func Open(ctx context.Context, dataDir string) (*sql.DB, error) {
	if dataDir == "" {
		return nil, errors.New("DataDir must not be empty")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dataDir, "metadata.sqlite") +
		"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// internal wraps a storage failure, leaving typed S3 errors untouched.
func internal(op string, err error) error {
	var e *s3err.Error
	if errors.As(err, &e) {
		return err
	}
	return s3err.Internal(fmt.Errorf("%s: %w", op, err))
}

func encodeMetadata(meta map[string]string) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeMetadata(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
