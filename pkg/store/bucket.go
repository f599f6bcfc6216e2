package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eteran/s3mock/pkg/keylock"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/storage"
)

// BucketStore owns bucket existence and lifecycle.
type BucketStore struct {
	db     *sql.DB
	engine storage.StorageEngine
	locks  *keylock.Locks
	now    func() time.Time
}

// NewBucketStore returns a BucketStore over db and engine. Locks must be the
// registry shared with the ObjectStore so bucket deletion and object puts
// exclude each other.
func NewBucketStore(db *sql.DB, engine storage.StorageEngine, locks *keylock.Locks) *BucketStore {
	return &BucketStore{
		db:     db,
		engine: engine,
		locks:  locks,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateBucket creates the bucket if it does not exist and returns it.
// Creating an existing bucket is not an error here.
func (s *BucketStore) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	unlock, err := s.locks.Lock(ctx, keylock.BucketKey(name))
	if err != nil {
		return Bucket{}, err
	}
	defer unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO buckets(name, created_at) VALUES(?, ?)`,
		name, s.now(),
	); err != nil {
		return Bucket{}, internal("insert bucket", err)
	}

	return s.GetBucket(ctx, name)
}

// DoesBucketExist reports whether the named bucket exists.
func (s *BucketStore) DoesBucketExist(ctx context.Context, name string) (bool, error) {
	return bucketExists(ctx, s.db, name)
}

// GetBucket returns the named bucket or NoSuchBucket.
func (s *BucketStore) GetBucket(ctx context.Context, name string) (Bucket, error) {
	var created time.Time
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM buckets WHERE name = ?`, name).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return Bucket{}, s3err.ErrNoSuchBucket
	}
	if err != nil {
		return Bucket{}, internal("select bucket", err)
	}

	return Bucket{Name: name, CreationDate: created, RootPath: s.engine.BucketPath(name)}, nil
}

// ListBuckets returns every bucket ordered by name.
func (s *BucketStore) ListBuckets(ctx context.Context) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at FROM buckets ORDER BY name`)
	if err != nil {
		return nil, internal("list buckets", err)
	}
	defer rows.Close()

	buckets := make([]Bucket, 0)
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Name, &b.CreationDate); err != nil {
			return nil, internal("scan bucket", err)
		}
		b.RootPath = s.engine.BucketPath(b.Name)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list buckets", err)
	}

	return buckets, nil
}

// DeleteBucket deletes an empty bucket along with any abandoned multipart
// uploads. It returns false when the bucket does not exist and
// BucketNotEmpty while it still holds objects. The check and the delete run
// inside the bucket's exclusive section, so a concurrent put either lands
// first (and the delete fails) or finds the bucket gone.
func (s *BucketStore) DeleteBucket(ctx context.Context, name string) (bool, error) {
	unlock, err := s.locks.Lock(ctx, keylock.BucketKey(name))
	if err != nil {
		return false, err
	}
	defer unlock()

	var uploadIDs []string
	deleted := false

	err = withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var exists, objects int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return nil
		}

		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE bucket = ?`, name).Scan(&objects); err != nil {
			return err
		}
		if objects > 0 {
			return s3err.ErrBucketNotEmpty
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM uploads WHERE bucket = ?`, name)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			uploadIDs = append(uploadIDs, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, internal("delete bucket", err)
	}
	if !deleted {
		return false, nil
	}

	for _, id := range uploadIDs {
		if err := s.engine.DeleteUpload(id); err != nil {
			return true, internal("delete upload payloads", err)
		}
	}
	if err := s.engine.DeleteBucket(name); err != nil {
		return true, internal("delete bucket payloads", err)
	}

	return true, nil
}

// bucketExists checks whether a bucket with the given name exists.
func bucketExists(ctx context.Context, db *sql.DB, bucket string) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, bucket).Scan(&count); err != nil {
		return false, internal("bucket lookup", err)
	}

	return count > 0, nil
}
