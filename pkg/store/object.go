package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"time"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/keylock"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/storage"
)

// PutObjectInput describes one object write.
type PutObjectInput struct {
	Bucket          string
	Key             string
	ContentType     string
	ContentEncoding string
	Body            io.Reader

	// Multipart marks a body assembled from multipart parts. ETag must then
	// carry the precomputed multipart ETag, which is stored instead of the
	// digest of the body.
	Multipart bool
	ETag      string

	UserMetadata map[string]string
	KMSKeyID     string

	// ContentMD5 is the optional base64 Content-MD5 the client sent.
	ContentMD5 string
}

// ObjectStore owns object metadata and payloads, and the part registry of
// in-progress multipart uploads.
type ObjectStore struct {
	db       *sql.DB
	engine   storage.StorageEngine
	locks    *keylock.Locks
	digester *digest.Digester
	owner    Owner
	now      func() time.Time
}

// NewObjectStore returns an ObjectStore. Locks must be shared with the
// BucketStore.
func NewObjectStore(db *sql.DB, engine storage.StorageEngine, locks *keylock.Locks, digester *digest.Digester, owner Owner) *ObjectStore {
	return &ObjectStore{
		db:       db,
		engine:   engine,
		locks:    locks,
		digester: digester,
		owner:    owner,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Owner returns the identity attached to stored objects.
func (s *ObjectStore) Owner() Owner {
	return s.owner
}

// spool streams body into a temporary payload file while digesting it and
// verifies contentMD5. It returns the temporary path, the SHA-256 hex of the
// content, which addresses the payload in storage, and the MD5 sum used for
// ETags. On error the temporary file is already gone.
func (s *ObjectStore) spool(body io.Reader, contentMD5 string) (string, string, digest.Sum, error) {
	tmp, err := s.engine.CreateTemp("upload-*")
	if err != nil {
		return "", "", digest.Sum{}, internal("create temp file", err)
	}
	tempPath := tmp.Name()

	dr := s.digester.NewReader(body)
	defer dr.Close()

	h := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(tmp, h), dr)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tempPath)
		return "", "", digest.Sum{}, internal("write temp file", err)
	}

	sum := dr.Sum()
	if err := sum.Verify(contentMD5); err != nil {
		_ = os.Remove(tempPath)
		return "", "", digest.Sum{}, err
	}

	return tempPath, hex.EncodeToString(h.Sum(nil)), sum, nil
}

// PutObject streams the body to storage, digesting it on the way, and
// commits the object. A Content-MD5 that does not decode fails with
// InvalidDigest and one that does not match with BadDigest; in both cases
// nothing becomes visible. Writing to a missing bucket fails with
// NoSuchBucket.
func (s *ObjectStore) PutObject(ctx context.Context, in PutObjectInput) (StoredObject, error) {
	if exists, err := bucketExists(ctx, s.db, in.Bucket); err != nil {
		return StoredObject{}, err
	} else if !exists {
		return StoredObject{}, s3err.ErrNoSuchBucket
	}

	tempPath, hash, sum, err := s.spool(in.Body, in.ContentMD5)
	if err != nil {
		return StoredObject{}, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	etag := sum.Hex
	if in.Multipart {
		if in.ETag == "" {
			return StoredObject{}, s3err.Internalf("multipart object %s/%s without etag", in.Bucket, in.Key)
		}
		etag = digest.TrimETag(in.ETag)
	}

	meta, err := encodeMetadata(in.UserMetadata)
	if err != nil {
		return StoredObject{}, internal("encode metadata", err)
	}

	unlock, err := s.locks.Lock(ctx, keylock.BucketKey(in.Bucket))
	if err != nil {
		return StoredObject{}, err
	}
	defer unlock()

	// The bucket may have been deleted while the body was streaming.
	if exists, err := bucketExists(ctx, s.db, in.Bucket); err != nil {
		return StoredObject{}, err
	} else if !exists {
		return StoredObject{}, s3err.ErrNoSuchBucket
	}

	previous, err := s.lookupHash(ctx, in.Bucket, in.Key)
	if err != nil {
		return StoredObject{}, err
	}

	if err := s.engine.PutObjectFromFile(in.Bucket, hash, tempPath, sum.Size); err != nil {
		return StoredObject{}, internal("store payload", err)
	}
	committed = true

	now := s.now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO objects(bucket, key, hash, etag, size, content_type, content_encoding, user_metadata, kms_key_id, storage_class, created_at, modified_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET
		 	hash=excluded.hash,
		 	etag=excluded.etag,
		 	size=excluded.size,
		 	content_type=excluded.content_type,
		 	content_encoding=excluded.content_encoding,
		 	user_metadata=excluded.user_metadata,
		 	kms_key_id=excluded.kms_key_id,
		 	modified_at=excluded.modified_at`,
		in.Bucket, in.Key, hash, etag, sum.Size,
		nullString(in.ContentType), nullString(in.ContentEncoding), meta, nullString(in.KMSKeyID),
		DefaultStorageClass, now, now,
	); err != nil {
		return StoredObject{}, internal("upsert object", err)
	}

	if previous != "" && previous != hash {
		if err := s.collectPayload(ctx, in.Bucket, previous); err != nil {
			return StoredObject{}, err
		}
	}

	return StoredObject{
		Bucket:          in.Bucket,
		Key:             in.Key,
		Size:            sum.Size,
		ETag:            etag,
		LastModified:    now,
		ContentType:     in.ContentType,
		ContentEncoding: in.ContentEncoding,
		StorageClass:    DefaultStorageClass,
		Owner:           s.owner,
		UserMetadata:    in.UserMetadata,
		KMSKeyID:        in.KMSKeyID,
		Hash:            hash,
	}, nil
}

const objectColumns = `key, hash, etag, size, content_type, content_encoding, user_metadata, kms_key_id, storage_class, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ObjectStore) scanObject(bucket string, row rowScanner) (StoredObject, error) {
	var (
		obj             StoredObject
		contentType     sql.NullString
		contentEncoding sql.NullString
		meta            sql.NullString
		kmsKeyID        sql.NullString
	)

	if err := row.Scan(&obj.Key, &obj.Hash, &obj.ETag, &obj.Size, &contentType, &contentEncoding, &meta, &kmsKeyID, &obj.StorageClass, &obj.LastModified); err != nil {
		return StoredObject{}, err
	}

	userMeta, err := decodeMetadata(meta)
	if err != nil {
		return StoredObject{}, err
	}

	obj.Bucket = bucket
	obj.ContentType = contentType.String
	obj.ContentEncoding = contentEncoding.String
	obj.UserMetadata = userMeta
	obj.KMSKeyID = kmsKeyID.String
	obj.Owner = s.owner
	return obj, nil
}

// GetS3Objects returns every object in bucket whose key starts with prefix,
// ordered by key bytes. An empty prefix selects all objects.
func (s *ObjectStore) GetS3Objects(ctx context.Context, bucket string, prefix string) ([]StoredObject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		 WHERE bucket = ? AND substr(key, 1, length(?)) = ?
		 ORDER BY key`,
		bucket, prefix, prefix,
	)
	if err != nil {
		return nil, internal("list objects", err)
	}
	defer rows.Close()

	objects := make([]StoredObject, 0)
	for rows.Next() {
		obj, err := s.scanObject(bucket, rows)
		if err != nil {
			return nil, internal("scan object", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list objects", err)
	}

	return objects, nil
}

// HeadObject returns an object's metadata or NoSuchKey.
func (s *ObjectStore) HeadObject(ctx context.Context, bucket string, key string) (StoredObject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE bucket = ? AND key = ?`,
		bucket, key,
	)

	obj, err := s.scanObject(bucket, row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredObject{}, s3err.ErrNoSuchKey
	}
	if err != nil {
		return StoredObject{}, internal("select object", err)
	}
	return obj, nil
}

// GetObject returns an object's metadata and an open reader over its
// payload. The caller closes the reader.
func (s *ObjectStore) GetObject(ctx context.Context, bucket string, key string) (StoredObject, io.ReadSeekCloser, error) {
	obj, err := s.HeadObject(ctx, bucket, key)
	if err != nil {
		return StoredObject{}, nil, err
	}

	rc, err := s.engine.OpenObject(bucket, obj.Hash)
	if errors.Is(err, os.ErrNotExist) {
		// Deleted between the metadata lookup and the open.
		return StoredObject{}, nil, s3err.ErrNoSuchKey
	}
	if err != nil {
		return StoredObject{}, nil, internal("open payload", err)
	}
	return obj, rc, nil
}

// DeleteObject removes an object. Deleting a missing key is not an error.
func (s *ObjectStore) DeleteObject(ctx context.Context, bucket string, key string) error {
	unlock, err := s.locks.Lock(ctx, keylock.BucketKey(bucket))
	if err != nil {
		return err
	}
	defer unlock()

	hash, err := s.lookupHash(ctx, bucket, key)
	if err != nil || hash == "" {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key); err != nil {
		return internal("delete object", err)
	}

	return s.collectPayload(ctx, bucket, hash)
}

func (s *ObjectStore) lookupHash(ctx context.Context, bucket string, key string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM objects WHERE bucket = ? AND key = ?`, bucket, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", internal("select object hash", err)
	}
	return hash, nil
}

// collectPayload removes a bucket's payload once no key references it.
// Callers hold the bucket's exclusive section.
func (s *ObjectStore) collectPayload(ctx context.Context, bucket string, hash string) error {
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE bucket = ? AND hash = ?`, bucket, hash,
	).Scan(&refs); err != nil {
		return internal("count payload references", err)
	}
	if refs > 0 {
		return nil
	}

	if err := s.engine.DeleteObject(bucket, hash); err != nil {
		return internal("delete payload", err)
	}
	return nil
}
