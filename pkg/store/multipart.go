package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"time"

	"github.com/eteran/s3mock/pkg/keylock"
	"github.com/eteran/s3mock/pkg/s3err"
)

// UploadState is the lifecycle state of a multipart upload. Completed and
// aborted uploads are removed rather than kept in a terminal state.
type UploadState string

const (
	UploadInitiated      UploadState = "initiated"
	UploadPartsUploading UploadState = "uploading"
)

// MultipartUpload is an in-progress multipart upload.
type MultipartUpload struct {
	UploadID        string
	Bucket          string
	Key             string
	Initiated       time.Time
	State           UploadState
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
	KMSKeyID        string
	Owner           Owner
}

// Part is one uploaded part of a multipart upload.
type Part struct {
	PartNumber   int
	Size         int64
	ETag         string
	LastModified time.Time
}

// CreateMultipartUpload registers a new upload. The bucket must exist. The
// existence check and the insert hold the bucket's exclusive section.
func (s *ObjectStore) CreateMultipartUpload(ctx context.Context, upload MultipartUpload) (MultipartUpload, error) {
	unlock, err := s.locks.Lock(ctx, keylock.BucketKey(upload.Bucket))
	if err != nil {
		return MultipartUpload{}, err
	}
	defer unlock()

	if exists, err := bucketExists(ctx, s.db, upload.Bucket); err != nil {
		return MultipartUpload{}, err
	} else if !exists {
		return MultipartUpload{}, s3err.ErrNoSuchBucket
	}

	meta, err := encodeMetadata(upload.UserMetadata)
	if err != nil {
		return MultipartUpload{}, internal("encode metadata", err)
	}

	upload.Initiated = s.now()
	upload.State = UploadInitiated
	upload.Owner = s.owner

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads(id, bucket, key, state, content_type, content_encoding, user_metadata, kms_key_id, initiated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.UploadID, upload.Bucket, upload.Key, string(upload.State),
		nullString(upload.ContentType), nullString(upload.ContentEncoding), meta, nullString(upload.KMSKeyID),
		upload.Initiated,
	); err != nil {
		return MultipartUpload{}, internal("insert upload", err)
	}

	return upload, nil
}

const uploadColumns = `id, bucket, key, state, content_type, content_encoding, user_metadata, kms_key_id, initiated_at`

func (s *ObjectStore) scanUpload(row rowScanner) (MultipartUpload, error) {
	var (
		u               MultipartUpload
		state           string
		contentType     sql.NullString
		contentEncoding sql.NullString
		meta            sql.NullString
		kmsKeyID        sql.NullString
	)

	if err := row.Scan(&u.UploadID, &u.Bucket, &u.Key, &state, &contentType, &contentEncoding, &meta, &kmsKeyID, &u.Initiated); err != nil {
		return MultipartUpload{}, err
	}

	userMeta, err := decodeMetadata(meta)
	if err != nil {
		return MultipartUpload{}, err
	}

	u.State = UploadState(state)
	u.ContentType = contentType.String
	u.ContentEncoding = contentEncoding.String
	u.UserMetadata = userMeta
	u.KMSKeyID = kmsKeyID.String
	u.Owner = s.owner
	return u, nil
}

// GetMultipartUpload returns the upload registered for bucket and key under
// uploadID, or NoSuchUpload.
func (s *ObjectStore) GetMultipartUpload(ctx context.Context, bucket string, key string, uploadID string) (MultipartUpload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = ? AND bucket = ? AND key = ?`,
		uploadID, bucket, key,
	)

	u, err := s.scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MultipartUpload{}, s3err.ErrNoSuchUpload
	}
	if err != nil {
		return MultipartUpload{}, internal("select upload", err)
	}
	return u, nil
}

// ListMultipartUploads returns the in-progress uploads of bucket whose key
// starts with prefix, ordered by key and then initiation time.
func (s *ObjectStore) ListMultipartUploads(ctx context.Context, bucket string, prefix string) ([]MultipartUpload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads
		 WHERE bucket = ? AND substr(key, 1, length(?)) = ?
		 ORDER BY key, initiated_at, id`,
		bucket, prefix, prefix,
	)
	if err != nil {
		return nil, internal("list uploads", err)
	}
	defer rows.Close()

	uploads := make([]MultipartUpload, 0)
	for rows.Next() {
		u, err := s.scanUpload(rows)
		if err != nil {
			return nil, internal("scan upload", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list uploads", err)
	}
	return uploads, nil
}

// PutPart stores one part of an upload, replacing an earlier part with the
// same number. The part's ETag is the MD5 of its content. Callers hold the
// upload's exclusive section.
func (s *ObjectStore) PutPart(ctx context.Context, uploadID string, partNumber int, body io.Reader, contentMD5 string) (Part, error) {
	tempPath, _, sum, err := s.spool(body, contentMD5)
	if err != nil {
		return Part{}, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	part := Part{
		PartNumber:   partNumber,
		Size:         sum.Size,
		ETag:         sum.Hex,
		LastModified: s.now(),
	}

	err = withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE uploads SET state = ? WHERE id = ?`, string(UploadPartsUploading), uploadID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return s3err.ErrNoSuchUpload
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO parts(upload_id, part_number, etag, size, modified_at)
			 VALUES(?, ?, ?, ?, ?)
			 ON CONFLICT(upload_id, part_number) DO UPDATE SET
			 	etag=excluded.etag,
			 	size=excluded.size,
			 	modified_at=excluded.modified_at`,
			uploadID, part.PartNumber, part.ETag, part.Size, part.LastModified,
		)
		return err
	})
	if err != nil {
		return Part{}, internal("store part", err)
	}

	// The payload moves only once the row is committed. If it cannot, the
	// row goes too so no part is listed without its bytes.
	if err := s.engine.PutPartFromFile(uploadID, partNumber, tempPath); err != nil {
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM parts WHERE upload_id = ? AND part_number = ?`, uploadID, partNumber); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return Part{}, internal("store part payload", err)
	}
	committed = true

	return part, nil
}

// GetMultipartUploadParts returns the stored parts of the upload in part
// number order. An unknown upload id, or one registered for a different
// bucket or key, yields an empty slice.
func (s *ObjectStore) GetMultipartUploadParts(ctx context.Context, bucket string, key string, uploadID string) ([]Part, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.part_number, p.size, p.etag, p.modified_at
		 FROM parts p JOIN uploads u ON u.id = p.upload_id
		 WHERE u.id = ? AND u.bucket = ? AND u.key = ?
		 ORDER BY p.part_number`,
		uploadID, bucket, key,
	)
	if err != nil {
		return nil, internal("list parts", err)
	}
	defer rows.Close()

	parts := make([]Part, 0)
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.PartNumber, &p.Size, &p.ETag, &p.LastModified); err != nil {
			return nil, internal("scan part", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list parts", err)
	}
	return parts, nil
}

// OpenParts returns a reader over the concatenated payloads of the given
// parts, in the order given. Part files are opened one at a time as the
// reader advances.
func (s *ObjectStore) OpenParts(uploadID string, partNumbers []int) io.ReadCloser {
	return &partsReader{store: s, uploadID: uploadID, remaining: partNumbers}
}

type partsReader struct {
	store     *ObjectStore
	uploadID  string
	remaining []int
	current   io.ReadCloser
}

func (r *partsReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if len(r.remaining) == 0 {
				return 0, io.EOF
			}
			rc, err := r.store.engine.OpenPart(r.uploadID, r.remaining[0])
			if err != nil {
				return 0, err
			}
			r.current = rc
			r.remaining = r.remaining[1:]
		}

		n, err := r.current.Read(p)
		if errors.Is(err, io.EOF) {
			closeErr := r.current.Close()
			r.current = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partsReader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// DeleteMultipartUpload forgets an upload and removes its part payloads.
// Deleting an unknown upload is not an error.
func (s *ObjectStore) DeleteMultipartUpload(ctx context.Context, uploadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, uploadID); err != nil {
		return internal("delete upload", err)
	}
	if err := s.engine.DeleteUpload(uploadID); err != nil {
		return internal("delete upload payloads", err)
	}
	return nil
}
