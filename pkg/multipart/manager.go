// Package multipart tracks multipart uploads and validates and assembles
// their completion.
package multipart

import (
	"context"
	"io"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/keylock"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/store"

	"github.com/google/uuid"
)

const (
	// MinPartSize is the smallest size allowed for every part but the last.
	MinPartSize = 5 * 1024 * 1024

	// MaxPartNumber is the largest part number a client may upload.
	MaxPartNumber = 10000
)

// CompletedPart is one entry of a complete request.
type CompletedPart struct {
	PartNumber int

	// ETag is optional; when set it must match the stored part.
	ETag string
}

// InitiateInput describes a new upload. Its metadata is applied to the
// assembled object.
type InitiateInput struct {
	Bucket          string
	Key             string
	ContentType     string
	ContentEncoding string
	UserMetadata    map[string]string
	KMSKeyID        string
}

// Manager runs the multipart upload state machine:
//
//	Initiated -> PartsUploading* -> Completed | Aborted
//
// Completed and aborted uploads are forgotten.
type Manager struct {
	objects  *store.ObjectStore
	locks    *keylock.Locks
	digester *digest.Digester
	newID    func() string
}

// NewManager returns a Manager over objects. Locks must be shared with the
// stores.
func NewManager(objects *store.ObjectStore, locks *keylock.Locks, digester *digest.Digester) *Manager {
	return &Manager{
		objects:  objects,
		locks:    locks,
		digester: digester,
		newID:    uuid.NewString,
	}
}

// Initiate starts a new upload and returns it with its id.
func (m *Manager) Initiate(ctx context.Context, in InitiateInput) (store.MultipartUpload, error) {
	return m.objects.CreateMultipartUpload(ctx, store.MultipartUpload{
		UploadID:        m.newID(),
		Bucket:          in.Bucket,
		Key:             in.Key,
		ContentType:     in.ContentType,
		ContentEncoding: in.ContentEncoding,
		UserMetadata:    in.UserMetadata,
		KMSKeyID:        in.KMSKeyID,
	})
}

// UploadPart stores one part. Uploading a part number twice replaces the
// earlier part.
func (m *Manager) UploadPart(ctx context.Context, bucket string, key string, uploadID string, partNumber int, body io.Reader, contentMD5 string) (store.Part, error) {
	unlock, err := m.locks.Lock(ctx, keylock.UploadKey(uploadID))
	if err != nil {
		return store.Part{}, err
	}
	defer unlock()

	if _, err := m.objects.GetMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return store.Part{}, err
	}

	return m.objects.PutPart(ctx, uploadID, partNumber, body, contentMD5)
}

// ListParts returns the upload's parts in part number order.
func (m *Manager) ListParts(ctx context.Context, bucket string, key string, uploadID string) (store.MultipartUpload, []store.Part, error) {
	upload, err := m.objects.GetMultipartUpload(ctx, bucket, key, uploadID)
	if err != nil {
		return store.MultipartUpload{}, nil, err
	}

	parts, err := m.objects.GetMultipartUploadParts(ctx, bucket, key, uploadID)
	if err != nil {
		return store.MultipartUpload{}, nil, err
	}
	return upload, parts, nil
}

// ListUploads returns the bucket's in-progress uploads under prefix.
func (m *Manager) ListUploads(ctx context.Context, bucket string, prefix string) ([]store.MultipartUpload, error) {
	return m.objects.ListMultipartUploads(ctx, bucket, prefix)
}

// Abort discards an upload and its parts.
func (m *Manager) Abort(ctx context.Context, bucket string, key string, uploadID string) error {
	unlock, err := m.locks.Lock(ctx, keylock.UploadKey(uploadID))
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := m.objects.GetMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return err
	}

	return m.objects.DeleteMultipartUpload(ctx, uploadID)
}

// Complete validates the requested parts against the stored ones and
// assembles the object. Validation runs in this order and changes nothing
// on failure:
//
//  1. no stored parts: NoSuchUpload
//  2. a requested part is not stored, or its ETag differs: InvalidPart
//  3. part numbers not strictly ascending: InvalidPartOrder
//  4. a part other than the last is below MinPartSize: EntityTooSmall
//
// The assembled object's ETag is derived from the part ETags, not from the
// assembled content.
func (m *Manager) Complete(ctx context.Context, bucket string, key string, uploadID string, requested []CompletedPart) (store.StoredObject, error) {
	unlock, err := m.locks.Lock(ctx, keylock.UploadKey(uploadID))
	if err != nil {
		return store.StoredObject{}, err
	}
	defer unlock()

	stored, err := m.objects.GetMultipartUploadParts(ctx, bucket, key, uploadID)
	if err != nil {
		return store.StoredObject{}, err
	}

	parts, err := validate(stored, requested)
	if err != nil {
		return store.StoredObject{}, err
	}

	upload, err := m.objects.GetMultipartUpload(ctx, bucket, key, uploadID)
	if err != nil {
		return store.StoredObject{}, err
	}

	etags := make([]string, len(parts))
	numbers := make([]int, len(parts))
	for i, p := range parts {
		etags[i] = p.ETag
		numbers[i] = p.PartNumber
	}

	etag, err := m.digester.MultipartETag(etags)
	if err != nil {
		return store.StoredObject{}, s3err.Internal(err)
	}

	body := m.objects.OpenParts(uploadID, numbers)
	defer body.Close()

	obj, err := m.objects.PutObject(ctx, store.PutObjectInput{
		Bucket:          bucket,
		Key:             key,
		ContentType:     upload.ContentType,
		ContentEncoding: upload.ContentEncoding,
		Body:            body,
		Multipart:       true,
		ETag:            etag,
		UserMetadata:    upload.UserMetadata,
		KMSKeyID:        upload.KMSKeyID,
	})
	if err != nil {
		return store.StoredObject{}, err
	}

	if err := m.objects.DeleteMultipartUpload(ctx, uploadID); err != nil {
		return store.StoredObject{}, err
	}

	return obj, nil
}

// validate checks a complete request and returns the stored parts it
// names, in request order.
func validate(stored []store.Part, requested []CompletedPart) ([]store.Part, error) {
	if len(stored) == 0 {
		return nil, s3err.ErrNoSuchUpload
	}

	if len(requested) == 0 {
		return nil, s3err.ErrMalformedXML
	}

	byNumber := make(map[int]store.Part, len(stored))
	for _, p := range stored {
		byNumber[p.PartNumber] = p
	}

	parts := make([]store.Part, 0, len(requested))
	for _, r := range requested {
		p, ok := byNumber[r.PartNumber]
		if !ok {
			return nil, s3err.ErrInvalidPart
		}
		if r.ETag != "" && digest.TrimETag(r.ETag) != p.ETag {
			return nil, s3err.ErrInvalidPart
		}
		parts = append(parts, p)
	}

	for i := 1; i < len(requested); i++ {
		if requested[i].PartNumber <= requested[i-1].PartNumber {
			return nil, s3err.ErrInvalidPartOrder
		}
	}

	for _, p := range parts[:len(parts)-1] {
		if p.Size < MinPartSize {
			return nil, s3err.ErrEntityTooSmall
		}
	}

	return parts, nil
}
