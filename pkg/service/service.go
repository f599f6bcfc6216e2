// Package service is the entry point the HTTP layer calls into. It
// validates request parameters, checks bucket existence and composes the
// stores, the listing engine and the multipart manager.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/keylock"
	"github.com/eteran/s3mock/pkg/listing"
	"github.com/eteran/s3mock/pkg/multipart"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/storage"
	"github.com/eteran/s3mock/pkg/store"
)

// Service implements the emulator's operations over explicitly
// constructed stores.
type Service struct {
	buckets *store.BucketStore
	objects *store.ObjectStore
	uploads *multipart.Manager

	closers []func() error
}

// New returns a Service.
func New(buckets *store.BucketStore, objects *store.ObjectStore, uploads *multipart.Manager) *Service {
	return &Service{buckets: buckets, objects: objects, uploads: uploads}
}

// Open builds a Service backed by SQLite metadata and local payload files
// in dataDir. Close releases it.
func Open(ctx context.Context, dataDir string, owner store.Owner) (*Service, error) {
	db, err := store.Open(ctx, dataDir)
	if err != nil {
		return nil, err
	}

	engine := storage.NewLocalFileStorage(dataDir)
	locks := keylock.New()
	digester := digest.New()

	objects := store.NewObjectStore(db, engine, locks, digester, owner)
	svc := New(
		store.NewBucketStore(db, engine, locks),
		objects,
		multipart.NewManager(objects, locks, digester),
	)
	svc.closers = []func() error{
		db.Close,
		func() error { digester.Close(); return nil },
	}
	return svc, nil
}

// Close releases the resources acquired by Open.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Owner returns the identity that owns every bucket and object.
func (s *Service) Owner() store.Owner {
	return s.objects.Owner()
}

// ListBuckets returns every bucket and the owner.
func (s *Service) ListBuckets(ctx context.Context) ([]store.Bucket, store.Owner, error) {
	buckets, err := s.buckets.ListBuckets(ctx)
	if err != nil {
		return nil, store.Owner{}, err
	}
	return buckets, s.Owner(), nil
}

// BucketExists reports whether the bucket exists.
func (s *Service) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.buckets.DoesBucketExist(ctx, bucket)
}

// GetBucket returns the bucket or NoSuchBucket.
func (s *Service) GetBucket(ctx context.Context, bucket string) (store.Bucket, error) {
	return s.buckets.GetBucket(ctx, bucket)
}

// CreateBucket creates a bucket. Creating an existing bucket fails with
// BucketAlreadyOwnedByYou.
func (s *Service) CreateBucket(ctx context.Context, bucket string) (store.Bucket, error) {
	if !IsValidBucketName(bucket) {
		return store.Bucket{}, s3err.ErrInvalidBucketName
	}

	if exists, err := s.buckets.DoesBucketExist(ctx, bucket); err != nil {
		return store.Bucket{}, err
	} else if exists {
		return store.Bucket{}, s3err.ErrBucketAlreadyOwnedByYou
	}

	return s.buckets.CreateBucket(ctx, bucket)
}

// EnsureBuckets creates each named bucket that does not exist yet.
func (s *Service) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, b := range buckets {
		if !IsValidBucketName(b) {
			return s3err.ErrInvalidBucketName.WithMessage("The specified bucket is not valid: %s", b)
		}
		if _, err := s.buckets.CreateBucket(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBucket deletes an empty bucket. It fails with NoSuchBucket when the
// bucket is absent and BucketNotEmpty while it holds objects.
func (s *Service) DeleteBucket(ctx context.Context, bucket string) error {
	deleted, err := s.buckets.DeleteBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !deleted {
		return s3err.ErrNoSuchBucket
	}
	return nil
}

func (s *Service) requireBucket(ctx context.Context, bucket string) error {
	exists, err := s.buckets.DoesBucketExist(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s3err.ErrNoSuchBucket
	}
	return nil
}

// ListObjectsInput holds the raw parameters of a ListObjects request.
// MaxKeys and EncodingType are validated here.
type ListObjectsInput struct {
	Bucket       string
	Prefix       string
	Delimiter    string
	Marker       string
	MaxKeys      string
	EncodingType string
}

// ListObjectsResult is one page of a listing.
type ListObjectsResult struct {
	Bucket         string
	Prefix         string
	Delimiter      string
	Marker         string
	MaxKeys        int
	EncodingType   string
	Contents       []store.StoredObject
	CommonPrefixes []string
	IsTruncated    bool

	// NextMarker is only reported when a delimiter was given, as S3 does;
	// without one clients continue from the last key.
	NextMarker string
	Owner      store.Owner
}

// ListObjects lists the bucket's objects under prefix, grouping by
// delimiter into common prefixes. Negative or non-integer max-keys and
// encoding types other than "url" are rejected.
func (s *Service) ListObjects(ctx context.Context, in ListObjectsInput) (ListObjectsResult, error) {
	if err := listing.ValidateEncodingType(in.EncodingType); err != nil {
		return ListObjectsResult{}, err
	}

	maxKeys, err := listing.ParseMaxKeys(in.MaxKeys)
	if err != nil {
		return ListObjectsResult{}, err
	}

	page, err := s.list(ctx, in.Bucket, in.Prefix, in.Delimiter, in.Marker, maxKeys)
	if err != nil {
		return ListObjectsResult{}, err
	}

	res := ListObjectsResult{
		Bucket:         in.Bucket,
		Prefix:         in.Prefix,
		Delimiter:      in.Delimiter,
		Marker:         in.Marker,
		MaxKeys:        maxKeys,
		EncodingType:   in.EncodingType,
		Contents:       page.Contents,
		CommonPrefixes: page.CommonPrefixes,
		IsTruncated:    page.IsTruncated,
		Owner:          s.Owner(),
	}
	if in.Delimiter != "" {
		res.NextMarker = page.NextMarker
	}
	return res, nil
}

// ListObjectsV2Input holds the raw parameters of a ListObjectsV2 request.
type ListObjectsV2Input struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	ContinuationToken string
	StartAfter        string
	MaxKeys           string
	EncodingType      string
}

// ListObjectsV2Result is one page of a V2 listing.
type ListObjectsV2Result struct {
	Bucket                string
	Prefix                string
	Delimiter             string
	StartAfter            string
	ContinuationToken     string
	NextContinuationToken string
	MaxKeys               int
	KeyCount              int
	EncodingType          string
	Contents              []store.StoredObject
	CommonPrefixes        []string
	IsTruncated           bool
	Owner                 store.Owner
}

// ListObjectsV2 is ListObjects with opaque continuation tokens. A token
// takes precedence over start-after.
func (s *Service) ListObjectsV2(ctx context.Context, in ListObjectsV2Input) (ListObjectsV2Result, error) {
	if err := listing.ValidateEncodingType(in.EncodingType); err != nil {
		return ListObjectsV2Result{}, err
	}

	maxKeys, err := listing.ParseMaxKeys(in.MaxKeys)
	if err != nil {
		return ListObjectsV2Result{}, err
	}

	marker := in.StartAfter
	if in.ContinuationToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(in.ContinuationToken)
		if err != nil {
			return ListObjectsV2Result{}, s3err.ErrInvalidArgument.WithMessage("The continuation token provided is incorrect")
		}
		marker = string(raw)
	}

	page, err := s.list(ctx, in.Bucket, in.Prefix, in.Delimiter, marker, maxKeys)
	if err != nil {
		return ListObjectsV2Result{}, err
	}

	res := ListObjectsV2Result{
		Bucket:            in.Bucket,
		Prefix:            in.Prefix,
		Delimiter:         in.Delimiter,
		StartAfter:        in.StartAfter,
		ContinuationToken: in.ContinuationToken,
		MaxKeys:           maxKeys,
		KeyCount:          len(page.Contents) + len(page.CommonPrefixes),
		EncodingType:      in.EncodingType,
		Contents:          page.Contents,
		CommonPrefixes:    page.CommonPrefixes,
		IsTruncated:       page.IsTruncated,
		Owner:             s.Owner(),
	}
	if page.IsTruncated {
		res.NextContinuationToken = base64.RawURLEncoding.EncodeToString([]byte(page.NextMarker))
	}
	return res, nil
}

func (s *Service) list(ctx context.Context, bucket, prefix, delimiter, marker string, maxKeys int) (listing.Page[store.StoredObject], error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return listing.Page[store.StoredObject]{}, err
	}

	contents, err := s.objects.GetS3Objects(ctx, bucket, prefix)
	if err != nil {
		return listing.Page[store.StoredObject]{}, err
	}

	prefixes := listing.CollapseCommonPrefixes(prefix, delimiter, contents)
	contents = listing.FilterBucketContentsBy(contents, prefixes)

	return listing.Paginate(contents, prefixes, marker, maxKeys), nil
}

// PutObject stores an object. The multipart flag is reserved for
// completion and rejected here.
func (s *Service) PutObject(ctx context.Context, in store.PutObjectInput) (store.StoredObject, error) {
	if !IsValidObjectKey(in.Key) {
		return store.StoredObject{}, s3err.ErrInvalidObjectName
	}
	if in.Multipart {
		return store.StoredObject{}, s3err.ErrInvalidRequest
	}
	return s.objects.PutObject(ctx, in)
}

// HeadObject returns an object's metadata.
func (s *Service) HeadObject(ctx context.Context, bucket string, key string) (store.StoredObject, error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return store.StoredObject{}, err
	}
	return s.objects.HeadObject(ctx, bucket, key)
}

// GetObject returns an object's metadata and content. The caller closes
// the reader.
func (s *Service) GetObject(ctx context.Context, bucket string, key string) (store.StoredObject, io.ReadSeekCloser, error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return store.StoredObject{}, nil, err
	}
	return s.objects.GetObject(ctx, bucket, key)
}

// DeleteObject deletes an object; deleting a missing key succeeds.
func (s *Service) DeleteObject(ctx context.Context, bucket string, key string) error {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return err
	}
	return s.objects.DeleteObject(ctx, bucket, key)
}

// CopyObject copies an object's content and metadata to another key,
// possibly in another bucket.
func (s *Service) CopyObject(ctx context.Context, srcBucket string, srcKey string, dstBucket string, dstKey string) (store.StoredObject, error) {
	src, rc, err := s.GetObject(ctx, srcBucket, srcKey)
	if err != nil {
		return store.StoredObject{}, err
	}
	defer rc.Close()

	return s.PutObject(ctx, store.PutObjectInput{
		Bucket:          dstBucket,
		Key:             dstKey,
		ContentType:     src.ContentType,
		ContentEncoding: src.ContentEncoding,
		Body:            rc,
		UserMetadata:    src.UserMetadata,
		KMSKeyID:        src.KMSKeyID,
	})
}

// CreateMultipartUpload starts a multipart upload.
func (s *Service) CreateMultipartUpload(ctx context.Context, in multipart.InitiateInput) (store.MultipartUpload, error) {
	if !IsValidObjectKey(in.Key) {
		return store.MultipartUpload{}, s3err.ErrInvalidObjectName
	}
	return s.uploads.Initiate(ctx, in)
}

// UploadPart stores one part. Part numbers run from 1 to 10000.
func (s *Service) UploadPart(ctx context.Context, bucket string, key string, uploadID string, partNumber int, body io.Reader, contentMD5 string) (store.Part, error) {
	if partNumber < 1 || partNumber > multipart.MaxPartNumber {
		return store.Part{}, s3err.ErrInvalidArgument.WithMessage("Part number must be an integer between 1 and %d, inclusive", multipart.MaxPartNumber)
	}
	if err := s.requireBucket(ctx, bucket); err != nil {
		return store.Part{}, err
	}
	return s.uploads.UploadPart(ctx, bucket, key, uploadID, partNumber, body, contentMD5)
}

// GetUploadParts returns the stored parts of an upload; empty when the
// upload is unknown.
func (s *Service) GetUploadParts(ctx context.Context, bucket string, key string, uploadID string) ([]store.Part, error) {
	return s.objects.GetMultipartUploadParts(ctx, bucket, key, uploadID)
}

// ListParts returns an upload and its parts, or NoSuchUpload.
func (s *Service) ListParts(ctx context.Context, bucket string, key string, uploadID string) (store.MultipartUpload, []store.Part, error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return store.MultipartUpload{}, nil, err
	}
	return s.uploads.ListParts(ctx, bucket, key, uploadID)
}

// ListMultipartUploads returns the bucket's in-progress uploads under
// prefix.
func (s *Service) ListMultipartUploads(ctx context.Context, bucket string, prefix string) ([]store.MultipartUpload, error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return s.uploads.ListUploads(ctx, bucket, prefix)
}

// AbortMultipartUpload discards an upload.
func (s *Service) AbortMultipartUpload(ctx context.Context, bucket string, key string, uploadID string) error {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return err
	}
	return s.uploads.Abort(ctx, bucket, key, uploadID)
}

// CompleteMultipartUpload validates the requested parts and assembles the
// object.
func (s *Service) CompleteMultipartUpload(ctx context.Context, bucket string, key string, uploadID string, parts []multipart.CompletedPart) (store.StoredObject, error) {
	if err := s.requireBucket(ctx, bucket); err != nil {
		return store.StoredObject{}, err
	}
	return s.uploads.Complete(ctx, bucket, key, uploadID, parts)
}
