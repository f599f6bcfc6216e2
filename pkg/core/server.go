package core

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/service"
	"github.com/eteran/s3mock/pkg/store"
)

const (
	userMetadataPrefix = "X-Amz-Meta-"
	kmsKeyIDHeader     = "X-Amz-Server-Side-Encryption-Aws-Kms-Key-Id"
	sseHeader          = "X-Amz-Server-Side-Encryption"
)

// Server translates path-style S3 REST requests into service calls.
type Server struct {
	Config Config
	svc    *service.Service
}

// NewServer returns a Server answering for svc.
func NewServer(svc *service.Service, cfg Config) *Server {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &Server{Config: cfg, svc: svc}
}

// writeNotImplemented is a helper for stubbing unsupported S3 operations.
func (s *Server) writeNotImplemented(w http.ResponseWriter, r *http.Request, op string) {
	message := op + " is not implemented."
	writeS3Error(w, s3err.ErrNotImplemented.Code, message, r.URL.Path, http.StatusNotImplemented)
}

// writeError answers with the S3 error carried by err. Anything that is not
// a client error is logged with op and attrs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...any) {
	e := s3err.As(err)
	if e.Kind == s3err.KindInternal {
		slog.Error(op, append(attrs, "err", err)...)
	}
	writeS3Error(w, e.Code, e.Message, r.URL.Path, e.HTTPStatus())
}

// writeS3Error writes a minimal S3-style XML error response.
func writeS3Error(w http.ResponseWriter, code string, message string, resource string, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(S3Error{
		Code:      code,
		Message:   message,
		Resource:  resource,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

func validateBucketNameOrError(w http.ResponseWriter, r *http.Request, bucket string) bool {
	if !service.IsValidBucketName(bucket) {
		writeS3Error(w, s3err.ErrInvalidBucketName.Code, s3err.ErrInvalidBucketName.Message, r.URL.Path, http.StatusBadRequest)
		return false
	}
	return true
}

func validateObjectKeyOrError(w http.ResponseWriter, r *http.Request, key string) bool {
	if !service.IsValidObjectKey(key) {
		writeS3Error(w, s3err.ErrInvalidObjectName.Code, s3err.ErrInvalidObjectName.Message, r.URL.Path, http.StatusBadRequest)
		return false
	}
	return true
}

func writeXMLResponse(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func toOwner(o store.Owner) Owner {
	return Owner{ID: o.ID, DisplayName: o.DisplayName}
}

// requestPayload returns the object content of r, decoding aws-chunked
// framing, and the Content-Encoding that describes that content.
func requestPayload(r *http.Request) (io.Reader, string) {
	encoding := r.Header.Get("Content-Encoding")
	if isStreamingPayload(r) {
		return newChunkedReader(r.Body), storedContentEncoding(encoding)
	}
	return r.Body, storedContentEncoding(encoding)
}

// userMetadata collects the x-amz-meta-* headers. Names are lower-cased
// and stored without the prefix.
func userMetadata(h http.Header) map[string]string {
	var meta map[string]string
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if !strings.HasPrefix(canonical, userMetadataPrefix) || len(values) == 0 {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[strings.ToLower(strings.TrimPrefix(canonical, userMetadataPrefix))] = strings.Join(values, ",")
	}
	return meta
}

func setObjectHeaders(w http.ResponseWriter, obj store.StoredObject) {
	h := w.Header()
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	if obj.ContentEncoding != "" {
		h.Set("Content-Encoding", obj.ContentEncoding)
	}
	h.Set("ETag", digest.Quote(obj.ETag))
	h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	h.Set("Accept-Ranges", "bytes")
	if obj.StorageClass != "" && obj.StorageClass != store.DefaultStorageClass {
		h.Set("X-Amz-Storage-Class", obj.StorageClass)
	}
	setEncryptionHeaders(w, obj.KMSKeyID)
	for name, value := range obj.UserMetadata {
		h.Set(userMetadataPrefix+name, value)
	}
}

func setEncryptionHeaders(w http.ResponseWriter, kmsKeyID string) {
	if kmsKeyID == "" {
		return
	}
	w.Header().Set(sseHeader, "aws:kms")
	w.Header().Set(kmsKeyIDHeader, kmsKeyID)
}

// encodeKey applies encoding-type=url to a key or prefix in a listing.
// S3 percent-encodes everything but the path separator.
func encodeKey(encodingType string, s string) string {
	if encodingType != "url" || s == "" {
		return s
	}
	escaped := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	return strings.ReplaceAll(escaped, "%2F", "/")
}

// ------ Dispatchers for bucket-level HTTP handlers ------

// unsupportedBucketSubresources maps bucket subresources outside the
// emulator's feature set to the operation name reported back.
var unsupportedBucketSubresources = []struct {
	query string
	op    string
}{
	{"tagging", "BucketTagging"},
	{"versioning", "BucketVersioning"},
	{"encryption", "BucketEncryption"},
	{"cors", "BucketCors"},
	{"lifecycle", "BucketLifecycleConfiguration"},
	{"notification", "BucketNotificationConfiguration"},
	{"policy", "BucketPolicy"},
	{"replication", "BucketReplication"},
	{"acl", "BucketAcl"},
}

// rejectUnsupportedBucketSubresource answers NotImplemented when the
// request targets an unsupported subresource.
func (s *Server) rejectUnsupportedBucketSubresource(w http.ResponseWriter, r *http.Request, verb string) bool {
	q := r.URL.Query()
	for _, sub := range unsupportedBucketSubresources {
		if q.Has(sub.query) {
			s.writeNotImplemented(w, r, verb+sub.op)
			return true
		}
	}
	return false
}

// handleBucketPut dispatches PUT /bucket[?subresource].
func (s *Server) handleBucketPut(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if s.rejectUnsupportedBucketSubresource(w, r, "Put") {
		return
	}
	s.handleCreateBucket(ctx, w, r, bucket)
}

// handleBucketPost implements POST /bucket[?subresource], such as DeleteObjects.
func (s *Server) handleBucketPost(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("delete"):
		s.handleDeleteObjects(ctx, w, r, bucket)
	default:
		s.writeNotImplemented(w, r, "BucketPost")
	}
}

// handleBucketGet dispatches GET /bucket[?subresource] between the listing
// APIs and bucket-level read APIs.
func (s *Server) handleBucketGet(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("location"):
		s.handleGetBucketLocation(ctx, w, r, bucket)
	case q.Has("versions"):
		s.writeNotImplemented(w, r, "ListObjectVersions")
	case q.Has("uploads"):
		s.handleListMultipartUploads(ctx, w, r, bucket)
	case q.Get("list-type") == "2":
		s.handleListObjectsV2(ctx, w, r, bucket)
	default:
		if s.rejectUnsupportedBucketSubresource(w, r, "Get") {
			return
		}
		s.handleListObjects(ctx, w, r, bucket)
	}
}

// handleBucketDelete implements DELETE /bucket[?subresource].
func (s *Server) handleBucketDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if s.rejectUnsupportedBucketSubresource(w, r, "Delete") {
		return
	}
	s.handleDeleteBucket(ctx, w, r, bucket)
}

// handleBucketHead implements HEAD /bucket.
func (s *Server) handleBucketHead(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	if exists, err := s.svc.BucketExists(ctx, bucket); err != nil {
		s.writeError(w, r, "Bucket head", err, "bucket", bucket)
		return
	} else if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("X-Amz-Bucket-Region", s.Config.Region)
	w.WriteHeader(http.StatusOK)
}

// ------ Dispatchers for object-level HTTP handlers ------

// handleObjectPost implements POST /bucket/key[?subresource]: the
// multipart initiate and complete calls.
func (s *Server) handleObjectPost(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("uploads"):
		s.handleCreateMultipartUpload(ctx, w, r, bucket, key)
	case q.Has("uploadId"):
		s.handleCompleteMultipartUpload(ctx, w, r, bucket, key, q.Get("uploadId"))
	case q.Has("restore"):
		s.writeNotImplemented(w, r, "RestoreObject")
	case q.Has("select"):
		s.writeNotImplemented(w, r, "SelectObjectContent")
	default:
		s.writeNotImplemented(w, r, "ObjectPost")
	}
}

// handleObjectGet implements GET /bucket/key to retrieve an object.
func (s *Server) handleObjectGet(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "GetObjectTagging")
	case q.Has("acl"):
		s.writeNotImplemented(w, r, "GetObjectAcl")
	case q.Has("attributes"):
		s.writeNotImplemented(w, r, "GetObjectAttributes")
	case q.Has("uploadId"):
		s.handleListParts(ctx, w, r, bucket, key, q.Get("uploadId"))
	default:
		s.handleGetObject(ctx, w, r, bucket, key)
	}
}

// handleObjectDelete implements DELETE /bucket/key to delete an object.
func (s *Server) handleObjectDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "DeleteObjectTagging")
	case q.Has("uploadId"):
		s.handleAbortMultipartUpload(ctx, w, r, bucket, key, q.Get("uploadId"))
	default:
		s.handleDeleteObject(ctx, w, r, bucket, key)
	}
}

// handleObjectPut implements PUT /bucket/key to store an object or one part
// of a multipart upload.
func (s *Server) handleObjectPut(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()

	if uploadID := q.Get("uploadId"); uploadID != "" {
		if r.Header.Get("x-amz-copy-source") != "" {
			s.writeNotImplemented(w, r, "UploadPartCopy")
			return
		}

		partNum, err := strconv.Atoi(q.Get("partNumber"))
		if err != nil {
			writeS3Error(w, s3err.ErrInvalidArgument.Code, "Part number must be an integer.", r.URL.Path, http.StatusBadRequest)
			return
		}

		s.handleUploadPart(ctx, w, r, bucket, key, uploadID, partNum)
		return
	}

	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "PutObjectTagging")
		return
	case q.Has("acl"):
		s.writeNotImplemented(w, r, "PutObjectAcl")
		return
	}

	if copySource := r.Header.Get("x-amz-copy-source"); copySource != "" {
		s.handleCopyObject(ctx, w, r, bucket, key, copySource)
		return
	}

	s.handlePutObject(ctx, w, r, bucket, key)
}

// handleObjectHead implements HEAD /bucket/key, returning metadata headers
// compatible with S3 but without a response body.
func (s *Server) handleObjectHead(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	obj, err := s.svc.HeadObject(ctx, bucket, key)
	if err != nil {
		s.writeError(w, r, "Head object", err, "bucket", bucket, "key", key)
		return
	}

	setObjectHeaders(w, obj)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// ------ Individual API HTTP handlers ------

func (s *Server) handleListBuckets(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	buckets, owner, err := s.svc.ListBuckets(ctx)
	if err != nil {
		s.writeError(w, r, "List buckets", err)
		return
	}

	entries := make([]BucketEntry, 0, len(buckets))
	for _, b := range buckets {
		entries = append(entries, BucketEntry{
			Name:         b.Name,
			CreationDate: formatTime(b.CreationDate),
		})
	}

	resp := ListAllMyBucketsResult{
		XMLNS:   S3XMLNamespace,
		Owner:   toOwner(owner),
		Buckets: entries,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list buckets XML", "err", err)
	}
}

// handleCreateBucket implements PUT /bucket to create a new bucket.
func (s *Server) handleCreateBucket(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if _, err := s.svc.CreateBucket(ctx, bucket); err != nil {
		s.writeError(w, r, "Create bucket", err, "bucket", bucket)
		return
	}

	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// handleDeleteBucket implements DELETE /bucket.
func (s *Server) handleDeleteBucket(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if err := s.svc.DeleteBucket(ctx, bucket); err != nil {
		s.writeError(w, r, "Delete bucket", err, "bucket", bucket)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetBucketLocation implements GET /bucket?location. S3 reports
// us-east-1 as an empty constraint.
func (s *Server) handleGetBucketLocation(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	if _, err := s.svc.GetBucket(ctx, bucket); err != nil {
		s.writeError(w, r, "Get bucket location", err, "bucket", bucket)
		return
	}

	region := s.Config.Region
	if region == "us-east-1" {
		region = ""
	}

	resp := LocationConstraint{XMLNS: S3XMLNamespace, Region: region}
	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode bucket location XML", "bucket", bucket, "err", err)
	}
}

func objectSummaries(encodingType string, objects []store.StoredObject) []ObjectSummary {
	summaries := make([]ObjectSummary, 0, len(objects))
	for _, o := range objects {
		owner := toOwner(o.Owner)
		summaries = append(summaries, ObjectSummary{
			Key:          encodeKey(encodingType, o.Key),
			LastModified: formatTime(o.LastModified),
			ETag:         digest.Quote(o.ETag),
			Size:         o.Size,
			StorageClass: o.StorageClass,
			Owner:        &owner,
		})
	}
	return summaries
}

func commonPrefixes(encodingType string, prefixes []string) []CommonPrefix {
	out := make([]CommonPrefix, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, CommonPrefix{Prefix: encodeKey(encodingType, p)})
	}
	return out
}

// handleListObjects implements S3 ListObjects:
// GET /bucket[?prefix=&delimiter=&marker=&max-keys=&encoding-type=].
func (s *Server) handleListObjects(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	res, err := s.svc.ListObjects(ctx, service.ListObjectsInput{
		Bucket:       bucket,
		Prefix:       q.Get("prefix"),
		Delimiter:    q.Get("delimiter"),
		Marker:       q.Get("marker"),
		MaxKeys:      q.Get("max-keys"),
		EncodingType: q.Get("encoding-type"),
	})
	if err != nil {
		s.writeError(w, r, "List objects", err, "bucket", bucket)
		return
	}

	enc := res.EncodingType
	resp := ListBucketResult{
		XMLNS:          S3XMLNamespace,
		Name:           bucket,
		Prefix:         encodeKey(enc, res.Prefix),
		Marker:         encodeKey(enc, res.Marker),
		NextMarker:     encodeKey(enc, res.NextMarker),
		MaxKeys:        res.MaxKeys,
		Delimiter:      encodeKey(enc, res.Delimiter),
		EncodingType:   enc,
		IsTruncated:    res.IsTruncated,
		Contents:       objectSummaries(enc, res.Contents),
		CommonPrefixes: commonPrefixes(enc, res.CommonPrefixes),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list objects XML", "bucket", bucket, "err", err)
	}
}

// handleListObjectsV2 implements S3 ListObjectsV2:
// GET /bucket?list-type=2[&prefix=&max-keys=&continuation-token=&start-after=].
func (s *Server) handleListObjectsV2(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	res, err := s.svc.ListObjectsV2(ctx, service.ListObjectsV2Input{
		Bucket:            bucket,
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		ContinuationToken: q.Get("continuation-token"),
		StartAfter:        q.Get("start-after"),
		MaxKeys:           q.Get("max-keys"),
		EncodingType:      q.Get("encoding-type"),
	})
	if err != nil {
		s.writeError(w, r, "List objects (v2)", err, "bucket", bucket)
		return
	}

	enc := res.EncodingType
	resp := ListBucketResultV2{
		XMLNS:                 S3XMLNamespace,
		Name:                  bucket,
		Prefix:                encodeKey(enc, res.Prefix),
		Delimiter:             encodeKey(enc, res.Delimiter),
		EncodingType:          enc,
		KeyCount:              res.KeyCount,
		MaxKeys:               res.MaxKeys,
		IsTruncated:           res.IsTruncated,
		ContinuationToken:     res.ContinuationToken,
		NextContinuationToken: res.NextContinuationToken,
		StartAfter:            encodeKey(enc, res.StartAfter),
		Contents:              objectSummaries(enc, res.Contents),
		CommonPrefixes:        commonPrefixes(enc, res.CommonPrefixes),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list objects v2 XML", "bucket", bucket, "err", err)
	}
}

// handlePutObject implements PUT /bucket/key.
func (s *Server) handlePutObject(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	defer r.Body.Close()

	body, encoding := requestPayload(r)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj, err := s.svc.PutObject(ctx, store.PutObjectInput{
		Bucket:          bucket,
		Key:             key,
		ContentType:     contentType,
		ContentEncoding: encoding,
		Body:            body,
		UserMetadata:    userMetadata(r.Header),
		KMSKeyID:        r.Header.Get(kmsKeyIDHeader),
		ContentMD5:      r.Header.Get("Content-MD5"),
	})
	if err != nil {
		s.writeError(w, r, "Put object", err, "bucket", bucket, "key", key)
		return
	}

	w.Header().Set("ETag", digest.Quote(obj.ETag))
	setEncryptionHeaders(w, obj.KMSKeyID)
	w.WriteHeader(http.StatusOK)
}

// handleGetObject streams an object. Range and conditional requests are
// served by http.ServeContent.
func (s *Server) handleGetObject(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	obj, rc, err := s.svc.GetObject(ctx, bucket, key)
	if err != nil {
		s.writeError(w, r, "Get object", err, "bucket", bucket, "key", key)
		return
	}
	defer rc.Close()

	setObjectHeaders(w, obj)
	http.ServeContent(w, r, "", obj.LastModified, rc)
}

// handleDeleteObject implements DELETE /bucket/key. Deleting a missing key
// succeeds.
func (s *Server) handleDeleteObject(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if err := s.svc.DeleteObject(ctx, bucket, key); err != nil {
		s.writeError(w, r, "Delete object", err, "bucket", bucket, "key", key)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteObjects implements POST /bucket?delete.
func (s *Server) handleDeleteObjects(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	defer r.Body.Close()

	var req DeleteObjectsRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, "Decode delete objects XML", s3err.ErrMalformedXML)
		return
	}

	if exists, err := s.svc.BucketExists(ctx, bucket); err != nil {
		s.writeError(w, r, "Delete objects", err, "bucket", bucket)
		return
	} else if !exists {
		s.writeError(w, r, "Delete objects", s3err.ErrNoSuchBucket)
		return
	}

	resp := DeleteResult{XMLNS: S3XMLNamespace}
	for _, obj := range req.Objects {
		if err := s.svc.DeleteObject(ctx, bucket, obj.Key); err != nil {
			e := s3err.As(err)
			if e.Kind == s3err.KindInternal {
				slog.Error("Delete objects", "bucket", bucket, "key", obj.Key, "err", err)
			}
			resp.Errors = append(resp.Errors, DeleteError{Key: obj.Key, Code: e.Code, Message: e.Message})
			continue
		}
		if !req.Quiet {
			resp.Deleted = append(resp.Deleted, DeletedObject{Key: obj.Key})
		}
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode delete objects XML", "bucket", bucket, "err", err)
	}
}

// parseCopySource splits an x-amz-copy-source value of the form
// [/]bucket/key[?versionId=...] into its bucket and key.
func parseCopySource(copySource string) (string, string, error) {
	if idx := strings.Index(copySource, "?"); idx != -1 {
		copySource = copySource[:idx]
	}

	decoded, err := url.PathUnescape(copySource)
	if err != nil {
		return "", "", err
	}

	decoded = strings.TrimPrefix(decoded, "/")
	bucket, key, ok := strings.Cut(decoded, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.New("copy source must be bucket/key")
	}
	return bucket, key, nil
}

// handleCopyObject implements a basic version of S3 CopyObject for
// non-multipart copies without conditional headers.
func (s *Server) handleCopyObject(ctx context.Context, w http.ResponseWriter, r *http.Request, destBucket string, destKey string, copySource string) {
	srcBucket, srcKey, err := parseCopySource(copySource)
	if err != nil {
		writeS3Error(w, s3err.ErrInvalidRequest.Code, "The x-amz-copy-source header is invalid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	obj, err := s.svc.CopyObject(ctx, srcBucket, srcKey, destBucket, destKey)
	if err != nil {
		s.writeError(w, r, "Copy object", err, "source", copySource, "bucket", destBucket, "key", destKey)
		return
	}

	resp := CopyObjectResult{
		XMLNS:        S3XMLNamespace,
		LastModified: formatTime(obj.LastModified),
		ETag:         digest.Quote(obj.ETag),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode copy object XML", "bucket", destBucket, "key", destKey, "err", err)
	}
}
