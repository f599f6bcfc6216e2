package core

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/multipart"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/store"
)

const (
	defaultMaxParts   = 1000
	defaultMaxUploads = 1000
)

// handleCreateMultipartUpload implements CreateMultipartUpload:
// POST /bucket/key?uploads
func (s *Server) handleCreateMultipartUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload, err := s.svc.CreateMultipartUpload(ctx, multipart.InitiateInput{
		Bucket:          bucket,
		Key:             key,
		ContentType:     contentType,
		ContentEncoding: storedContentEncoding(r.Header.Get("Content-Encoding")),
		UserMetadata:    userMetadata(r.Header),
		KMSKeyID:        r.Header.Get(kmsKeyIDHeader),
	})
	if err != nil {
		s.writeError(w, r, "Create multipart upload", err, "bucket", bucket, "key", key)
		return
	}

	resp := InitiateMultipartUploadResult{
		XMLNS:    S3XMLNamespace,
		Bucket:   bucket,
		Key:      key,
		UploadID: upload.UploadID,
	}

	setEncryptionHeaders(w, upload.KMSKeyID)
	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode create multipart upload XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleUploadPart implements UploadPart: PUT /bucket/key?partNumber=N&uploadId=ID
func (s *Server) handleUploadPart(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string, partNumber int) {
	defer r.Body.Close()

	body, _ := requestPayload(r)

	part, err := s.svc.UploadPart(ctx, bucket, key, uploadID, partNumber, body, r.Header.Get("Content-MD5"))
	if err != nil {
		s.writeError(w, r, "Upload part", err, "bucket", bucket, "key", key, "upload_id", uploadID, "part", partNumber)
		return
	}

	w.Header().Set("ETag", digest.Quote(part.ETag))
	w.WriteHeader(http.StatusOK)
}

// handleCompleteMultipartUpload implements CompleteMultipartUpload:
// POST /bucket/key?uploadId=ID
func (s *Server) handleCompleteMultipartUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string) {
	defer r.Body.Close()

	var req CompleteMultipartUpload
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("Decode complete multipart upload XML", "bucket", bucket, "key", key, "err", err)
		s.Config.Metrics.ObserveCompletion(s3err.ErrMalformedXML.Code)
		s.writeError(w, r, "Complete multipart upload", s3err.ErrMalformedXML)
		return
	}

	requested := make([]multipart.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		requested = append(requested, multipart.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	obj, err := s.svc.CompleteMultipartUpload(ctx, bucket, key, uploadID, requested)
	if err != nil {
		s.Config.Metrics.ObserveCompletion(s3err.As(err).Code)
		s.writeError(w, r, "Complete multipart upload", err, "bucket", bucket, "key", key, "upload_id", uploadID)
		return
	}
	s.Config.Metrics.ObserveCompletion("")

	resp := CompleteMultipartUploadResult{
		XMLNS:    S3XMLNamespace,
		Location: fmt.Sprintf("/%s/%s", bucket, key),
		Bucket:   bucket,
		Key:      key,
		ETag:     digest.Quote(obj.ETag),
	}

	setEncryptionHeaders(w, obj.KMSKeyID)
	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode complete multipart upload XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleAbortMultipartUpload implements AbortMultipartUpload:
// DELETE /bucket/key?uploadId=ID
func (s *Server) handleAbortMultipartUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string) {
	if err := s.svc.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		s.writeError(w, r, "Abort multipart upload", err, "bucket", bucket, "key", key, "upload_id", uploadID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// nonNegativeQueryInt parses an optional non-negative integer query parameter,
// returning def when absent.
func nonNegativeQueryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// handleListParts implements the ListParts API:
// GET /bucket/key?uploadId=ID[&part-number-marker=N][&max-parts=M]
func (s *Server) handleListParts(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string) {
	partNumberMarker, ok := nonNegativeQueryInt(r, "part-number-marker", 0)
	if !ok {
		writeS3Error(w, s3err.ErrInvalidArgument.Code, "The part-number-marker query parameter is invalid.", r.URL.Path, http.StatusBadRequest)
		return
	}

	maxParts, ok := nonNegativeQueryInt(r, "max-parts", defaultMaxParts)
	if !ok {
		writeS3Error(w, s3err.ErrInvalidArgument.Code, "The max-parts query parameter is invalid.", r.URL.Path, http.StatusBadRequest)
		return
	}
	maxParts = min(maxParts, defaultMaxParts)

	upload, parts, err := s.svc.ListParts(ctx, bucket, key, uploadID)
	if err != nil {
		s.writeError(w, r, "List parts", err, "bucket", bucket, "key", key, "upload_id", uploadID)
		return
	}

	var (
		listed               []ListPartsPart
		nextPartNumberMarker = partNumberMarker
		isTruncated          bool
	)

	for _, p := range parts {
		if p.PartNumber <= partNumberMarker {
			continue
		}
		if len(listed) == maxParts {
			isTruncated = true
			break
		}
		listed = append(listed, ListPartsPart{
			PartNumber:   p.PartNumber,
			LastModified: formatTime(p.LastModified),
			ETag:         digest.Quote(p.ETag),
			Size:         p.Size,
		})
		nextPartNumberMarker = p.PartNumber
	}

	owner := toOwner(upload.Owner)
	resp := ListPartsResult{
		XMLNS:                S3XMLNamespace,
		Bucket:               bucket,
		Key:                  key,
		UploadID:             uploadID,
		Initiator:            owner,
		Owner:                owner,
		StorageClass:         store.DefaultStorageClass,
		PartNumberMarker:     partNumberMarker,
		NextPartNumberMarker: nextPartNumberMarker,
		MaxParts:             maxParts,
		IsTruncated:          isTruncated,
		Parts:                listed,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode ListParts XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleListMultipartUploads implements ListMultipartUploads:
// GET /bucket?uploads[&prefix=&key-marker=&upload-id-marker=&max-uploads=]
func (s *Server) handleListMultipartUploads(ctx context.Context, w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	keyMarker := q.Get("key-marker")
	uploadIDMarker := q.Get("upload-id-marker")

	maxUploads, ok := nonNegativeQueryInt(r, "max-uploads", defaultMaxUploads)
	if !ok {
		writeS3Error(w, s3err.ErrInvalidArgument.Code, "The max-uploads query parameter is invalid.", r.URL.Path, http.StatusBadRequest)
		return
	}
	maxUploads = min(maxUploads, defaultMaxUploads)

	uploads, err := s.svc.ListMultipartUploads(ctx, bucket, prefix)
	if err != nil {
		s.writeError(w, r, "List multipart uploads", err, "bucket", bucket)
		return
	}

	resp := ListMultipartUploadsResult{
		XMLNS:          S3XMLNamespace,
		Bucket:         bucket,
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
		Prefix:         prefix,
		MaxUploads:     maxUploads,
	}

	// Without an upload id marker every upload of the marker key is skipped;
	// with one, listing resumes after that upload.
	pastMarker := keyMarker == ""
	for _, u := range uploads {
		if !pastMarker {
			if u.Key < keyMarker {
				continue
			}
			if u.Key == keyMarker {
				if uploadIDMarker != "" && u.UploadID == uploadIDMarker {
					pastMarker = true
				}
				continue
			}
			pastMarker = true
		}
		if len(resp.Uploads) == maxUploads {
			resp.IsTruncated = true
			break
		}

		owner := toOwner(u.Owner)
		resp.Uploads = append(resp.Uploads, MultipartUploadInfo{
			Key:          u.Key,
			UploadID:     u.UploadID,
			Initiator:    owner,
			Owner:        owner,
			StorageClass: store.DefaultStorageClass,
			Initiated:    formatTime(u.Initiated),
		})
		resp.NextKeyMarker = u.Key
		resp.NextUploadIDMarker = u.UploadID
	}

	if !resp.IsTruncated {
		resp.NextKeyMarker = ""
		resp.NextUploadIDMarker = ""
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode ListMultipartUploads XML", "bucket", bucket, "err", err)
	}
}
