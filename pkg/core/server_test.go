package core_test

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eteran/s3mock/pkg/core"
	"github.com/eteran/s3mock/pkg/metrics"
	"github.com/eteran/s3mock/pkg/service"
	"github.com/eteran/s3mock/pkg/store"

	"github.com/stretchr/testify/require"
)

var testOwner = store.Owner{ID: "123", DisplayName: "s3-mock-file-store"}

// NewTestServer creates a Server backed by a temporary data directory and
// returns it along with an httptest.Server wrapping its handler.
func NewTestServer(t *testing.T) (*core.Server, *httptest.Server) {
	t.Helper()

	svc, err := service.Open(t.Context(), t.TempDir(), testOwner)
	require.NoError(t, err, "opening service")

	srv := core.NewServer(svc, core.NewConfig(
		core.WithRegion("us-east-1"),
		core.WithMetrics(metrics.New()),
	))
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() { _ = svc.Close() })
	t.Cleanup(httpSrv.Close)

	return srv, httpSrv
}

type RequestOption func(*http.Request)

func WithContentType(contentType string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Content-Type", contentType)
	}
}

func WithContent(body []byte) func(*http.Request) {
	return func(req *http.Request) {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/octet-stream")
		}
	}
}

func WithHeader(key string, value string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

func DoMethod(t *testing.T, method string, url string, opts ...RequestOption) *http.Response {
	t.Helper()
	client := http.DefaultClient
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	require.NoError(t, err, "creating "+method+" request")
	for _, opt := range opts {
		opt(req)
	}
	resp, err := client.Do(req)
	require.NoErrorf(t, err, "%s %s error", method, url)
	return resp
}

func DoPut(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodPut, url, opts...)
}

func DoGet(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodGet, url, opts...)
}

func DoHead(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodHead, url, opts...)
}

func DoDelete(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodDelete, url, opts...)
}

func DoPost(t *testing.T, url string, opts ...RequestOption) *http.Response {
	return DoMethod(t, http.MethodPost, url, opts...)
}

// WithXMLBody encodes v as XML and attaches it as the request body with
// Content-Type set to application/xml.
func WithXMLBody(t *testing.T, v any) RequestOption {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, xml.NewEncoder(&buf).Encode(v), "encoding XML body")
	body := buf.Bytes()
	return func(req *http.Request) {
		WithContent(body)(req)
		WithContentType("application/xml")(req)
	}
}

// DecodeS3Error decodes a minimal S3 error response and returns its Code.
func DecodeS3Error(t *testing.T, r io.Reader) string {
	t.Helper()
	var s3Err struct {
		Code string `xml:"Code"`
	}
	require.NoError(t, xml.NewDecoder(r).Decode(&s3Err), "decoding S3 error XML")
	return s3Err.Code
}

// DecodeXML decodes a response body into v.
func DecodeXML(t *testing.T, r io.Reader, v any) {
	t.Helper()
	require.NoError(t, xml.NewDecoder(r).Decode(v), "decoding XML response")
}

func RequireS3Error(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, status, resp.StatusCode, "status")
	require.Equal(t, code, DecodeS3Error(t, resp.Body), "error code")
}

func CreateBucket(t *testing.T, httpSrv *httptest.Server, bucket string) {
	t.Helper()
	resp := DoPut(t, httpSrv.URL+"/"+bucket)
	defer resp.Body.Close()
	require.Equalf(t, http.StatusOK, resp.StatusCode, "PUT bucket %s status", bucket)
}

func PutObject(t *testing.T, httpSrv *httptest.Server, bucket string, key string, body []byte, opts ...RequestOption) *http.Response {
	t.Helper()
	opts = append([]RequestOption{WithContent(body)}, opts...)
	return DoPut(t, httpSrv.URL+"/"+bucket+"/"+key, opts...)
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestCreateAndListBuckets(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)

	for _, b := range []string{"bucket2", "bucket1"} {
		CreateBucket(t, httpSrv, b)
	}

	resp := DoGet(t, httpSrv.URL+"/")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET / status")
	require.NotEmpty(t, resp.Header.Get("X-Amz-Request-Id"))

	var result core.ListAllMyBucketsResult
	DecodeXML(t, resp.Body, &result)

	require.Equal(t, testOwner.ID, result.Owner.ID)
	require.Equal(t, testOwner.DisplayName, result.Owner.DisplayName)
	require.Len(t, result.Buckets, 2)
	require.Equal(t, "bucket1", result.Buckets[0].Name)
	require.Equal(t, "bucket2", result.Buckets[1].Name)
	require.NotEmpty(t, result.Buckets[0].CreationDate)
}

func TestCreateExistingBucket(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	RequireS3Error(t, DoPut(t, httpSrv.URL+"/bucket"), http.StatusConflict, "BucketAlreadyOwnedByYou")
}

func TestInvalidBucketNames(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)

	for _, name := range []string{"ab", "Invalid_Bucket", "bad..name", "192.168.1.1", "-leading"} {
		t.Run(name, func(t *testing.T) {
			RequireS3Error(t, DoPut(t, httpSrv.URL+"/"+name), http.StatusBadRequest, "InvalidBucketName")
		})
	}
}

func TestHeadBucket(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	resp := DoHead(t, httpSrv.URL+"/bucket")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "us-east-1", resp.Header.Get("X-Amz-Bucket-Region"))

	resp = DoHead(t, httpSrv.URL+"/missing-bucket")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetBucketLocation(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	resp := DoGet(t, httpSrv.URL+"/bucket?location")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loc core.LocationConstraint
	DecodeXML(t, resp.Body, &loc)
	require.Empty(t, loc.Region, "us-east-1 is reported as an empty constraint")

	RequireS3Error(t, DoGet(t, httpSrv.URL+"/missing-bucket?location"), http.StatusNotFound, "NoSuchBucket")
}

func TestPutGetHeadDeleteObject(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	body := []byte("hello world")
	objectURL := httpSrv.URL + "/bucket/dir/hello.txt"

	resp := PutObject(t, httpSrv, "bucket", "dir/hello.txt", body,
		WithContentType("text/plain"),
		WithHeader("Content-Encoding", "identity"),
		WithHeader("X-Amz-Meta-Color", "blue"),
		WithHeader("X-Amz-Server-Side-Encryption-Aws-Kms-Key-Id", "key-1"),
	)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "PUT object status")
	require.Equal(t, `"`+md5Hex(body)+`"`, resp.Header.Get("ETag"))
	require.Equal(t, "aws:kms", resp.Header.Get("X-Amz-Server-Side-Encryption"))

	resp = DoGet(t, objectURL)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET object status")
	require.Equal(t, body, got)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	require.Equal(t, "identity", resp.Header.Get("Content-Encoding"))
	require.Equal(t, "blue", resp.Header.Get("X-Amz-Meta-Color"))
	require.Equal(t, "key-1", resp.Header.Get("X-Amz-Server-Side-Encryption-Aws-Kms-Key-Id"))
	require.NotEmpty(t, resp.Header.Get("Last-Modified"))

	resp = DoHead(t, objectURL)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "HEAD object status")
	require.Equal(t, fmt.Sprint(len(body)), resp.Header.Get("Content-Length"))
	require.Equal(t, `"`+md5Hex(body)+`"`, resp.Header.Get("ETag"))

	resp = DoDelete(t, objectURL)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode, "DELETE object status")

	RequireS3Error(t, DoGet(t, objectURL), http.StatusNotFound, "NoSuchKey")

	resp = DoHead(t, objectURL)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting again still succeeds.
	resp = DoDelete(t, objectURL)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPutObjectNoSuchBucket(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	RequireS3Error(t, PutObject(t, httpSrv, "missing-bucket", "key", []byte("x")), http.StatusNotFound, "NoSuchBucket")
}

func TestPutObjectContentMD5(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	body := []byte("checked content")
	sum := md5.Sum(body)
	other := md5.Sum([]byte("something else"))

	resp := PutObject(t, httpSrv, "bucket", "ok", body, WithHeader("Content-MD5", base64.StdEncoding.EncodeToString(sum[:])))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	RequireS3Error(t,
		PutObject(t, httpSrv, "bucket", "bad", body, WithHeader("Content-MD5", base64.StdEncoding.EncodeToString(other[:]))),
		http.StatusBadRequest, "BadDigest")
	RequireS3Error(t,
		PutObject(t, httpSrv, "bucket", "bad", body, WithHeader("Content-MD5", "not-base64!")),
		http.StatusBadRequest, "InvalidDigest")

	RequireS3Error(t, DoGet(t, httpSrv.URL+"/bucket/bad"), http.StatusNotFound, "NoSuchKey")
}

// chunkedBody frames data as an aws-chunked payload with fake signatures.
func chunkedBody(data []byte, chunkSize int) []byte {
	var buf bytes.Buffer
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		fmt.Fprintf(&buf, "%x;chunk-signature=%064d\r\n", n, 0)
		buf.Write(data[:n])
		buf.WriteString("\r\n")
		data = data[n:]
	}
	fmt.Fprintf(&buf, "0;chunk-signature=%064d\r\n\r\n", 0)
	return buf.Bytes()
}

func TestPutObjectStreamingPayload(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	data := bytes.Repeat([]byte("streaming-"), 1000)

	resp := PutObject(t, httpSrv, "bucket", "streamed", chunkedBody(data, 4096),
		WithHeader("X-Amz-Content-Sha256", "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"),
		WithHeader("X-Amz-Decoded-Content-Length", fmt.Sprint(len(data))),
		WithHeader("Content-Encoding", "aws-chunked,gzip"),
	)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `"`+md5Hex(data)+`"`, resp.Header.Get("ETag"))

	// Asking for identity keeps the transport from gunzipping the body.
	resp = DoGet(t, httpSrv.URL+"/bucket/streamed", WithHeader("Accept-Encoding", "identity"))
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"), "aws-chunked is not part of the object")

	RequireS3Error(t,
		PutObject(t, httpSrv, "bucket", "broken", []byte("zz\r\nnot a chunk"),
			WithHeader("X-Amz-Content-Sha256", "STREAMING-UNSIGNED-PAYLOAD-TRAILER")),
		http.StatusBadRequest, "InvalidRequest")
}

func TestGetObjectRange(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	resp := PutObject(t, httpSrv, "bucket", "digits", []byte("0123456789"))
	resp.Body.Close()

	resp = DoGet(t, httpSrv.URL+"/bucket/digits", WithHeader("Range", "bytes=2-5"))
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	require.Equal(t, "2345", string(got))

	etag := resp.Header.Get("ETag")
	resp = DoGet(t, httpSrv.URL+"/bucket/digits", WithHeader("If-None-Match", etag))
	resp.Body.Close()
	require.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestListObjects(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	for _, key := range []string{"a", "b", "b/1", "b/1/1", "b/2", "c/1", "d:1"} {
		resp := PutObject(t, httpSrv, "bucket", key, []byte(key))
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := DoGet(t, httpSrv.URL+"/bucket?delimiter=/")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result core.ListBucketResult
	DecodeXML(t, resp.Body, &result)

	var keys, prefixes []string
	for _, c := range result.Contents {
		keys = append(keys, c.Key)
		require.Equal(t, "STANDARD", c.StorageClass)
		require.NotNil(t, c.Owner)
		require.Equal(t, testOwner.ID, c.Owner.ID)
	}
	for _, p := range result.CommonPrefixes {
		prefixes = append(prefixes, p.Prefix)
	}

	require.Equal(t, []string{"a", "b", "d:1"}, keys)
	require.Equal(t, []string{"b/", "c/"}, prefixes)
	require.Equal(t, 1000, result.MaxKeys)
	require.False(t, result.IsTruncated)

	resp2 := DoGet(t, httpSrv.URL+"/bucket?delimiter=/&max-keys=2")
	defer resp2.Body.Close()
	var page core.ListBucketResult
	DecodeXML(t, resp2.Body, &page)
	require.True(t, page.IsTruncated)
	require.Equal(t, "b", page.NextMarker)
	require.Len(t, page.Contents, 2)

	RequireS3Error(t, DoGet(t, httpSrv.URL+"/missing-bucket"), http.StatusNotFound, "NoSuchBucket")
}

func TestListObjectsRejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	for _, query := range []string{"max-keys=-1", "max-keys=abc", "encoding-type=not_valid", "list-type=2&max-keys=-1"} {
		t.Run(query, func(t *testing.T) {
			RequireS3Error(t, DoGet(t, httpSrv.URL+"/bucket?"+query), http.StatusBadRequest, "InvalidArgument")
		})
	}
}

func TestListObjectsEncodingTypeURL(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	resp := PutObject(t, httpSrv, "bucket", "with%20space/file+1", []byte("x"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = DoGet(t, httpSrv.URL+"/bucket?encoding-type=url")
	defer resp.Body.Close()
	var result core.ListBucketResult
	DecodeXML(t, resp.Body, &result)

	require.Equal(t, "url", result.EncodingType)
	require.Len(t, result.Contents, 1)
	require.Equal(t, "with%20space/file%2B1", result.Contents[0].Key)
}

func TestListObjectsV2Pagination(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	var want []string
	for i := range 7 {
		key := fmt.Sprintf("obj-%02d", i)
		want = append(want, key)
		resp := PutObject(t, httpSrv, "bucket", key, []byte(key))
		resp.Body.Close()
	}

	var (
		got   []string
		token string
		pages int
	)
	for {
		url := httpSrv.URL + "/bucket?list-type=2&max-keys=3"
		if token != "" {
			url += "&continuation-token=" + token
		}
		resp := DoGet(t, url)
		var page core.ListBucketResultV2
		DecodeXML(t, resp.Body, &page)
		resp.Body.Close()

		pages++
		require.Equal(t, len(page.Contents), page.KeyCount)
		for _, c := range page.Contents {
			got = append(got, c.Key)
		}
		if !page.IsTruncated {
			break
		}
		require.NotEmpty(t, page.NextContinuationToken)
		token = page.NextContinuationToken
	}

	require.Equal(t, want, got)
	require.Equal(t, 3, pages)

	resp := DoGet(t, httpSrv.URL+"/bucket?list-type=2&start-after=obj-04")
	defer resp.Body.Close()
	var after core.ListBucketResultV2
	DecodeXML(t, resp.Body, &after)
	require.Len(t, after.Contents, 2)
	require.Equal(t, "obj-05", after.Contents[0].Key)
}

func TestDeleteBucket(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "full")
	CreateBucket(t, httpSrv, "empty")

	resp := PutObject(t, httpSrv, "full", "key", []byte("x"))
	resp.Body.Close()

	RequireS3Error(t, DoDelete(t, httpSrv.URL+"/full"), http.StatusConflict, "BucketNotEmpty")
	RequireS3Error(t, DoDelete(t, httpSrv.URL+"/unknown"), http.StatusNotFound, "NoSuchBucket")

	resp = DoDelete(t, httpSrv.URL+"/empty")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = DoHead(t, httpSrv.URL+"/empty")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCopyObject(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "src")
	CreateBucket(t, httpSrv, "dst")

	body := []byte("copy me")
	resp := PutObject(t, httpSrv, "src", "a b.txt", body, WithHeader("X-Amz-Meta-Origin", "src"))
	resp.Body.Close()

	resp = DoPut(t, httpSrv.URL+"/dst/copy.txt", WithHeader("X-Amz-Copy-Source", "/src/a%20b.txt"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result core.CopyObjectResult
	DecodeXML(t, resp.Body, &result)
	require.Equal(t, `"`+md5Hex(body)+`"`, result.ETag)

	resp = DoGet(t, httpSrv.URL+"/dst/copy.txt")
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, body, got)
	require.Equal(t, "src", resp.Header.Get("X-Amz-Meta-Origin"))

	RequireS3Error(t, DoPut(t, httpSrv.URL+"/dst/x", WithHeader("X-Amz-Copy-Source", "/src/missing")), http.StatusNotFound, "NoSuchKey")
	RequireS3Error(t, DoPut(t, httpSrv.URL+"/dst/x", WithHeader("X-Amz-Copy-Source", "no-key")), http.StatusBadRequest, "InvalidRequest")
}

func TestDeleteObjects(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	for _, key := range []string{"one", "two"} {
		resp := PutObject(t, httpSrv, "bucket", key, []byte(key))
		resp.Body.Close()
	}

	req := core.DeleteObjectsRequest{Objects: []core.ObjectIdentifier{{Key: "one"}, {Key: "two"}, {Key: "never-existed"}}}
	resp := DoPost(t, httpSrv.URL+"/bucket?delete", WithXMLBody(t, req))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result core.DeleteResult
	DecodeXML(t, resp.Body, &result)
	require.Len(t, result.Deleted, 3)
	require.Empty(t, result.Errors)

	resp = DoGet(t, httpSrv.URL+"/bucket")
	defer resp.Body.Close()
	var listing core.ListBucketResult
	DecodeXML(t, resp.Body, &listing)
	require.Empty(t, listing.Contents)

	RequireS3Error(t, DoPost(t, httpSrv.URL+"/bucket?delete", WithContent([]byte("<Delete>"))), http.StatusBadRequest, "MalformedXML")
}

func TestNotImplementedRoutes(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/bucket?versioning"},
		{http.MethodGet, "/bucket?lifecycle"},
		{http.MethodGet, "/bucket?versions"},
		{http.MethodDelete, "/bucket?policy"},
		{http.MethodPut, "/bucket/key?tagging"},
		{http.MethodGet, "/bucket/key?attributes"},
		{http.MethodPost, "/bucket/key?select"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			RequireS3Error(t, DoMethod(t, tt.method, httpSrv.URL+tt.path), http.StatusNotImplemented, "NotImplemented")
		})
	}
}

func TestMultipartErrorsOverHTTP(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	resp := DoPost(t, httpSrv.URL+"/bucket/big?uploads")
	var initiated core.InitiateMultipartUploadResult
	DecodeXML(t, resp.Body, &initiated)
	resp.Body.Close()
	require.NotEmpty(t, initiated.UploadID)

	uploadURL := httpSrv.URL + "/bucket/big?uploadId=" + initiated.UploadID

	for n := 1; n <= 2; n++ {
		resp = DoPut(t, fmt.Sprintf("%s&partNumber=%d", uploadURL, n), WithContent([]byte("tiny")))
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	RequireS3Error(t, DoPut(t, uploadURL+"&partNumber=0", WithContent([]byte("x"))), http.StatusBadRequest, "InvalidArgument")
	RequireS3Error(t, DoPut(t, uploadURL+"&partNumber=abc", WithContent([]byte("x"))), http.StatusBadRequest, "InvalidArgument")

	outOfOrder := core.CompleteMultipartUpload{Parts: []core.CompletePart{{PartNumber: 2}, {PartNumber: 1}}}
	RequireS3Error(t, DoPost(t, uploadURL, WithXMLBody(t, outOfOrder)), http.StatusBadRequest, "InvalidPartOrder")

	missing := core.CompleteMultipartUpload{Parts: []core.CompletePart{{PartNumber: 1}, {PartNumber: 3}}}
	RequireS3Error(t, DoPost(t, uploadURL, WithXMLBody(t, missing)), http.StatusBadRequest, "InvalidPart")

	inOrder := core.CompleteMultipartUpload{Parts: []core.CompletePart{{PartNumber: 1}, {PartNumber: 2}}}
	RequireS3Error(t, DoPost(t, uploadURL, WithXMLBody(t, inOrder)), http.StatusBadRequest, "EntityTooSmall")

	RequireS3Error(t, DoPost(t, uploadURL, WithContent([]byte("not xml"))), http.StatusBadRequest, "MalformedXML")

	unknown := httpSrv.URL + "/bucket/big?uploadId=does-not-exist"
	RequireS3Error(t, DoPost(t, unknown, WithXMLBody(t, inOrder)), http.StatusNotFound, "NoSuchUpload")
	RequireS3Error(t, DoGet(t, unknown), http.StatusNotFound, "NoSuchUpload")

	// ListParts reports both parts, paginated.
	resp = DoGet(t, uploadURL+"&max-parts=1")
	var parts core.ListPartsResult
	DecodeXML(t, resp.Body, &parts)
	resp.Body.Close()
	require.True(t, parts.IsTruncated)
	require.Len(t, parts.Parts, 1)
	require.Equal(t, 1, parts.NextPartNumberMarker)
	require.Equal(t, `"`+md5Hex([]byte("tiny"))+`"`, parts.Parts[0].ETag)

	resp = DoGet(t, uploadURL+"&part-number-marker=1")
	DecodeXML(t, resp.Body, &parts)
	resp.Body.Close()
	require.False(t, parts.IsTruncated)
	require.Len(t, parts.Parts, 1)
	require.Equal(t, 2, parts.Parts[0].PartNumber)

	resp = DoGet(t, httpSrv.URL+"/bucket?uploads")
	var uploads core.ListMultipartUploadsResult
	DecodeXML(t, resp.Body, &uploads)
	resp.Body.Close()
	require.Len(t, uploads.Uploads, 1)
	require.Equal(t, initiated.UploadID, uploads.Uploads[0].UploadID)
	require.Equal(t, testOwner.ID, uploads.Uploads[0].Owner.ID)

	resp = DoDelete(t, uploadURL)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	RequireS3Error(t, DoDelete(t, uploadURL), http.StatusNotFound, "NoSuchUpload")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	CreateBucket(t, httpSrv, "bucket")

	// A failed completion is counted by its error code.
	RequireS3Error(t, DoPost(t, httpSrv.URL+"/bucket/key?uploadId=nope", WithContent([]byte("<CompleteMultipartUpload/>"))), http.StatusNotFound, "NoSuchUpload")

	resp := DoGet(t, httpSrv.URL+"/metrics")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `s3mock_http_requests_total{code="200",method="PUT"} 1`)
	require.Contains(t, string(body), `s3mock_multipart_completions_total{outcome="NoSuchUpload"} 1`)

	// With a query string the path is an ordinary bucket.
	RequireS3Error(t, DoGet(t, httpSrv.URL+"/metrics?list-type=2"), http.StatusNotFound, "NoSuchBucket")
}

func TestTrailingSlashOnBucket(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)

	resp := DoPut(t, httpSrv.URL+"/bucket/")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Keys keep a trailing slash.
	resp = PutObject(t, httpSrv, "bucket", "folder/", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = DoGet(t, httpSrv.URL+"/bucket?prefix=folder")
	defer resp.Body.Close()
	var result core.ListBucketResult
	DecodeXML(t, resp.Body, &result)
	require.Len(t, result.Contents, 1)
	require.True(t, strings.HasSuffix(result.Contents[0].Key, "/"))
}
