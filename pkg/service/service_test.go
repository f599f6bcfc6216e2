package service_test

import (
	"bytes"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/eteran/s3mock/pkg/multipart"
	"github.com/eteran/s3mock/pkg/s3err"
	"github.com/eteran/s3mock/pkg/service"
	"github.com/eteran/s3mock/pkg/store"

	"github.com/stretchr/testify/require"
)

var testOwner = store.Owner{ID: "123", DisplayName: "s3-mock-file-store"}

var allObjects = []string{
	"3330/0", "33309/0", "a",
	"b", "b/1", "b/1/1", "b/1/2", "b/2",
	"c/1", "c/1/1",
	"d:1", "d:1:1",
	"eor.txt", "foo/eor.txt",
}

func newService(t *testing.T) *service.Service {
	t.Helper()

	svc, err := service.Open(t.Context(), t.TempDir(), testOwner)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func putString(t *testing.T, svc *service.Service, bucket, key, body string) store.StoredObject {
	t.Helper()

	obj, err := svc.PutObject(t.Context(), store.PutObjectInput{
		Bucket:      bucket,
		Key:         key,
		ContentType: "text/plain",
		Body:        strings.NewReader(body),
	})
	require.NoError(t, err)
	return obj
}

func keysOf(objects []store.StoredObject) []string {
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		out = append(out, o.Key)
	}
	return out
}

func TestBucketOperations(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()

	_, err := svc.CreateBucket(ctx, "Invalid_Name")
	require.ErrorIs(t, err, s3err.ErrInvalidBucketName)

	_, err = svc.CreateBucket(ctx, "bucket-a")
	require.NoError(t, err)

	_, err = svc.CreateBucket(ctx, "bucket-a")
	require.ErrorIs(t, err, s3err.ErrBucketAlreadyOwnedByYou)
	require.Equal(t, 409, s3err.As(err).HTTPStatus())

	require.NoError(t, svc.EnsureBuckets(ctx, "bucket-a", "bucket-b"))

	buckets, owner, err := svc.ListBuckets(ctx)
	require.NoError(t, err)
	require.Equal(t, testOwner, owner)
	require.Len(t, buckets, 2)

	exists, err := svc.BucketExists(ctx, "bucket-b")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDeleteBucketOutcomes(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()

	require.NoError(t, svc.EnsureBuckets(ctx, "empty", "full"))
	putString(t, svc, "full", "object", "content")

	require.NoError(t, svc.DeleteBucket(ctx, "empty"), "an empty bucket deletes")

	err := svc.DeleteBucket(ctx, "full")
	require.ErrorIs(t, err, s3err.ErrBucketNotEmpty)
	require.True(t, s3err.IsKind(err, s3err.KindConflict))

	err = svc.DeleteBucket(ctx, "unknown")
	require.ErrorIs(t, err, s3err.ErrNoSuchBucket)
	require.True(t, s3err.IsKind(err, s3err.KindNotFound))
}

func TestListObjectsValidation(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	_, err := svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", MaxKeys: "-1"})
	require.ErrorIs(t, err, s3err.ErrInvalidMaxKeys)
	require.True(t, s3err.IsKind(err, s3err.KindValidation))

	_, err = svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", EncodingType: "not_valid"})
	require.ErrorIs(t, err, s3err.ErrInvalidEncodingType)
	require.True(t, s3err.IsKind(err, s3err.KindValidation))

	_, err = svc.ListObjectsV2(ctx, service.ListObjectsV2Input{Bucket: "bucket", MaxKeys: "-1"})
	require.ErrorIs(t, err, s3err.ErrInvalidMaxKeys)

	_, err = svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "missing"})
	require.ErrorIs(t, err, s3err.ErrNoSuchBucket)
}

func TestListObjectsGroupsByDelimiter(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	for _, key := range allObjects {
		putString(t, svc, "bucket", key, key)
	}

	res, err := svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "d:1", "d:1:1", "eor.txt"}, keysOf(res.Contents))
	require.Equal(t, []string{"3330/", "33309/", "b/", "c/", "foo/"}, res.CommonPrefixes)
	require.False(t, res.IsTruncated)
	require.Equal(t, testOwner, res.Owner)
	for _, c := range res.Contents {
		require.Equal(t, testOwner, c.Owner)
		require.Equal(t, store.DefaultStorageClass, c.StorageClass)
	}

	res, err = svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", Prefix: "b/", Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"b/1", "b/2"}, keysOf(res.Contents))
	require.Equal(t, []string{"b/1/"}, res.CommonPrefixes)

	res, err = svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", Prefix: "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "b/1", "b/1/1", "b/1/2", "b/2"}, keysOf(res.Contents))
	require.Empty(t, res.CommonPrefixes)
}

func TestListObjectsPagination(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	for _, key := range allObjects {
		putString(t, svc, "bucket", key, key)
	}

	var (
		seen   []string
		marker string
	)
	for {
		res, err := svc.ListObjects(ctx, service.ListObjectsInput{Bucket: "bucket", Delimiter: "/", Marker: marker, MaxKeys: "2"})
		require.NoError(t, err)
		seen = append(seen, keysOf(res.Contents)...)
		seen = append(seen, res.CommonPrefixes...)
		if !res.IsTruncated {
			break
		}
		require.NotEmpty(t, res.NextMarker)
		marker = res.NextMarker
	}
	require.ElementsMatch(t, []string{"a", "b", "d:1", "d:1:1", "eor.txt", "3330/", "33309/", "b/", "c/", "foo/"}, seen)

	var (
		v2Keys []string
		token  string
	)
	for {
		res, err := svc.ListObjectsV2(ctx, service.ListObjectsV2Input{Bucket: "bucket", ContinuationToken: token, MaxKeys: "5"})
		require.NoError(t, err)
		require.Equal(t, len(res.Contents), res.KeyCount)
		v2Keys = append(v2Keys, keysOf(res.Contents)...)
		if !res.IsTruncated {
			require.Empty(t, res.NextContinuationToken)
			break
		}
		token = res.NextContinuationToken
	}
	require.Equal(t, []string{
		"3330/0", "33309/0", "a", "b", "b/1", "b/1/1", "b/1/2", "b/2",
		"c/1", "c/1/1", "d:1", "d:1:1", "eor.txt", "foo/eor.txt",
	}, v2Keys)

	res, err := svc.ListObjectsV2(ctx, service.ListObjectsV2Input{Bucket: "bucket", StartAfter: "d:1:1"})
	require.NoError(t, err)
	require.Equal(t, []string{"eor.txt", "foo/eor.txt"}, keysOf(res.Contents))

	_, err = svc.ListObjectsV2(ctx, service.ListObjectsV2Input{Bucket: "bucket", ContinuationToken: "!!!"})
	require.ErrorIs(t, err, s3err.ErrInvalidArgument)
}

func TestObjectOperations(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	_, err := svc.PutObject(ctx, store.PutObjectInput{Bucket: "bucket", Key: "", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, s3err.ErrInvalidObjectName)

	_, err = svc.PutObject(ctx, store.PutObjectInput{Bucket: "bucket", Key: "k", Body: strings.NewReader("x"), Multipart: true, ETag: "abc-1"})
	require.ErrorIs(t, err, s3err.ErrInvalidRequest)

	_, err = svc.PutObject(ctx, store.PutObjectInput{Bucket: "missing", Key: "k", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, s3err.ErrNoSuchBucket)

	put := putString(t, svc, "bucket", "k", "hello")

	head, err := svc.HeadObject(ctx, "bucket", "k")
	require.NoError(t, err)
	require.Equal(t, put.ETag, head.ETag)

	_, rc, err := svc.GetObject(ctx, "bucket", "k")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "hello", string(body))

	require.NoError(t, svc.DeleteObject(ctx, "bucket", "k"))
	_, err = svc.HeadObject(ctx, "bucket", "k")
	require.ErrorIs(t, err, s3err.ErrNoSuchKey)

	_, err = svc.HeadObject(ctx, "missing", "k")
	require.ErrorIs(t, err, s3err.ErrNoSuchBucket)
}

func TestMultipartThroughService(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	upload, err := svc.CreateMultipartUpload(ctx, multipart.InitiateInput{Bucket: "bucket", Key: "big"})
	require.NoError(t, err)

	for _, n := range []int{0, multipart.MaxPartNumber + 1} {
		_, err = svc.UploadPart(ctx, "bucket", "big", upload.UploadID, n, strings.NewReader("x"), "")
		require.ErrorIs(t, err, s3err.ErrInvalidArgument, "part number %d", n)
	}

	first := bytes.Repeat([]byte("z"), multipart.MinPartSize)
	_, err = svc.UploadPart(ctx, "bucket", "big", upload.UploadID, 1, bytes.NewReader(first), "")
	require.NoError(t, err)
	_, err = svc.UploadPart(ctx, "bucket", "big", upload.UploadID, 2, strings.NewReader("end"), "")
	require.NoError(t, err)

	parts, err := svc.GetUploadParts(ctx, "bucket", "big", upload.UploadID)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	unknown, err := svc.GetUploadParts(ctx, "bucket", "big", "unknown")
	require.NoError(t, err)
	require.Empty(t, unknown, "unknown uploads have no parts")

	uploads, err := svc.ListMultipartUploads(ctx, "bucket", "")
	require.NoError(t, err)
	require.Len(t, uploads, 1)

	obj, err := svc.CompleteMultipartUpload(ctx, "bucket", "big", upload.UploadID, []multipart.CompletedPart{
		{PartNumber: 1}, {PartNumber: 2},
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(obj.ETag, "-2"))
	require.Equal(t, int64(multipart.MinPartSize+3), obj.Size)

	_, err = svc.CompleteMultipartUpload(ctx, "bucket", "big", upload.UploadID, []multipart.CompletedPart{{PartNumber: 1}})
	require.ErrorIs(t, err, s3err.ErrNoSuchUpload)

	other, err := svc.CreateMultipartUpload(ctx, multipart.InitiateInput{Bucket: "bucket", Key: "aborted"})
	require.NoError(t, err)
	require.NoError(t, svc.AbortMultipartUpload(ctx, "bucket", "aborted", other.UploadID))
	_, _, err = svc.ListParts(ctx, "bucket", "aborted", other.UploadID)
	require.ErrorIs(t, err, s3err.ErrNoSuchUpload)
}

func TestCopyObject(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "src", "dst"))

	_, err := svc.PutObject(ctx, store.PutObjectInput{
		Bucket:       "src",
		Key:          "a.txt",
		ContentType:  "text/plain",
		Body:         strings.NewReader("payload"),
		UserMetadata: map[string]string{"color": "blue"},
	})
	require.NoError(t, err)

	copied, err := svc.CopyObject(ctx, "src", "a.txt", "dst", "b.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain", copied.ContentType)

	head, err := svc.HeadObject(ctx, "dst", "b.txt")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"color": "blue"}, head.UserMetadata)
	require.Equal(t, int64(len("payload")), head.Size)

	_, err = svc.CopyObject(ctx, "src", "missing", "dst", "c.txt")
	require.ErrorIs(t, err, s3err.ErrNoSuchKey)
}

func TestObjectsWithSameMD5KeepTheirContent(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := t.Context()
	require.NoError(t, svc.EnsureBuckets(ctx, "bucket"))

	a, err := hex.DecodeString("d131dd02c5e6eec4693d9a0698aff95c2fcab58712467eab4004583eb8fb7f89" +
		"55ad340609f4b30283e488832571415a085125e8f7cdc99fd91dbdf280373c5b" +
		"d8823e3156348f5bae6dacd436c919c6dd53e2b487da03fd02396306d248cda0" +
		"e99f33420f577ee8ce54b67080a80d1ec69821bcb6a8839396f9652b6ff72a70")
	require.NoError(t, err)
	b, err := hex.DecodeString("d131dd02c5e6eec4693d9a0698aff95c2fcab50712467eab4004583eb8fb7f89" +
		"55ad340609f4b30283e4888325f1415a085125e8f7cdc99fd91dbd7280373c5b" +
		"d8823e3156348f5bae6dacd436c919c6dd53e23487da03fd02396306d248cda0" +
		"e99f33420f577ee8ce54b67080280d1ec69821bcb6a8839396f965ab6ff72a70")
	require.NoError(t, err)

	for key, body := range map[string][]byte{"collide/a": a, "collide/b": b} {
		obj, err := svc.PutObject(ctx, store.PutObjectInput{Bucket: "bucket", Key: key, Body: bytes.NewReader(body)})
		require.NoError(t, err)
		require.Equal(t, "79054025255fb1a26e4bc422aef54eb4", obj.ETag)
	}

	_, err = svc.CopyObject(ctx, "bucket", "collide/b", "bucket", "copy/b")
	require.NoError(t, err)

	for key, want := range map[string][]byte{"collide/a": a, "collide/b": b, "copy/b": b} {
		_, rc, err := svc.GetObject(ctx, "bucket", key)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, want, got, "content of %s", key)
	}
}
