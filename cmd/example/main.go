// Command example walks a running s3mock through the operations it
// emulates using the MinIO client.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	BucketName    = "example-bucket"
	OtherBucket   = "another-bucket"
	ObjectName    = "example.txt"
	ObjectContent = "Hello from the s3mock example!\n"

	// MinPartSize is the smallest size allowed for any part but the last.
	MinPartSize = 5 * 1024 * 1024
)

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
		}
	}
	return nil
}

// UploadFile uploads an object with a user metadata entry.
func UploadFile(ctx context.Context, client *minio.Client, bucketName string, objectName string, objectContent []byte) error {
	info, err := client.PutObject(ctx, bucketName, objectName, bytes.NewReader(objectContent), int64(len(objectContent)), minio.PutObjectOptions{
		ContentType:  "text/plain",
		UserMetadata: map[string]string{"source": "example"},
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", objectName, bucketName, err)
	}

	slog.Info("Uploaded object", "bucket", bucketName, "object", objectName, "etag", info.ETag)
	return nil
}

// ListDirectory lists one level of a bucket: objects directly under prefix
// and the common prefixes below it.
func ListDirectory(ctx context.Context, client *minio.Client, bucketName string, prefix string) error {
	slog.Info("Listing bucket level", "bucket", bucketName, "prefix", prefix)
	for objectInfo := range client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Prefix: prefix}) {
		if objectInfo.Err != nil {
			return fmt.Errorf("failed to list objects in bucket %q: %w", bucketName, objectInfo.Err)
		}
		if strings.HasSuffix(objectInfo.Key, "/") && objectInfo.ETag == "" {
			slog.Info("Common prefix", "prefix", objectInfo.Key)
			continue
		}
		slog.Info("Object", "key", objectInfo.Key, "size", objectInfo.Size, "etag", objectInfo.ETag)
	}
	return nil
}

// ReadObject fetches an object and checks its content.
func ReadObject(ctx context.Context, client *minio.Client, bucketName string, objectName string, want []byte) error {
	obj, err := client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object %q: %w", objectName, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return fmt.Errorf("failed to read object %q: %w", objectName, err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		return fmt.Errorf("object %q content mismatch", objectName)
	}

	stat, err := obj.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat object %q: %w", objectName, err)
	}
	slog.Info("Read object", "object", objectName, "size", stat.Size, "metadata", stat.UserMetadata)
	return nil
}

func CopyObject(ctx context.Context, client *minio.Client, srcBucket string, srcObject string, destBucket string, destObject string) error {
	copySrc := minio.CopySrcOptions{Bucket: srcBucket, Object: srcObject}
	copyDst := minio.CopyDestOptions{Bucket: destBucket, Object: destObject}
	if _, err := client.CopyObject(ctx, copyDst, copySrc); err != nil {
		return fmt.Errorf("failed to copy object from %q/%q to %q/%q: %w", srcBucket, srcObject, destBucket, destObject, err)
	}
	slog.Info("Copied object", "source_bucket", srcBucket, "source_object", srcObject, "dest_bucket", destBucket, "dest_object", destObject)
	return nil
}

func newCore(client *minio.Client) (*minio.Core, error) {
	creds, err := client.GetCreds()
	if err != nil {
		return nil, fmt.Errorf("failed to get client credentials: %w", err)
	}

	endpointURL := client.EndpointURL()
	return minio.NewCore(endpointURL.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure:       endpointURL.Scheme == "https",
		BucketLookup: minio.BucketLookupPath,
	})
}

// uploadParts uploads each payload as a part and returns the parts to
// complete with.
func uploadParts(ctx context.Context, coreClient *minio.Core, bucket, object, uploadID string, payloads [][]byte) ([]minio.CompletePart, error) {
	var parts []minio.CompletePart
	for i, data := range payloads {
		partNumber := i + 1
		objPart, err := coreClient.PutObjectPart(ctx, bucket, object, uploadID, partNumber, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}
		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: objPart.ETag})
	}
	return parts, nil
}

// MultipartUploadExample assembles an object from two full-size parts and
// a short last part, then shows that undersized parts are refused.
func MultipartUploadExample(ctx context.Context, client *minio.Client, bucket string) error {
	const object = "core-multipart-object.bin"

	coreClient, err := newCore(client)
	if err != nil {
		return fmt.Errorf("failed to create core client: %w", err)
	}

	uploadID, err := coreClient.NewMultipartUpload(ctx, bucket, object, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	log := slog.With("bucket", bucket, "object", object, "upload_id", uploadID)
	log.Info("Started multipart upload")

	payloads := [][]byte{
		bytes.Repeat([]byte("A"), MinPartSize),
		bytes.Repeat([]byte("B"), MinPartSize),
		[]byte("short last part"),
	}

	parts, err := uploadParts(ctx, coreClient, bucket, object, uploadID, payloads)
	if err != nil {
		return err
	}

	info, err := coreClient.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	log.Info("Completed multipart upload", "etag", info.ETag)

	// A non-last part below the minimum size fails completion.
	smallID, err := coreClient.NewMultipartUpload(ctx, bucket, "too-small.bin", minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	parts, err = uploadParts(ctx, coreClient, bucket, "too-small.bin", smallID, [][]byte{[]byte("a"), []byte("b")})
	if err != nil {
		return err
	}

	_, err = coreClient.CompleteMultipartUpload(ctx, bucket, "too-small.bin", smallID, parts, minio.PutObjectOptions{})
	if code := minio.ToErrorResponse(err).Code; code != "EntityTooSmall" {
		return fmt.Errorf("expected EntityTooSmall, got %v", err)
	}
	slog.Info("Undersized parts refused", "upload_id", smallID)

	for u := range client.ListIncompleteUploads(ctx, bucket, "", true) {
		if u.Err != nil {
			return fmt.Errorf("failed to list uploads: %w", u.Err)
		}
		slog.Info("Aborting upload", "key", u.Key, "upload_id", u.UploadID)
		if err := coreClient.AbortMultipartUpload(ctx, bucket, u.Key, u.UploadID); err != nil {
			return fmt.Errorf("failed to abort upload %q: %w", u.UploadID, err)
		}
	}

	return nil
}

// Cleanup deletes every object in the bucket in one batch and then the
// bucket itself.
func Cleanup(ctx context.Context, client *minio.Client, bucket string) error {
	objects := client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true})

	var errs []error
	for res := range client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, res.Err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to empty bucket %q: %w", bucket, err)
	}

	if err := client.RemoveBucket(ctx, bucket); err != nil {
		return fmt.Errorf("failed to remove bucket %q: %w", bucket, err)
	}
	slog.Info("Removed bucket", "bucket", bucket)
	return nil
}

func Run(ctx context.Context, client *minio.Client) error {
	for _, bucket := range []string{BucketName, OtherBucket} {
		if err := EnsureBucket(ctx, client, bucket); err != nil {
			return fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}

	if err := UploadFile(ctx, client, BucketName, ObjectName, []byte(ObjectContent)); err != nil {
		return err
	}

	if err := ReadObject(ctx, client, BucketName, ObjectName, []byte(ObjectContent)); err != nil {
		return err
	}

	if err := CopyObject(ctx, client, BucketName, ObjectName, BucketName, "some/path/example_copy.txt"); err != nil {
		return err
	}

	if err := CopyObject(ctx, client, BucketName, ObjectName, OtherBucket, "reports/2024/example.txt"); err != nil {
		return err
	}

	if err := ListDirectory(ctx, client, BucketName, ""); err != nil {
		return err
	}

	if err := ListDirectory(ctx, client, OtherBucket, "reports/"); err != nil {
		return err
	}

	if err := MultipartUploadExample(ctx, client, BucketName); err != nil {
		return fmt.Errorf("failed to run multipart upload example: %w", err)
	}

	// A bucket that still holds objects cannot be removed.
	err := client.RemoveBucket(ctx, OtherBucket)
	if code := minio.ToErrorResponse(err).Code; code != "BucketNotEmpty" {
		return fmt.Errorf("expected BucketNotEmpty, got %v", err)
	}

	for _, bucket := range []string{BucketName, OtherBucket} {
		if err := Cleanup(ctx, client, bucket); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	endpoint := getenv("S3MOCK_ENDPOINT", "localhost:9090")
	accessKey := getenv("S3MOCK_ACCESS_KEY", "s3mock")
	secretKey := getenv("S3MOCK_SECRET_KEY", "s3mock")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       false,
		BucketLookup: minio.BucketLookupPath,
	})

	if err != nil {
		slog.Error("failed to create MinIO client", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := Run(ctx, client); err != nil {
		slog.Error("error running example", "err", err)
		os.Exit(1)
	}
}
