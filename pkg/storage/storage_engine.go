package storage

import (
	"io"
	"os"
)

// StorageEngine manages object payloads and multipart part files. Object
// payloads are organized into buckets and identified by the hexadecimal
// digest of their content; metadata lives elsewhere.
//
// Writers never expose partially written data: content is first written to a
// temporary file from CreateTemp and then moved into place.
type StorageEngine interface {
	// CreateTemp creates a temporary file on the same filesystem as the
	// payload store so that it can later be moved into place cheaply.
	CreateTemp(pattern string) (*os.File, error)

	// PutObjectFromFile moves the payload at tempPath into the bucket under
	// hashHex.
	PutObjectFromFile(bucket string, hashHex string, tempPath string, size int64) error

	// OpenObject opens the payload stored under hashHex in bucket.
	OpenObject(bucket string, hashHex string) (io.ReadSeekCloser, error)

	// DeleteObject removes the payload stored under hashHex in bucket. A
	// missing payload is not an error.
	DeleteObject(bucket string, hashHex string) error

	// BucketPath returns the directory holding the bucket's payloads.
	BucketPath(bucket string) string

	// DeleteBucket removes every payload belonging to bucket.
	DeleteBucket(bucket string) error

	// PutPartFromFile moves the part payload at tempPath into place for
	// the given upload, replacing an earlier upload of the same part.
	PutPartFromFile(uploadID string, partNumber int, tempPath string) error

	// OpenPart opens a stored part payload.
	OpenPart(uploadID string, partNumber int) (io.ReadSeekCloser, error)

	// DeleteUpload removes every part payload of an upload.
	DeleteUpload(uploadID string) error
}
