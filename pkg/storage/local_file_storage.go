package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFileStorage is a StorageEngine implementation that stores payloads on
// the local filesystem rooted at dataDir:
//
//	objects/<bucket>/<hash[:2]>/<hash>   object payloads, hash is SHA-256 hex
//	uploads/<uploadId>/part-NNNNNN       multipart part payloads
//	tmp/                                 in-flight writes
type LocalFileStorage struct {
	dataDir string
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir.
func NewLocalFileStorage(dataDir string) *LocalFileStorage {
	return &LocalFileStorage{dataDir: dataDir}
}

// ObjectPath computes the full filesystem path for the object identified by
// hashHex within the given bucket.
func ObjectPath(directory string, bucket string, hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	subdir := hashHex[:2]
	return filepath.Join(directory, "objects", bucket, subdir, hashHex), nil
}

// PartPath computes the filesystem path of a multipart part payload.
func PartPath(directory string, uploadID string, partNumber int) string {
	return filepath.Join(directory, "uploads", uploadID, fmt.Sprintf("part-%06d", partNumber))
}

// LocateExistingObject finds payloads in other buckets with the same hash
// and size as targetObject.
func LocateExistingObject(directory string, targetObject string, hashHex string, size int64) []string {
	subdir := hashHex[:2]
	pattern := filepath.Join(directory, "objects", "*", subdir, hashHex)
	matches, _ := filepath.Glob(pattern)

	results := make([]string, 0)
	for _, existing := range matches {
		if existing == targetObject {
			continue
		}

		info, err := os.Stat(existing)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if info.Size() != size {
			continue
		}

		results = append(results, existing)
	}

	return results
}

func (s *LocalFileStorage) CreateTemp(pattern string) (*os.File, error) {
	tmpDir := filepath.Join(s.dataDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}
	return os.CreateTemp(tmpDir, pattern)
}

// PutObjectFromFile stores an object whose payload already exists on disk at
// tempPath. hashHex must be the SHA-256 of the content: an existing file
// with the same hash and size is taken to hold the same bytes. If the same
// payload already exists in any bucket it is hard
// linked instead of kept twice; either way tempPath no longer exists
// afterwards.
func (s *LocalFileStorage) PutObjectFromFile(bucket string, hashHex string, tempPath string, size int64) error {
	objPath, err := ObjectPath(s.dataDir, bucket, hashHex)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(objPath); err == nil && info.Size() == size {
		return os.Remove(tempPath)
	}

	for _, existing := range LocateExistingObject(s.dataDir, objPath, hashHex, size) {
		if err := CopyOrLinkFile(existing, objPath); err == nil {
			return os.Remove(tempPath)
		}
	}

	return MoveFile(tempPath, objPath)
}

func (s *LocalFileStorage) OpenObject(bucket string, hashHex string) (io.ReadSeekCloser, error) {
	objPath, err := ObjectPath(s.dataDir, bucket, hashHex)
	if err != nil {
		return nil, err
	}
	return os.Open(objPath)
}

// DeleteObject unlinks the bucket's payload. Copies hard linked into other
// buckets keep their own link and are unaffected.
func (s *LocalFileStorage) DeleteObject(bucket string, hashHex string) error {
	objPath, err := ObjectPath(s.dataDir, bucket, hashHex)
	if err != nil {
		return err
	}
	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalFileStorage) BucketPath(bucket string) string {
	return filepath.Join(s.dataDir, "objects", bucket)
}

// DeleteBucket removes all on-disk payloads for the given bucket by
// recursively deleting the bucket's directory under the storage root.
func (s *LocalFileStorage) DeleteBucket(bucket string) error {
	return os.RemoveAll(s.BucketPath(bucket))
}

func (s *LocalFileStorage) PutPartFromFile(uploadID string, partNumber int, tempPath string) error {
	partPath := PartPath(s.dataDir, uploadID, partNumber)
	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		return err
	}
	return MoveFile(tempPath, partPath)
}

func (s *LocalFileStorage) OpenPart(uploadID string, partNumber int) (io.ReadSeekCloser, error) {
	return os.Open(PartPath(s.dataDir, uploadID, partNumber))
}

func (s *LocalFileStorage) DeleteUpload(uploadID string) error {
	return os.RemoveAll(filepath.Join(s.dataDir, "uploads", uploadID))
}
