// Package digest computes the content hashes used as S3 ETags and for
// Content-MD5 verification.
package digest

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/eteran/s3mock/pkg/s3err"

	md5simd "github.com/minio/md5-simd"
)

// Sum holds both encodings of one MD5 digest plus the number of bytes hashed.
type Sum struct {
	Hex    string
	Base64 string
	Size   int64
}

// Verify compares the sum against a base64 Content-MD5 value. An empty
// value always verifies.
func (s Sum) Verify(contentMD5 string) error {
	if contentMD5 == "" {
		return nil
	}

	want, err := base64.StdEncoding.DecodeString(strings.TrimSpace(contentMD5))
	if err != nil || len(want) != 16 {
		return s3err.ErrInvalidDigest
	}

	got, err := hex.DecodeString(s.Hex)
	if err != nil {
		return s3err.Internal(err)
	}

	if !bytes.Equal(want, got) {
		return s3err.ErrBadDigest
	}
	return nil
}

// Digester hands out MD5 hashers from a shared md5-simd server, which
// batches concurrent hashing across uploads.
type Digester struct {
	server md5simd.Server
}

// New creates a Digester. Close it to release the hashing server.
func New() *Digester {
	return &Digester{server: md5simd.NewServer()}
}

// Close releases the underlying hashing server.
func (d *Digester) Close() {
	d.server.Close()
}

// Digest reads r to EOF and returns its digest.
func (d *Digester) Digest(r io.Reader) (Sum, error) {
	dr := d.NewReader(r)
	defer dr.Close()

	if _, err := io.Copy(io.Discard, dr); err != nil {
		return Sum{}, err
	}
	return dr.Sum(), nil
}

// Reader digests everything read through it.
type Reader struct {
	r io.Reader
	h md5simd.Hasher
	n int64
}

// NewReader wraps r so that the data the caller streams elsewhere is hashed
// in the same pass.
func (d *Digester) NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: d.server.NewHash()}
}

func (dr *Reader) Read(p []byte) (int, error) {
	n, err := dr.r.Read(p)
	if n > 0 {
		_, _ = dr.h.Write(p[:n])
		dr.n += int64(n)
	}
	return n, err
}

// Sum returns the digest of the bytes read so far.
func (dr *Reader) Sum() Sum {
	raw := dr.h.Sum(nil)
	return Sum{
		Hex:    hex.EncodeToString(raw),
		Base64: base64.StdEncoding.EncodeToString(raw),
		Size:   dr.n,
	}
}

// Close returns the hasher to the server.
func (dr *Reader) Close() {
	dr.h.Close()
}

// MultipartETag computes the ETag of an object assembled from parts: the
// MD5 of the concatenated binary part digests, suffixed with the part count.
func (d *Digester) MultipartETag(partETags []string) (string, error) {
	h := d.server.NewHash()
	defer h.Close()

	for _, etag := range partETags {
		raw, err := hex.DecodeString(TrimETag(etag))
		if err != nil {
			return "", fmt.Errorf("part etag %q: %w", etag, err)
		}
		_, _ = h.Write(raw)
	}

	return fmt.Sprintf("%s-%d", hex.EncodeToString(h.Sum(nil)), len(partETags)), nil
}

// TrimETag strips the surrounding quotes clients send with ETags.
func TrimETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), "\"")
}

// Quote formats a hex digest as an HTTP ETag value.
func Quote(etag string) string {
	return "\"" + etag + "\""
}
