package digest_test

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/eteran/s3mock/pkg/digest"
	"github.com/eteran/s3mock/pkg/s3err"

	"github.com/stretchr/testify/require"
)

func newDigester(t *testing.T) *digest.Digester {
	t.Helper()
	d := digest.New()
	t.Cleanup(d.Close)
	return d
}

func TestDigestMatchesIndependentMD5(t *testing.T) {
	t.Parallel()

	d := newDigester(t)

	payloads := [][]byte{
		nil,
		[]byte("hello world"),
		bytes.Repeat([]byte("0123456789abcdef"), 64*1024),
	}

	for _, payload := range payloads {
		sum, err := d.Digest(bytes.NewReader(payload))
		require.NoError(t, err, "Digest error")

		want := md5.Sum(payload)
		require.Equal(t, hex.EncodeToString(want[:]), sum.Hex, "hex digest")
		require.Equal(t, base64.StdEncoding.EncodeToString(want[:]), sum.Base64, "base64 digest")
		require.Equal(t, int64(len(payload)), sum.Size, "digested size")
	}
}

func TestReaderDigestsWhileStreaming(t *testing.T) {
	t.Parallel()

	d := newDigester(t)
	payload := []byte(strings.Repeat("streamed ", 1000))

	dr := d.NewReader(bytes.NewReader(payload))
	defer dr.Close()

	var sink bytes.Buffer
	_, err := io.Copy(&sink, dr)
	require.NoError(t, err, "copy through digest reader")
	require.Equal(t, payload, sink.Bytes(), "reader must pass data through unchanged")

	want := md5.Sum(payload)
	require.Equal(t, hex.EncodeToString(want[:]), dr.Sum().Hex)
}

func TestSumVerify(t *testing.T) {
	t.Parallel()

	d := newDigester(t)
	sum, err := d.Digest(strings.NewReader("sample file content"))
	require.NoError(t, err)

	require.NoError(t, sum.Verify(""), "empty Content-MD5 always verifies")
	require.NoError(t, sum.Verify(sum.Base64), "own digest verifies")
	require.ErrorIs(t, sum.Verify(sum.Base64+"1"), s3err.ErrInvalidDigest, "undecodable digest")

	other := md5.Sum([]byte("different"))
	require.ErrorIs(t, sum.Verify(base64.StdEncoding.EncodeToString(other[:])), s3err.ErrBadDigest)
}

func TestMultipartETag(t *testing.T) {
	t.Parallel()

	d := newDigester(t)

	p1 := md5.Sum([]byte("part one"))
	p2 := md5.Sum([]byte("part two"))

	var concat []byte
	concat = append(concat, p1[:]...)
	concat = append(concat, p2[:]...)
	want := md5.Sum(concat)

	etag, err := d.MultipartETag([]string{
		digest.Quote(hex.EncodeToString(p1[:])),
		hex.EncodeToString(p2[:]),
	})
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(want[:])+"-2", etag)

	_, err = d.MultipartETag([]string{"someEtag0"})
	require.Error(t, err, "non-hex part etag")
}
