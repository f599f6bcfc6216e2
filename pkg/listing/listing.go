// Package listing implements S3 key listing: collapsing keys into common
// prefixes, filtering contents by those prefixes, request parameter
// validation and marker based pagination. Everything here is pure.
package listing

import (
	"slices"
	"strconv"
	"strings"

	"github.com/eteran/s3mock/pkg/s3err"
)

const (
	// DefaultMaxKeys is used when a request does not name max-keys. It is
	// also the most a single page ever returns.
	DefaultMaxKeys = 1000

	// EncodingTypeURL is the only encoding-type S3 accepts.
	EncodingTypeURL = "url"
)

// Keyed is anything listed by key.
type Keyed interface {
	GetKey() string
}

// CollapseCommonPrefixes groups keys into common prefixes. For every key
// that starts with prefix, the rest of the key is searched for the first
// delimiter; when found, prefix plus the rest up to and including the
// delimiter is a common prefix. Keys that do not start with prefix are
// ignored. An empty delimiter never groups. The result is deduplicated and
// sorted.
func CollapseCommonPrefixes[T Keyed](prefix string, delimiter string, contents []T) []string {
	if delimiter == "" {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, c := range contents {
		key := c.GetKey()
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := key[len(prefix):]
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			continue
		}

		seen[prefix+rest[:idx+len(delimiter)]] = struct{}{}
	}

	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	return prefixes
}

// FilterBucketContentsBy drops contents that fall under one of the common
// prefixes. A key equal to a common prefix is kept; only keys that continue
// past one are dropped.
func FilterBucketContentsBy[T Keyed](contents []T, commonPrefixes []string) []T {
	filtered := make([]T, 0, len(contents))

outer:
	for _, c := range contents {
		key := c.GetKey()
		for _, p := range commonPrefixes {
			if len(key) > len(p) && strings.HasPrefix(key, p) {
				continue outer
			}
		}
		filtered = append(filtered, c)
	}

	return filtered
}

// ParseMaxKeys parses the max-keys parameter. An empty value yields
// DefaultMaxKeys and values above it are capped. Negative and non-integer
// values are rejected.
func ParseMaxKeys(raw string) (int, error) {
	if raw == "" {
		return DefaultMaxKeys, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, s3err.ErrInvalidMaxKeys
	}

	return min(n, DefaultMaxKeys), nil
}

// ValidateEncodingType accepts an absent encoding-type or "url".
func ValidateEncodingType(raw string) error {
	if raw == "" || raw == EncodingTypeURL {
		return nil
	}
	return s3err.ErrInvalidEncodingType
}

// Page is one page of a listing.
type Page[T Keyed] struct {
	Contents       []T
	CommonPrefixes []string
	IsTruncated    bool

	// NextMarker is the last key or common prefix returned when the page
	// is truncated.
	NextMarker string
}

// Paginate merges contents and common prefixes in key order, skips every
// entry at or before marker and returns at most maxKeys entries. Contents
// must already be sorted by key.
func Paginate[T Keyed](contents []T, commonPrefixes []string, marker string, maxKeys int) Page[T] {
	page := Page[T]{
		Contents:       make([]T, 0),
		CommonPrefixes: make([]string, 0),
	}

	prefixes := slices.Clone(commonPrefixes)
	slices.Sort(prefixes)

	ci, pi := 0, 0
	count := 0
	for ci < len(contents) || pi < len(prefixes) {
		takePrefix := ci >= len(contents) ||
			(pi < len(prefixes) && prefixes[pi] < contents[ci].GetKey())

		var name string
		if takePrefix {
			name = prefixes[pi]
		} else {
			name = contents[ci].GetKey()
		}

		if marker != "" && name <= marker {
			if takePrefix {
				pi++
			} else {
				ci++
			}
			continue
		}

		if count >= maxKeys {
			page.IsTruncated = maxKeys > 0
			break
		}

		if takePrefix {
			page.CommonPrefixes = append(page.CommonPrefixes, name)
			pi++
		} else {
			page.Contents = append(page.Contents, contents[ci])
			ci++
		}
		page.NextMarker = name
		count++
	}

	if !page.IsTruncated {
		page.NextMarker = ""
	}
	return page
}
