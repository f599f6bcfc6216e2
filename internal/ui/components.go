// Package ui renders the read-only HTML browser for the emulator.
package ui

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"
)

// Bucket represents a single S3 bucket for display.
type Bucket struct {
	Name         string
	CreationDate string
}

// Entry is one row of a bucket listing: an object, or a common prefix when
// IsPrefix is set.
type Entry struct {
	Key          string
	IsPrefix     bool
	Size         int64
	ETag         string
	LastModified string
}

// Upload is an in-progress multipart upload.
type Upload struct {
	Key       string
	UploadID  string
	Initiated string
}

// pageWriter stops writing after the first error so pages can be rendered
// as a flat sequence of writes.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *pageWriter) rawf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func (p *pageWriter) text(s string) {
	p.raw(html.EscapeString(s))
}

// bucketHref links to the listing of prefix within bucket.
func bucketHref(bucket string, prefix string) string {
	return "/bucket/" + url.PathEscape(bucket) + "/" + (&url.URL{Path: prefix}).EscapedPath()
}

// Layout renders a full HTML page with a title, the bucket sidebar and a
// body component.
func Layout(title string, buckets []Bucket, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw("<title>")
		p.text(title)
		p.raw("</title>")
		p.raw(`<link rel="stylesheet" href="https://unpkg.com/@picocss/pico@2/css/pico.min.css">`)
		p.raw(`<script src="https://unpkg.com/htmx.org@1.9.12" integrity="sha384-srD8tA5lZgUlAXb/DvBy1UG775H8sG8vyXK3w63U1zrtRXkuTDIaTzGvX2UksI0M" crossorigin="anonymous"></script>`)
		p.raw(`</head><body hx-boost="true"><main class="container grid">`)

		p.raw(`<aside><nav><ul><li><a href="/"><strong>s3mock</strong></a></li>`)
		for _, b := range buckets {
			p.rawf(`<li><a href="%s">`, bucketHref(b.Name, ""))
			p.text(b.Name)
			p.raw("</a></li>")
		}
		p.raw(`</ul></nav></aside><div>`)
		if p.err != nil {
			return p.err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		p.raw("</div></main></body></html>")
		return p.err
	})
}

// BucketsPage renders the list of buckets with a create form.
func BucketsPage(buckets []Bucket) templ.Component {
	return Layout("s3mock - Buckets", buckets, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<section><header><h1>Buckets</h1>")
		p.raw("<p>Browse the emulator's buckets and objects.</p></header>")

		p.raw(`<form method="post" action="/buckets" hx-target="#create-error">`)
		p.raw(`<fieldset role="group"><input name="name" placeholder="new-bucket-name" required>`)
		p.raw(`<button type="submit">Create</button></fieldset><div id="create-error"></div></form>`)

		if len(buckets) == 0 {
			p.raw("<p>No buckets found.</p></section>")
			return p.err
		}

		p.raw("<table><thead><tr><th>Name</th><th>Created</th></tr></thead><tbody>")
		for _, b := range buckets {
			p.rawf(`<tr><td><a href="%s">`, bucketHref(b.Name, ""))
			p.text(b.Name)
			p.raw("</a></td><td>")
			p.text(b.CreationDate)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table></section>")
		return p.err
	}))
}

// breadcrumbs renders links to each "/"-separated level of prefix.
func breadcrumbs(p *pageWriter, bucket string, prefix string) {
	p.rawf(`<nav aria-label="breadcrumb"><ul><li><a href="%s">`, bucketHref(bucket, ""))
	p.text(bucket)
	p.raw("</a></li>")

	var acc strings.Builder
	for part := range strings.SplitSeq(strings.TrimSuffix(prefix, "/"), "/") {
		if part == "" {
			continue
		}
		acc.WriteString(part)
		acc.WriteString("/")
		p.rawf(`<li><a href="%s">`, bucketHref(bucket, acc.String()))
		p.text(part)
		p.raw("</a></li>")
	}
	p.raw("</ul></nav>")
}

// ObjectsPage renders one level of a bucket: the common prefixes below
// prefix as folders and the objects directly under it.
func ObjectsPage(buckets []Bucket, bucket string, prefix string, entries []Entry) templ.Component {
	return Layout("s3mock - "+bucket, buckets, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<section><header><h1>")
		p.text(bucket)
		p.raw("</h1>")
		breadcrumbs(p, bucket, prefix)
		p.rawf(`<p><a href="/uploads/%s">In-progress multipart uploads</a></p></header>`, url.PathEscape(bucket))

		if len(entries) == 0 {
			p.raw("<p>No objects here.</p></section>")
			return p.err
		}

		p.raw("<table><thead><tr><th>Key</th><th>Size (bytes)</th><th>ETag</th><th>Last Modified</th></tr></thead><tbody>")
		for _, e := range entries {
			name := strings.TrimPrefix(e.Key, prefix)
			if e.IsPrefix {
				p.rawf(`<tr><td><a href="%s">`, bucketHref(bucket, e.Key))
				p.text(name)
				p.raw("</a></td><td></td><td></td><td></td></tr>")
				continue
			}
			p.raw("<tr><td>")
			p.text(name)
			p.rawf("</td><td>%d</td><td><code>", e.Size)
			p.text(e.ETag)
			p.raw("</code></td><td>")
			p.text(e.LastModified)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table></section>")
		return p.err
	}))
}

// UploadsPage renders a bucket's in-progress multipart uploads.
func UploadsPage(buckets []Bucket, bucket string, uploads []Upload) templ.Component {
	return Layout("s3mock - "+bucket+" uploads", buckets, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<section><header><h1>Uploads in ")
		p.text(bucket)
		p.rawf(`</h1><p><a href="%s">&larr; Back to objects</a></p></header>`, bucketHref(bucket, ""))

		if len(uploads) == 0 {
			p.raw("<p>No multipart uploads in progress.</p></section>")
			return p.err
		}

		p.raw("<table><thead><tr><th>Key</th><th>Upload ID</th><th>Initiated</th></tr></thead><tbody>")
		for _, u := range uploads {
			p.raw("<tr><td>")
			p.text(u.Key)
			p.raw("</td><td><code>")
			p.text(u.UploadID)
			p.raw("</code></td><td>")
			p.text(u.Initiated)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table></section>")
		return p.err
	}))
}

// ErrorMessage renders an inline error fragment for htmx targets.
func ErrorMessage(msg string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw(`<p class="error-message">`)
		p.text(msg)
		p.raw("</p>")
		return p.err
	})
}
