package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/eteran/s3mock/internal/ui"
	"github.com/eteran/s3mock/pkg/config"
)

type Server struct {
	client *minio.Client
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// buckets fetches all buckets so the sidebar can be rendered.
func (s *Server) buckets(ctx context.Context) ([]ui.Bucket, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	uiBuckets := make([]ui.Bucket, 0, len(buckets))
	for _, b := range buckets {
		uiBuckets = append(uiBuckets, ui.Bucket{
			Name:         b.Name,
			CreationDate: b.CreationDate.UTC().Format(time.RFC3339),
		})
	}
	return uiBuckets, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page string, c templ.Component) {
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("Failed to render page", "page", page, "err", err)
		http.Error(w, fmt.Sprintf("failed to render %s page: %v", page, err), http.StatusInternalServerError)
	}
}

func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	uiBuckets, err := s.buckets(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list buckets: %v", err), http.StatusBadGateway)
		return
	}

	s.render(w, r, "buckets", ui.BucketsPage(uiBuckets))
}

func (s *Server) BucketContents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := r.PathValue("bucket")
	prefix := r.PathValue("key")

	uiBuckets, err := s.buckets(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list buckets: %v", err), http.StatusBadGateway)
		return
	}

	entries := make([]ui.Entry, 0, 64)
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			if minio.ToErrorResponse(obj.Err).Code == "NoSuchBucket" {
				http.NotFound(w, r)
				return
			}
			slog.Error("ListObjects error", "bucket", bucket, "prefix", prefix, "err", obj.Err)
			continue
		}

		// Common prefixes come back as bare keys ending in the delimiter.
		if obj.ETag == "" && strings.HasSuffix(obj.Key, "/") {
			entries = append(entries, ui.Entry{Key: obj.Key, IsPrefix: true})
			continue
		}

		entries = append(entries, ui.Entry{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}

	slices.SortFunc(entries, func(a, b ui.Entry) int { return strings.Compare(a.Key, b.Key) })

	s.render(w, r, "objects", ui.ObjectsPage(uiBuckets, bucket, prefix, entries))
}

func (s *Server) Uploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := r.PathValue("bucket")

	uiBuckets, err := s.buckets(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list buckets: %v", err), http.StatusBadGateway)
		return
	}

	var uploads []ui.Upload
	for u := range s.client.ListIncompleteUploads(ctx, bucket, "", true) {
		if u.Err != nil {
			slog.Error("ListIncompleteUploads error", "bucket", bucket, "err", u.Err)
			continue
		}
		uploads = append(uploads, ui.Upload{
			Key:       u.Key,
			UploadID:  u.UploadID,
			Initiated: u.Initiated.UTC().Format(time.RFC3339),
		})
	}

	s.render(w, r, "uploads", ui.UploadsPage(uiBuckets, bucket, uploads))
}

func (s *Server) CreateBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}

	fail := func(msg string, status int) {
		if isHTMX(r) {
			w.WriteHeader(http.StatusBadRequest)
			_ = ui.ErrorMessage(msg).Render(ctx, w)
			return
		}
		http.Error(w, msg, status)
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		fail("bucket name is required", http.StatusBadRequest)
		return
	}

	if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
		slog.Error("failed to create bucket", "bucket", name, "err", err)
		resp := minio.ToErrorResponse(err)
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		fail(fmt.Sprintf("failed to create bucket: %s", resp.Message), status)
		return
	}

	redirectURL := fmt.Sprintf("/bucket/%s/", name)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", redirectURL)
		w.WriteHeader(http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func Run(ctx context.Context) error {

	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var (
		HttpAddr    = getEnv("S3MOCK_UI_ADDR", ":9100")
		S3Endpoint  = getEnv("S3MOCK_UI_S3_ENDPOINT", "localhost:9090")
		S3AccessKey = getEnv("S3MOCK_UI_S3_ACCESS_KEY", "s3mock")
		S3SecretKey = getEnv("S3MOCK_UI_S3_SECRET_KEY", "s3mock")
		S3UseSSL    = getEnv("S3MOCK_UI_S3_SSL", "false") == "true"
	)

	// Logging setup consistent with the main server.
	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
	slog.SetDefault(slog.New(handler))

	client, err := minio.New(S3Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(S3AccessKey, S3SecretKey, ""),
		Secure:       S3UseSSL,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	server := &Server{
		client: client,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", server.Home)
	mux.HandleFunc("GET /bucket/{bucket}/{key...}", server.BucketContents)
	mux.HandleFunc("GET /uploads/{bucket}", server.Uploads)
	mux.HandleFunc("POST /buckets", server.CreateBucket)

	srv := &http.Server{
		Addr:              HttpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting s3mock UI server", "addr", HttpAddr, "s3_endpoint", S3Endpoint)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("s3mock UI server failed: %w", err)
	}

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
