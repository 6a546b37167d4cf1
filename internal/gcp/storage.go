package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BlobInfo describes one stored blob in a listing.
type BlobInfo struct {
	Name     string
	URL      string
	Metadata map[string]string
}

// DeleteSummary reports the outcome of a bulk deletion. One blob's failure
// does not abort the rest.
type DeleteSummary struct {
	Deleted int
	Failed  []string
}

// Storage wraps the GCS client behind the blob-store contract the pipeline
// services consume.
type Storage struct {
	client *storage.Client
}

// NewStorage creates a Storage over a fresh GCS client.
func NewStorage(ctx context.Context) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Storage{client: client}, nil
}

// BlobURL builds the public-style URL under which an object is addressed.
func BlobURL(bucket, name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, name)
}

// ParseBlobURL splits a blob URL back into its bucket and object name.
func ParseBlobURL(raw string) (bucket, name string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob url %q: %w", raw, err)
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if u.Hostname() == "127.0.0.1" || u.Hostname() == "localhost" {
		// Emulator URLs carry the project segment first.
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid storage path in %q", raw)
	}
	return parts[0], strings.Join(parts[1:], "/"), nil
}

// Upload writes data to bucket/name and returns the blob's URL.
func (s *Storage) Upload(ctx context.Context, bucket, name string, data []byte, metadata map[string]string) (string, error) {
	w := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	if len(metadata) > 0 {
		w.Metadata = metadata
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize write to gs://%s/%s: %w", bucket, name, err)
	}
	return BlobURL(bucket, name), nil
}

// UploadAtomically writes content only if the object does not already exist.
// A 412 from the precondition is not a failure in an idempotent pipeline.
func (s *Storage) UploadAtomically(ctx context.Context, bucket, name string, data []byte) error {
	w := s.client.Bucket(bucket).Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Skipping upload, object already exists.", "gcsObject", name)
			return nil
		}
		return fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize write to gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// Download reads the full object at bucket/name.
func (s *Storage) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// List returns the blobs under prefix in the given bucket.
func (s *Storage) List(ctx context.Context, bucket, prefix string) ([]BlobInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var blobs []BlobInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s*: %w", bucket, prefix, err)
		}
		blobs = append(blobs, BlobInfo{
			Name:     attrs.Name,
			URL:      BlobURL(bucket, attrs.Name),
			Metadata: attrs.Metadata,
		})
	}
	return blobs, nil
}

// Delete removes one object.
func (s *Storage) Delete(ctx context.Context, bucket, name string) error {
	if err := s.client.Bucket(bucket).Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// DeleteByPrefix removes every blob under prefix with bounded parallelism,
// collecting per-item failures instead of aborting on the first one.
func (s *Storage) DeleteByPrefix(ctx context.Context, bucket, prefix string) (DeleteSummary, error) {
	blobs, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return DeleteSummary{}, err
	}

	var (
		mu      sync.Mutex
		summary DeleteSummary
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, blob := range blobs {
		eg.Go(func() error {
			err := s.Delete(gctx, bucket, blob.Name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("Failed to delete blob.", "gcsObject", blob.Name, "error", err)
				summary.Failed = append(summary.Failed, blob.Name)
			} else {
				summary.Deleted++
			}
			return nil
		})
	}
	_ = eg.Wait()
	return summary, nil
}

// SignedURL mints a time-boxed URL scoped to one object and one HTTP method.
func (s *Storage) SignedURL(bucket, name, method string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().Add(ttl),
	}
	u, err := s.client.Bucket(bucket).SignedURL(name, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", bucket, name, err)
	}
	return u, nil
}
