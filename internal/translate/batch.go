package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
)

// BlobStore is the slice of the storage layer the batch orchestrator needs.
type BlobStore interface {
	Upload(ctx context.Context, bucket, name string, data []byte, metadata map[string]string) (string, error)
	Download(ctx context.Context, bucket, name string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]gcp.BlobInfo, error)
	SignedURL(bucket, name, method string, ttl time.Duration) (string, error)
}

// BatchConfig configures the asynchronous document translation flow.
type BatchConfig struct {
	Endpoint     string
	APIKey       string
	SourceBucket string
	TargetBucket string
	PollInterval time.Duration
	PollBudget   time.Duration
	SignedURLTTL time.Duration
}

// BatchClient drives one batch job end to end: stage, submit, poll, retrieve.
// It never re-submits a job on its own.
type BatchClient struct {
	http  *resty.Client
	blobs BlobStore
	cfg   BatchConfig
}

// File is one markup document to translate, named without its extension.
type File struct {
	Name   string
	Markup string
}

func NewBatchClient(blobs BlobStore, cfg BatchConfig) *BatchClient {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollBudget == 0 {
		cfg.PollBudget = 5 * time.Minute
	}
	if cfg.SignedURLTTL == 0 {
		cfg.SignedURLTTL = time.Hour
	}
	http := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetHeader("Ocp-Apim-Subscription-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &BatchClient{http: http, blobs: blobs, cfg: cfg}
}

type batchTarget struct {
	TargetURL  string          `json:"targetUrl"`
	Language   string          `json:"language"`
	Glossaries []batchGlossary `json:"glossaries,omitempty"`
}

type batchGlossary struct {
	GlossaryURL string `json:"glossaryUrl"`
	Format      string `json:"format"`
}

type batchInput struct {
	StorageType string `json:"storageType"`
	Source      struct {
		SourceURL string `json:"sourceUrl"`
		Language  string `json:"language,omitempty"`
	} `json:"source"`
	Targets []batchTarget `json:"targets"`
}

type batchRequest struct {
	Inputs []batchInput `json:"inputs"`
}

type batchStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		InnerError struct {
			Code string `json:"code"`
		} `json:"innerError"`
	} `json:"error"`
	Summary struct {
		Total   int `json:"total"`
		Failed  int `json:"failed"`
		Success int `json:"success"`
	} `json:"summary"`
}

var jobIDPattern = regexp.MustCompile(`batches/([0-9a-zA-Z-]+)`)

func sourceName(customerID string, f File) string {
	return customerID + "/" + f.Name + ".html"
}

func targetName(customerID, lang string, f File) string {
	return customerID + "/" + lang + "/" + f.Name + ".html"
}

// Submit stages the markup files and glossaries, then posts one batch job for
// every (file, target language) pair. glossaries maps a target language to a
// TSV body; languages without an entry get no glossary. It returns the job id
// parsed from the Operation-Location header.
func (c *BatchClient) Submit(ctx context.Context, customerID string, files []File, sourceLang string, targetLangs []string, glossaries map[string]string) (string, error) {
	glossaryURLs := make(map[string]string, len(glossaries))
	for lang, tsv := range glossaries {
		name := customerID + "/glossaries/" + sourceLang + "-" + lang + ".tsv"
		if _, err := c.blobs.Upload(ctx, c.cfg.SourceBucket, name, []byte(tsv), nil); err != nil {
			return "", fmt.Errorf("failed to stage glossary for %q: %w", lang, err)
		}
		u, err := c.blobs.SignedURL(c.cfg.SourceBucket, name, http.MethodGet, c.cfg.SignedURLTTL)
		if err != nil {
			return "", fmt.Errorf("failed to sign glossary url for %q: %w", lang, err)
		}
		glossaryURLs[lang] = u
	}

	req := batchRequest{}
	for _, f := range files {
		srcName := sourceName(customerID, f)
		if _, err := c.blobs.Upload(ctx, c.cfg.SourceBucket, srcName, []byte(f.Markup), nil); err != nil {
			return "", fmt.Errorf("failed to stage %q: %w", f.Name, err)
		}
		srcURL, err := c.blobs.SignedURL(c.cfg.SourceBucket, srcName, http.MethodGet, c.cfg.SignedURLTTL)
		if err != nil {
			return "", fmt.Errorf("failed to sign source url for %q: %w", f.Name, err)
		}

		input := batchInput{StorageType: "File"}
		input.Source.SourceURL = srcURL
		input.Source.Language = sourceLang
		for _, lang := range targetLangs {
			tgtURL, err := c.blobs.SignedURL(c.cfg.TargetBucket, targetName(customerID, lang, f), http.MethodPut, c.cfg.SignedURLTTL)
			if err != nil {
				return "", fmt.Errorf("failed to sign target url for %q/%q: %w", f.Name, lang, err)
			}
			target := batchTarget{TargetURL: tgtURL, Language: lang}
			if u, ok := glossaryURLs[lang]; ok {
				target.Glossaries = []batchGlossary{{GlossaryURL: u, Format: "tsv"}}
			}
			input.Targets = append(input.Targets, target)
		}
		req.Inputs = append(req.Inputs, input)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/document/batches")
	if err != nil {
		return "", fmt.Errorf("%w: batch submit failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: batch submit returned %s: %s", apperr.ErrUpstreamRejected, resp.Status(), resp.String())
	}

	location := resp.Header().Get("Operation-Location")
	m := jobIDPattern.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("%w: no job id in operation location %q", apperr.ErrUpstreamRejected, location)
	}
	return m[1], nil
}

// Poll watches the job until it reaches a terminal state. The interval is
// fixed; the budget bounds the whole wait. A job that failed only because
// every target already existed counts as success, since the output the caller
// wants is in place.
func (c *BatchClient) Poll(ctx context.Context, jobID string) error {
	deadline := time.Now().Add(c.cfg.PollBudget)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return err
		}

		switch st.Status {
		case "Succeeded":
			return nil
		case "Failed", "ValidationFailed":
			if isBenignConflict(st) {
				slog.Info("Batch job targets already exist, treating as success.", "jobId", jobID)
				return nil
			}
			return fmt.Errorf("%w: batch job %s ended %s: %s (%s)",
				apperr.ErrUpstreamRejected, jobID, st.Status, st.Error.Message, st.Error.Code)
		case "Cancelled", "Cancelling":
			return fmt.Errorf("%w: batch job %s was cancelled", apperr.ErrUpstreamRejected, jobID)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: batch job %s still %s after %s",
				apperr.ErrTimeout, jobID, st.Status, c.cfg.PollBudget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isBenignConflict(st batchStatus) bool {
	if st.Error.Code == "TargetFileAlreadyExists" || st.Error.InnerError.Code == "TargetFileAlreadyExists" {
		return true
	}
	// Per-document conflicts surface only in the summary; a fully-failed job
	// with a conflict code on the envelope is covered above.
	return false
}

func (c *BatchClient) jobStatus(ctx context.Context, jobID string) (batchStatus, error) {
	var st batchStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&st).
		Get("/document/batches/" + jobID)
	if err != nil {
		return st, fmt.Errorf("%w: batch status failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return st, fmt.Errorf("%w: batch status returned %s: %s", apperr.ErrUpstreamRejected, resp.Status(), resp.String())
	}
	return st, nil
}

// Retrieve downloads the translated documents for the given files and
// languages from the target container. Blob names are matched by substring,
// the way the job wrote them; a missing pair is logged and skipped so one
// failed target does not lose the rest.
func (c *BatchClient) Retrieve(ctx context.Context, customerID string, files []string, langs []string) (map[string]map[string]string, error) {
	blobs, err := c.blobs.List(ctx, c.cfg.TargetBucket, customerID+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list translated documents: %w", err)
	}

	out := make(map[string]map[string]string, len(files))
	for _, file := range files {
		out[file] = make(map[string]string, len(langs))
		for _, lang := range langs {
			name := ""
			for _, b := range blobs {
				if strings.Contains(b.Name, "/"+lang+"/") && strings.Contains(b.Name, file) {
					name = b.Name
					break
				}
			}
			if name == "" {
				slog.Warn("Translated document not found, skipping.",
					"file", file, "lang", lang, "customerId", customerID)
				continue
			}
			data, err := c.blobs.Download(ctx, c.cfg.TargetBucket, name)
			if err != nil {
				slog.Warn("Failed to download translated document, skipping.",
					"gcsObject", name, "error", err)
				continue
			}
			out[file][lang] = string(data)
		}
	}
	return out, nil
}
