package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
)

type fakeBlobStore struct {
	objects map[string][]byte // "bucket/name" -> data
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) key(bucket, name string) string { return bucket + "/" + name }

func (f *fakeBlobStore) Upload(_ context.Context, bucket, name string, data []byte, _ map[string]string) (string, error) {
	f.objects[f.key(bucket, name)] = data
	return gcp.BlobURL(bucket, name), nil
}

func (f *fakeBlobStore) Download(_ context.Context, bucket, name string) ([]byte, error) {
	data, ok := f.objects[f.key(bucket, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", apperr.ErrNotFound, bucket, name)
	}
	return data, nil
}

func (f *fakeBlobStore) List(_ context.Context, bucket, prefix string) ([]gcp.BlobInfo, error) {
	var blobs []gcp.BlobInfo
	for k := range f.objects {
		bkt, name, _ := splitKey(k)
		if bkt == bucket && len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			blobs = append(blobs, gcp.BlobInfo{Name: name, URL: gcp.BlobURL(bucket, name)})
		}
	}
	return blobs, nil
}

func splitKey(k string) (bucket, name string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:], true
		}
	}
	return "", "", false
}

func (f *fakeBlobStore) SignedURL(bucket, name, method string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example.com/%s/%s?method=%s", bucket, name, method), nil
}

func newTestBatchClient(t *testing.T, handler http.Handler) (*BatchClient, *fakeBlobStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	blobs := newFakeBlobStore()
	return NewBatchClient(blobs, BatchConfig{
		Endpoint:     srv.URL,
		APIKey:       "test-key",
		SourceBucket: "staging",
		TargetBucket: "translated",
		PollInterval: time.Millisecond,
		PollBudget:   50 * time.Millisecond,
	}), blobs
}

func TestSubmitStagesFilesAndParsesJobID(t *testing.T) {
	var got batchRequest
	client, blobs := newTestBatchClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/document/batches", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Operation-Location", "https://api.example.com/translator/document/batches/9a1f7c2e-0001")
		w.WriteHeader(http.StatusAccepted)
	}))

	jobID, err := client.Submit(context.Background(), "cust-1",
		[]File{{Name: "instruction", Markup: "<html></html>"}},
		"ja", []string{"en", "fr"},
		map[string]string{"en": "生地\tfabric\n"})
	require.NoError(t, err)
	assert.Equal(t, "9a1f7c2e-0001", jobID)

	// Markup and glossary are staged before submission.
	assert.Contains(t, blobs.objects, "staging/cust-1/instruction.html")
	assert.Contains(t, blobs.objects, "staging/cust-1/glossaries/ja-en.tsv")

	require.Len(t, got.Inputs, 1)
	require.Len(t, got.Inputs[0].Targets, 2)
	assert.Equal(t, "ja", got.Inputs[0].Source.Language)

	// Only the language with glossary entries carries one.
	byLang := map[string]batchTarget{}
	for _, tgt := range got.Inputs[0].Targets {
		byLang[tgt.Language] = tgt
	}
	require.Len(t, byLang["en"].Glossaries, 1)
	assert.Equal(t, "tsv", byLang["en"].Glossaries[0].Format)
	assert.Empty(t, byLang["fr"].Glossaries)
}

func TestPollSucceeded(t *testing.T) {
	calls := 0
	client, _ := newTestBatchClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "Running"
		if calls >= 3 {
			status = "Succeeded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(batchStatus{ID: "job-1", Status: status})
	}))

	require.NoError(t, client.Poll(context.Background(), "job-1"))
	assert.GreaterOrEqual(t, calls, 3)
}

func TestPollBenignConflictIsSuccess(t *testing.T) {
	client, _ := newTestBatchClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := batchStatus{ID: "job-1", Status: "Failed"}
		st.Error.Code = "TargetFileAlreadyExists"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))

	assert.NoError(t, client.Poll(context.Background(), "job-1"))
}

func TestPollFailureIsRejected(t *testing.T) {
	client, _ := newTestBatchClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := batchStatus{ID: "job-1", Status: "ValidationFailed"}
		st.Error.Code = "InvalidRequest"
		st.Error.Message = "source document unreadable"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))

	err := client.Poll(context.Background(), "job-1")
	require.ErrorIs(t, err, apperr.ErrUpstreamRejected)
	assert.Contains(t, err.Error(), "source document unreadable")
}

func TestPollTimesOut(t *testing.T) {
	client, _ := newTestBatchClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(batchStatus{ID: "job-1", Status: "Running"})
	}))

	err := client.Poll(context.Background(), "job-1")
	assert.ErrorIs(t, err, apperr.ErrTimeout)
}

func TestRetrieveMatchesBySubstring(t *testing.T) {
	client, blobs := newTestBatchClient(t, http.NotFoundHandler())

	blobs.objects["translated/cust-1/en/instruction.html"] = []byte("<p>hello</p>")
	blobs.objects["translated/cust-1/fr/instruction.html"] = []byte("<p>bonjour</p>")
	blobs.objects["translated/cust-2/en/instruction.html"] = []byte("<p>other customer</p>")

	got, err := client.Retrieve(context.Background(), "cust-1",
		[]string{"instruction"}, []string{"en", "fr", "de"})
	require.NoError(t, err)

	assert.Equal(t, "<p>hello</p>", got["instruction"]["en"])
	assert.Equal(t, "<p>bonjour</p>", got["instruction"]["fr"])
	_, ok := got["instruction"]["de"]
	assert.False(t, ok, "missing target language is skipped, not fatal")
}
