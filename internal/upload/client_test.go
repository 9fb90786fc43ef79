package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(common.UploadConfig{Endpoint: url, FieldName: "resume", Timeout: timeout}, nil)
	require.NoError(t, err)
	return c
}

func item(name, body string) *entity.WorkItem {
	return entity.NewWorkItem(entity.BytesSource{Filename: name, Data: []byte(body)})
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestSubmit_SendsMultipartFile(t *testing.T) {
	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("resume")
		if assert.NoError(t, err) {
			b, _ := io.ReadAll(f)
			gotName, gotBody = hdr.Filename, string(b)
		}
		_, _ = io.WriteString(w, `{"results":[{"status":"success","id":"cand-7"}]}`)
	}))
	defer srv.Close()

	o := newTestClient(t, srv.URL, time.Second).Submit(context.Background(), item("jane.pdf", "%PDF-1.7"))
	assert.Equal(t, constants.ItemSucceeded, o.Status)
	assert.Equal(t, "cand-7", o.RecordID)
	assert.Equal(t, "jane.pdf", gotName)
	assert.Equal(t, "%PDF-1.7", gotBody)
}

func TestSubmit_Classification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  constants.ItemStatus
		kind    constants.ErrorKind
	}{
		{"updated", reply(200, `{"results":[{"status":"updated","id":42}]}`), constants.ItemUpdated, constants.ErrorNone},
		{"result error", reply(200, `{"results":[{"status":"error","message":"no contact info"}]}`), constants.ItemFailed, constants.ErrorValidation},
		{"result error with kind", reply(200, `{"results":[{"status":"error","error_kind":"server"}]}`), constants.ItemFailed, constants.ErrorServer},
		{"zero results", reply(200, `{"results":[]}`), constants.ItemFailed, constants.ErrorNetwork},
		{"malformed json", reply(200, `{"results":`), constants.ItemFailed, constants.ErrorUnknown},
		{"schema mismatch", reply(200, `{"results":[{"status":"maybe"}]}`), constants.ItemFailed, constants.ErrorUnknown},
		{"5xx", reply(502, `{"error":"bad gateway"}`), constants.ItemFailed, constants.ErrorServer},
		{"4xx", reply(422, `{"detail":"unsupported file"}`), constants.ItemFailed, constants.ErrorValidation},
		{"3xx", reply(304, ``), constants.ItemFailed, constants.ErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			o := newTestClient(t, srv.URL, time.Second).Submit(context.Background(), item("a.pdf", "x"))
			assert.Equal(t, tt.status, o.Status)
			assert.Equal(t, tt.kind, o.ErrorKind)
			if o.Status == constants.ItemFailed {
				assert.NotEmpty(t, o.ErrorMessage)
			}
		})
	}
}

func TestSubmit_RecordsServerRetries(t *testing.T) {
	srv := httptest.NewServer(reply(200, `{"results":[{"status":"success","retries":2}]}`))
	defer srv.Close()
	o := newTestClient(t, srv.URL, time.Second).Submit(context.Background(), item("a.pdf", "x"))
	assert.Equal(t, 2, o.Retries)
}

func TestSubmit_TimeoutResolvesToNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	o := newTestClient(t, srv.URL, 50*time.Millisecond).Submit(context.Background(), item("slow.pdf", "x"))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, constants.ItemFailed, o.Status)
	assert.Equal(t, constants.ErrorNetwork, o.ErrorKind)
	assert.Contains(t, o.ErrorMessage, "timed out")
}

func TestSubmit_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(reply(200, `{}`))
	url := srv.URL
	srv.Close()

	o := newTestClient(t, url, time.Second).Submit(context.Background(), item("a.pdf", "x"))
	assert.Equal(t, constants.ItemFailed, o.Status)
	assert.Equal(t, constants.ErrorNetwork, o.ErrorKind)
}

func TestSubmit_UnreadablePayload(t *testing.T) {
	srv := httptest.NewServer(reply(200, `{"results":[{"status":"success"}]}`))
	defer srv.Close()
	w := entity.NewWorkItem(entity.FileSource{Path: "/does/not/exist.pdf"})

	o := newTestClient(t, srv.URL, time.Second).Submit(context.Background(), w)
	assert.Equal(t, constants.ItemFailed, o.Status)
	assert.Equal(t, constants.ErrorValidation, o.ErrorKind)
}

func TestBuildResponseSchema_Compiles(t *testing.T) {
	schema, err := compileSchema(BuildResponseSchema())
	require.NoError(t, err)
	assert.NoError(t, validateResponse(schema, []byte(`{"results":[{"status":"success","id":"x"}]}`)))
	assert.Error(t, validateResponse(schema, []byte(`{"items":[]}`)))
}
