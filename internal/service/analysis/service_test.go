package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeBackend struct {
	calls    atomic.Int32
	text     string
	err      error
	block    chan struct{}
	lastUser string
}

func (f *fakeBackend) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	f.calls.Add(1)
	if len(messages) > 0 {
		f.lastUser = messages[len(messages)-1].Content
	}
	if f.block != nil {
		<-f.block
	}
	return f.text, f.err
}

func TestAnalyzeEmbedsCodeAndPrefixesReport(t *testing.T) {
	backend := &fakeBackend{text: "  Consider the empty list.  "}
	svc := NewService(backend, Options{Timeout: time.Second}, nil, nil)

	report, err := svc.Analyze(context.Background(), "for i in range(n): pass")
	require.NoError(t, err)

	assert.Equal(t, reportHeader+"Consider the empty list.", report)
	assert.Contains(t, backend.lastUser, "for i in range(n): pass")
	assert.Contains(t, backend.lastUser, "Do NOT rewrite")
}

func TestAnalyzeKeepsBracesInCode(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	svc := NewService(backend, Options{}, nil, nil)

	_, err := svc.Analyze(context.Background(), "func main() { m := map[string]int{} }")
	require.NoError(t, err)
	assert.Contains(t, backend.lastUser, "map[string]int{}")
}

func TestAnalyzeErrorKinds(t *testing.T) {
	cases := []struct {
		name    string
		backend *fakeBackend
		kind    ErrorKind
	}{
		{name: "service error", backend: &fakeBackend{err: errors.New("502 bad gateway")}, kind: KindService},
		{name: "deadline from backend", backend: &fakeBackend{err: context.DeadlineExceeded}, kind: KindTimeout},
		{name: "empty response", backend: &fakeBackend{text: "   "}, kind: KindEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.backend, Options{Timeout: time.Second}, nil, nil)

			_, err := svc.Analyze(context.Background(), "x = 1")
			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tc.kind, aerr.Kind)

			assert.Equal(t, FailureMessage, svc.Report(context.Background(), "x = 1"))
		})
	}
}

func TestAnalyzeTimeoutOnHungBackend(t *testing.T) {
	backend := &fakeBackend{text: "late", block: make(chan struct{})}
	defer close(backend.block)

	svc := NewService(backend, Options{Timeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	got := svc.Report(context.Background(), "while True: pass")

	assert.Equal(t, FailureMessage, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWorkerLimitBoundsConcurrentCalls(t *testing.T) {
	backend := &fakeBackend{text: "ok", block: make(chan struct{})}
	svc := NewService(backend, Options{Timeout: 50 * time.Millisecond, Workers: 1}, nil, nil)

	_, err := svc.Analyze(context.Background(), "first")
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, KindTimeout, aerr.Kind)

	// The hung first call still holds the only slot.
	_, err = svc.Analyze(context.Background(), "second")
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindTimeout, aerr.Kind)
	assert.Equal(t, int32(1), backend.calls.Load())

	close(backend.block)
	require.Eventually(t, func() bool {
		_, err := svc.Analyze(context.Background(), "third")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestHuggingFaceBackend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"qwen","choices":[{"index":0,"message":{"role":"assistant","content":"Off by one in the loop."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	backend := NewHuggingFaceBackend("hf_test", srv.URL+"/v1", "Qwen/Qwen2.5-Coder-32B-Instruct", 500)
	svc := NewService(backend, Options{Timeout: 5 * time.Second}, nil, nil)

	report, err := svc.Analyze(context.Background(), "for i in range(len(a)+1): a[i]")
	require.NoError(t, err)
	assert.Equal(t, reportHeader+"Off by one in the loop.", report)

	assert.Equal(t, "Qwen/Qwen2.5-Coder-32B-Instruct", body["model"])
	assert.Equal(t, float64(500), body["max_tokens"])
	srv.CloseClientConnections()
}

func TestHuggingFaceBackendServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend := NewHuggingFaceBackend("hf_test", srv.URL+"/v1", "qwen", 500)
	svc := NewService(backend, Options{Timeout: 5 * time.Second}, nil, nil)

	assert.Equal(t, FailureMessage, svc.Report(context.Background(), "print(1)"))
	srv.CloseClientConnections()
}
