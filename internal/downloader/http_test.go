package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var payload = bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes

func serveContent(w http.ResponseWriter, r *http.Request) {
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(payload))
}

// recorder guarda los headers Range recibidos
type recorder struct {
	mu     sync.Mutex
	ranges []string
}

func (rec *recorder) record(r *http.Request) int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.ranges = append(rec.ranges, r.Header.Get("Range"))
	return len(rec.ranges)
}

func (rec *recorder) get(i int) string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.ranges[i]
}

func (rec *recorder) count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.ranges)
}

func newTestDownloader(opts Options) (*HTTPDownloader, *[]time.Duration) {
	d := NewHTTPDownloader(opts)
	sleeps := &[]time.Duration{}
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		*sleeps = append(*sleeps, wait)
		return nil
	}
	return d, sleeps
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

func TestFetch_FreshDownload(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		serveContent(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	d, sleeps := newTestDownloader(Options{})

	result, err := d.Fetch(context.Background(), srv.URL+"/clip.mp4", dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if result.Size != int64(len(payload)) || result.Attempts != 1 || result.Resumed {
		t.Errorf("unexpected result: %+v", result)
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("downloaded content mismatch")
	}
	if rec.get(0) != "" {
		t.Errorf("fresh download should not send Range, got %q", rec.get(0))
	}
	if len(*sleeps) != 0 {
		t.Errorf("unexpected sleeps: %v", *sleeps)
	}
}

func TestFetch_ResumesFromExistingBytes(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		serveContent(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(dest, payload[:400], 0644); err != nil {
		t.Fatalf("failed to seed partial file: %v", err)
	}

	d, _ := newTestDownloader(Options{})
	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if rec.get(0) != "bytes=400-" {
		t.Errorf("expected Range bytes=400-, got %q", rec.get(0))
	}
	if !result.Resumed {
		t.Error("expected resumed result")
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("resumed content mismatch")
	}
}

func TestFetch_RangeNotSatisfiableMeansComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(serveContent))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(dest, payload, 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	d, sleeps := newTestDownloader(Options{})
	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("416 should be treated as complete: %v", err)
	}

	if result.Size != int64(len(payload)) || result.Attempts != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(*sleeps) != 0 {
		t.Errorf("416 must not retry, sleeps: %v", *sleeps)
	}
}

func TestFetch_RangeIgnoredRestartsFromZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(dest, []byte("stale-partial"), 0644); err != nil {
		t.Fatalf("failed to seed partial file: %v", err)
	}

	d, _ := newTestDownloader(Options{})
	if _, err := d.Fetch(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("file should be rewritten from byte 0")
	}
}

func TestFetch_MismatchedContentRangeRestarts(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if r.Header.Get("Range") == "" {
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
			return
		}
		// Ventana distinta a la pedida
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 100-%d/%d", len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[100:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(dest, payload[:400], 0644); err != nil {
		t.Fatalf("failed to seed partial file: %v", err)
	}

	d, sleeps := newTestDownloader(Options{})
	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("mismatched range must not be appended")
	}
	if result.Attempts != 2 || len(*sleeps) != 1 {
		t.Errorf("expected one retry, got attempts=%d sleeps=%v", result.Attempts, *sleeps)
	}
	if rec.get(0) != "bytes=400-" || rec.get(1) != "" {
		t.Errorf("expected retry without Range, got %q then %q", rec.get(0), rec.get(1))
	}
}

func TestFetch_PartialFromZeroRewrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(dest, []byte("stale-partial"), 0644); err != nil {
		t.Fatalf("failed to seed partial file: %v", err)
	}

	d, sleeps := newTestDownloader(Options{})
	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.Attempts != 1 || len(*sleeps) != 0 {
		t.Errorf("unexpected retries: %+v", result)
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("file should be rewritten from byte 0")
	}
}

func TestContentRangeStart(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"bytes 400-999/1000", 400, true},
		{"bytes 0-9/*", 0, true},
		{"", 0, false},
		{"bytes */1000", 0, false},
		{"items 1-2/3", 0, false},
		{"bytes x-9/10", 0, false},
	}

	for _, tt := range tests {
		got, ok := contentRangeStart(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("contentRangeStart(%q) = %d, %v; want %d, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFetch_RetriesServerErrorsWithLinearBackoff(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec.record(r) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		serveContent(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	d, sleeps := newTestDownloader(Options{})

	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d = %s, want %s", i, (*sleeps)[i], want[i])
		}
	}
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, sleeps := newTestDownloader(Options{})
	result, err := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "clip.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}

	if result.Attempts != DefaultMaxAttempts || rec.count() != DefaultMaxAttempts {
		t.Errorf("expected %d attempts, got %d (requests %d)", DefaultMaxAttempts, result.Attempts, rec.count())
	}
	if len(*sleeps) != DefaultMaxAttempts-1 {
		t.Fatalf("expected %d sleeps, got %d", DefaultMaxAttempts-1, len(*sleeps))
	}
	if last := (*sleeps)[len(*sleeps)-1]; last != 18*time.Second {
		t.Errorf("last backoff = %s, want 18s", last)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Errorf("expected wrapped StatusError 500, got %v", err)
	}
}

func TestFetch_ClientErrorFailsFast(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, sleeps := newTestDownloader(Options{})
	_, err := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "clip.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Errorf("404 should not be retryable: %v", err)
	}
	if rec.count() != 1 || len(*sleeps) != 0 {
		t.Errorf("expected a single attempt, got %d requests and %d sleeps", rec.count(), len(*sleeps))
	}
}

func TestFetch_TruncatedBodyResumes(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec.record(r) == 1 {
			// Declarar 1000 bytes y cortar a la mitad
			w.Header().Set("Content-Length", "1000")
			w.WriteHeader(http.StatusOK)
			w.Write(payload[:500])
			return
		}
		serveContent(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	d, sleeps := newTestDownloader(Options{})

	result, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if result.Attempts != 2 || len(*sleeps) != 1 {
		t.Errorf("expected one retry, got %d attempts and sleeps %v", result.Attempts, *sleeps)
	}
	if rec.get(1) != "bytes=500-" {
		t.Errorf("retry should resume from 500, got %q", rec.get(1))
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("content mismatch after resume")
	}
}

func TestFetch_ConnectionRefusedIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(serveContent))
	url := srv.URL
	srv.Close()

	d, sleeps := newTestDownloader(Options{MaxAttempts: 3, BackoffStep: time.Millisecond})
	_, err := d.Fetch(context.Background(), url, filepath.Join(t.TempDir(), "clip.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("expected NetworkError, got %v", err)
	}
	if len(*sleeps) != 2 {
		t.Errorf("expected 2 sleeps, got %v", *sleeps)
	}
}

func TestFetch_CanceledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d := NewHTTPDownloader(Options{})
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := d.Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "clip.mp4"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetch_UserAgentAndRateLimit(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		serveContent(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	d, _ := newTestDownloader(Options{UserAgent: "smart-stream/test", RateLimit: 1 << 20})

	if _, err := d.Fetch(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if agent := <-agents; agent != "smart-stream/test" {
		t.Errorf("unexpected User-Agent %q", agent)
	}
	if !bytes.Equal(readFile(t, dest), payload) {
		t.Error("content mismatch")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &NetworkError{Err: errors.New("reset")}, true},
		{"wrapped network", errors.Join(errors.New("x"), &NetworkError{Err: errors.New("eof")}), true},
		{"408", &StatusError{Code: 408}, true},
		{"429", &StatusError{Code: 429}, true},
		{"500", &StatusError{Code: 500}, true},
		{"503", &StatusError{Code: 503}, true},
		{"403", &StatusError{Code: 403}, false},
		{"404", &StatusError{Code: 404}, false},
		{"canceled", context.Canceled, false},
		{"range mismatch", fmt.Errorf("%w: bytes 1-2/3", ErrRangeMismatch), true},
		{"other", errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Code: 404, Status: "404 Not Found"}
	if !strings.Contains(err.Error(), "404 Not Found") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
