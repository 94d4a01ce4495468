package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/petalmcp/mcp"
	"github.com/petal-labs/petalmcp/tool"
)

func onlyText(t *testing.T, blocks []mcp.ContentBlock) string {
	t.Helper()
	if len(blocks) != 1 || blocks[0].Type != mcp.ContentTypeText {
		t.Fatalf("blocks = %+v, want exactly one text block", blocks)
	}
	return blocks[0].Text
}

func TestFetcherReturnsBodyAndFollowsRedirects(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html>hello</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(FetchConfig{})
	got := onlyText(t, f.Invoke(context.Background(), tool.Arguments{"url": srv.URL + "/start"}))
	if got != "<html>hello</html>" {
		t.Fatalf("body = %q", got)
	}
	if gotUA != defaultUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUA, defaultUserAgent)
	}
}

func TestFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{})
	got := onlyText(t, f.Invoke(context.Background(), tool.Arguments{"url": srv.URL}))
	if got != "Error: HTTP 404 error while fetching the website." {
		t.Fatalf("text = %q", got)
	}
	if !strings.HasPrefix(got, "Error: HTTP 404") {
		t.Fatalf("text %q does not start with status prefix", got)
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	if tool.ErrorCode(err) != tool.ToolErrorCodeUpstreamFailure {
		t.Fatalf("ErrorCode() = %q", tool.ErrorCode(err))
	}
}

func TestFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Timeout: 50 * time.Millisecond})
	got := onlyText(t, f.Invoke(context.Background(), tool.Arguments{"url": srv.URL}))
	if !strings.HasPrefix(got, "Error: Request timed out") {
		t.Fatalf("text = %q, want timeout error", got)
	}
}

func TestFetcherGenericFailure(t *testing.T) {
	f := NewFetcher(FetchConfig{})
	got := onlyText(t, f.Invoke(context.Background(), tool.Arguments{"url": "notaurl://nowhere"}))
	if !strings.HasPrefix(got, "Error: Failed to fetch website: ") {
		t.Fatalf("text = %q", got)
	}
}

func TestFetcherMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{MaxBytes: 4})
	if got := onlyText(t, f.Invoke(context.Background(), tool.Arguments{"url": srv.URL})); got != "0123" {
		t.Fatalf("body = %q, want truncated", got)
	}
}

func TestFetcherEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	blocks := NewFetcher(FetchConfig{}).Invoke(context.Background(), tool.Arguments{"url": srv.URL})
	if got := onlyText(t, blocks); got != "" {
		t.Fatalf("body = %q, want empty", got)
	}
}

func TestFetcherOutcomeThroughDispatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("Error: 404 is a band name"))
	}))
	defer srv.Close()

	reg, err := tool.NewRegistry(tool.Entry{Descriptor: FetchDescriptor(), Handler: NewFetcher(FetchConfig{})})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	d := tool.NewDispatcher(reg, nil)

	ok := d.Dispatch(context.Background(), FetchToolName, tool.Arguments{"url": srv.URL + "/band"})
	if ok.IsError() || onlyText(t, ok.Content) != "Error: 404 is a band name" {
		t.Fatalf("page result = %+v", ok)
	}

	failed := d.Dispatch(context.Background(), FetchToolName, tool.Arguments{"url": srv.URL + "/missing"})
	if !failed.IsError() || failed.Outcome != tool.OutcomeToolError {
		t.Fatalf("404 result = %+v", failed)
	}
	if tool.StatusCode(failed.Err) != http.StatusNotFound || tool.ErrorCode(failed.Err) != tool.ToolErrorCodeUpstreamFailure {
		t.Fatalf("404 error = %v", failed.Err)
	}
}
