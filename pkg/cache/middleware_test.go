package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"GETCachedOnSecondCall", testGETCachedOnSecondCall},
		{"POSTNotCached", testPOSTNotCached},
		{"Non200NotCached", testNon200NotCached},
		{"DifferentURLsCachedSeparately", testDifferentURLsCachedSeparately},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func testGETCachedOnSecondCall(t *testing.T) {
	callCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":"hello"}`))
	})
	wrapped := Middleware(NewLRU[string, Response](10, 5*time.Second))(handler)

	rec1 := serve(wrapped, http.MethodGet, "/api/v1/jobs/1/result")
	if rec1.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected X-Cache: MISS, got %q", rec1.Header().Get("X-Cache"))
	}

	rec2 := serve(wrapped, http.MethodGet, "/api/v1/jobs/1/result")
	if callCount != 1 {
		t.Fatalf("expected handler called once, got %d", callCount)
	}
	if rec2.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache: HIT, got %q", rec2.Header().Get("X-Cache"))
	}
	if rec2.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected cached content type, got %q", rec2.Header().Get("Content-Type"))
	}
	body, _ := io.ReadAll(rec2.Result().Body)
	if string(body) != `{"data":"hello"}` {
		t.Fatalf("expected cached body, got %q", string(body))
	}
}

func testPOSTNotCached(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	})
	c := NewLRU[string, Response](10, 5*time.Second)
	rec := serve(Middleware(c)(handler), http.MethodPost, "/api/v1/amazon/aoa-01")

	if c.Size() != 0 {
		t.Fatalf("expected cache size 0 for POST, got %d", c.Size())
	}
	if rec.Header().Get("X-Cache") != "" {
		t.Fatalf("expected no X-Cache header on POST, got %q", rec.Header().Get("X-Cache"))
	}
}

func testNon200NotCached(t *testing.T) {
	callCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`not finished`))
	})
	c := NewLRU[string, Response](10, 5*time.Second)
	wrapped := Middleware(c)(handler)

	rec := serve(wrapped, http.MethodGet, "/api/v1/jobs/2/result")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	serve(wrapped, http.MethodGet, "/api/v1/jobs/2/result")

	if c.Size() != 0 {
		t.Fatalf("expected cache size 0 for non-200, got %d", c.Size())
	}
	if callCount != 2 {
		t.Fatalf("expected handler called twice, got %d", callCount)
	}
}

func testDifferentURLsCachedSeparately(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})
	c := NewLRU[string, Response](10, 5*time.Second)
	wrapped := Middleware(c)(handler)

	serve(wrapped, http.MethodGet, "/a")
	serve(wrapped, http.MethodGet, "/b")

	rec := serve(wrapped, http.MethodGet, "/a")
	body, _ := io.ReadAll(rec.Result().Body)
	if string(body) != "/a" {
		t.Fatalf("expected cached body /a, got %q", string(body))
	}
	if c.Size() != 2 {
		t.Fatalf("expected 2 cached entries, got %d", c.Size())
	}
}
