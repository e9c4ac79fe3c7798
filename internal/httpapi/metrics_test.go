package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 503: "503"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	w := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: w, status: 200}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot || w.Code != http.StatusTeapot {
		t.Fatalf("recorded %d, underlying %d", sr.status, w.Code)
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("done"))
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusAccepted || w.Body.String() != "done" {
		t.Fatalf("response = %d %q", w.Code, w.Body.String())
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	if got := routePatternOrPath(r); got != "/api/status" {
		t.Fatalf("pattern = %q, want raw path", got)
	}
}
