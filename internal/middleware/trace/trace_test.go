package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recorded struct {
	method, route string
	status        int
}

type fakeObserver struct{ calls []recorded }

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.calls = append(f.calls, recorded{method, route, status})
}

func TestWrap_RecordsMatchedPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	obs := &fakeObserver{}
	m := NewMiddleware(obs)
	h := m.Wrap(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/clients/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(obs.calls) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs.calls))
	}
	if got := obs.calls[0]; got.route != "GET /api/clients/{id}" || got.status != http.StatusTeapot {
		t.Errorf("first call = %+v", got)
	}
	if got := obs.calls[1]; got.route != UnmatchedRoute || got.status != http.StatusNotFound {
		t.Errorf("second call = %+v", got)
	}
	if total, _ := m.Totals(); total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}
