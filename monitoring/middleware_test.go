package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"digitlab/db"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("a"), mark("b"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	h := Chain(RecoveryMiddleware(logger), LoggerMiddleware(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value(RequestIDKey) == nil {
			t.Errorf("request id missing")
		}
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type fakeHistory struct {
	logs []db.TrainingLog
	err  error
}

func (f fakeHistory) LoadTrainingLog(context.Context) ([]db.TrainingLog, error) {
	return f.logs, f.err
}

func TestTrainingLogEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/training-log", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without history, got %d", rec.Code)
	}

	s.SetHistory(fakeHistory{logs: []db.TrainingLog{{RunID: 1, ModelName: "svm", Accuracy: 0.98, Status: "completed"}}})
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/training-log", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var logs []db.TrainingLog
	if err := json.NewDecoder(rec.Body).Decode(&logs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 || logs[0].ModelName != "svm" {
		t.Fatalf("unexpected logs %+v", logs)
	}

	s.SetHistory(fakeHistory{err: errors.New("disk gone")})
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/training-log", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
