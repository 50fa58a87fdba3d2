package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"digitlab/ml"
	"digitlab/search"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsProgress(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	go hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.OnProgress(search.Progress{
		Candidate: 2,
		Fold:      1,
		Params:    search.Params{C: 10, Gamma: ml.GammaSpec{Mode: ml.GammaScale}, Kernel: ml.KernelRBF},
		Score:     0.97,
		Done:      5,
		Total:     36,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != SearchProgress {
		t.Fatalf("expected %s, got %s", SearchProgress, msg.Type)
	}
	var p struct {
		Candidate int     `json:"candidate"`
		Score     float64 `json:"score"`
		Params    struct {
			C     float64 `json:"c"`
			Gamma string  `json:"gamma"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Candidate != 2 || p.Score != 0.97 || p.Params.Gamma != "scale" || p.Params.C != 10 {
		t.Fatalf("unexpected payload %s", msg.Data)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestServerEndpoints(t *testing.T) {
	s := NewServer("127.0.0.1:0", zaptest.NewLogger(t))
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop(context.Background())
	if err := s.Start(); err == nil {
		t.Fatalf("expected error on second start")
	}

	s.OnProgress(search.Progress{Done: 1, Total: 4})
	s.OnProgress(search.Progress{Done: 2, Total: 4, Error: "fit failed"})
	e, _ := ml.Evaluate("knn", []int{0, 1}, []int{0, 1})
	s.PublishEvaluations([]*ml.Evaluation{e})

	base := "http://" + s.Addr().String()
	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		"digitlab_search_jobs_total 2",
		"digitlab_search_job_failures_total 1",
		"digitlab_search_progress_ratio 0.5",
		`digitlab_model_accuracy{model="knn"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	resp, err = http.Get(base + "/status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status["messages_sent"].(float64) != 3 {
		t.Fatalf("expected 3 messages, got %v", status["messages_sent"])
	}
}
