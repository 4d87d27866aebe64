package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dustland/agentx/pkg/bus"
	"github.com/dustland/agentx/pkg/core"
	"github.com/dustland/agentx/pkg/logstore"
	"github.com/dustland/agentx/pkg/taskstore"
)

type testEnv struct {
	srv    *httptest.Server
	logs   *logstore.Store
	tasks  *taskstore.Store
	events *bus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	logs, err := logstore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := taskstore.Open(filepath.Join(t.TempDir(), "agentx.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := tasks.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	events := bus.New(16)

	s := New(logs, tasks, events, nil, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		logs.Close()
		tasks.Close()
	})
	return &testEnv{srv: srv, logs: logs, tasks: tasks, events: events}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestLogsEndpointPaged(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.logs.Append("task-1", fmt.Sprintf("line %d", i))
	}

	var page struct {
		Logs     []string `json:"logs"`
		FileSize int64    `json:"file_size"`
		HasMore  bool     `json:"has_more"`
	}
	resp := getJSON(t, env.srv.URL+"/tasks/task-1/logs?limit=2&offset=1", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if len(page.Logs) != 2 || page.Logs[0] != "line 1" {
		t.Errorf("window: %v", page.Logs)
	}
	if !page.HasMore {
		t.Error("expected has_more")
	}
	if page.FileSize == 0 {
		t.Error("expected file_size")
	}
}

func TestLogsEndpointTailOverridesOffset(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.logs.Append("task-1", fmt.Sprintf("line %d", i))
	}

	var page struct {
		Logs []string `json:"logs"`
	}
	getJSON(t, env.srv.URL+"/tasks/task-1/logs?limit=2&offset=99&tail=true", &page)
	if len(page.Logs) != 2 || page.Logs[1] != "line 4" {
		t.Errorf("tail window ignored offset incorrectly: %v", page.Logs)
	}
}

func TestLogsEndpointUnknownTaskIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	var page struct {
		Logs     []string `json:"logs"`
		FileSize int64    `json:"file_size"`
		HasMore  bool     `json:"has_more"`
	}
	resp := getJSON(t, env.srv.URL+"/tasks/never-started/logs", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d, want 200 for no-logs-yet", resp.StatusCode)
	}
	if len(page.Logs) != 0 || page.FileSize != 0 || page.HasMore {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestTaskLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{
		"goal":  "write summary",
		"agent": "writer",
	})
	resp, err := http.Post(env.srv.URL+"/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var created core.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d", resp.StatusCode)
	}
	if created.ID == "" || created.Status != core.TaskPending {
		t.Errorf("created task: %+v", created)
	}

	var got core.Task
	getJSON(t, env.srv.URL+"/tasks/"+created.ID, &got)
	if got.Goal != "write summary" {
		t.Errorf("get task: %+v", got)
	}

	var all []core.Task
	getJSON(t, env.srv.URL+"/tasks", &all)
	if len(all) != 1 {
		t.Errorf("list: got %d tasks", len(all))
	}

	resp = getJSON(t, env.srv.URL+"/tasks/no-such-id", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing task status: %d", resp.StatusCode)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"agent":"writer"}`,
		`{"goal":"g"}`,
		`{"goal":"g","agent":"a","restart":"sometimes"}`,
	} {
		resp, err := http.Post(env.srv.URL+"/tasks", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestStreamDeliversBusEvents(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/tasks/task-1/stream?user_id=u1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// First comes the connection comment.
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Errorf("expected comment first, got %q", line)
	}

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for env.events.Subscribers("task-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed to bus")
		}
		time.Sleep(10 * time.Millisecond)
	}

	evt, _ := core.NewEvent(core.EventArtifactCreated, core.ArtifactPayload{TaskID: "task-1", Artifact: "report.md"})
	env.events.Publish("task-1", evt)

	var eventLine, dataLine string
	readDeadline := time.After(2 * time.Second)
	found := make(chan struct{})
	go func() {
		for {
			l, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			l = strings.TrimSpace(l)
			if strings.HasPrefix(l, "event:") {
				eventLine = l
			}
			if strings.HasPrefix(l, "data:") {
				dataLine = l
				close(found)
				return
			}
		}
	}()
	select {
	case <-found:
	case <-readDeadline:
		t.Fatal("timeout waiting for event frame")
	}

	if eventLine != "event: artifact_created" {
		t.Errorf("event line: %q", eventLine)
	}
	if !strings.Contains(dataLine, `"artifact":"report.md"`) {
		t.Errorf("data line: %q", dataLine)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status: %d", resp.StatusCode)
	}
}
