package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dustland/agentx/pkg/core"
)

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "agentx ") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestTasksCommandJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]core.Task{
			{ID: "t1", Goal: "write report", Agent: "writer", Status: core.TaskRunning},
		})
	}))
	defer srv.Close()

	serverAddr = srv.URL
	defer func() { serverAddr = "localhost:7770" }()

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"tasks", "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var tasks []core.Task
	if err := json.Unmarshal(buf.Bytes(), &tasks); err != nil {
		t.Fatalf("decode output: %v\n%s", err, buf.String())
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestPingCommandUnreachable(t *testing.T) {
	serverAddr = "localhost:1"
	defer func() { serverAddr = "localhost:7770" }()

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"ping"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for unreachable daemon")
	}
}
