package config

import (
	"testing"
	"time"
)

func TestParseValidConfig(t *testing.T) {
	yaml := `
listen: ":9000"
data_dir: /var/lib/agentx
refresh_interval_ms: 3000
tasks:
  research:
    goal: "survey the field"
    agent: researcher
    command: "python run_agent.py --role researcher"
    dir: /work
    restart: on-failure
    env:
      MODEL: default
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen: got %q", cfg.Listen)
	}
	if cfg.RefreshInterval() != 3*time.Second {
		t.Errorf("refresh interval: got %v", cfg.RefreshInterval())
	}
	if len(cfg.Tasks) != 1 {
		t.Fatalf("tasks count: got %d", len(cfg.Tasks))
	}
	task := cfg.Tasks["research"]
	if task.Agent != "researcher" || task.Env["MODEL"] != "default" {
		t.Errorf("task not parsed: %+v", task)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("unexpected validation errors: %v", errs)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cfg.Listen != ":7770" {
		t.Errorf("listen default: got %q", cfg.Listen)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("data_dir default: got %q", cfg.DataDir)
	}
	if cfg.RefreshInterval() != 2*time.Second {
		t.Errorf("refresh default: got %v", cfg.RefreshInterval())
	}
}

func TestValidateTaskErrors(t *testing.T) {
	cfg := Default()
	cfg.Tasks = map[string]TaskDef{
		"bad": {Restart: "sometimes"},
	}
	errs := Validate(cfg)
	if len(errs) != 3 { // missing agent, missing command, bad restart
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateRefreshFloor(t *testing.T) {
	cfg := Default()
	cfg.RefreshIntervalMS = 10
	if errs := Validate(cfg); len(errs) != 1 {
		t.Errorf("expected refresh interval error, got %v", errs)
	}
}
