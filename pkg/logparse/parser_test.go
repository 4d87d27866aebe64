package logparse

import "testing"

func TestParseStructuredLine(t *testing.T) {
	r := Parse("2024-01-15 10:30:00 - agent.researcher - INFO - Starting search")
	if r.Timestamp != "2024-01-15 10:30:00" {
		t.Errorf("timestamp: got %q", r.Timestamp)
	}
	if r.Logger != "agent.researcher" {
		t.Errorf("logger: got %q", r.Logger)
	}
	if r.Level != "INFO" {
		t.Errorf("level: got %q", r.Level)
	}
	if r.Message != "Starting search" {
		t.Errorf("message: got %q", r.Message)
	}
	if !r.Matched {
		t.Error("expected matched record")
	}
}

func TestParseMalformedLine(t *testing.T) {
	r := Parse("connection refused")
	if r.Timestamp != "" || r.Logger != "" {
		t.Errorf("expected empty metadata, got %q / %q", r.Timestamp, r.Logger)
	}
	if r.Level != "INFO" {
		t.Errorf("level: got %q, want INFO fallback", r.Level)
	}
	if r.Message != "connection refused" {
		t.Errorf("message: got %q", r.Message)
	}
	if r.Matched {
		t.Error("expected unmatched record")
	}
}

func TestParseMessageWithEmbeddedDash(t *testing.T) {
	r := Parse("2024-01-15 10:30:01 - tool.web_search - ERROR - failed: HTTP 500 - retrying")
	if r.Message != "failed: HTTP 500 - retrying" {
		t.Errorf("message truncated: got %q", r.Message)
	}
	if r.Level != "ERROR" {
		t.Errorf("level: got %q", r.Level)
	}
}

func TestParseTotality(t *testing.T) {
	allowed := map[string]bool{"ERROR": true, "WARNING": true, "WARN": true, "INFO": true, "DEBUG": true}
	inputs := []string{
		"",
		"-",
		" - ",
		"no delimiters here",
		"2024-01-15 10:30:00 - a - INFO - x",
		"2024-01-15 10:30:00 - incomplete",
		"2024-13-99 99:99:99 - odd - DEBUG - still matches shape",
		"prefix 2024-01-15 10:30:00 - a - INFO - not anchored",
	}
	for _, in := range inputs {
		r := Parse(in)
		if r.Matched {
			if !allowed[r.Level] && r.Severity() != SeverityDefault {
				t.Errorf("Parse(%q): level %q should render neutral", in, r.Level)
			}
		} else if r.Level != "INFO" {
			t.Errorf("Parse(%q): fallback level got %q", in, r.Level)
		}
		if r.Message != in && !r.Matched {
			t.Errorf("Parse(%q): fallback message got %q", in, r.Message)
		}
		if r.Original != in {
			t.Errorf("Parse(%q): original not retained", in)
		}
	}
}

func TestReparseOriginalIsStable(t *testing.T) {
	inputs := []string{
		"2024-01-15 10:30:00 - agent.writer - DEBUG - drafting section 2",
		"2024-01-15 10:30:01 - tool.web_search - ERROR - failed: HTTP 500 - retrying",
		"plain unstructured output",
		"",
	}
	for _, in := range inputs {
		first := Parse(in)
		second := Parse(first.Original)
		if first != second {
			t.Errorf("re-parse of original not stable for %q: %+v != %+v", in, first, second)
		}
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		line string
		want Severity
	}{
		{"2024-01-15 10:30:00 - a - ERROR - boom", SeverityError},
		{"2024-01-15 10:30:00 - a - WARNING - careful", SeverityWarn},
		{"2024-01-15 10:30:00 - a - WARN - careful", SeverityWarn},
		{"2024-01-15 10:30:00 - a - INFO - fine", SeverityInfo},
		{"2024-01-15 10:30:00 - a - DEBUG - detail", SeverityDebug},
		{"2024-01-15 10:30:00 - a - TRACE - unknown level", SeverityDefault},
		{"unstructured line", SeverityDefault},
	}
	for _, tt := range tests {
		if got := Parse(tt.line).Severity(); got != tt.want {
			t.Errorf("Severity(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestParseAllKeepsOrder(t *testing.T) {
	lines := []string{"first", "second", "third"}
	records := ParseAll(lines)
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	for i, r := range records {
		if r.Message != lines[i] {
			t.Errorf("record %d out of order: %q", i, r.Message)
		}
	}
}
