// Package logparse turns raw task log lines into structured records.
package logparse

import (
	"regexp"
	"strings"
)

// Log lines emitted by the runtime follow a fixed textual layout:
// "2024-01-15 10:30:00 - agent.researcher - INFO - Starting search".
// Only the first three " - " separators are structural; the message
// group is greedy so embedded dashes survive.
var linePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) - ([^-]+) - ([A-Z]+) - (.+)$`)

// Severity buckets records for display treatment.
type Severity int

const (
	SeverityDefault Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
)

// Record is the structured view of a single log line. It is a pure
// function of the raw line: re-parsing Original always yields an equal
// Record.
type Record struct {
	Timestamp string `json:"timestamp"`
	Logger    string `json:"logger"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Original  string `json:"original"`
	Matched   bool   `json:"matched"`
}

// Parse converts a raw line into a Record. It is total: every input
// produces a record, never an error. Lines that do not match the fixed
// pattern fall back to a raw record with level INFO.
func Parse(line string) Record {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Record{
			Level:    "INFO",
			Message:  line,
			Original: line,
		}
	}
	return Record{
		Timestamp: strings.TrimSpace(m[1]),
		Logger:    strings.TrimSpace(m[2]),
		Level:     strings.TrimSpace(m[3]),
		Message:   strings.TrimSpace(m[4]),
		Original:  line,
		Matched:   true,
	}
}

// ParseAll parses a batch of raw lines in order.
func ParseAll(lines []string) []Record {
	records := make([]Record, len(lines))
	for i, line := range lines {
		records[i] = Parse(line)
	}
	return records
}

// Severity classifies the record for display. Levels are matched
// case-sensitively; anything unrecognized, including the no-match
// fallback, gets the neutral treatment.
func (r Record) Severity() Severity {
	if !r.Matched {
		return SeverityDefault
	}
	switch r.Level {
	case "ERROR":
		return SeverityError
	case "WARNING", "WARN":
		return SeverityWarn
	case "INFO":
		return SeverityInfo
	case "DEBUG":
		return SeverityDebug
	default:
		return SeverityDefault
	}
}
