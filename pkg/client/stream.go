package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/dustland/agentx/pkg/core"
)

var knownEventTypes = map[core.EventType]bool{
	core.EventMessage:         true,
	core.EventAgentStatus:     true,
	core.EventTaskUpdate:      true,
	core.EventToolCallStart:   true,
	core.EventToolCallDelta:   true,
	core.EventToolCallResult:  true,
	core.EventArtifactUpdate:  true,
	core.EventArtifactCreated: true,
	core.EventMemoryUpdated:   true,
}

// Subscription is one live SSE connection to a task's event stream.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards closed and serializes callback delivery, so that no
	// callback fires after Unsubscribe returns.
	mu     sync.Mutex
	closed bool
}

// Unsubscribe closes the stream. It is idempotent, and once it returns no
// onUpdate or onError callback will fire. It must not be called from
// inside a callback.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

// Subscribe opens the task's event stream and dispatches tagged events to
// onUpdate. Connection errors go to onError and the transport retries with
// backoff; the subscription only ends when Unsubscribe is called. Unknown
// event types are ignored. Callbacks are invoked sequentially from a
// single goroutine.
func (c *Client) Subscribe(taskID, userID string, onUpdate func(core.Event), onError func(error)) (*Subscription, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}
	if onUpdate == nil {
		onUpdate = func(core.Event) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	streamURL := c.baseURL + "/tasks/" + url.PathEscape(taskID) + "/stream"
	if len(q) > 0 {
		streamURL += "?" + q.Encode()
	}

	go sub.run(ctx, streamURL, onUpdate, onError)
	return sub, nil
}

func (s *Subscription) run(ctx context.Context, streamURL string, onUpdate func(core.Event), onError func(error)) {
	defer close(s.done)

	// Streaming reads must not inherit the request timeout.
	httpClient := &http.Client{}
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx, httpClient, streamURL, onUpdate, func() { failures = 0 })
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.deliver(func() { onError(err) })
		}

		failures++
		select {
		case <-time.After(reconnectBackoff(failures)):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) consume(ctx context.Context, httpClient *http.Client, streamURL string, onUpdate func(core.Event), onConnected func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}
	onConnected()

	var p fastjson.Parser
	var eventName string
	var data strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(&p, eventName, data.String(), onUpdate)
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

// dispatch peeks at the payload's type tag without a full decode, drops
// unknown types, then delivers the decoded event.
func (s *Subscription) dispatch(p *fastjson.Parser, eventName, data string, onUpdate func(core.Event)) {
	v, err := p.Parse(data)
	if err != nil {
		return
	}
	typ := string(v.GetStringBytes("type"))
	if typ == "" {
		typ = eventName
	}
	if typ == "" {
		typ = string(core.EventMessage)
	}
	if !knownEventTypes[core.EventType(typ)] {
		return
	}

	var evt core.Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return
	}
	evt.Type = core.EventType(typ)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.deliver(func() { onUpdate(evt) })
}

// reconnectBackoff returns the retry delay: 1s, 2s, 4s, 8s, 16s, 30s max.
// The shift is capped before it happens; large failure counts would
// otherwise overflow into negative delays.
func reconnectBackoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if failures > 6 {
		return 30 * time.Second
	}
	d := time.Duration(1<<uint(failures-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
