package genesisdbtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// AuthToken is the bearer token the mock server accepts.
const AuthToken = "test-token"

// StoredEvent is an event held by the mock server, in wire form.
type StoredEvent struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject"`
	Time            string          `json:"time,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	SpecVersion     string          `json:"specversion"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	DataRef         string          `json:"dataref,omitempty"`
}

// RequestOptions are the decoded stream options of a recorded request.
type RequestOptions struct {
	LowerBound             string `json:"lowerBound,omitempty"`
	IncludeLowerBoundEvent *bool  `json:"includeLowerBoundEvent,omitempty"`
	LatestByEventType      string `json:"latestByEventType,omitempty"`
}

// StreamRequest records one stream-events or observe-events request.
type StreamRequest struct {
	Time    time.Time
	Subject string
	Options *RequestOptions
}

// MockServer is an in-memory implementation of a Genesis DB server.
// It's useful for testing client code without network dependencies.
//
// The zero-value behaviors can be scripted before connecting:
//
//	server.DropObserveConnections(3)  // next 3 observes close with no events
//	server.SetObserveEventLimit(5)    // each observe closes after 5 events
//	server.SetMalformedTail(true)     // streams end with a truncated record
type MockServer struct {
	server *httptest.Server

	mu     sync.Mutex
	events []StoredEvent
	nextID int
	notify chan struct{}

	streamRequests  []StreamRequest
	observeRequests []StreamRequest
	erasedSubjects  []string
	queryRows       []json.RawMessage
	queries         []string

	observeEventLimit int
	dropObserves      int
	abortStreamAfter  int
	malformedTail     bool
	heartbeats        bool
	ssePrefix         bool
	queryPrecondition bool

	openObserves int
}

// NewMockServer creates a new mock Genesis DB server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		notify:            make(chan struct{}),
		queryPrecondition: true,
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handleRequest))
	return ms
}

// URL returns the base URL of the mock server.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// HTTPClient returns an HTTP client configured to use the mock server.
func (ms *MockServer) HTTPClient() *http.Client {
	return ms.server.Client()
}

// Close shuts down the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// AppendEvent stores an event directly, bypassing commit, and wakes any
// live observers. Returns the assigned id.
func (ms *MockServer) AppendEvent(subject, eventType string, data any) string {
	raw, _ := json.Marshal(data)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.appendLocked(StoredEvent{
		Source:  "genesisdbtest",
		Type:    eventType,
		Subject: subject,
		Data:    raw,
	})
}

// appendLocked assigns an id and stores the event. Caller must hold ms.mu.
func (ms *MockServer) appendLocked(ev StoredEvent) string {
	ms.nextID++
	// Zero-padded so ids sort lexicographically in commit order.
	ev.ID = fmt.Sprintf("%020d", ms.nextID)
	ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
	if ev.SpecVersion == "" {
		ev.SpecVersion = "1.0"
	}
	ms.events = append(ms.events, ev)

	close(ms.notify)
	ms.notify = make(chan struct{})
	return ev.ID
}

// EventCount returns the number of stored events for a subject.
func (ms *MockServer) EventCount(subject string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, ev := range ms.events {
		if subjectMatches(subject, ev.Subject) {
			n++
		}
	}
	return n
}

// Events returns a copy of all stored events in commit order.
func (ms *MockServer) Events() []StoredEvent {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]StoredEvent, len(ms.events))
	copy(out, ms.events)
	return out
}

// StreamRequests returns all recorded stream-events requests.
func (ms *MockServer) StreamRequests() []StreamRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]StreamRequest, len(ms.streamRequests))
	copy(out, ms.streamRequests)
	return out
}

// ObserveRequests returns all recorded observe-events requests.
func (ms *MockServer) ObserveRequests() []StreamRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]StreamRequest, len(ms.observeRequests))
	copy(out, ms.observeRequests)
	return out
}

// ErasedSubjects returns the subjects erase was called for.
func (ms *MockServer) ErasedSubjects() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.erasedSubjects))
	copy(out, ms.erasedSubjects)
	return out
}

// Queries returns the recorded query strings.
func (ms *MockServer) Queries() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.queries))
	copy(out, ms.queries)
	return out
}

// SetQueryRows sets the rows returned by the query endpoint.
func (ms *MockServer) SetQueryRows(rows []json.RawMessage) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.queryRows = rows
}

// SetQueryPreconditionResult sets the outcome of isQueryResultTrue
// preconditions. Default true.
func (ms *MockServer) SetQueryPreconditionResult(ok bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.queryPrecondition = ok
}

// SetObserveEventLimit closes each observation connection cleanly after
// n delivered events. 0 means unlimited.
func (ms *MockServer) SetObserveEventLimit(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.observeEventLimit = n
}

// DropObserveConnections makes the next n observation connections close
// immediately with no events.
func (ms *MockServer) DropObserveConnections(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.dropObserves = n
}

// AbortStreamAfter makes bounded stream responses abort mid-transfer
// after n events, producing a transport error on the client. 0 disables.
func (ms *MockServer) AbortStreamAfter(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.abortStreamAfter = n
}

// SetMalformedTail makes stream and observe responses end with a
// truncated record. Default off.
func (ms *MockServer) SetMalformedTail(on bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.malformedTail = on
}

// SetHeartbeats makes observation connections emit a keep-alive record
// before any events. Default off.
func (ms *MockServer) SetHeartbeats(on bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.heartbeats = on
}

// SetSSEPrefix makes stream responses frame records with an SSE-style
// "data: " prefix. Default off.
func (ms *MockServer) SetSSEPrefix(on bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ssePrefix = on
}

// OpenObserveCount returns the number of observation connections whose
// handlers are currently running. After a client cancels, this drops
// back to zero once the server notices the closed connection.
func (ms *MockServer) OpenObserveCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.openObserves
}

// handleRequest routes HTTP requests to the appropriate handler.
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+AuthToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	switch {
	case path == "commit" && r.Method == http.MethodPost:
		ms.handleCommit(w, r)
	case path == "stream-events" && r.Method == http.MethodPost:
		ms.handleStream(w, r)
	case path == "observe-events" && r.Method == http.MethodPost:
		ms.handleObserve(w, r)
	case path == "query" && r.Method == http.MethodPost:
		ms.handleQuery(w, r)
	case path == "erase" && r.Method == http.MethodDelete:
		ms.handleErase(w, r)
	case path == "ping" && r.Method == http.MethodGet:
		fmt.Fprint(w, "pong")
	case path == "audit" && r.Method == http.MethodGet:
		fmt.Fprint(w, "audit ok")
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// commitBody mirrors the commit request wire shape.
type commitBody struct {
	Events []struct {
		Source  string          `json:"source"`
		Subject string          `json:"subject"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
		Options *struct {
			StoreDataAsReference bool `json:"storeDataAsReference"`
		} `json:"options"`
	} `json:"events"`
	Preconditions []struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	} `json:"preconditions"`
}

// handleCommit evaluates preconditions and appends the batch atomically.
func (ms *MockServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body commitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body.Events) == 0 {
		http.Error(w, "empty commit", http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, pre := range body.Preconditions {
		var payload struct {
			Subject string `json:"subject"`
			Query   string `json:"query"`
		}
		json.Unmarshal(pre.Payload, &payload)

		failed := false
		detail := ""
		switch pre.Type {
		case "isSubjectNew":
			if ms.countLocked(payload.Subject) > 0 {
				failed = true
				detail = fmt.Sprintf("subject %s already has events", payload.Subject)
			}
		case "isSubjectExisting":
			if ms.countLocked(payload.Subject) == 0 {
				failed = true
				detail = fmt.Sprintf("subject %s has no events", payload.Subject)
			}
		case "isQueryResultTrue":
			if !ms.queryPrecondition {
				failed = true
				detail = "query evaluated to false"
			}
		default:
			failed = true
			detail = fmt.Sprintf("unknown precondition type %s", pre.Type)
		}

		if failed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPreconditionFailed)
			json.NewEncoder(w).Encode(map[string]string{
				"failedPrecondition": pre.Type,
				"detail":             detail,
			})
			return
		}
	}

	for _, ev := range body.Events {
		stored := StoredEvent{
			Source:  ev.Source,
			Type:    ev.Type,
			Subject: ev.Subject,
			Data:    ev.Data,
		}
		if ev.Options != nil && ev.Options.StoreDataAsReference {
			stored.DataRef = fmt.Sprintf("ref-%d", ms.nextID+1)
		}
		ms.appendLocked(stored)
	}

	w.WriteHeader(http.StatusOK)
}

// streamBody mirrors the stream request wire shape.
type streamBody struct {
	Subject string          `json:"subject"`
	Options *RequestOptions `json:"options"`
}

// handleStream serves a bounded event window as NDJSON.
func (ms *MockServer) handleStream(w http.ResponseWriter, r *http.Request) {
	var body streamBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	ms.streamRequests = append(ms.streamRequests, StreamRequest{
		Time:    time.Now(),
		Subject: body.Subject,
		Options: body.Options,
	})
	matched := ms.selectLocked(body.Subject, body.Options)
	abortAfter := ms.abortStreamAfter
	malformed := ms.malformedTail
	ssePrefix := ms.ssePrefix
	ms.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for i, ev := range matched {
		if abortAfter > 0 && i >= abortAfter {
			if flusher != nil {
				flusher.Flush()
			}
			panic(http.ErrAbortHandler)
		}
		writeRecord(w, ev, ssePrefix)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if malformed {
		fmt.Fprint(w, `{"id":"trunc`)
	}
}

// handleObserve serves a live NDJSON tail until the connection is
// dropped by either side or the scripted event limit is reached.
func (ms *MockServer) handleObserve(w http.ResponseWriter, r *http.Request) {
	var body streamBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	ms.observeRequests = append(ms.observeRequests, StreamRequest{
		Time:    time.Now(),
		Subject: body.Subject,
		Options: body.Options,
	})
	drop := ms.dropObserves > 0
	if drop {
		ms.dropObserves--
	}
	limit := ms.observeEventLimit
	heartbeats := ms.heartbeats
	malformed := ms.malformedTail
	ssePrefix := ms.ssePrefix
	ms.openObserves++
	ms.mu.Unlock()

	defer func() {
		ms.mu.Lock()
		ms.openObserves--
		ms.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	if drop {
		return
	}

	if heartbeats {
		fmt.Fprint(w, "{\"payload\":\"\"}\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	if malformed {
		fmt.Fprint(w, `{"id":"trunc`)
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	sent := 0
	seen := 0
	opts := body.Options
	for {
		ms.mu.Lock()
		pending := ms.events[seen:]
		seen = len(ms.events)
		notify := ms.notify
		ms.mu.Unlock()

		for _, ev := range pending {
			if !subjectMatches(body.Subject, ev.Subject) {
				continue
			}
			if !passesBound(ev, opts) {
				continue
			}
			if opts != nil && opts.LatestByEventType != "" && ev.Type != opts.LatestByEventType {
				continue
			}
			writeRecord(w, ev, ssePrefix)
			if flusher != nil {
				flusher.Flush()
			}
			sent++
			if limit > 0 && sent >= limit {
				return
			}
		}

		select {
		case <-notify:
		case <-r.Context().Done():
			return
		}
	}
}

// handleQuery returns the configured rows as a JSON array.
func (ms *MockServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	ms.queries = append(ms.queries, body.Query)
	rows := ms.queryRows
	ms.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if rows == nil {
		rows = []json.RawMessage{}
	}
	json.NewEncoder(w).Encode(rows)
}

// handleErase clears stored payloads for the subject.
func (ms *MockServer) handleErase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	ms.erasedSubjects = append(ms.erasedSubjects, body.Subject)
	for i := range ms.events {
		if subjectMatches(body.Subject, ms.events[i].Subject) {
			ms.events[i].Data = nil
			ms.events[i].DataRef = ""
		}
	}
	ms.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// selectLocked returns the events visible to a bounded stream request.
// Caller must hold ms.mu.
func (ms *MockServer) selectLocked(subject string, opts *RequestOptions) []StoredEvent {
	var matched []StoredEvent
	for _, ev := range ms.events {
		if !subjectMatches(subject, ev.Subject) {
			continue
		}
		if !passesBound(ev, opts) {
			continue
		}
		matched = append(matched, ev)
	}

	if opts != nil && opts.LatestByEventType != "" {
		var latest *StoredEvent
		for i := range matched {
			if matched[i].Type == opts.LatestByEventType {
				latest = &matched[i]
			}
		}
		if latest == nil {
			return nil
		}
		return []StoredEvent{*latest}
	}
	return matched
}

// passesBound applies lowerBound filtering.
func passesBound(ev StoredEvent, opts *RequestOptions) bool {
	if opts == nil || opts.LowerBound == "" {
		return true
	}
	include := opts.IncludeLowerBoundEvent != nil && *opts.IncludeLowerBoundEvent
	if include {
		return ev.ID >= opts.LowerBound
	}
	return ev.ID > opts.LowerBound
}

// countLocked counts events for a subject. Caller must hold ms.mu.
func (ms *MockServer) countLocked(subject string) int {
	n := 0
	for _, ev := range ms.events {
		if subjectMatches(subject, ev.Subject) {
			n++
		}
	}
	return n
}

// subjectMatches reports whether an event subject falls under the
// requested hierarchical subject.
func subjectMatches(requested, actual string) bool {
	if requested == "" || requested == "/" {
		return true
	}
	return actual == requested || strings.HasPrefix(actual, requested+"/")
}

// writeRecord writes one NDJSON record, optionally SSE-framed.
func writeRecord(w http.ResponseWriter, ev StoredEvent, ssePrefix bool) {
	data, _ := json.Marshal(ev)
	if ssePrefix {
		fmt.Fprintf(w, "data: %s\n", data)
	} else {
		fmt.Fprintf(w, "%s\n", data)
	}
}
