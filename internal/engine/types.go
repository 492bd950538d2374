// Package engine implements the crawl scheduling core: the shared work
// store, the backpressure-bounded tick loop, and the signal-driven drain.
package engine

import (
	"net/http"
	"time"
)

// State is the lifecycle state of the scheduling loop.
type State string

// Loop states. Running transitions to Draining on interrupt and to
// Terminated when every buffer and sink is empty.
const (
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateTerminated State = "terminated"
)

// Task is a unit of crawl intent that has not yet been turned into a
// Request. Payload carries policy-defined state (depth, parent, etc.).
type Task struct {
	ID        string
	URL       string
	NotBefore time.Time
	Payload   map[string]any
}

// Profile is an acquired execution identity (user agent plus session
// state such as cookies). A profile is consumed when a Request is minted.
type Profile struct {
	ID         string
	Identity   string
	AcquiredAt time.Time
	Session    map[string]string
}

// Request is a fully formed, not-yet-issued fetch. It stays in the
// scheduled buffer until NotBefore elapses, then moves to the ready
// buffer and is handed to the fetch client.
type Request struct {
	ID        string
	URL       string
	Method    string
	NotBefore time.Time
	Profile   *Profile
	Retries   int
	Payload   map[string]any
}

// Response is the outcome of a completed fetch. Fetch failures are
// encoded in Error rather than surfaced as run-level errors.
type Response struct {
	Request    *Request
	StatusCode int
	Headers    http.Header
	Body       []byte
	FetchedAt  time.Time
	Duration   time.Duration
	Error      string
}

// Failed reports whether the fetch produced no usable payload.
func (r *Response) Failed() bool {
	return r.Error != ""
}

// ExtractResult is everything a policy's extraction callback may yield
// for one response.
type ExtractResult[E any] struct {
	Tasks    []*Task
	Requests []*Request
	Entities []E
	Errors   []string
}

// Snapshot is a point-in-time view of the work store and loop state,
// exposed for the status API and for tests.
type Snapshot struct {
	State      State  `json:"state"`
	Tasks      int    `json:"tasks"`
	Profiles   int    `json:"profiles"`
	Scheduled  int    `json:"scheduled"`
	Ready      int    `json:"ready"`
	Responses  int    `json:"responses"`
	Entities   int    `json:"entities"`
	Errors     int    `json:"errors"`
	FetchOps   int    `json:"fetch_ops"`
	ProfileOps int    `json:"profile_ops"`
	Ticks      uint64 `json:"ticks"`
}
