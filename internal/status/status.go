// Package status implements the unauthenticated root, health, and
// aggregate-stats endpoints of spec.md §4 (GET /, /status, /stats).
package status

import (
	"fmt"
	"time"

	"github.com/agent-bridge/bridge/internal/store"
)

const version = "1.0.0"

// Counters is the set of cross-component counts surfaced by /stats.
type Counters struct {
	Agents  func() (int, error)
	Messages func() (int, error)
	Files   func() (int, error)
	Tasks   func() (int, error)
	Commits func() (int, error)
}

// Root is the shape returned by GET /.
type Root struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Status is the shape returned by GET /status.
type Status struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Uptime       string  `json:"uptime"`
}

// Stats is the shape returned by GET /stats.
type Stats struct {
	Agents   int `json:"agents"`
	Messages int `json:"messages"`
	Files    int `json:"files"`
	Tasks    int `json:"tasks"`
	Commits  int `json:"commits"`
}

// Reporter tracks process start time and exposes the status endpoints.
type Reporter struct {
	startedAt time.Time
	counters  Counters
}

func New(counters Counters) *Reporter {
	return &Reporter{startedAt: time.Now(), counters: counters}
}

func (r *Reporter) Root() *Root {
	return &Root{Name: "agent-bridge", Version: version, Status: "ok"}
}

func (r *Reporter) StatusReport() *Status {
	d := time.Since(r.startedAt)
	return &Status{
		Status:        "ok",
		Version:       version,
		UptimeSeconds: d.Seconds(),
		Uptime:        humanDuration(d),
	}
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}

// Stats aggregates counts across every component.
func (r *Reporter) Stats() (*Stats, error) {
	st := &Stats{}
	var err error
	if st.Agents, err = r.counters.Agents(); err != nil {
		return nil, err
	}
	if st.Messages, err = r.counters.Messages(); err != nil {
		return nil, err
	}
	if st.Files, err = r.counters.Files(); err != nil {
		return nil, err
	}
	if st.Tasks, err = r.counters.Tasks(); err != nil {
		return nil, err
	}
	if st.Commits, err = r.counters.Commits(); err != nil {
		return nil, err
	}
	return st, nil
}

// Now is exported so handlers can stamp start-time-relative fields without
// importing the store package directly.
var Now = store.Now
