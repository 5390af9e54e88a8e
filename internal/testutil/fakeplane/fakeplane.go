// Package fakeplane is an in-process stand-in for the agent control plane.
//
// With nothing queued it simulates the remote side: join creates a running
// session unless one already exists (409 TaskConflict), leave removes it and
// list reports what is running. Queued replies take precedence, one per call,
// so tests can script exact status/body sequences.
package fakeplane

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	OpJoin  = "join"
	OpLeave = "leave"
	OpList  = "list"
)

// Reply is one scripted response.
type Reply struct {
	Status int
	Body   string
	Delay  time.Duration
	// Drop closes the connection without a response.
	Drop bool
}

// Call is one request observed by the server.
type Call struct {
	Op        string
	Method    string
	Path      string
	Query     string
	AgentID   string
	Auth      string
	RequestID string
	Body      []byte
}

type Server struct {
	t     testing.TB
	appID string
	srv   *httptest.Server

	mu      sync.Mutex
	queued  map[string][]Reply
	calls   []Call
	running []string
	nextID  int
}

// New starts a plain HTTP fake for appID.
func New(t testing.TB, appID string) *Server {
	t.Helper()
	s := newServer(t, appID)
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

// NewTLS starts an HTTPS fake presenting the certificate in cfg.
func NewTLS(t testing.TB, appID string, cfg *tls.Config) *Server {
	t.Helper()
	s := newServer(t, appID)
	s.srv = httptest.NewUnstartedServer(http.HandlerFunc(s.serve))
	s.srv.TLS = cfg
	s.srv.StartTLS()
	t.Cleanup(s.srv.Close)
	return s
}

func newServer(t testing.TB, appID string) *Server {
	return &Server{
		t:      t,
		appID:  appID,
		queued: make(map[string][]Reply),
	}
}

func (s *Server) URL() string {
	return s.srv.URL
}

// Seed marks sessions as already running, e.g. left over from a prior boot.
func (s *Server) Seed(agentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = append(s.running, agentIDs...)
}

func (s *Server) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.running...)
}

func (s *Server) Queue(op string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[op] = append(s.queued[op], replies...)
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the operation names in call order.
func (s *Server) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Op)
	}
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	op, agentID, ok := s.route(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"message":"not found"}`)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Op:        op,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		AgentID:   agentID,
		Auth:      r.Header.Get("Authorization"),
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      body,
	})
	var reply Reply
	scripted := false
	if q := s.queued[op]; len(q) > 0 {
		reply = q[0]
		s.queued[op] = q[1:]
		scripted = true
	} else {
		reply = s.simulateLocked(op, agentID)
	}
	s.mu.Unlock()

	if scripted && reply.Delay > 0 {
		time.Sleep(reply.Delay)
	}
	if reply.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			s.t.Errorf("fakeplane: response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	writeJSON(w, reply.Status, reply.Body)
}

func (s *Server) route(r *http.Request) (string, string, bool) {
	prefix := "/" + s.appID + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	switch {
	case rest == "join" && r.Method == http.MethodPost:
		return OpJoin, "", true
	case rest == "agents" && r.Method == http.MethodGet:
		return OpList, "", true
	case strings.HasPrefix(rest, "agents/") && strings.HasSuffix(rest, "/leave") && r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(rest, "agents/"), "/leave")
		return OpLeave, id, id != ""
	default:
		return "", "", false
	}
}

func (s *Server) simulateLocked(op, agentID string) Reply {
	switch op {
	case OpJoin:
		if len(s.running) > 0 {
			return Reply{
				Status: http.StatusConflict,
				Body: fmt.Sprintf(
					`{"code":409,"reason":"TaskConflict","detail":"conflict task with agent %s","message":"task conflict"}`,
					s.running[0],
				),
			}
		}
		s.nextID++
		id := fmt.Sprintf("agent-%03d", s.nextID)
		s.running = append(s.running, id)
		return Reply{
			Status: http.StatusOK,
			Body:   fmt.Sprintf(`{"agent_id":%q,"create_ts":%d,"status":"RUNNING"}`, id, time.Now().Unix()),
		}
	case OpLeave:
		for i, id := range s.running {
			if id == agentID {
				s.running = append(s.running[:i], s.running[i+1:]...)
				return Reply{Status: http.StatusOK, Body: `{"code":0,"message":"success"}`}
			}
		}
		return Reply{Status: http.StatusNotFound, Body: `{"code":404,"message":"task not found"}`}
	case OpList:
		type entry struct {
			AgentID string `json:"agent_id"`
			Status  string `json:"status"`
			StartTS int64  `json:"start_ts"`
		}
		list := make([]entry, 0, len(s.running))
		for _, id := range s.running {
			list = append(list, entry{AgentID: id, Status: "RUNNING", StartTS: time.Now().Unix()})
		}
		payload, _ := json.Marshal(map[string]any{
			"data":   map[string]any{"count": len(list), "list": list},
			"meta":   map[string]any{},
			"status": "ok",
		})
		return Reply{Status: http.StatusOK, Body: string(payload)}
	default:
		return Reply{Status: http.StatusInternalServerError, Body: `{"message":"unscripted"}`}
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
