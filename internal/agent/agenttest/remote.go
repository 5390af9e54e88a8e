// Package agenttest provides deterministic collaborators for agent.Controller
// tests.
package agenttest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/danmuck/convoctl/internal/agent"
	"github.com/danmuck/convoctl/internal/controlplane"
)

const (
	OpJoin  = "join"
	OpLeave = "leave"
	OpList  = "list"
)

// Reply is one scripted remote result. A non-nil Err is returned as a
// transport failure.
type Reply struct {
	Status int
	Body   string
	Err    error
}

func OK(body string) Reply {
	return Reply{Status: http.StatusOK, Body: body}
}

func Status(status int, body string) Reply {
	return Reply{Status: status, Body: body}
}

func TransportFailure(op string) Reply {
	return Reply{Err: &controlplane.TransportError{Op: op, Err: fmt.Errorf("dial tcp: connection refused")}}
}

// Call is one remote invocation observed by FakeRemote.
type Call struct {
	Op      string
	AgentID string
	Doc     []byte
}

// FakeRemote replays queued replies per operation. An operation with an
// empty queue fails the call with a 500.
type FakeRemote struct {
	mu     sync.Mutex
	queued map[string][]Reply
	calls  []Call
}

var _ agent.Remote = (*FakeRemote)(nil)

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{queued: make(map[string][]Reply)}
}

func (f *FakeRemote) Queue(op string, replies ...Reply) *FakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], replies...)
	return f
}

func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeRemote) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		if c.AgentID != "" {
			out = append(out, c.Op+":"+c.AgentID)
			continue
		}
		out = append(out, c.Op)
	}
	return out
}

func (f *FakeRemote) Join(_ context.Context, doc []byte) (controlplane.Response, error) {
	return f.next(Call{Op: OpJoin, Doc: doc})
}

func (f *FakeRemote) Leave(_ context.Context, agentID string) (controlplane.Response, error) {
	return f.next(Call{Op: OpLeave, AgentID: agentID})
}

func (f *FakeRemote) ListActive(_ context.Context) (controlplane.Response, error) {
	return f.next(Call{Op: OpList})
}

func (f *FakeRemote) next(call Call) (controlplane.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	q := f.queued[call.Op]
	if len(q) == 0 {
		return controlplane.Response{Status: http.StatusInternalServerError, Body: []byte(`{"message":"unscripted"}`)}, nil
	}
	reply := q[0]
	f.queued[call.Op] = q[1:]
	if reply.Err != nil {
		return controlplane.Response{}, reply.Err
	}
	return controlplane.Response{Status: reply.Status, Body: []byte(reply.Body)}, nil
}
