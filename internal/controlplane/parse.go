package controlplane

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	conflictReason       = "TaskConflict"
	conflictDetailMarker = "conflict task"
)

type JoinKind int

const (
	JoinParseFailed JoinKind = iota
	JoinStarted
	JoinConflict
	JoinRejected
)

func (k JoinKind) String() string {
	switch k {
	case JoinStarted:
		return "started"
	case JoinConflict:
		return "conflict"
	case JoinRejected:
		return "rejected"
	default:
		return "parse_failed"
	}
}

// JoinOutcome classifies a join response body.
type JoinOutcome struct {
	Kind     JoinKind
	AgentID  string
	Status   string
	CreateTS int64
	HasCode  bool
	Code     int64
	Message  string
	Reason   string
	Detail   string
	Err      error
}

// Summary renders the error fields for logs.
func (o JoinOutcome) Summary() string {
	parts := make([]string, 0, 4)
	if o.HasCode {
		parts = append(parts, fmt.Sprintf("code=%d", o.Code))
	}
	if o.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", o.Message))
	}
	if o.Reason != "" {
		parts = append(parts, fmt.Sprintf("reason=%q", o.Reason))
	}
	if o.Detail != "" {
		parts = append(parts, fmt.Sprintf("detail=%q", o.Detail))
	}
	if o.Err != nil {
		parts = append(parts, "err="+o.Err.Error())
	}
	return strings.Join(parts, " ")
}

// ParseJoin classifies a create-session response. It never panics.
func ParseJoin(body []byte) JoinOutcome {
	root, err := parseObject("join", body)
	if err != nil {
		return JoinOutcome{Kind: JoinParseFailed, Err: err}
	}

	if id := stringField(root, "agent_id"); id != "" {
		out := JoinOutcome{
			Kind:    JoinStarted,
			AgentID: id,
			Status:  stringField(root, "status"),
		}
		if ts := root.Get("create_ts"); ts.Type == gjson.Number {
			out.CreateTS = ts.Int()
		}
		return out
	}

	out := JoinOutcome{
		Kind:    JoinRejected,
		Message: stringField(root, "message"),
		Reason:  stringField(root, "reason"),
		Detail:  stringField(root, "detail"),
	}
	if code := root.Get("code"); code.Type == gjson.Number {
		out.HasCode = true
		out.Code = code.Int()
	}
	if out.Reason == conflictReason || strings.Contains(out.Detail, conflictDetailMarker) {
		out.Kind = JoinConflict
	}
	return out
}

// LeaveOutcome classifies a leave response body.
type LeaveOutcome struct {
	OK      bool
	HasCode bool
	Code    int64
	Message string
	Err     error
}

// ParseLeave reports success iff the body carries a numeric code of 0.
func ParseLeave(body []byte) LeaveOutcome {
	root, err := parseObject("leave", body)
	if err != nil {
		return LeaveOutcome{Err: err}
	}
	out := LeaveOutcome{Message: stringField(root, "message")}
	if code := root.Get("code"); code.Type == gjson.Number {
		out.HasCode = true
		out.Code = code.Int()
		out.OK = out.Code == 0
	}
	return out
}

// RunningSession describes one session the remote side reports as active,
// regardless of who owns it.
type RunningSession struct {
	AgentID string
	Status  string
	StartTS int64
	Channel string
}

// ListOutcome is the decoded list-active result.
type ListOutcome struct {
	Sessions []RunningSession
	Count    int
}

// Empty reports that the first listed entry does not name a session.
func (l ListOutcome) Empty() bool {
	return len(l.Leading(1)) == 0
}

// Leading returns up to n entries from the head of the list, stopping at the
// first entry without an agent id. Entries are never reordered or skipped.
func (l ListOutcome) Leading(n int) []RunningSession {
	out := make([]RunningSession, 0, n)
	for i := 0; i < n && i < len(l.Sessions); i++ {
		if l.Sessions[i].AgentID == "" {
			break
		}
		out = append(out, l.Sessions[i])
	}
	return out
}

// ParseListActive decodes data.list[*] in order. A missing data object, a
// missing list or an empty list is a valid empty result. Entries without a
// string agent_id keep their position with an empty AgentID.
func ParseListActive(body []byte) (ListOutcome, error) {
	root, err := parseObject("list", body)
	if err != nil {
		return ListOutcome{}, err
	}
	data := root.Get("data")
	if !data.IsObject() {
		return ListOutcome{}, nil
	}
	list := data.Get("list")
	if !list.IsArray() {
		return ListOutcome{}, nil
	}

	var out ListOutcome
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			out.Sessions = append(out.Sessions, RunningSession{})
			return true
		}
		session := RunningSession{
			AgentID: stringField(entry, "agent_id"),
			Status:  stringField(entry, "status"),
			Channel: stringField(entry, "channel"),
		}
		if ts := entry.Get("start_ts"); ts.Type == gjson.Number {
			session.StartTS = ts.Int()
		}
		out.Sessions = append(out.Sessions, session)
		return true
	})
	out.Count = len(out.Sessions)
	if count := data.Get("count"); count.Type == gjson.Number && int(count.Int()) > out.Count {
		out.Count = int(count.Int())
	}
	return out, nil
}

func parseObject(kind string, body []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return gjson.Result{}, fmt.Errorf("%w: empty %s response", ErrParse, kind)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid %s json", ErrParse, kind)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: %s response is not an object", ErrParse, kind)
	}
	return root, nil
}

func stringField(obj gjson.Result, key string) string {
	v := obj.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
