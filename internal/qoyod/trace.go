package qoyod

import (
	"context"
	"encoding/json"
	"sync"
)

// Exchange is one request/response pair as sent over the wire.
type Exchange struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status,omitempty"`
	Request  []byte `json:"-"`
	Response []byte `json:"-"`
	Error    string `json:"error,omitempty"`
}

// Trace collects the exchanges made with a context.
type Trace struct {
	mu        sync.Mutex
	exchanges []Exchange
}

type traceKey struct{}

// WithTrace attaches a fresh Trace to ctx.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	t := &Trace{}
	return context.WithValue(ctx, traceKey{}, t), t
}

func traceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

func (t *Trace) record(e Exchange) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exchanges = append(t.exchanges, e)
}

// Exchanges returns a copy of the recorded exchanges in call order.
func (t *Trace) Exchanges() []Exchange {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Exchange(nil), t.exchanges...)
}

// Len returns the number of calls made.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.exchanges)
}

// Payloads returns every exchange of the trace as two JSON arrays in call
// order: the requests, and the responses with their status. A body that is
// not JSON is kept as a JSON string. Both are nil when nothing was sent.
func (t *Trace) Payloads() (request, response json.RawMessage) {
	ex := t.Exchanges()
	if len(ex) == 0 {
		return nil, nil
	}
	reqs := make([]tracedBody, 0, len(ex))
	resps := make([]tracedBody, 0, len(ex))
	for _, e := range ex {
		reqs = append(reqs, tracedBody{Method: e.Method, Path: e.Path, Body: asJSON(e.Request)})
		resps = append(resps, tracedBody{Method: e.Method, Path: e.Path, Status: e.Status,
			Body: asJSON(e.Response), Error: e.Error})
	}
	request, _ = json.Marshal(reqs)
	response, _ = json.Marshal(resps)
	return request, response
}

type tracedBody struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Status int             `json:"status,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func asJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
