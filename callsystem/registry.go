// Package callsystem tracks the PSTN calls currently bridged and terminates
// them through the Twilio REST API when the agent leg cannot serve them.
package callsystem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentplexus/voicebridge/internal/client"
)

// ActiveCall is one tracked PSTN call.
type ActiveCall struct {
	CallSID   string    `json:"call_sid"`
	StreamSID string    `json:"stream_sid"`
	StartedAt time.Time `json:"started_at"`
}

// Registry tracks active calls and can hang them up via the carrier API.
type Registry struct {
	client *client.Client

	mu    sync.RWMutex
	calls map[string]ActiveCall
}

// Option configures the Registry.
type Option func(*options)

type options struct {
	accountSID string
	authToken  string
	baseURL    string
}

// WithAccountSID sets the Twilio Account SID.
func WithAccountSID(sid string) Option {
	return func(o *options) {
		o.accountSID = sid
	}
}

// WithAuthToken sets the Twilio Auth Token.
func WithAuthToken(token string) Option {
	return func(o *options) {
		o.authToken = token
	}
}

// WithBaseURL overrides the Twilio API base URL.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// New creates a call registry backed by the Twilio REST API.
func New(opts ...Option) (*Registry, error) {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	twilioClient, err := client.New(&client.Config{
		AccountSID: cfg.accountSID,
		AuthToken:  cfg.authToken,
		BaseURL:    cfg.baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Twilio client: %w", err)
	}

	return &Registry{
		client: twilioClient,
		calls:  make(map[string]ActiveCall),
	}, nil
}

// Add records a call when its media stream starts.
func (r *Registry) Add(callSID, streamSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[callSID] = ActiveCall{
		CallSID:   callSID,
		StreamSID: streamSID,
		StartedAt: time.Now(),
	}
}

// Remove drops a call when its bridge session ends.
func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, callSID)
}

// List returns the currently bridged calls.
func (r *Registry) List() []ActiveCall {
	r.mu.RLock()
	defer r.mu.RUnlock()

	calls := make([]ActiveCall, 0, len(r.calls))
	for _, call := range r.calls {
		calls = append(calls, call)
	}
	return calls
}

// CallStatus is the carrier's view of a call.
type CallStatus struct {
	CallSID   string `json:"call_sid"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
}

// Describe fetches the carrier's current view of a call. The call does not
// have to be tracked; ended calls remain queryable.
func (r *Registry) Describe(ctx context.Context, callSID string) (*CallStatus, error) {
	call, err := r.client.GetCall(ctx, callSID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch call %s: %w", callSID, err)
	}
	return &CallStatus{
		CallSID:   call.SID,
		Status:    call.Status,
		Direction: call.Direction,
		Duration:  call.Duration,
	}, nil
}

// Hangup ends the PSTN leg of a call through the REST API.
func (r *Registry) Hangup(ctx context.Context, callSID string) error {
	if _, err := r.client.HangupCall(ctx, callSID); err != nil {
		return fmt.Errorf("failed to hangup call %s: %w", callSID, err)
	}
	r.Remove(callSID)
	return nil
}

// Close hangs up every tracked call.
func (r *Registry) Close() error {
	r.mu.Lock()
	sids := make([]string, 0, len(r.calls))
	for sid := range r.calls {
		sids = append(sids, sid)
	}
	r.calls = make(map[string]ActiveCall)
	r.mu.Unlock()

	ctx := context.Background()
	for _, sid := range sids {
		_, _ = r.client.HangupCall(ctx, sid)
	}
	return nil
}
