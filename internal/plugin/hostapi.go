// Package plugin models the boundary with the host agent runtime (spec.md
// §6, "External Interfaces" — explicitly out of scope as a thing we
// implement, but the shapes it hands us are part of our contract). Apart from
// Timestamp's JSON decoding and Message.NormalizeContent, this file only
// declares types; it exists so the rest of the module can be tested
// against a fake host without a real runtime attached.
package plugin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp accepts either an RFC3339 string or a numeric epoch-millisecond
// value on the wire, per spec.md §9's note that different source variants
// serialize turn timestamps differently.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("plugin: parse timestamp string %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}

	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("plugin: timestamp is neither string nor number: %w", err)
	}
	ms, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("plugin: parse epoch-ms timestamp %q: %w", raw.String(), err)
	}
	ts.Time = time.UnixMilli(ms).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler, always emitting RFC3339.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.Time.UTC().Format(time.RFC3339))
}

// Cost is the pre-computed cost the host may attach to a message's usage.
type Cost struct {
	Total float64 `json:"total"`
}

// Usage is the token/cost accounting a host attaches to an assistant
// message. Field names vary by provider SDK (spec.md §4.4); all three
// accepted pairs are represented here and resolved by the usage aggregator
// in precedence order.
type Usage struct {
	InputTokens      *int  `json:"input_tokens,omitempty"`
	OutputTokens     *int  `json:"output_tokens,omitempty"`
	PromptTokens     *int  `json:"prompt_tokens,omitempty"`
	CompletionTokens *int  `json:"completion_tokens,omitempty"`
	Input            *int  `json:"input,omitempty"`
	Output           *int  `json:"output,omitempty"`
	Cost             *Cost `json:"cost,omitempty"`
}

// ContentBlock is one element of a structured assistant-message content
// array (spec.md's vision-detection signal is a block with Type=="image").
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one turn message as the host reports it on agent_end (and, in
// abbreviated form, on before_agent_start).
type Message struct {
	Role      string         `json:"role"`
	Content   interface{}    `json:"content,omitempty"` // string or []ContentBlock
	Usage     *Usage         `json:"usage,omitempty"`
	Model     string         `json:"model,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Timestamp *Timestamp     `json:"timestamp,omitempty"`
	Blocks    []ContentBlock `json:"-"` // normalized view, populated by NormalizeContent
}

// TextContent returns the message's content as a flat string when Content is
// a plain string, else "".
func (m Message) TextContent() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return ""
}

// NormalizeContent decodes Content into Blocks when it is a structured array,
// tolerating both already-typed []ContentBlock (as constructed by tests) and
// the raw []interface{} shape produced by encoding/json.
func (m *Message) NormalizeContent() {
	switch v := m.Content.(type) {
	case []ContentBlock:
		m.Blocks = v
	case []interface{}:
		blocks := make([]ContentBlock, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			b := ContentBlock{}
			if t, ok := obj["type"].(string); ok {
				b.Type = t
			}
			if t, ok := obj["text"].(string); ok {
				b.Text = t
			}
			blocks = append(blocks, b)
		}
		m.Blocks = blocks
	}
}

// Turn is the event payload the host hands to both hooks. Messages is
// empty/abbreviated on before_agent_start and fully populated on agent_end.
type Turn struct {
	Prompt   string    `json:"prompt"`
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// PreTurnResult is what a before_agent_start handler may return to the host.
type PreTurnResult struct {
	PrependContext string `json:"prependContext,omitempty"`
}

// Logger is the subset of the host's logging facility we depend on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// HostAPI is the object the host passes to register() at load time.
type HostAPI interface {
	Logger() Logger
	ConfigPath() string
	On(hook string, handler HookHandler, priority int)
}

// HookHandler is invoked by the host for a given hook name with the turn
// payload; it returns an optional pre-turn injection result.
type HookHandler func(turn Turn) (*PreTurnResult, error)

const (
	HookBeforeAgentStart = "before_agent_start"
	HookAgentEnd         = "agent_end"
)
