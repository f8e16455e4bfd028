// Package truncate rewrites an append-only JSONL session log to stay under a
// token ceiling while preserving structural entries and the causal parent
// chain. The read-modify-write itself goes through internal/atomicstore's
// line-oriented primitive, which has no teacher precedent (tokenhub's
// internal/store is a SQLite-backed database/sql store, not a document
// rewriter) and is chainrouter's own design; the entry shape (type/id/
// parentId/message/timestamp) follows the pack's session-log conventions
// observed in original_source/.
package truncate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/chainrouter/chainrouter/internal/atomicstore"
	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/google/uuid"
)

// structuralTypes are session-entry "type" values that carry metadata, not
// conversational content, and are always preserved in full.
var structuralTypes = map[string]bool{
	"session":               true,
	"model_change":          true,
	"thinking_level_change": true,
	"custom":                true,
	"compaction":            true,
}

const (
	structuralTokenEstimate = 50
	minContentTokenEstimate = 50
)

// Entry is one line of the session log. Unknown sibling fields round-trip
// via Extra so we never drop data the host attached that we don't model.
type Entry struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	ParentID  *string         `json:"parentId"`
	Timestamp string          `json:"timestamp,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Extra     json.RawMessage `json:"-"`
}

// Message is a session entry's content payload.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock mirrors plugin.ContentBlock for the purpose of text-length
// estimation over a structured content array.
type contentBlock struct {
	Text string `json:"text"`
}

func (e Entry) isStructural() bool {
	return structuralTypes[e.Type]
}

// textLength returns the character count of the entry's message content,
// whether it is a plain string or an array of text blocks.
func (e Entry) textLength() int {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(e.Message.Content, &s); err == nil {
		return len(s)
	}
	var blocks []contentBlock
	if err := json.Unmarshal(e.Message.Content, &blocks); err == nil {
		total := 0
		for _, b := range blocks {
			total += len(b.Text)
		}
		return total
	}
	return 0
}

// estimateTokens implements spec.md §4.10's token estimate: 50 for a
// structural entry; max(50, ceil(chars/4)) for a content entry.
func (e Entry) estimateTokens() int {
	if e.isStructural() {
		return structuralTokenEstimate
	}
	chars := e.textLength()
	est := int(math.Ceil(float64(chars) / 4))
	if est < minContentTokenEstimate {
		return minContentTokenEstimate
	}
	return est
}

// parseLine decodes one JSONL line into an Entry, retaining unrecognised
// sibling fields in Extra so re-marshaling doesn't lose host-owned data.
func parseLine(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	e.Extra = append(json.RawMessage(nil), line...)
	return e, nil
}

// marshalEntry re-serializes an entry, overlaying its canonical
// type/id/parentId/timestamp/message fields onto whatever sibling fields its
// original line carried.
func marshalEntry(e Entry) ([]byte, error) {
	var merged map[string]json.RawMessage
	if len(e.Extra) > 0 {
		if err := json.Unmarshal(e.Extra, &merged); err != nil {
			merged = map[string]json.RawMessage{}
		}
	} else {
		merged = map[string]json.RawMessage{}
	}

	set := func(key string, v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		merged[key] = b
		return nil
	}
	if err := set("type", e.Type); err != nil {
		return nil, err
	}
	if err := set("id", e.ID); err != nil {
		return nil, err
	}
	if e.ParentID == nil {
		merged["parentId"] = json.RawMessage("null")
	} else {
		if err := set("parentId", *e.ParentID); err != nil {
			return nil, err
		}
	}
	if e.Timestamp != "" {
		if err := set("timestamp", e.Timestamp); err != nil {
			return nil, err
		}
	}
	if e.Message != nil {
		if err := set("message", e.Message); err != nil {
			return nil, err
		}
	} else {
		delete(merged, "message")
	}

	return json.Marshal(merged)
}

// Result describes the outcome of a Truncate call.
type Result struct {
	Truncated      bool
	RemovedCount   int
	EstimateBefore int
	EstimateAfter  int
}

// notTruncated is the zero-value "nothing to do" result.
var notTruncated = Result{}

// Truncate reads the JSONL session log at path, and if its estimated token
// count exceeds maxTokens and it has more than keepRecent content entries,
// rewrites it per spec.md §4.10: keep all structural entries, keep the most
// recent keepRecent content entries, insert one synthetic compaction entry,
// and re-link the whole sequence into a single linear parent chain. Returns
// Result{Truncated:false} without writing if the log is missing, already
// within budget, or has too few content entries to trim.
func Truncate(path string, maxTokens, keepRecent int, bus *events.Bus) (Result, error) {
	plan, err := buildPlan(path, maxTokens, keepRecent)
	if err != nil {
		return Result{}, err
	}
	if !plan.truncated {
		return notTruncated, nil
	}

	lines := make([][]byte, 0, len(plan.rebuilt))
	for _, e := range plan.rebuilt {
		b, err := marshalEntry(e)
		if err != nil {
			return Result{}, fmt.Errorf("truncate: marshal entry %s: %w", e.ID, err)
		}
		lines = append(lines, b)
	}

	if err := atomicstore.WriteLines(path, lines); err != nil {
		return Result{}, fmt.Errorf("truncate: write %s: %w", path, err)
	}

	if bus != nil {
		bus.Publish(events.Event{Type: events.EventTruncation, Reason: fmt.Sprintf("removed %d messages", plan.removed)})
	}

	return plan.result(), nil
}

// Preview computes what Truncate would do without writing anything or
// publishing a bus event — chainrouterctl's `truncate --dry-run`.
func Preview(path string, maxTokens, keepRecent int) (Result, error) {
	plan, err := buildPlan(path, maxTokens, keepRecent)
	if err != nil {
		return Result{}, err
	}
	if !plan.truncated {
		return notTruncated, nil
	}
	return plan.result(), nil
}

// truncationPlan is the in-memory outcome of evaluating a session log,
// shared by Truncate (which writes it) and Preview (which only reports it).
type truncationPlan struct {
	truncated      bool
	rebuilt        []Entry
	removed        int
	estimateBefore int
	estimateAfter  int
}

func (p truncationPlan) result() Result {
	return Result{
		Truncated: true, RemovedCount: p.removed,
		EstimateBefore: p.estimateBefore, EstimateAfter: p.estimateAfter,
	}
}

// buildPlan reads path and decides whether truncation is due, producing the
// rebuilt entry sequence (structural + compaction marker + kept recent
// content, relinked) when it is.
func buildPlan(path string, maxTokens, keepRecent int) (truncationPlan, error) {
	entries, err := readEntries(path)
	if err != nil {
		return truncationPlan{}, err
	}
	if entries == nil {
		return truncationPlan{}, nil
	}

	totalBefore := 0
	var structural, content []Entry
	for _, e := range entries {
		totalBefore += e.estimateTokens()
		if e.isStructural() {
			structural = append(structural, e)
		} else {
			content = append(content, e)
		}
	}

	if totalBefore <= maxTokens || len(content) <= keepRecent {
		return truncationPlan{}, nil
	}

	removed := len(content) - keepRecent
	kept := content[len(content)-keepRecent:]

	compaction := Entry{
		Type: "compaction",
		ID:   newEntryID(),
		Message: &Message{
			Role:    "system",
			Content: json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("[Session compacted: removed %d older messages to stay under the context budget.]", removed))),
		},
	}

	rebuilt := make([]Entry, 0, len(structural)+1+len(kept))
	rebuilt = append(rebuilt, structural...)
	rebuilt = append(rebuilt, compaction)
	rebuilt = append(rebuilt, kept...)

	relink(rebuilt)

	totalAfter := 0
	for _, e := range rebuilt {
		totalAfter += e.estimateTokens()
	}

	return truncationPlan{
		truncated: true, rebuilt: rebuilt, removed: removed,
		estimateBefore: totalBefore, estimateAfter: totalAfter,
	}, nil
}

// relink rewrites parentId so the sequence is a single linear chain: the
// first entry has parentId==nil, and every later entry points to its
// immediate predecessor.
func relink(entries []Entry) {
	for i := range entries {
		if i == 0 {
			entries[i].ParentID = nil
			continue
		}
		prev := entries[i-1].ID
		entries[i].ParentID = &prev
	}
}

// readEntries reads and parses the JSONL file at path. Returns (nil, nil) if
// the file does not exist.
func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("truncate: open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("truncate: parse line in %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("truncate: scan %s: %w", path, err)
	}
	return entries, nil
}

// newEntryID mints an id for the synthetic compaction entry, matching the
// UUID shape session entries carry elsewhere in the log.
func newEntryID() string {
	return uuid.NewString()
}
