package truncate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chainrouter/chainrouter/internal/events"
	"github.com/stretchr/testify/require"
)

func writeSessionLog(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func structuralLine(typ, id string, parentID *string) string {
	parent := "null"
	if parentID != nil {
		parent = fmt.Sprintf("%q", *parentID)
	}
	return fmt.Sprintf(`{"type":%q,"id":%q,"parentId":%s}`, typ, id, parent)
}

func contentLine(id string, parentID *string, text string) string {
	parent := "null"
	if parentID != nil {
		parent = fmt.Sprintf("%q", *parentID)
	}
	b, _ := json.Marshal(text)
	return fmt.Sprintf(`{"type":"message","id":%q,"parentId":%s,"message":{"role":"assistant","content":%s}}`, id, parent, string(b))
}

func readLinkedEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	require.NoError(t, scanner.Err())
	return out
}

// Scenario 6: truncation preserves structural entries, keeps the most
// recent keepRecent content entries, inserts exactly one compaction entry,
// and rebuilds a linear parent chain.
func TestScenarioTruncationPreservesStructure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	var lines []string
	var prev *string

	sessionID := "session-1"
	lines = append(lines, structuralLine("session", sessionID, nil))
	p := sessionID
	prev = &p

	modelChangeID := "model-change-1"
	lines = append(lines, structuralLine("model_change", modelChangeID, prev))
	p2 := modelChangeID
	prev = &p2

	contentIDs := make([]string, 0, 30)
	longText := strings.Repeat("x", 2000) // ~500 tokens at chars/4
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("content-%d", i)
		lines = append(lines, contentLine(id, prev, longText))
		contentIDs = append(contentIDs, id)
		cur := id
		prev = &cur
	}

	writeSessionLog(t, path, lines)

	bus := events.NewBus(10)
	res, err := Truncate(path, 1000, 5, bus)
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, 25, res.RemovedCount)
	require.Less(t, res.EstimateAfter, 1000)

	entries := readLinkedEntries(t, path)

	var structuralFound, compactionFound, contentFound int
	seenContentIDs := map[string]bool{}
	for _, e := range entries {
		switch e.Type {
		case "session", "model_change":
			structuralFound++
		case "compaction":
			compactionFound++
		case "message":
			contentFound++
			seenContentIDs[e.ID] = true
		}
	}
	require.Equal(t, 2, structuralFound, "both structural entries must survive")
	require.Equal(t, 1, compactionFound, "exactly one compaction entry must be inserted")
	require.Equal(t, 5, contentFound, "exactly keepRecent content entries must survive")

	for _, id := range contentIDs[len(contentIDs)-5:] {
		require.True(t, seenContentIDs[id], "expected most recent content entry %s to survive", id)
	}
	for _, id := range contentIDs[:len(contentIDs)-5] {
		require.False(t, seenContentIDs[id], "expected older content entry %s to be dropped", id)
	}

	require.Nil(t, entries[0].ParentID, "first entry must have parentId==nil")
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].ParentID)
		require.Equal(t, entries[i-1].ID, *entries[i].ParentID, "entry %d must point to its immediate predecessor", i)
	}
}

func TestTruncateNoOpWhenWithinBudget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	lines := []string{
		structuralLine("session", "s1", nil),
		contentLine("c1", strPtr("s1"), "short message"),
	}
	writeSessionLog(t, path, lines)

	res, err := Truncate(path, 100_000, 20, events.NewBus(10))
	require.NoError(t, err)
	require.False(t, res.Truncated)

	entries := readLinkedEntries(t, path)
	require.Len(t, entries, 2, "file must be untouched when already within budget")
}

func TestTruncateNoOpWhenContentBelowKeepRecent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	longText := strings.Repeat("y", 4000)
	lines := []string{
		structuralLine("session", "s1", nil),
		contentLine("c1", strPtr("s1"), longText),
		contentLine("c2", strPtr("c1"), longText),
	}
	writeSessionLog(t, path, lines)

	res, err := Truncate(path, 10, 20, events.NewBus(10))
	require.NoError(t, err)
	require.False(t, res.Truncated)
}

func TestTruncateMissingFileReturnsNotTruncated(t *testing.T) {
	dir := t.TempDir()
	res, err := Truncate(filepath.Join(dir, "missing.jsonl"), 10, 5, events.NewBus(10))
	require.NoError(t, err)
	require.False(t, res.Truncated)
}

func TestTruncatePublishesEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	var lines []string
	prev := "s1"
	lines = append(lines, structuralLine("session", prev, nil))
	longText := strings.Repeat("z", 2000)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("content-%d", i)
		lines = append(lines, contentLine(id, &prev, longText))
		prev = id
	}
	writeSessionLog(t, path, lines)

	bus := events.NewBus(10)
	sub := bus.Subscribe(4)
	defer bus.Unsubscribe(sub)

	res, err := Truncate(path, 200, 2, bus)
	require.NoError(t, err)
	require.True(t, res.Truncated)

	select {
	case e := <-sub.C:
		require.Equal(t, events.EventTruncation, e.Type)
	default:
		t.Fatal("expected a truncation event to be published")
	}
}

func strPtr(s string) *string { return &s }
