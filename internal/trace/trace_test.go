package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRingKeepsLatest(t *testing.T) {
	r := NewRingTracer(2, LevelDebug, "s")
	for _, name := range []string{"a", "b", "c"} {
		Begin(r, ScopePass, name, 0)
	}
	got := r.Snapshot()
	if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("unexpected ring contents: %+v", got)
	}
	if got[0].Session != "s" {
		t.Fatalf("session not stamped: %q", got[0].Session)
	}
}

func TestLevelFiltersScopes(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText, "s")
	pass := Begin(tr, ScopePass, "bodies", 0)
	body := Begin(tr, ScopeModule, "fn main", pass.ID())
	body.End("")
	pass.End("ok")
	out := buf.String()
	if strings.Contains(out, "fn main") {
		t.Fatalf("module scope must be filtered at phase level:\n%s", out)
	}
	if strings.Count(out, "bodies") != 2 {
		t.Fatalf("expected begin and end for the pass:\n%s", out)
	}
	if body.ID() != pass.ID() {
		t.Fatal("filtered span should expose its parent id")
	}
}

func TestNDJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelDebug, Mode: ModeStream, Format: FormatNDJSON, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	Begin(tr, ScopeDriver, "check", 0).WithExtra("files", "2").End("done")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 events, got %d", len(lines))
	}
	var ev jsonEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != "end" || ev.Extra["files"] != "2" || ev.Session == "" {
		t.Fatalf("unexpected end event: %+v", ev)
	}
}

func TestContextPropagation(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatal("missing tracer must be Nop")
	}
	r := NewRingTracer(8, LevelDebug, "s")
	ctx := WithTracer(context.Background(), r)
	sp := Begin(FromContext(ctx), ScopeDriver, "root", 0)
	ctx = WithSpan(ctx, sp)
	if CurrentSpan(ctx) != sp.ID() {
		t.Fatal("span id not propagated")
	}
}
