package fed

import (
	"strings"
	"testing"

	"fedbot/internal/storage"
)

func TestSummarizeAllAcknowledged(t *testing.T) {
	req := Request{
		TargetID:      777,
		TargetMention: `<a href="tg://user?id=777">Spammer</a>`,
		Reason:        "spam & flood",
		Action:        ActionBan,
	}
	out := []Outcome{
		{Target: storage.Federation{ID: 100, Name: "Fed A"}, Status: StatusAcked},
		{Target: storage.Federation{ID: 200, Name: "Fed B"}, Status: StatusAcked},
	}

	got := Summarize(out, req, "Control Room", "")
	for _, want := range []string{
		"❯❯❯ <b>FBanned</b>",
		"<code>777</code>",
		"spam &amp; flood",
		"Initiated in",
		"FBanned in <b>2</b> feds.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Failed in") {
		t.Fatalf("clean run must not list failures:\n%s", got)
	}
}

func TestSummarizeListsFailures(t *testing.T) {
	req := Request{TargetID: 777, TargetMention: "x", Reason: "spam", Action: ActionUnban}
	out := []Outcome{
		{Target: storage.Federation{ID: 100, Name: "Fed A"}, Status: StatusAcked},
		{Target: storage.Federation{ID: 200, Name: "Fed B"}, Status: StatusTimedOut},
		{Target: storage.Federation{ID: 300, Name: "Fed C"}, Status: StatusErrored, Detail: "bot was kicked"},
	}

	got := Summarize(out, req, "PM", "")
	for _, want := range []string{
		"<b>Un-FBanned</b>",
		"<b>Failed in</b>: 2/3 feds",
		"• Fed B",
		"• Fed C (bot was kicked)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "• Fed A") {
		t.Fatalf("acknowledged target listed as failed:\n%s", got)
	}
}

func TestSummarizeByLine(t *testing.T) {
	req := Request{TargetID: 1, TargetMention: "x", Reason: "r", Action: ActionBan}
	got := Summarize(nil, req, "PM", "approver <3")
	if !strings.Contains(got, "<b>By</b>: approver &lt;3") {
		t.Fatalf("missing escaped By line:\n%s", got)
	}
	if without := Summarize(nil, req, "PM", ""); strings.Contains(without, "<b>By</b>") {
		t.Fatalf("By line must be omitted for the owner:\n%s", without)
	}
}
