package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/user/tickerchat/internal/types"
)

func TestJournalAppendAndTail(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "nested", "turns.jsonl"))

	for i, ok := range []bool{true, false, true} {
		ev := types.QueryComplete{
			TurnID:         types.TurnID(string(rune('a' + i))),
			Query:          "q",
			Model:          "gemini-flash",
			ModelTier:      types.TierFast,
			ResponseTimeMS: int64(100 * (i + 1)),
			Success:        ok,
		}
		if err := j.Append(ev); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := j.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Seq != 2 || recs[1].Seq != 3 {
		t.Errorf("unexpected seqs %d, %d", recs[0].Seq, recs[1].Seq)
	}
	if recs[1].TurnID != "c" {
		t.Errorf("expected last turn c, got %s", recs[1].TurnID)
	}
}

func TestJournalResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.jsonl")

	first := NewJournal(path)
	first.QueryCompleted(context.Background(), types.QueryComplete{Model: "o1"})

	second := NewJournal(path)
	if err := second.Append(types.QueryComplete{Model: "o1"}); err != nil {
		t.Fatal(err)
	}

	recs, err := second.Tail(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].Seq != 2 {
		t.Fatalf("expected seq to resume at 2, got %+v", recs)
	}
}

func TestJournalTailMissingFile(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "none.jsonl"))
	recs, err := j.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestSummarize(t *testing.T) {
	recs := []*Record{
		{QueryComplete: types.QueryComplete{Model: "gemini-flash", ModelTier: types.TierFast, ResponseTimeMS: 100, Success: true}},
		{QueryComplete: types.QueryComplete{Model: "claude-opus", ModelTier: types.TierPremium, ResponseTimeMS: 300}},
	}
	s := Summarize(recs)
	if s.Turns != 2 || s.Succeeded != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.AvgResponseMS != 200 {
		t.Errorf("expected avg 200, got %d", s.AvgResponseMS)
	}
	if s.ByTier[types.TierPremium] != 1 || s.ByModel["gemini-flash"] != 1 {
		t.Errorf("unexpected breakdown %+v", s)
	}

	empty := Summarize(nil)
	if empty.Turns != 0 || empty.AvgResponseMS != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}
