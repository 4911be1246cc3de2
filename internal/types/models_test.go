package types

import (
	"encoding/json"
	"testing"
)

func TestTaskStatusAdvances(t *testing.T) {
	if !TaskPending.Advances(TaskRunning) {
		t.Error("pending -> running should advance")
	}
	if !TaskPending.Advances(TaskCompleted) {
		t.Error("pending -> completed should advance")
	}
	if TaskCompleted.Advances(TaskRunning) {
		t.Error("completed -> running should not advance")
	}
	if TaskCompleted.Advances(TaskCompleted) {
		t.Error("completed -> completed should not advance")
	}
}

func TestQueryCompleteFieldNames(t *testing.T) {
	data, err := json.Marshal(QueryComplete{
		Query:          "q",
		Model:          "gemini-flash",
		ModelTier:      TierFast,
		ResponseTimeMS: 12,
		Success:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"query", "model", "model_tier", "response_time_ms", "success"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in %s", key, data)
		}
	}
}

func TestAttachmentDataNotSerialized(t *testing.T) {
	data, err := json.Marshal(Attachment{Name: "report.pdf", Data: []byte("secret")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"name":"report.pdf"}` {
		t.Errorf("unexpected encoding %s", data)
	}
}
