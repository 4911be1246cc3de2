package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/tickerchat/internal/conversation"
	"github.com/user/tickerchat/internal/types"
)

func TestRendererStreamsAnswer(t *testing.T) {
	var out, progress bytes.Buffer
	r := newRenderer(&out, &progress)

	prior := []types.Message{
		{ID: "old-q", Role: types.RoleUser, Content: "earlier"},
		{ID: "old-a", Role: types.RoleAssistant, Content: "earlier answer"},
	}
	r.startTurn(conversation.Snapshot{Messages: prior})

	msgs := append(prior, types.Message{ID: "q", Role: types.RoleUser, Content: "hi"})
	r.update(conversation.Snapshot{Messages: msgs, Tasks: []types.Task{{ID: "t1", Description: "Fetch metrics", Status: types.TaskPending}}})
	r.update(conversation.Snapshot{Messages: msgs, Tasks: []types.Task{{ID: "t1", Description: "Fetch metrics", Status: types.TaskRunning}}})
	r.update(conversation.Snapshot{Messages: msgs, Tasks: []types.Task{{ID: "t1", Description: "Fetch metrics", Status: types.TaskRunning}}})

	msgs = append(msgs, types.Message{ID: "a", Role: types.RoleAssistant, Content: "Hel"})
	r.update(conversation.Snapshot{Messages: msgs})
	msgs[len(msgs)-1].Content = "Hello"
	r.update(conversation.Snapshot{Messages: msgs})
	r.finish()

	if out.String() != "Hello\n" {
		t.Errorf("unexpected answer output %q", out.String())
	}
	if strings.Count(progress.String(), "Fetch metrics") != 2 {
		t.Errorf("expected one line per status change, got %q", progress.String())
	}
	if strings.Contains(out.String(), "earlier") {
		t.Error("messages from earlier turns must not be reprinted")
	}
}

func TestRendererSeparatesApology(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, &bytes.Buffer{})
	r.startTurn(conversation.Snapshot{})

	msgs := []types.Message{
		{ID: "q", Role: types.RoleUser, Content: "hi"},
		{ID: "a", Role: types.RoleAssistant, Content: "partial"},
	}
	r.update(conversation.Snapshot{Messages: msgs})
	msgs = append(msgs, types.Message{ID: "sorry", Role: types.RoleAssistant, Content: conversation.Apology})
	r.update(conversation.Snapshot{Messages: msgs})
	r.finish()

	want := "partial\n" + conversation.Apology + "\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}
