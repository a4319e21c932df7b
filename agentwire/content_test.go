package agentwire

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalFragment_UnknownType(t *testing.T) {
	raw := json.RawMessage(`{"type":"server_tool_use","id":"srv_123","name":"some_tool"}`)

	frag, err := UnmarshalFragment(raw)
	if err != nil {
		t.Fatalf("expected no error for unknown type, got: %v", err)
	}
	if frag != nil {
		t.Fatalf("expected nil fragment for unknown type, got: %v", frag)
	}
}

func TestFragments_SkipsUnknownTypes(t *testing.T) {
	raw := `[
		{"type":"text","text":"hello"},
		{"type":"server_tool_use","id":"srv_123","name":"some_tool"},
		{"type":"tool_use","id":"toolu_abc","name":"Bash","input":{"command":"ls"}},
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"aGk="}}
	]`

	var fragments Fragments
	if err := json.Unmarshal([]byte(raw), &fragments); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(fragments) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(fragments))
	}
	if fragments[0].FragmentType() != FragmentTypeText {
		t.Errorf("expected first fragment text, got %s", fragments[0].FragmentType())
	}
	if fragments[1].FragmentType() != FragmentTypeToolUse {
		t.Errorf("expected second fragment tool_use, got %s", fragments[1].FragmentType())
	}
	img, ok := fragments[2].(ImageFragment)
	if !ok {
		t.Fatal("third fragment is not ImageFragment")
	}
	if img.Source.MediaType != "image/png" {
		t.Errorf("expected media type preserved, got %q", img.Source.MediaType)
	}
}

func TestFlexibleContent_StringAndFragments(t *testing.T) {
	var fc FlexibleContent
	if err := json.Unmarshal([]byte(`"just text"`), &fc); err != nil {
		t.Fatalf("unmarshal string content: %v", err)
	}
	if s, ok := fc.AsString(); !ok || s != "just text" {
		t.Errorf("expected string content, got %q %v", s, ok)
	}
	if _, ok := fc.AsFragments(); ok {
		t.Error("string content must not parse as fragments")
	}

	if err := json.Unmarshal([]byte(`[{"type":"text","text":"a"}]`), &fc); err != nil {
		t.Fatalf("unmarshal array content: %v", err)
	}
	fs, ok := fc.AsFragments()
	if !ok || len(fs) != 1 {
		t.Fatalf("expected 1 fragment, got %v %v", fs, ok)
	}
}

func TestFlexibleContent_FlattenText(t *testing.T) {
	var fc FlexibleContent
	if err := json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`), &fc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := fc.FlattenText(); got != "a\nb" {
		t.Errorf("expected joined text, got %q", got)
	}

	// Non-text content falls back to the raw JSON.
	if err := json.Unmarshal([]byte(`{"nested":true}`), &fc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := fc.FlattenText(); got != `{"nested":true}` {
		t.Errorf("expected raw fallback, got %q", got)
	}
}
