package proxy

import "testing"

func assistantToolMsg(content, thinking any) map[string]any {
	msg := map[string]any{
		"role":       "assistant",
		"tool_calls": []any{map[string]any{"id": "call_1"}},
	}
	if content != nil {
		msg["content"] = content
	}
	if thinking != nil {
		msg["thinking"] = thinking
	}
	return msg
}

func TestSanitizeMergesContentIntoThinking(t *testing.T) {
	msg := assistantToolMsg("x", "y")
	body := map[string]any{"messages": []any{msg}}
	if !sanitizeMessages(body) {
		t.Fatal("expected sanitization to report a change")
	}
	if got := msg["thinking"]; got != "y\nx" {
		t.Fatalf("thinking = %q, want %q", got, "y\nx")
	}
	if _, ok := msg["content"]; ok {
		t.Fatalf("content key survived sanitization: %#v", msg)
	}
}

func TestSanitizeEmptyParts(t *testing.T) {
	msg := assistantToolMsg("", "y")
	body := map[string]any{"messages": []any{msg}}
	if !sanitizeMessages(body) {
		t.Fatal("expected a change")
	}
	if got := msg["thinking"]; got != "y" {
		t.Fatalf("thinking = %q, want %q", got, "y")
	}

	msg = assistantToolMsg("x", "")
	body = map[string]any{"messages": []any{msg}}
	if !sanitizeMessages(body) {
		t.Fatal("expected a change")
	}
	if got := msg["thinking"]; got != "x" {
		t.Fatalf("thinking = %q, want %q", got, "x")
	}
}

func TestSanitizeSkipsIneligibleMessages(t *testing.T) {
	userMsg := map[string]any{"role": "user", "content": "x", "thinking": "y"}
	noTools := map[string]any{"role": "assistant", "content": "x", "thinking": "y"}
	contentOnly := assistantToolMsg("x", nil)
	body := map[string]any{"messages": []any{userMsg, noTools, contentOnly}}
	if sanitizeMessages(body) {
		t.Fatalf("sanitization changed ineligible messages: %#v", body)
	}
	if userMsg["content"] != "x" || noTools["content"] != "x" || contentOnly["content"] != "x" {
		t.Fatal("ineligible message content modified")
	}
}

func TestSanitizeNoMessages(t *testing.T) {
	if sanitizeMessages(map[string]any{"prompt": "x"}) {
		t.Fatal("sanitization reported a change on a body without messages")
	}
}
