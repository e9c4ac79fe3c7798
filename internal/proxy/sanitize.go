package proxy

// sanitizeMessages rewrites assistant messages that carry both free-text
// content and a thinking field alongside tool calls: the two are merged into
// thinking and the content key is removed entirely, since template engines
// may treat key existence rather than truthiness as the trigger for the
// incompatibility. Returns whether anything changed; callers retry the
// request exactly once when it did.
func sanitizeMessages(body map[string]any) bool {
	msgs, ok := body["messages"].([]any)
	if !ok {
		return false
	}
	changed := false
	for _, raw := range msgs {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role != "assistant" {
			continue
		}
		if _, hasTools := msg["tool_calls"]; !hasTools {
			continue
		}
		content, hasContent := msg["content"].(string)
		thinking, hasThinking := msg["thinking"].(string)
		if !hasContent || !hasThinking {
			continue
		}
		merged := thinking
		if content != "" {
			if merged != "" {
				merged += "\n"
			}
			merged += content
		}
		msg["thinking"] = merged
		delete(msg, "content")
		changed = true
	}
	return changed
}
