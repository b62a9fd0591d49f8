package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// NormalizeHistory coerces loosely-shaped historical messages into canonical
// adapter messages. Clients have stored tool calls under several field
// layouts over time (flat id/name/arguments, OpenAI-style nested function
// objects, call_id aliases); all accepted spellings collapse to one shape
// here so the loop never sees ambiguity. Tool messages without a resolvable
// call identifier are dropped with a diagnostic: forwarding them upstream
// would break the call/result pairing invariant.
func NormalizeHistory(ctx context.Context, raw []json.RawMessage) []llmadapter.Message {
	log := logger.FromContext(ctx)
	messages := make([]llmadapter.Message, 0, len(raw))
	for i, entry := range raw {
		doc := gjson.ParseBytes(entry)
		role := doc.Get("role").String()
		switch role {
		case llmadapter.RoleUser:
			messages = append(messages, normalizeUser(doc))
		case llmadapter.RoleAssistant:
			messages = append(messages, normalizeAssistant(doc))
		case llmadapter.RoleTool:
			msg, ok := normalizeTool(doc)
			if !ok {
				log.Warn("Dropping tool message without call identifier", "index", i)
				continue
			}
			messages = append(messages, msg)
		case llmadapter.RoleSystem:
			// System instructions are owned by the assembler, not history.
			log.Debug("Skipping system message found in history", "index", i)
		default:
			log.Warn("Dropping history message with unknown role", "index", i, "role", role)
		}
	}
	return messages
}

func normalizeUser(doc gjson.Result) llmadapter.Message {
	msg := llmadapter.Message{
		Role:    llmadapter.RoleUser,
		Content: doc.Get("content").String(),
	}
	image := firstString(doc, "image_url", "image", "imageUrl")
	if image != "" {
		msg.Parts = userParts(msg.Content, image)
	}
	return msg
}

func normalizeAssistant(doc gjson.Result) llmadapter.Message {
	msg := llmadapter.Message{
		Role:    llmadapter.RoleAssistant,
		Content: doc.Get("content").String(),
	}
	calls := doc.Get("tool_calls")
	if !calls.Exists() {
		calls = doc.Get("toolCalls")
	}
	if !calls.IsArray() {
		return msg
	}
	for _, call := range calls.Array() {
		id := firstString(call, "id", "tool_call_id", "call_id", "callId")
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		name := firstString(call, "function.name", "name", "tool_name", "toolName")
		args := firstRaw(call, "function.arguments", "arguments", "args")
		msg.ToolCalls = append(msg.ToolCalls, llmadapter.ToolCall{
			ID:        id,
			Name:      name,
			Arguments: args,
		})
	}
	return msg
}

func normalizeTool(doc gjson.Result) (llmadapter.Message, bool) {
	id := firstString(doc, "tool_call_id", "id", "call_id", "callId")
	if id == "" {
		return llmadapter.Message{}, false
	}
	name := firstString(doc, "name", "tool_name", "toolName")
	content := doc.Get("content").String()
	if content == "" {
		content = firstRawString(doc, "result")
	}
	return llmadapter.Message{
		Role: llmadapter.RoleTool,
		ToolResults: []llmadapter.ToolResult{
			{ID: id, Name: name, Content: content},
		},
	}, true
}

// firstString returns the first non-empty string value among the paths.
func firstString(doc gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := doc.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// firstRaw returns the first present path rendered as raw JSON argument
// bytes. String values are unwrapped (arguments stored as a JSON-encoded
// string stay a serialized blob, not a quoted literal); objects keep their
// raw form.
func firstRaw(doc gjson.Result, paths ...string) json.RawMessage {
	for _, path := range paths {
		v := doc.Get(path)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.String {
			if v.String() == "" {
				continue
			}
			return json.RawMessage(v.String())
		}
		return json.RawMessage(v.Raw)
	}
	return json.RawMessage("{}")
}

func firstRawString(doc gjson.Result, path string) string {
	v := doc.Get(path)
	if !v.Exists() {
		return ""
	}
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}

// dropOrphanToolMessages removes tool messages whose call identifier does
// not match a tool call announced by the assistant message run immediately
// before them. Runs after windowing: a truncation that removed the
// announcing assistant message orphans its results.
func dropOrphanToolMessages(ctx context.Context, messages []llmadapter.Message) []llmadapter.Message {
	log := logger.FromContext(ctx)
	kept := make([]llmadapter.Message, 0, len(messages))
	pending := make(map[string]struct{})
	for i := range messages {
		msg := messages[i]
		switch msg.Role {
		case llmadapter.RoleAssistant:
			pending = make(map[string]struct{}, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				pending[call.ID] = struct{}{}
			}
			kept = append(kept, msg)
		case llmadapter.RoleTool:
			orphan := false
			for _, result := range msg.ToolResults {
				if _, ok := pending[result.ID]; !ok {
					orphan = true
					break
				}
			}
			if orphan {
				log.Warn("Dropping orphaned tool message", "index", i)
				continue
			}
			kept = append(kept, msg)
		default:
			pending = make(map[string]struct{})
			kept = append(kept, msg)
		}
	}
	return kept
}

// userParts assembles the multimodal parts for a user message carrying an
// image. An image with no text still yields a valid message.
func userParts(text, imageURL string) []llmadapter.ContentPart {
	var parts []llmadapter.ContentPart
	if strings.TrimSpace(text) != "" {
		parts = append(parts, llmadapter.TextPart{Text: text})
	}
	parts = append(parts, llmadapter.ImageURLPart{URL: imageURL})
	return parts
}

// RequestBuilder assembles the message sequence sent to the model:
// system instruction, windowed normalized history, then the new user turn.
type RequestBuilder struct {
	settings settings
}

func NewRequestBuilder(s settings) *RequestBuilder {
	return &RequestBuilder{settings: s}
}

func (b *RequestBuilder) Build(ctx context.Context, req *Request) (*llmadapter.LLMRequest, error) {
	history := NormalizeHistory(ctx, req.History)
	windowed := WindowMessages(history, b.settings.historyWindow)
	windowed = dropOrphanToolMessages(ctx, windowed)

	userMsg := llmadapter.Message{Role: llmadapter.RoleUser, Content: req.Prompt}
	if req.ImageURL != "" {
		userMsg.Parts = userParts(req.Prompt, req.ImageURL)
	}
	messages := make([]llmadapter.Message, 0, len(windowed)+1)
	messages = append(messages, windowed...)
	messages = append(messages, userMsg)

	if err := llmadapter.ValidateConversation(messages); err != nil {
		return nil, NewValidationError(err, "history", nil)
	}
	return &llmadapter.LLMRequest{
		SystemPrompt: req.SystemPrompt,
		Messages:     messages,
	}, nil
}
