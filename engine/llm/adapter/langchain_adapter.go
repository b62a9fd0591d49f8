package llmadapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangChainAdapter adapts langchaingo models to the LLMClient interface.
type LangChainAdapter struct {
	model llms.Model
}

func NewLangChainAdapter(model llms.Model) *LangChainAdapter {
	return &LangChainAdapter{model: model}
}

// GenerateContent implements LLMClient.
func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages, err := a.convertMessages(req)
	if err != nil {
		return nil, err
	}
	options := a.buildCallOptions(req)
	response, err := a.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("langchain GenerateContent failed: %w", err)
	}
	return a.convertResponse(response)
}

func (a *LangChainAdapter) Close() error {
	return nil
}

// convertMessages converts the request to langchain MessageContent, expanding
// assistant tool calls and tool results into their langchain part types.
func (a *LangChainAdapter) convertMessages(req *LLMRequest) ([]llms.MessageContent, error) {
	if err := ValidateConversation(req.Messages); err != nil {
		return nil, err
	}
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch {
		case len(msg.ToolCalls) > 0:
			messages = append(messages, a.convertAssistantToolCalls(msg))
		case len(msg.ToolResults) > 0:
			messages = append(messages, a.convertToolResults(msg))
		case len(msg.Parts) > 0:
			messages = append(messages, llms.MessageContent{
				Role:  a.mapMessageRole(msg.Role),
				Parts: a.convertParts(msg.Parts),
			})
		default:
			messages = append(messages, llms.TextParts(a.mapMessageRole(msg.Role), msg.Content))
		}
	}
	return messages, nil
}

func (a *LangChainAdapter) convertAssistantToolCalls(msg *Message) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		parts = append(parts, llms.TextContent{Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, llms.ToolCall{
			ID:   call.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

func (a *LangChainAdapter) convertToolResults(msg *Message) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(msg.ToolResults))
	for _, result := range msg.ToolResults {
		content := result.Content
		if content == "" && len(result.JSONContent) > 0 {
			content = string(result.JSONContent)
		}
		parts = append(parts, llms.ToolCallResponse{
			ToolCallID: result.ID,
			Name:       result.Name,
			Content:    content,
		})
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeTool, Parts: parts}
}

func (a *LangChainAdapter) convertParts(parts []ContentPart) []llms.ContentPart {
	converted := make([]llms.ContentPart, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case TextPart:
			converted = append(converted, llms.TextContent{Text: v.Text})
		case ImageURLPart:
			converted = append(converted, llms.ImageURLContent{URL: v.URL})
		case BinaryPart:
			converted = append(converted, llms.BinaryContent{MIMEType: v.MIMEType, Data: v.Data})
		}
	}
	return converted
}

func (a *LangChainAdapter) mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleUser:
		return llms.ChatMessageTypeHuman
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (a *LangChainAdapter) buildCallOptions(req *LLMRequest) []llms.CallOption {
	var options []llms.CallOption
	if req.Options.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Options.Temperature))
	}
	if req.Options.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.Options.MaxTokens))
	}
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(a.convertTools(req.Tools)))
		if req.Options.ToolChoice != "" {
			options = append(options, llms.WithToolChoice(req.Options.ToolChoice))
		}
	}
	return options
}

func (a *LangChainAdapter) convertTools(tools []ToolDefinition) []llms.Tool {
	llmTools := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return llmTools
}

func (a *LangChainAdapter) convertResponse(resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from LLM")
	}
	choice := resp.Choices[0]
	response := &LLMResponse{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		response.ToolCalls = make([]ToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: []byte(tc.FunctionCall.Arguments),
			})
		}
	}
	return response, nil
}
