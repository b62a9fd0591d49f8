package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"

	"github.com/loopline-ai/loopline/engine/core"
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// AuthRequiredMarker is the sentinel tools emit when an upstream site wants
// the user to sign in. It must survive post-processing verbatim so clients
// can pattern-match on it.
const AuthRequiredMarker = "Authorization required"

// completionFallbackText stands in for the assistant text when the loop ends
// with nothing to say, e.g. the turn budget ran out mid tool cycle.
const completionFallbackText = "Execution completed."

const (
	// Base64 runs at or above these lengths are stripped from the text
	// reply. Encoded images routinely leak into model prose and blow up
	// response payloads; the image itself travels in the dedicated field.
	dataURIRedactThreshold   = 100
	rawBase64RedactThreshold = 500
)

var (
	dataURIRe   = regexp.MustCompile(`data:[a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]{` + fmt.Sprint(dataURIRedactThreshold) + `,}`)
	rawBase64Re = regexp.MustCompile(`[A-Za-z0-9+/]{` + fmt.Sprint(rawBase64RedactThreshold) + `,}={0,2}`)

	imagePathRe = regexp.MustCompile(`(?i)^[\w./~-]+\.(png|jpe?g|gif|webp|bmp)$`)
)

// pathFields are the keys tools have used to report a saved image file.
var pathFields = []string{"path", "file_path", "filePath", "screenshot_path", "screenshot"}

type ResponseHandler interface {
	Finalize(ctx context.Context, response *llmadapter.LLMResponse, state *loopState, model string) (*Output, error)
}

type responseHandler struct {
	cfg settings
}

func NewResponseHandler(cfg settings) ResponseHandler {
	return &responseHandler{cfg: cfg}
}

// Finalize turns the terminal model response plus the accumulated tool
// results into the caller-facing output: extract the first image the tools
// produced, scrub base64 noise out of the text when an image was pulled, and
// surface the authorization message when any tool hit a login wall.
func (h *responseHandler) Finalize(
	ctx context.Context,
	response *llmadapter.LLMResponse,
	state *loopState,
	model string,
) (*Output, error) {
	if response == nil {
		return nil, NewLLMError(fmt.Errorf("no response to finalize"), ErrCodeLLMGeneration, nil)
	}
	if state == nil {
		state = &loopState{}
	}
	imageURI := extractImageDataURI(ctx, state.toolResults)
	content := response.Content
	if imageURI != "" {
		// The image travels in its own field; only then is base64 in the
		// prose noise worth stripping.
		content = RedactBase64(content)
	}
	if msg := authRequiredMessage(state.toolResults); msg != "" && !containsFold(content, AuthRequiredMarker) {
		if content != "" {
			content += "\n\n"
		}
		content += msg
	}
	if content == "" {
		content = completionFallbackText
	}
	return &Output{
		Content:      content,
		ImageDataURI: imageURI,
		Model:        model,
		ToolCalls:    state.callSummaries(),
		ToolResults:  state.summaries(),
	}, nil
}

// extractImageDataURI scans tool results in order and stops at the first one
// yielding an image, whether its whole content is an image file path, a path
// reported under a known JSON field, or an image inlined in an MCP-style
// content array. Unreadable files are skipped, not fatal.
func extractImageDataURI(ctx context.Context, results []llmadapter.ToolResult) string {
	for _, result := range results {
		if uri := imageFromBarePath(ctx, result.Content); uri != "" {
			return uri
		}
		if uri := imageFromPathField(ctx, result); uri != "" {
			return uri
		}
		if uri := imageFromContentArray(result); uri != "" {
			return uri
		}
	}
	return ""
}

func imageFromBarePath(ctx context.Context, content string) string {
	trimmed := strings.TrimSpace(content)
	if !imagePathRe.MatchString(trimmed) {
		return ""
	}
	return readImageFile(ctx, trimmed)
}

func imageFromPathField(ctx context.Context, result llmadapter.ToolResult) string {
	if len(result.JSONContent) == 0 {
		return ""
	}
	doc := gjson.ParseBytes(result.JSONContent)
	for _, field := range pathFields {
		v := doc.Get(field)
		if !v.Exists() || v.Type != gjson.String {
			continue
		}
		if !imagePathRe.MatchString(strings.TrimSpace(v.String())) {
			continue
		}
		if uri := readImageFile(ctx, strings.TrimSpace(v.String())); uri != "" {
			return uri
		}
	}
	return ""
}

func imageFromContentArray(result llmadapter.ToolResult) string {
	if len(result.JSONContent) == 0 {
		return ""
	}
	items := gjson.GetBytes(result.JSONContent, "content")
	if !items.IsArray() {
		return ""
	}
	var uri string
	items.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "image" {
			return true
		}
		data := item.Get("data").String()
		if data == "" {
			return true
		}
		mime := item.Get("mimeType").String()
		if mime == "" {
			mime = "image/png"
		}
		uri = "data:" + mime + ";base64," + data
		return false
	})
	return uri
}

func readImageFile(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.FromContext(ctx).Debug("Skipping unreadable image file", "path", path, "error", core.RedactError(err))
		return ""
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		logger.FromContext(ctx).Debug("Skipping non-image file", "path", path, "mime", mime.String())
		return ""
	}
	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// RedactBase64 strips long base64 runs from text. Data URIs keep their
// prefix so the reader still sees what was there.
func RedactBase64(s string) string {
	s = dataURIRe.ReplaceAllStringFunc(s, func(match string) string {
		comma := strings.Index(match, ",")
		return match[:comma+1] + "[redacted]"
	})
	return rawBase64Re.ReplaceAllString(s, "[base64 data omitted]")
}

// authRequiredMessage returns the first tool result text carrying the
// authorization marker. The whole message is surfaced, not just the marker:
// it usually carries the sign-in URL the user needs to continue.
func authRequiredMessage(results []llmadapter.ToolResult) string {
	for _, r := range results {
		if containsFold(r.Content, AuthRequiredMarker) {
			return r.Content
		}
	}
	return ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
