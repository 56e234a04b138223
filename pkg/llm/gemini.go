package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/api/option"
)

// Gemini adapts a generative-ai-go client to llms.Model. A JSON Schema passed
// through llms.WithMetadata under SchemaMetadataKey becomes the response schema.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ llms.Model = (*Gemini)(nil)

// NewGemini connects to the Gemini API with an API key.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// GenerateContent sends the conversation as a chat and returns the first candidate's text.
func (g *Gemini) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	name := g.model
	if opts.Model != "" {
		name = opts.Model
	}
	m := g.client.GenerativeModel(name)
	m.SetTemperature(float32(opts.Temperature))
	if opts.JSONMode {
		m.ResponseMIMEType = "application/json"
	}
	if s, ok := opts.Metadata[SchemaMetadataKey].(*jsonschema.Schema); ok && s != nil {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = geminiSchema(s)
	}

	var history []*genai.Content
	for _, mc := range messages {
		text := messageText(mc)
		switch mc.Role {
		case llms.ChatMessageTypeSystem:
			m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(text)}}
		case llms.ChatMessageTypeAI:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(text)}})
		}
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: no user message")
	}

	cs := m.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	var out strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				out.WriteString(string(t))
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: out.String()}},
	}, nil
}

// Call implements the single-prompt form of llms.Model.
func (g *Gemini) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

func messageText(mc llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// geminiSchema converts the subset of JSON Schema produced for extraction.
func geminiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Description: s.Description}

	types := s.Types
	if s.Type != "" {
		types = []string{s.Type}
	}
	for _, t := range types {
		switch t {
		case "null":
			out.Nullable = true
		case "string":
			out.Type = genai.TypeString
		case "number":
			out.Type = genai.TypeNumber
		case "integer":
			out.Type = genai.TypeInteger
		case "boolean":
			out.Type = genai.TypeBoolean
		case "array":
			out.Type = genai.TypeArray
		case "object":
			out.Type = genai.TypeObject
		}
	}

	if len(s.Enum) > 0 {
		out.Format = "enum"
		for _, e := range s.Enum {
			out.Enum = append(out.Enum, fmt.Sprint(e))
		}
	}
	if s.Items != nil {
		out.Items = geminiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = geminiSchema(p)
		}
		out.Required = append([]string(nil), s.Required...)
	}
	return out
}
