package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"
)

const transcribePrompt = "Transcribe the handwritten text in this image exactly as written. Reply with the text only."

// OllamaRuntime serves the trained line recognizer through a local
// model runtime. The model is addressed by name; when no name is
// configured the model directory's base name is used.
type OllamaRuntime struct {
	client *api.Client
	model  string
}

// NewOllamaRuntime creates a runtime client for the given base URL
func NewOllamaRuntime(runtimeURL, model string) (*OllamaRuntime, error) {
	parsedURL, err := url.Parse(runtimeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid runtime URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid runtime URL: %q", runtimeURL)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	return &OllamaRuntime{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Load checks that the runtime serves the model and returns a handle to it.
func (o *OllamaRuntime) Load(ctx context.Context, modelDir string) (ModelHandle, error) {
	name := o.model
	if name == "" {
		name = filepath.Base(filepath.Clean(modelDir))
	}
	if _, err := o.client.Show(ctx, &api.ShowRequest{Model: name}); err != nil {
		return nil, fmt.Errorf("model %s not available: %w", name, err)
	}
	return &ollamaHandle{client: o.client, model: name}, nil
}

type ollamaHandle struct {
	client *api.Client
	model  string
}

// Decode transcribes each image of the batch in turn.
func (h *ollamaHandle) Decode(ctx context.Context, batch []image.Image, maxNewTokens int) ([]string, error) {
	out := make([]string, 0, len(batch))
	for _, img := range batch {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode line: %w", err)
		}

		streamFalse := false
		req := &api.GenerateRequest{
			Model:  h.model,
			Prompt: transcribePrompt,
			Images: []api.ImageData{api.ImageData(buf.Bytes())},
			Stream: &streamFalse,
			Options: map[string]any{
				"temperature": 0,
				"top_k":       1,
				"num_predict": maxNewTokens,
			},
		}

		var text strings.Builder
		err := h.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			text.WriteString(resp.Response)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("runtime generate error: %w", err)
		}
		out = append(out, strings.TrimSpace(text.String()))
	}
	return out, nil
}
