package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/promptduel/promptduel/internal/models"
)

const (
	defaultTextModel  = "gemini-2.0-flash"
	defaultEmbedModel = "text-embedding-004"
	defaultImageModel = "imagen-3.0-generate-002"

	// promptSystemInstruction constrains generated prompts to short,
	// visually rich one-liners so the guessing game stays playable.
	promptSystemInstruction = "You write single prompts for an image " +
		"generation model. One prompt per request, at most 120 characters, " +
		"visually rich and atmospheric. Randomize the theme (cyberpunk, " +
		"sci-fi, fantasy, surrealism, post-apocalypse, steampunk). Output " +
		"only the raw prompt text with no quotes or labels."

	publicQuestion = "Guess the prompt that could generate this image."
)

// Client implements ChallengeGenerator and SimilarityScorer against the
// Gemini API.
type Client struct {
	client *genai.Client

	TextModel  string
	EmbedModel string
	ImageModel string
}

// NewClient builds a Gemini-backed client from an API key.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client:     c,
		TextModel:  defaultTextModel,
		EmbedModel: defaultEmbedModel,
		ImageModel: defaultImageModel,
	}, nil
}

// Generate produces a fresh secret prompt and renders it into an image.
// The image travels to clients as a data URL inside the public payload.
func (c *Client) Generate(ctx context.Context) (*models.Task, error) {
	result, err := c.client.Models.GenerateContent(
		ctx,
		c.TextModel,
		genai.Text("Generate a single random prompt for image generation."),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: promptSystemInstruction}},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prompt: %w", err)
	}
	prompt, err := result.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to extract prompt text: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("generator returned an empty prompt")
	}

	images, err := c.client.Models.GenerateImages(ctx, c.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: genai.Ptr[int32](1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(images.GeneratedImages) == 0 || images.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("image model returned no images")
	}

	encoded := base64.StdEncoding.EncodeToString(images.GeneratedImages[0].Image.ImageBytes)
	return &models.Task{
		Prompt:   prompt,
		Question: publicQuestion,
		Image:    "data:image/png;base64," + encoded,
	}, nil
}

// Score embeds the prompt and every candidate in one call and returns
// cosine similarities scaled to [0,100], in candidate order.
func (c *Client) Score(ctx context.Context, prompt string, candidates []string) ([]float64, error) {
	contents := make([]*genai.Content, 0, len(candidates)+1)
	contents = append(contents, genai.Text(strings.ToLower(prompt))...)
	for _, cand := range candidates {
		contents = append(contents, genai.Text(strings.ToLower(cand))...)
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.EmbedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed candidates: %w", err)
	}
	if len(resp.Embeddings) != len(candidates)+1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(candidates)+1)
	}

	promptVec := resp.Embeddings[0].Values
	scores := make([]float64, len(candidates))
	for i, emb := range resp.Embeddings[1:] {
		scores[i] = cosineSimilarity(promptVec, emb.Values) * 100
	}
	return scores, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
