// Package embedder implements the Embedder component: encoding a query
// (or a batch of posts) into a fixed-dimension embedding vector. The
// production path calls Amazon Bedrock's Titan embedding model; a
// deterministic implementation exists for tests and offline demos where
// no AWS credentials are configured.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// Embedder produces unit-norm embedding vectors from text.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

const titanModelID = "amazon.titan-embed-text-v2:0"

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// BedrockEmbedder calls Amazon Bedrock's Titan text embedding model.
type BedrockEmbedder struct {
	client *bedrockruntime.Client
}

// NewBedrockEmbedder creates an Embedder backed by Bedrock in the given
// AWS region, using the ambient credential chain.
func NewBedrockEmbedder(ctx context.Context, region string) (*BedrockEmbedder, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errorkind.Wrap(err, errorkind.Config, "new_bedrock_embedder")
	}
	return &BedrockEmbedder{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// Encode invokes Titan for a single piece of text, unit-normalizing the
// returned vector defensively since the model's own output is already
// expected to be unit norm.
func (b *BedrockEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorkind.New(errorkind.Model, "encode", "text is empty")
	}

	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, errorkind.Wrap(err, errorkind.Internal, "encode")
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(titanModelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errorkind.Wrap(err, errorkind.Model, "encode")
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, errorkind.Wrap(err, errorkind.Model, "encode")
	}
	return unitNormalize(resp.Embedding), nil
}

// EncodeBatch encodes each text independently; Titan's InvokeModel API has
// no batch endpoint for text embeddings, so this calls Encode in sequence.
func (b *BedrockEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := b.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// DeterministicEmbedder produces a reproducible, unit-norm embedding from
// a SHA-256-seeded pseudo-random projection of the input text. It needs no
// network access and is used for tests and offline demos where Bedrock
// credentials are unavailable.
type DeterministicEmbedder struct {
	Dimensions int
}

// NewDeterministicEmbedder creates a DeterministicEmbedder at the
// reference dimensionality (384) when dimensions is 0.
func NewDeterministicEmbedder(dimensions int) *DeterministicEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &DeterministicEmbedder{Dimensions: dimensions}
}

func (d *DeterministicEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorkind.New(errorkind.Model, "encode", "text is empty")
	}

	vec := make([]float32, d.Dimensions)
	seed := sha256.Sum256([]byte(text))

	state := seed
	for i := range vec {
		if i%len(state) == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}
		b := state[i%len(state)]
		vec[i] = float32(int(b)-128) / 128.0
	}
	return unitNormalize(vec), nil
}

func (d *DeterministicEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := d.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// unitNormalize rescales v to L2-norm 1. A zero vector is returned
// unchanged to avoid a divide-by-zero.
func unitNormalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
