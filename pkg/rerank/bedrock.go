package rerank

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

const cohereRerankModelID = "cohere.rerank-v3-5:0"

type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
}

// BedrockCrossEncoder calls a cross-encoder rerank model (Cohere Rerank,
// served through Amazon Bedrock) for (query, document) relevance scoring.
type BedrockCrossEncoder struct {
	client *bedrockruntime.Client
}

// NewBedrockCrossEncoder creates a Reranker backed by Bedrock in the
// given AWS region, using the ambient credential chain.
func NewBedrockCrossEncoder(ctx context.Context, region string) (*BedrockCrossEncoder, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errorkind.Wrap(err, errorkind.Config, "new_bedrock_cross_encoder")
	}
	return &BedrockCrossEncoder{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// Score invokes the rerank model against a single document and returns
// its relevance score, clamped to [0,1].
func (b *BedrockCrossEncoder) Score(ctx context.Context, query, document string) (float32, error) {
	if query == "" || document == "" {
		return 0, errorkind.New(errorkind.Model, "score", "query and document must be non-empty")
	}

	body, err := json.Marshal(cohereRerankRequest{Query: query, Documents: []string{document}, TopN: 1})
	if err != nil {
		return 0, errorkind.Wrap(err, errorkind.Internal, "score")
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(cohereRerankModelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return 0, errorkind.Wrap(err, errorkind.Model, "score")
	}

	var resp cohereRerankResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return 0, errorkind.Wrap(err, errorkind.Model, "score")
	}
	if len(resp.Results) == 0 {
		return 0, errorkind.New(errorkind.Model, "score", "rerank model returned no results")
	}
	return clamp01(resp.Results[0].RelevanceScore), nil
}

// Rerank scores every document against the query and returns them
// ordered by descending score, input order preserved on ties.
func (b *BedrockCrossEncoder) Rerank(ctx context.Context, query string, documents []string) ([]Scored, error) {
	return rerank(ctx, b, query, documents)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
