package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/mailpro-dashboard/internal/report"
)

// Summarizer writes the short narrative at the top of the report email.
type Summarizer interface {
	Summarize(ctx context.Context, seg report.Segments) (string, error)
}

// TemplateSummarizer builds the narrative from the numbers alone. Output is
// deterministic for a given input.
type TemplateSummarizer struct{}

// Summarize implements Summarizer.
func (TemplateSummarizer) Summarize(_ context.Context, seg report.Segments) (string, error) {
	var b strings.Builder
	writeDay := func(label, date string, reports []report.DailyReport) {
		if len(reports) == 0 {
			fmt.Fprintf(&b, "%s (%s): no campaigns sent.\n", label, date)
			return
		}
		t := report.Totals(reports)
		fmt.Fprintf(&b, "%s (%s): %d campaign(s), %d sent, %.2f%% delivered, %.2f%% opened, %.2f%% clicked.\n",
			label, date, t.Campaigns, t.TotalSent, t.DeliveryRate, t.OpenRate, t.ClickRate)
	}
	writeDay("Today", seg.TodayDate, seg.Today)
	writeDay("Yesterday", seg.YesterdayDate, seg.Yesterday)

	if best, ok := topByOpenRate(append(append([]report.DailyReport{}, seg.Today...), seg.Yesterday...)); ok {
		fmt.Fprintf(&b, "Best open rate: %q at %.2f%%.", best.CampaignName, best.OpenRate)
	}
	return strings.TrimSpace(b.String()), nil
}

func topByOpenRate(reports []report.DailyReport) (report.DailyReport, bool) {
	if len(reports) == 0 {
		return report.DailyReport{}, false
	}
	sorted := append([]report.DailyReport(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenRate > sorted[j].OpenRate })
	return sorted[0], true
}

type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content []bedrockContentBlock `json:"content"`
}

const summaryPrompt = `You write the two or three sentence summary at the top of a daily email campaign report.
Mention notable delivery, open and click rates. Plain text only, no greeting, no sign-off.`

// BedrockSummarizer asks a Claude model on AWS Bedrock for the narrative.
type BedrockSummarizer struct {
	client  bedrockAPI
	modelID string
}

// NewBedrockSummarizer loads AWS config for region and targets modelID.
func NewBedrockSummarizer(ctx context.Context, region, modelID string) (*BedrockSummarizer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockSummarizerWithClient(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

// NewBedrockSummarizerWithClient wraps an existing client.
func NewBedrockSummarizerWithClient(client bedrockAPI, modelID string) *BedrockSummarizer {
	return &BedrockSummarizer{client: client, modelID: modelID}
}

// Summarize implements Summarizer.
func (b *BedrockSummarizer) Summarize(ctx context.Context, seg report.Segments) (string, error) {
	data, err := json.Marshal(map[string]any{
		"today":           seg.Today,
		"today_date":      seg.TodayDate,
		"today_total":     report.Totals(seg.Today),
		"yesterday":       seg.Yesterday,
		"yesterday_date":  seg.YesterdayDate,
		"yesterday_total": report.Totals(seg.Yesterday),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal report data: %w", err)
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        400,
		System:           summaryPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContentBlock{{Type: "text", Text: string(data)}},
		}},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	summary := strings.TrimSpace(text.String())
	if summary == "" {
		return "", fmt.Errorf("Bedrock returned an empty summary")
	}
	return summary, nil
}

// FallbackSummarizer tries Primary and falls back to Secondary on error.
type FallbackSummarizer struct {
	Primary   Summarizer
	Secondary Summarizer
	OnError   func(error)
}

// Summarize implements Summarizer.
func (f FallbackSummarizer) Summarize(ctx context.Context, seg report.Segments) (string, error) {
	if f.Primary != nil {
		s, err := f.Primary.Summarize(ctx, seg)
		if err == nil {
			return s, nil
		}
		if f.OnError != nil {
			f.OnError(err)
		}
	}
	return f.Secondary.Summarize(ctx, seg)
}
