package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuatecno/mejoresnoticias/internal/config"
	"github.com/kuatecno/mejoresnoticias/internal/domain"
	"github.com/kuatecno/mejoresnoticias/internal/ports"
)

const bodyExcerptRunes = 1500

const analysisPrompt = `You are a news curation analyst. Reply with a single JSON object
containing exactly these fields:
  category: one of politics, culture, business, international, lifestyle, opinion
  qualityScore: integer 1-10
  relevanceScore: integer 1-10
  keyTopics: array of 3-5 short keyword strings
  summary: two-sentence summary
  engagementPotential: one of low, medium, high
No prose outside the JSON.`

// Client talks to an OpenAI-compatible chat API for article analysis,
// headline writing, and summary enhancement. Calls are serialized through a
// rate limiter so collaborator spend stays predictable.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ ports.Analyzer = (*Client)(nil)
var _ ports.Editor = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.OpenAIConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Analyze sends one structured request for the article and validates the
// reply against the analysis schema. Any failure yields a CollaboratorError;
// the caller drops this article from ranking and continues.
func (c *Client) Analyze(ctx context.Context, article domain.RawArticle) (domain.Analysis, error) {
	excerpt := ""
	if article.BodyText != nil {
		excerpt = truncateRunes(*article.BodyText, bodyExcerptRunes)
	}

	user := fmt.Sprintf("Title: %s\nDescription: %s\nBody excerpt:\n%s",
		article.Title, article.Description, excerpt)

	content, err := c.chatCompletion(ctx, analysisPrompt, user)
	if err != nil {
		return domain.Analysis{}, &domain.CollaboratorError{Op: "analyze", Err: err}
	}

	var reply struct {
		Category            string   `json:"category"`
		QualityScore        int      `json:"qualityScore"`
		RelevanceScore      int      `json:"relevanceScore"`
		KeyTopics           []string `json:"keyTopics"`
		Summary             string   `json:"summary"`
		EngagementPotential string   `json:"engagementPotential"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &reply); err != nil {
		return domain.Analysis{}, &domain.CollaboratorError{Op: "analyze", Err: fmt.Errorf("decode reply: %w", err)}
	}

	analysis := domain.Analysis{
		ArticleID:           article.ID,
		Category:            domain.Category(reply.Category),
		QualityScore:        reply.QualityScore,
		RelevanceScore:      reply.RelevanceScore,
		KeyTopics:           reply.KeyTopics,
		Summary:             strings.TrimSpace(reply.Summary),
		EngagementPotential: domain.Engagement(reply.EngagementPotential),
		ProcessedAt:         time.Now().UTC(),
	}
	if err := validateAnalysis(analysis); err != nil {
		return domain.Analysis{}, &domain.CollaboratorError{Op: "analyze", Err: err}
	}

	return analysis, nil
}

// Headline asks for one headline covering the ranked selection in rank order.
func (c *Client) Headline(ctx context.Context, ranked []domain.ScoredArticle) (string, error) {
	var sb strings.Builder
	sb.WriteString("Write one short front-page headline covering today's selection. Reply with the headline only.\n")
	for i, item := range ranked {
		fmt.Fprintf(&sb, "%d. %s (%s, quality %d/10)\n",
			i+1, item.Article.Title, item.Analysis.Category, item.Analysis.QualityScore)
	}

	content, err := c.chatCompletion(ctx, "You are a news editor.", sb.String())
	if err != nil {
		return "", &domain.CollaboratorError{Op: "headline", Err: err}
	}

	headline := strings.TrimSpace(strings.Trim(strings.TrimSpace(content), `"`))
	if headline == "" {
		return "", &domain.CollaboratorError{Op: "headline", Err: fmt.Errorf("empty reply")}
	}
	return headline, nil
}

// EnhanceSummary rewrites one selected article's summary for readers.
func (c *Client) EnhanceSummary(ctx context.Context, article domain.ScoredArticle) (string, error) {
	user := fmt.Sprintf(
		"Rewrite this into one engaging reader-facing summary of at most two sentences. Reply with the summary only.\nTitle: %s\nAnalyst summary: %s\nDescription: %s",
		article.Article.Title, article.Analysis.Summary, article.Article.Description)

	content, err := c.chatCompletion(ctx, "You are a news editor.", user)
	if err != nil {
		return "", &domain.CollaboratorError{Op: "summary", Err: err}
	}

	summary := strings.TrimSpace(content)
	if summary == "" {
		return "", &domain.CollaboratorError{Op: "summary", Err: fmt.Errorf("empty reply")}
	}
	return summary, nil
}

func (c *Client) chatCompletion(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("openai client misconfigured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

func validateAnalysis(a domain.Analysis) error {
	validCategory := false
	for _, c := range domain.Categories {
		if a.Category == c {
			validCategory = true
			break
		}
	}
	if !validCategory {
		return fmt.Errorf("unknown category %q", a.Category)
	}

	if a.QualityScore < 1 || a.QualityScore > 10 {
		return fmt.Errorf("qualityScore %d out of range", a.QualityScore)
	}
	if a.RelevanceScore < 1 || a.RelevanceScore > 10 {
		return fmt.Errorf("relevanceScore %d out of range", a.RelevanceScore)
	}
	if len(a.KeyTopics) == 0 {
		return fmt.Errorf("keyTopics is empty")
	}
	if a.Summary == "" {
		return fmt.Errorf("summary is empty")
	}

	switch a.EngagementPotential {
	case domain.EngagementLow, domain.EngagementMedium, domain.EngagementHigh:
		return nil
	default:
		return fmt.Errorf("unknown engagementPotential %q", a.EngagementPotential)
	}
}

// stripFences removes a markdown code fence the model may wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
