// Package classify implements stage-1 relevance classification.
//
// The classifier scores a paper's metadata against every configured topic
// and produces an overall relevance plus a keep/drop decision. Only the
// persisted relevance scores gate the rest of the pipeline; the model's own
// decision field is advisory.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"paperboy/internal/llm"
	"paperboy/internal/paper"
	"paperboy/internal/topics"
)

// SystemPrompt instructs the model to emit a single JSON object.
const SystemPrompt = "You are a classifier. For each paper, assign each topic a relevance score in [0, 1] " +
	"and give a short reason (<=40 words). Output ONLY a single valid JSON object: no <think>, " +
	"no reasoning text, no markdown, no explanation. Start your response with {."

// RepairPreamble prefixes the retry prompt after a malformed response.
const RepairPreamble = "Return only valid JSON, no markdown or explanation. Your previous reply had errors.\n\n"

// TopicScore is the model's judgment of one paper against one topic.
type TopicScore struct {
	TopicID   string  `json:"topic_id"`
	Relevance float64 `json:"relevance"`
	Reason    string  `json:"reason"`
}

// Result is the parsed stage-1 classification payload.
type Result struct {
	PaperID          string       `json:"paper_id"`
	Topics           []TopicScore `json:"topics"`
	OverallRelevance float64      `json:"overall_relevance"`
	Decision         string       `json:"decision"`
	Raw              string       `json:"-"`
}

// MaxRelevance returns the highest per-topic relevance, falling back to the
// overall relevance when the model scored no topics.
func (r Result) MaxRelevance() float64 {
	if len(r.Topics) == 0 {
		return r.OverallRelevance
	}
	best := 0.0
	for _, topic := range r.Topics {
		if topic.Relevance > best {
			best = topic.Relevance
		}
	}
	return best
}

// BuildPrompt renders the stage-1 user prompt for one paper.
func BuildPrompt(topicList []topics.Topic, p paper.Paper) string {
	var topicsDesc strings.Builder
	for i, t := range topicList {
		if i > 0 {
			topicsDesc.WriteString("\n")
		}
		fmt.Fprintf(&topicsDesc, "- id: %s, name: %s, description: %s", t.ID, t.Name, t.Description)
	}
	paperBlob := fmt.Sprintf(
		"Title: %s\nCategories: %s\nPublished: %s\nAbstract: %s",
		p.Title,
		strings.Join(p.Categories, ", "),
		p.Published,
		p.Abstract,
	)
	return fmt.Sprintf(
		"Topics:\n%s\n\nPaper:\n%s\n\n"+
			`Output JSON: {"paper_id": "<arxiv_id>", "topics": [{"topic_id": "...", "relevance": 0.0-1.0, "reason": "..."}, ...], `+
			`"overall_relevance": 0.0-1.0, "decision": "keep" or "drop"}. `+
			`decision must be "keep" if any topic relevance >= 0.8 else "drop".`,
		topicsDesc.String(),
		paperBlob,
	)
}

// Parse decodes and normalizes a stage-1 payload. Relevance scores are
// clamped to [0, 1], the paper id is forced to match the pipeline's id, and
// any decision other than keep/drop becomes drop.
func Parse(raw, paperID string) (Result, error) {
	var result Result
	if err := llm.DecodeLLMJSON(raw, &result); err != nil {
		return Result{}, fmt.Errorf("stage1 payload: %w", err)
	}
	if result.Topics == nil {
		return Result{}, errors.New("stage1 payload: missing topics array")
	}
	result.PaperID = paperID
	for i := range result.Topics {
		result.Topics[i].Relevance = clamp01(result.Topics[i].Relevance)
		result.Topics[i].Reason = strings.TrimSpace(result.Topics[i].Reason)
	}
	result.OverallRelevance = clamp01(result.OverallRelevance)
	result.Decision = strings.ToLower(strings.TrimSpace(result.Decision))
	if result.Decision != "keep" && result.Decision != "drop" {
		result.Decision = "drop"
	}
	result.Raw = raw
	return result, nil
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
