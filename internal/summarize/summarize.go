// Package summarize implements stage-2 structured summarization.
//
// Stage 2 feeds the extracted paper text (or, in degraded mode, the
// abstract) back to the model and expects a fixed-shape JSON summary. Models
// are sloppy about array fields, so parsing coerces scalars into
// single-element lists rather than failing the paper.
package summarize

import (
	"encoding/json"
	"fmt"
	"strings"

	"paperboy/internal/classify"
	"paperboy/internal/llm"
	"paperboy/internal/paper"
)

// MaxPromptChars bounds how much extracted text is sent to the model.
const MaxPromptChars = 120000

// SystemPrompt instructs the model to emit the structured summary as JSON.
const SystemPrompt = "You produce a structured summary in JSON only. Be concise and faithful. " +
	"If evidence is missing, say 'not clearly reported'. Output ONLY valid JSON, no markdown."

// RepairPreamble prefixes the retry prompt after a malformed response.
const RepairPreamble = classify.RepairPreamble

// stringList tolerates scalar values where the schema expects an array.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var direct []any
	if err := json.Unmarshal(data, &direct); err == nil {
		out := make([]string, 0, len(direct))
		for _, item := range direct {
			out = append(out, stringify(item))
		}
		*l = out
		return nil
	}
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	if scalar == nil {
		*l = nil
		return nil
	}
	*l = []string{stringify(scalar)}
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// Summary is the parsed stage-2 payload.
type Summary struct {
	PaperID                string                `json:"paper_id"`
	Title                  string                `json:"title"`
	Categories             stringList            `json:"categories"`
	Published              string                `json:"published"`
	Topics                 []classify.TopicScore `json:"topics"`
	Problem                string                `json:"problem"`
	Motivation             string                `json:"motivation"`
	KeyChallenges          stringList            `json:"key_challenges"`
	Approach               string                `json:"approach"`
	AssumptionsLimitations stringList            `json:"assumptions_limitations"`
	EvidenceResults        stringList            `json:"evidence_results"`
	Takeaways              stringList            `json:"takeaways"`
	Raw                    string                `json:"-"`
}

// BuildPrompt renders the stage-2 user prompt. Text beyond MaxPromptChars is
// cut and marked as truncated.
func BuildPrompt(p paper.Paper, fullText string, stage1Topics []classify.TopicScore) string {
	if len(fullText) > MaxPromptChars {
		fullText = fullText[:MaxPromptChars] + "\n\n[TRUNCATED]"
	}
	topicsJSON, err := json.Marshal(stage1Topics)
	if err != nil {
		topicsJSON = []byte("[]")
	}
	meta := fmt.Sprintf(
		"Title: %s\nCategories: %s\nPublished: %s\nStage-1 topics: %s",
		p.Title,
		strings.Join(p.Categories, ", "),
		p.Published,
		topicsJSON,
	)
	return fmt.Sprintf(
		"Paper metadata:\n%s\n\nFull text (extract):\n%s\n\n"+
			"Output JSON with: paper_id, title, categories, published, topics (from stage1), "+
			"problem, motivation, key_challenges (array), approach, assumptions_limitations (array), "+
			"evidence_results (array), takeaways (exactly 3 bullets).",
		meta,
		fullText,
	)
}

// Parse decodes and normalizes a stage-2 payload. Missing list fields become
// empty lists, topic relevance is clamped, and the paper id is filled from
// the pipeline when the model omits it.
func Parse(raw, paperID string) (Summary, error) {
	var summary Summary
	if err := llm.DecodeLLMJSON(raw, &summary); err != nil {
		return Summary{}, fmt.Errorf("stage2 payload: %w", err)
	}
	if summary.PaperID == "" {
		summary.PaperID = paperID
	}
	for i := range summary.Topics {
		summary.Topics[i].Relevance = clamp01(summary.Topics[i].Relevance)
	}
	if summary.Categories == nil {
		summary.Categories = stringList{}
	}
	if summary.KeyChallenges == nil {
		summary.KeyChallenges = stringList{}
	}
	if summary.AssumptionsLimitations == nil {
		summary.AssumptionsLimitations = stringList{}
	}
	if summary.EvidenceResults == nil {
		summary.EvidenceResults = stringList{}
	}
	if summary.Takeaways == nil {
		summary.Takeaways = stringList{}
	}
	summary.Raw = raw
	return summary, nil
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
