// Package mailer formats and delivers per-paper digest emails over SMTP.
package mailer

import (
	"encoding/json"
	"fmt"
	"strings"

	"paperboy/internal/summarize"
)

// SubjectPrefix tags every digest email.
const SubjectPrefix = "[arXiv Digest]"

const subjectTitleLimit = 80

// Subject builds the digest subject line, truncating long titles.
func Subject(paperID, title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > subjectTitleLimit {
		runes = runes[:subjectTitleLimit]
	}
	return fmt.Sprintf("%s %s %s", SubjectPrefix, paperID, string(runes))
}

// FormatBody renders the plain-text digest body: labeled sections, the PDF
// location when one was downloaded, and optionally the raw summary JSON.
func FormatBody(summary summarize.Summary, pdfPath string, includeJSON bool) string {
	lines := []string{
		"Title: " + summary.Title,
		"Paper ID: " + summary.PaperID,
		"Categories: " + strings.Join(summary.Categories, ", "),
		"Published: " + summary.Published,
		"",
		"--- Problem ---",
		summary.Problem,
		"",
		"--- Motivation ---",
		summary.Motivation,
		"",
		"--- Key challenges ---",
	}
	lines = appendBullets(lines, summary.KeyChallenges)
	lines = append(lines,
		"",
		"--- Approach ---",
		summary.Approach,
		"",
		"--- Assumptions / Limitations ---",
	)
	lines = appendBullets(lines, summary.AssumptionsLimitations)
	lines = append(lines, "", "--- Evidence / Results ---")
	lines = appendBullets(lines, summary.EvidenceResults)
	lines = append(lines, "", "--- Takeaways ---")
	lines = appendBullets(lines, summary.Takeaways)

	if pdfPath != "" {
		lines = append(lines, "", "--- PDF ---", pdfPath)
	}
	if includeJSON {
		encoded, err := json.MarshalIndent(summary, "", "  ")
		if err == nil {
			lines = append(lines, "", "--- JSON ---", string(encoded))
		}
	}
	return strings.Join(lines, "\n")
}

func appendBullets(lines []string, items []string) []string {
	for _, item := range items {
		lines = append(lines, "  - "+item)
	}
	return lines
}
