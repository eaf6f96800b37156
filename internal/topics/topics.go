// Package topics loads the user's research interest definitions.
//
// Topics drive relevance classification: each fetched paper is scored
// against every topic, and the maximum per-topic relevance decides whether
// the paper continues through the pipeline.
package topics

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topic describes one research interest the classifier scores papers against.
type Topic struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type topicsFile struct {
	Topics []Topic `yaml:"topics"`
}

// Load reads and validates the topics file at path.
func Load(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}
	return Parse(data)
}

// Parse decodes topics from YAML and enforces the uniqueness rules.
func Parse(data []byte) ([]Topic, error) {
	var file topicsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse topics file: %w", err)
	}
	if len(file.Topics) == 0 {
		return nil, fmt.Errorf("topics file defines no topics")
	}
	seen := make(map[string]struct{}, len(file.Topics))
	for i := range file.Topics {
		topic := &file.Topics[i]
		topic.ID = strings.TrimSpace(topic.ID)
		topic.Name = strings.TrimSpace(topic.Name)
		if topic.ID == "" {
			return nil, fmt.Errorf("topic %d has an empty id", i)
		}
		if _, dup := seen[topic.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", topic.ID)
		}
		seen[topic.ID] = struct{}{}
		if topic.Name == "" {
			topic.Name = topic.ID
		}
	}
	return file.Topics, nil
}

// CreateSample writes a starter topics file to the specified location.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleTopics), 0o644)
}

const sampleTopics = `topics:
  - id: llm-evaluation
    name: LLM Evaluation
    description: Benchmarks, metrics, and methodology for evaluating large language models.
    keywords: [benchmark, evaluation, metric]
  - id: retrieval
    name: Retrieval-Augmented Generation
    description: Systems that combine retrieval with generation.
    keywords: [RAG, retrieval, grounding]
`
