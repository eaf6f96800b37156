package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Validation failures abort the
// run before any paper is fetched or persisted.
func (c *Config) Validate() error {
	if err := c.validateArxiv(); err != nil {
		return err
	}
	if err := c.validateSemanticScholar(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateArxiv() error {
	if len(c.Arxiv.Categories) == 0 {
		return errors.New("arxiv.categories must list at least one category")
	}
	return nil
}

func (c *Config) validateSemanticScholar() error {
	if c.SemanticScholar.Enabled && len(c.SemanticScholar.Queries) == 0 {
		return errors.New("semantic_scholar.queries must be non-empty when semantic_scholar.enabled is true")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/paperboy/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set %s env var or edit %s (create with 'paperboy config init')", EnvLLMAPIKey, defaultPath)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.Relevance < 0 || c.Thresholds.Relevance > 1 {
		return errors.New("thresholds.relevance must be between 0 and 1")
	}
	if c.Thresholds.MinTextChars <= 0 {
		return errors.New("thresholds.min_text_chars must be positive")
	}
	if c.Thresholds.MinAbstractChars <= 0 {
		return errors.New("thresholds.min_abstract_chars must be positive")
	}
	return nil
}

func (c *Config) validateEmail() error {
	if c.Email.SMTPHost == "" {
		return errors.New("email.smtp_host must be set")
	}
	if c.Email.FromAddr == "" {
		return errors.New("email.from_addr must be set")
	}
	if c.Email.ToAddr == "" {
		return errors.New("email.to_addr must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
