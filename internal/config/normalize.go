package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeArxiv()
	c.normalizeSemanticScholar()
	c.normalizeLLM()
	c.normalizeEmail()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeStorage() error {
	var err error
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		c.Storage.DBPath = defaultDBPath
	}
	if c.Storage.DBPath, err = expandPath(c.Storage.DBPath); err != nil {
		return fmt.Errorf("storage.db_path: %w", err)
	}
	if strings.TrimSpace(c.Storage.PDFDir) == "" {
		c.Storage.PDFDir = defaultPDFDir
	}
	if c.Storage.PDFDir, err = expandPath(c.Storage.PDFDir); err != nil {
		return fmt.Errorf("storage.pdf_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.TextDir) == "" {
		c.Storage.TextDir = defaultTextDir
	}
	if c.Storage.TextDir, err = expandPath(c.Storage.TextDir); err != nil {
		return fmt.Errorf("storage.text_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.LogDir) == "" {
		c.Storage.LogDir = defaultLogDir
	}
	if c.Storage.LogDir, err = expandPath(c.Storage.LogDir); err != nil {
		return fmt.Errorf("storage.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.TopicsPath) == "" {
		c.Storage.TopicsPath = defaultTopicsPath
	}
	if c.Storage.TopicsPath, err = expandPath(c.Storage.TopicsPath); err != nil {
		return fmt.Errorf("storage.topics_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeArxiv() {
	trimmed := make([]string, 0, len(c.Arxiv.Categories))
	for _, cat := range c.Arxiv.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			trimmed = append(trimmed, cat)
		}
	}
	c.Arxiv.Categories = trimmed
	if c.Arxiv.MaxResultsPerCategory <= 0 {
		c.Arxiv.MaxResultsPerCategory = defaultMaxResults
	}
	if c.Arxiv.DaysBack <= 0 {
		c.Arxiv.DaysBack = defaultDaysBack
	}
	if c.Arxiv.RequestTimeout <= 0 {
		c.Arxiv.RequestTimeout = defaultFetchTimeout
	}
}

func (c *Config) normalizeSemanticScholar() {
	trimmed := make([]string, 0, len(c.SemanticScholar.Queries))
	for _, q := range c.SemanticScholar.Queries {
		if q = strings.TrimSpace(q); q != "" {
			trimmed = append(trimmed, q)
		}
	}
	c.SemanticScholar.Queries = trimmed
	if c.SemanticScholar.Limit <= 0 {
		c.SemanticScholar.Limit = defaultSSLimit
	}
	if c.SemanticScholar.RequestTimeout <= 0 {
		c.SemanticScholar.RequestTimeout = defaultFetchTimeout
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv(EnvLLMAPIKey); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
}

func (c *Config) normalizeEmail() {
	if c.Email.SMTPPassword == "" {
		if value, ok := os.LookupEnv(EnvSMTPPassword); ok {
			c.Email.SMTPPassword = value
		}
	}
	c.Email.SMTPHost = strings.TrimSpace(c.Email.SMTPHost)
	c.Email.FromAddr = strings.TrimSpace(c.Email.FromAddr)
	c.Email.ToAddr = strings.TrimSpace(c.Email.ToAddr)
	if c.Email.SMTPPort <= 0 {
		c.Email.SMTPPort = defaultSMTPPort
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.Schedule = strings.TrimSpace(c.Workflow.Schedule)
	if c.Workflow.Schedule == "" {
		c.Workflow.Schedule = defaultSchedule
	}
	if c.Workflow.DownloadTimeout <= 0 {
		c.Workflow.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
