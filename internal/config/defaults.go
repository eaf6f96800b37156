package config

const (
	defaultDBPath           = "~/.local/share/paperboy/papers.db"
	defaultPDFDir           = "~/.local/share/paperboy/pdfs"
	defaultTextDir          = "~/.local/share/paperboy/texts"
	defaultLogDir           = "~/.local/share/paperboy/logs"
	defaultTopicsPath       = "~/.config/paperboy/topics.yaml"
	defaultMaxResults       = 50
	defaultDaysBack         = 1
	defaultFetchTimeout     = 30
	defaultSSLimit          = 10
	defaultLLMBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMTimeout       = 120
	defaultLLMMaxTokens     = 4096
	defaultRelevance        = 0.5
	defaultMinTextChars     = 100
	defaultMinAbstractChars = 100
	defaultSMTPPort         = 587
	defaultSchedule         = "0 8 * * *"
	defaultDownloadTimeout  = 90
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Storage: Storage{
			DBPath:     defaultDBPath,
			PDFDir:     defaultPDFDir,
			TextDir:    defaultTextDir,
			LogDir:     defaultLogDir,
			TopicsPath: defaultTopicsPath,
		},
		Arxiv: Arxiv{
			Categories:            []string{"cs.CL"},
			MaxResultsPerCategory: defaultMaxResults,
			DaysBack:              defaultDaysBack,
			RequestTimeout:        defaultFetchTimeout,
		},
		SemanticScholar: SemanticScholar{
			Limit:          defaultSSLimit,
			RequestTimeout: defaultFetchTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Referer:        "https://github.com/paperboy",
			Title:          "Paperboy Digest",
			TimeoutSeconds: defaultLLMTimeout,
			MaxTokens:      defaultLLMMaxTokens,
		},
		Thresholds: Thresholds{
			Relevance:        defaultRelevance,
			MinTextChars:     defaultMinTextChars,
			MinAbstractChars: defaultMinAbstractChars,
		},
		Email: Email{
			SMTPPort:    defaultSMTPPort,
			UseTLS:      true,
			IncludeJSON: true,
		},
		Workflow: Workflow{
			Schedule:        defaultSchedule,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
