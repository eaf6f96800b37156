// Package llm provides the OpenAI-compatible chat completion client used by
// the classification and summarization stages.
//
// The client always requests JSON responses, retries transient transport and
// rate-limit failures with exponential backoff (honoring Retry-After), and
// tolerates model output wrapped in code fences, think blocks, or prose
// when extracting the JSON object.
package llm
