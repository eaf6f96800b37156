package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperboy/internal/classify"
	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
	"paperboy/internal/pipeline"
	"paperboy/internal/store"
	"paperboy/internal/summarize"
	"paperboy/internal/testsupport"
	"paperboy/internal/topics"
)

func stage1Payload(relevance float64) string {
	return fmt.Sprintf(`{"paper_id":"x","topics":[{"topic_id":"llm-eval","relevance":%v,"reason":"r"}],"overall_relevance":%v,"decision":"keep"}`, relevance, relevance)
}

const stage2Payload = `{"title":"T","problem":"p","motivation":"m","key_challenges":["k"],"approach":"a","assumptions_limitations":[],"evidence_results":[],"takeaways":["1","2","3"]}`

// stubModel answers stage-1 and stage-2 prompts from scripted queues,
// distinguishing the stages by their system prompts.
type stubModel struct {
	stage1Replies []string
	stage2Replies []string
	stage1Calls   int
	stage2Calls   int
	err           error
}

func (m *stubModel) CompleteJSON(_ context.Context, systemPrompt, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if systemPrompt == classify.SystemPrompt {
		if m.stage1Calls >= len(m.stage1Replies) {
			return "", errors.New("unexpected stage1 call")
		}
		reply := m.stage1Replies[m.stage1Calls]
		m.stage1Calls++
		return reply, nil
	}
	if systemPrompt == summarize.SystemPrompt {
		if m.stage2Calls >= len(m.stage2Replies) {
			return "", errors.New("unexpected stage2 call")
		}
		reply := m.stage2Replies[m.stage2Calls]
		m.stage2Calls++
		return reply, nil
	}
	return "", fmt.Errorf("unknown system prompt %q", systemPrompt)
}

type stubDownloader struct {
	calls int
	err   error
	panic bool
}

func (d *stubDownloader) Download(_ context.Context, _, destPath string) error {
	d.calls++
	if d.panic {
		panic("downloader exploded")
	}
	if d.err != nil {
		return d.err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("%PDF"), 0o644)
}

type stubExtractor struct {
	calls int
	text  string
	err   error
}

func (e *stubExtractor) Extract(string) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

type stubSender struct {
	calls    int
	subjects []string
	bodies   []string
	err      error
}

func (s *stubSender) Send(_ context.Context, subject, body string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.subjects = append(s.subjects, subject)
	s.bodies = append(s.bodies, body)
	return nil
}

type fixture struct {
	cfg        *config.Config
	store      *store.Store
	model      *stubModel
	downloader *stubDownloader
	extractor  *stubExtractor
	sender     *stubSender
	sequencer  *pipeline.Sequencer
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	f := &fixture{
		cfg:   cfg,
		store: st,
		model: &stubModel{
			stage1Replies: []string{stage1Payload(0.9)},
			stage2Replies: []string{stage2Payload},
		},
		downloader: &stubDownloader{},
		extractor:  &stubExtractor{text: strings.Repeat("full text ", 50)},
		sender:     &stubSender{},
	}
	topicList := []topics.Topic{{ID: "llm-eval", Name: "LLM Evaluation", Description: "d"}}
	f.sequencer = pipeline.NewSequencer(cfg, st, topicList, f.model, f.downloader, f.extractor, f.sender, logging.NewNop())
	return f
}

func testPaper(id string) paper.Paper {
	return paper.Paper{
		ID:         id,
		Title:      "A Study of Things",
		Authors:    []string{"Ada"},
		Categories: []string{"cs.CL"},
		Published:  "2024-01-01",
		Abstract:   strings.Repeat("abstract text ", 25),
		PDFURL:     "https://arxiv.org/pdf/" + id + ".pdf",
		Source:     "arxiv",
	}
}

func mustStatus(t *testing.T, st *store.Store, id string, want store.Status) *store.Record {
	t.Helper()
	record, err := st.GetRecord(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRecord(%s): %v", id, err)
	}
	if record == nil {
		t.Fatalf("expected record for %s", id)
	}
	if record.Status != want {
		t.Fatalf("paper %s: status %q, want %q (error=%q)", id, record.Status, want, record.ErrorMessage)
	}
	return record
}

func TestRunHappyPathReachesEmailed(t *testing.T) {
	f := newFixture(t, testsupport.WithRelevanceThreshold(0.5))

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00001")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Emailed != 1 || stats.Failed != 0 || stats.SkippedByGate != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	record := mustStatus(t, f.store, "2401.00001", store.StatusEmailed)
	if record.Stage1JSON == "" || record.Stage2JSON == "" {
		t.Fatal("stage payloads not persisted")
	}
	if record.PDFPath == "" {
		t.Fatal("pdf path not persisted")
	}
	if f.sender.calls != 1 {
		t.Fatalf("expected one email, got %d", f.sender.calls)
	}
	if !strings.HasPrefix(f.sender.subjects[0], "[arXiv Digest] 2401.00001 ") {
		t.Fatalf("unexpected subject %q", f.sender.subjects[0])
	}
	if !strings.Contains(f.sender.bodies[0], "--- Takeaways ---") {
		t.Fatal("email body missing summary sections")
	}
}

func TestRunRelevanceGateSkipsWithoutDownstreamCalls(t *testing.T) {
	f := newFixture(t, testsupport.WithRelevanceThreshold(0.95))

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00001")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.SkippedByGate != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	record := mustStatus(t, f.store, "2401.00001", store.StatusSkipped)
	if record.Stage1JSON == "" {
		t.Fatal("stage1 payload should be persisted before the gate")
	}
	if f.downloader.calls != 0 || f.extractor.calls != 0 || f.sender.calls != 0 {
		t.Fatalf("downstream collaborators called past gate: download=%d extract=%d send=%d",
			f.downloader.calls, f.extractor.calls, f.sender.calls)
	}
	if f.model.stage2Calls != 0 {
		t.Fatalf("stage2 model called past gate: %d", f.model.stage2Calls)
	}
}

func TestRunStage1RepairOnceThenFail(t *testing.T) {
	f := newFixture(t)
	f.model.stage1Replies = []string{"garbage", "still garbage"}

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00002")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	record := mustStatus(t, f.store, "2401.00002", store.StatusFailed)
	if !strings.Contains(record.ErrorMessage, "Stage1 parse") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
	if f.model.stage1Calls != 2 {
		t.Fatalf("expected exactly 2 stage1 calls, got %d", f.model.stage1Calls)
	}
	if f.downloader.calls != 0 {
		t.Fatal("download attempted after stage1 failure")
	}
}

func TestRunStage1RepairSucceeds(t *testing.T) {
	f := newFixture(t)
	f.model.stage1Replies = []string{"garbage", stage1Payload(0.9)}

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00003")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Emailed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if f.model.stage1Calls != 2 {
		t.Fatalf("expected 2 stage1 calls, got %d", f.model.stage1Calls)
	}
	record := mustStatus(t, f.store, "2401.00003", store.StatusEmailed)
	if record.Stage1JSON != stage1Payload(0.9) {
		t.Fatalf("expected repaired payload persisted, got %q", record.Stage1JSON)
	}
}

func TestRunStage2RepairOnceThenFail(t *testing.T) {
	f := newFixture(t)
	f.model.stage2Replies = []string{"nope", "nope again"}

	_, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00004")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	record := mustStatus(t, f.store, "2401.00004", store.StatusFailed)
	if !strings.Contains(record.ErrorMessage, "Stage2 parse") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
	if f.model.stage2Calls != 2 {
		t.Fatalf("expected exactly 2 stage2 calls, got %d", f.model.stage2Calls)
	}
	if f.sender.calls != 0 {
		t.Fatal("email sent after stage2 failure")
	}
}

func TestRunDownloadFailureDegradesToAbstract(t *testing.T) {
	f := newFixture(t)
	f.downloader.err = errors.New("connection refused")

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00005")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Emailed != 1 {
		t.Fatalf("expected degraded paper emailed, got %+v", stats)
	}
	record := mustStatus(t, f.store, "2401.00005", store.StatusEmailed)
	if record.PDFPath != "" {
		t.Fatalf("degraded paper must not record a pdf path, got %q", record.PDFPath)
	}
	if f.extractor.calls != 0 {
		t.Fatal("extractor called without a downloaded pdf")
	}
	if record.TextChars == 0 {
		t.Fatal("expected abstract length recorded")
	}
}

func TestRunShortExtractionDegradesToAbstract(t *testing.T) {
	f := newFixture(t)
	f.extractor.text = "tiny"

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00006")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Emailed != 1 {
		t.Fatalf("expected degraded paper emailed, got %+v", stats)
	}
	record := mustStatus(t, f.store, "2401.00006", store.StatusEmailed)
	if record.PDFPath == "" {
		t.Fatal("pdf path should be recorded when download succeeded")
	}
}

func TestRunDegradationFailsWhenAbstractBelowFloor(t *testing.T) {
	f := newFixture(t)
	f.downloader.err = errors.New("404")

	p := testPaper("2401.00007")
	p.Abstract = "too short"
	_, err := f.sequencer.Run(context.Background(), []paper.Paper{p})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	record := mustStatus(t, f.store, "2401.00007", store.StatusFailed)
	if !strings.HasPrefix(record.ErrorMessage, "PDF:") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
	if f.model.stage2Calls != 0 {
		t.Fatal("stage2 called without usable text")
	}
}

func TestRunEmailFailureMarksFailedAndKeepsSummary(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")

	_, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00008")})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	record := mustStatus(t, f.store, "2401.00008", store.StatusFailed)
	if !strings.HasPrefix(record.ErrorMessage, "Email:") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
	if record.Stage2JSON == "" {
		t.Fatal("summary must be preserved for manual resend")
	}
}

func TestRunBatchContinuityAcrossPanic(t *testing.T) {
	f := newFixture(t)
	f.model.stage1Replies = []string{stage1Payload(0.9), stage1Payload(0.9), stage1Payload(0.9)}
	f.model.stage2Replies = []string{stage2Payload, stage2Payload}

	// Paper 2's download panics; papers 1 and 3 must still complete.
	papers := []paper.Paper{testPaper("2401.00011"), testPaper("2401.00012"), testPaper("2401.00013")}
	var downloads int
	panicking := &scriptedDownloader{fail: func() bool {
		downloads++
		return downloads == 2
	}}
	topicList := []topics.Topic{{ID: "llm-eval", Name: "LLM Evaluation", Description: "d"}}
	sequencer := pipeline.NewSequencer(f.cfg, f.store, topicList, f.model, panicking, f.extractor, f.sender, logging.NewNop())

	stats, err := sequencer.Run(context.Background(), papers)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Emailed != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	mustStatus(t, f.store, "2401.00011", store.StatusEmailed)
	record := mustStatus(t, f.store, "2401.00012", store.StatusFailed)
	if !strings.Contains(record.ErrorMessage, "panic") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
	mustStatus(t, f.store, "2401.00013", store.StatusEmailed)
}

type scriptedDownloader struct {
	fail func() bool
}

func (d *scriptedDownloader) Download(_ context.Context, _, destPath string) error {
	if d.fail() {
		panic("simulated crash")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("%PDF"), 0o644)
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	f := newFixture(t)

	if _, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00009")}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if f.sender.calls != 1 {
		t.Fatalf("expected one email after first run, got %d", f.sender.calls)
	}

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00009")})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.SkippedIntake != 1 || stats.Emailed != 0 {
		t.Fatalf("unexpected rerun stats %+v", stats)
	}
	if f.sender.calls != 1 {
		t.Fatalf("duplicate email sent on rerun: %d", f.sender.calls)
	}
	if f.model.stage1Calls != 1 {
		t.Fatalf("model re-invoked on rerun: %d", f.model.stage1Calls)
	}
}

func TestRunFailedPaperSkippedWhenRetryDisabled(t *testing.T) {
	f := newFixture(t)
	f.model.stage1Replies = []string{"garbage", "junk"}

	if _, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00015")}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	mustStatus(t, f.store, "2401.00015", store.StatusFailed)

	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00015")})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.SkippedIntake != 1 || stats.RetriedFailed != 0 {
		t.Fatalf("unexpected rerun stats %+v", stats)
	}
	if f.model.stage1Calls != 2 {
		t.Fatalf("model re-invoked for failed paper with retry disabled: %d", f.model.stage1Calls)
	}
}

func TestRunRetryFailedReprocessesFailedPapers(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryFailed())
	f.model.stage1Replies = []string{"garbage", "junk", stage1Payload(0.9)}

	// First run fails the paper after the repair attempt.
	if _, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00010")}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	mustStatus(t, f.store, "2401.00010", store.StatusFailed)

	// Second run re-enters the failed paper and drives it to completion.
	stats, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00010")})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.RetriedFailed != 1 || stats.Emailed != 1 {
		t.Fatalf("expected one retried and emailed paper, got %+v", stats)
	}
	mustStatus(t, f.store, "2401.00010", store.StatusEmailed)
}

func TestRunSavesTextWhenConfigured(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Storage.SaveText = true })

	if _, err := f.sequencer.Run(context.Background(), []paper.Paper{testPaper("2401.00014")}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(f.cfg.Storage.TextDir, "2401.00014.txt"))
	if err != nil {
		t.Fatalf("expected saved text file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("saved text file empty")
	}
}
