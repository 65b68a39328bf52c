package twentyq

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nevindra/quizgate"
	"github.com/nevindra/quizgate/internal/config"
	"github.com/nevindra/quizgate/prompt"
	"github.com/nevindra/quizgate/provider/gemini"
	"github.com/nevindra/quizgate/session"
)

// fakeLLM replays canned responses and captures every request.
type fakeLLM struct {
	chatReplies       []string
	chatErr           error
	structuredReply   map[string]any
	structuredErr     error
	chatRequests      []gemini.Request
	structuredCount   int
	structuredRequest gemini.Request
}

func (f *fakeLLM) Chat(_ context.Context, req gemini.Request) (string, error) {
	f.chatRequests = append(f.chatRequests, req)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	idx := len(f.chatRequests) - 1
	if idx >= len(f.chatReplies) {
		idx = len(f.chatReplies) - 1
	}
	return f.chatReplies[idx], nil
}

func (f *fakeLLM) Structured(_ context.Context, req gemini.Request, _ json.RawMessage) (map[string]any, error) {
	f.structuredCount++
	f.structuredRequest = req
	if f.structuredErr != nil {
		return nil, f.structuredErr
	}
	return f.structuredReply, nil
}

func newTestPipeline(t *testing.T, llm *fakeLLM) *Pipeline {
	t.Helper()
	prompts, err := prompt.NewTwentyQ()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Gemini.DefaultModel = "gemini-2.5-flash"
	sessions := session.NewManager(cfg.Session, session.NewMemoryStore())
	return NewPipeline(llm, prompts, sessions, cfg)
}

func TestParseAnswerScale(t *testing.T) {
	tests := []struct {
		text string
		want AnswerScale
		ok   bool
	}{
		{"예", ScaleYes, true},
		{"아니오", ScaleNo, true},
		{"아마도 아니오", ScaleProbablyNo, true},
		// Scan order makes the bare scale win over its prefixed variant.
		{"아마도 예", ScaleYes, true},
		{"답변: 아마도 아니오 입니다", ScaleProbablyNo, true},
		{"잘 모르겠습니다", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAnswerScale(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAnswerScale(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHistoryContext(t *testing.T) {
	history := []quizgate.ChatMessage{
		quizgate.SystemMessage("system setup"),
		quizgate.UserMessage("Q: 동물인가요?"),
		quizgate.AssistantMessage("A: 아니오"),
		quizgate.UserMessage("Q: 전자기기인가요?"),
		quizgate.AssistantMessage("A: 예"),
	}

	got := HistoryContext(history, "[기록]", 10)
	if !strings.HasPrefix(got, "\n\n[기록]\n") {
		t.Errorf("context = %q", got)
	}
	if strings.Contains(got, "system setup") {
		t.Error("non-Q/A messages must be excluded")
	}

	// Only the last pair survives max_pairs=1.
	got = HistoryContext(history, "[기록]", 1)
	if strings.Contains(got, "동물인가요") || !strings.Contains(got, "전자기기인가요") {
		t.Errorf("trimmed context = %q", got)
	}

	if got := HistoryContext(history, "[기록]", 0); got != "" {
		t.Errorf("max_pairs=0 must disable context, got %q", got)
	}
	if got := HistoryContext(nil, "[기록]", 5); got != "" {
		t.Errorf("empty history yields no context, got %q", got)
	}
}

func TestAnswerStateless(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"예"}}
	p := newTestPipeline(t, llm)

	resp, err := p.Answer(context.Background(), AnswerRequest{
		Question: "전자기기인가요?",
		Target:   "스마트폰",
		Category: "사물",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scale != "예" || resp.SessionID != "" {
		t.Errorf("resp = %+v", resp)
	}
	if len(llm.chatRequests) != 1 {
		t.Fatalf("calls = %d, want 1", len(llm.chatRequests))
	}
	req := llm.chatRequests[0]
	if req.Task != "answer" {
		t.Errorf("task = %q", req.Task)
	}
	if !strings.Contains(req.Prompt, "스마트폰") || !strings.Contains(req.Prompt, "전자기기인가요?") {
		t.Errorf("prompt missing secret or question:\n%s", req.Prompt)
	}
}

func TestAnswerWithSessionHistory(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"예", "예"}}
	p := newTestPipeline(t, llm)
	ctx := context.Background()

	first, err := p.Answer(ctx, AnswerRequest{
		Question: "전자기기인가요?",
		Target:   "스마트폰",
		Category: "사물",
		ChatID:   "room42",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID != "twentyq:room42" {
		t.Errorf("session id = %q", first.SessionID)
	}

	history, err := p.sessions.History(ctx, "twentyq:room42")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Content != "Q: 전자기기인가요?" || history[1].Content != "A: 예" {
		t.Fatalf("history = %+v", history)
	}

	if _, err := p.Answer(ctx, AnswerRequest{
		Question: "손에 들 수 있나요?",
		Target:   "스마트폰",
		Category: "사물",
		ChatID:   "room42",
	}); err != nil {
		t.Fatal(err)
	}

	second := llm.chatRequests[1]
	if !strings.Contains(second.Prompt, "[이전 질문/답변 기록 - 정답: 스마트폰]") {
		t.Errorf("second prompt missing history header:\n%s", second.Prompt)
	}
	if !strings.Contains(second.Prompt, "Q: 전자기기인가요?") || !strings.Contains(second.Prompt, "A: 예") {
		t.Errorf("second prompt missing prior exchange:\n%s", second.Prompt)
	}
}

func TestAnswerRetriesOnParseFailure(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"글쎄요, 알 수 없네요", "아니오"}}
	p := newTestPipeline(t, llm)

	resp, err := p.Answer(context.Background(), AnswerRequest{Question: "q", Target: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scale != "아니오" {
		t.Errorf("scale = %q, want 아니오 after retry", resp.Scale)
	}
	if len(llm.chatRequests) != 2 {
		t.Fatalf("calls = %d, want 2", len(llm.chatRequests))
	}
	if !strings.Contains(llm.chatRequests[1].Prompt, "반드시 다음 중 하나만 출력") {
		t.Error("retry prompt must carry the explicit format hint")
	}
}

func TestAnswerUnparseableRecordsUnknown(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"모르겠어요", "여전히 모르겠어요"}}
	p := newTestPipeline(t, llm)
	ctx := context.Background()

	resp, err := p.Answer(ctx, AnswerRequest{Question: "q", Target: "t", ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scale != "" {
		t.Errorf("scale = %q, want empty", resp.Scale)
	}
	if resp.RawText != "여전히 모르겠어요" {
		t.Errorf("raw = %q", resp.RawText)
	}

	history, _ := p.sessions.History(ctx, "twentyq:c1")
	if len(history) != 2 || history[1].Content != "A: UNKNOWN" {
		t.Errorf("history = %+v", history)
	}
}

func TestVerifyStructured(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{"result": "정답"}}
	p := newTestPipeline(t, llm)

	resp, err := p.Verify(context.Background(), "스마트폰", "핸드폰")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "정답" {
		t.Errorf("result = %q", resp.Result)
	}
	if len(llm.chatRequests) != 0 {
		t.Error("structured success must not fall back to plain chat")
	}
	if llm.structuredRequest.Task != "verify" {
		t.Errorf("task = %q", llm.structuredRequest.Task)
	}
}

func TestVerifyFallback(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"이 추측은 근접입니다"},
	}
	p := newTestPipeline(t, llm)

	resp, err := p.Verify(context.Background(), "스마트폰", "전화기")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "근접" {
		t.Errorf("result = %q, want 근접 from plain scan", resp.Result)
	}
}

func TestNormalizeFallsBackToOriginal(t *testing.T) {
	llm := &fakeLLM{structuredErr: quizgate.ErrLLMParsing("bad json")}
	p := newTestPipeline(t, llm)

	resp, err := p.Normalize(context.Background(), "그거 먹는거에요?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Normalized != "그거 먹는거에요?" || resp.Original != "그거 먹는거에요?" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNormalize(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{"normalized": "그것은 먹는 것인가요?"}}
	p := newTestPipeline(t, llm)

	resp, err := p.Normalize(context.Background(), "그거 먹는거에요?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Normalized != "그것은 먹는 것인가요?" {
		t.Errorf("normalized = %q", resp.Normalized)
	}
}

func TestSynonymFallback(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"두 단어는 동일합니다"},
	}
	p := newTestPipeline(t, llm)

	resp, err := p.Synonym(context.Background(), "스마트폰", "핸드폰")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "동일" {
		t.Errorf("result = %q", resp.Result)
	}
}

func TestHints(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{
		"hints": []any{"화면이 있습니다", "주머니에 들어갑니다", "전화를 걸 수 있습니다"},
	}}
	p := newTestPipeline(t, llm)

	resp, err := p.Hints(context.Background(), "스마트폰", "사물")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Hints) != 3 {
		t.Fatalf("hints = %v", resp.Hints)
	}
	if llm.structuredRequest.Task != "hints" {
		t.Errorf("task = %q", llm.structuredRequest.Task)
	}
	if !strings.Contains(llm.structuredRequest.SystemPrompt, "사물") {
		t.Error("system prompt must carry the category restriction")
	}
}
