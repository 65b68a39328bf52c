package turtlesoup

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

func newTestPipeline(t *testing.T, llm *fakeLLM, loaderDir string) *Pipeline {
	t.Helper()
	prompts, err := prompt.NewTurtleSoup()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Gemini.DefaultModel = "gemini-2.5-flash"
	sessions := session.NewManager(cfg.Session, session.NewMemoryStore())
	return NewPipeline(llm, prompts, sessions, NewLoader(loaderDir), cfg)
}

func TestParseAnswerType(t *testing.T) {
	tests := []struct {
		text string
		want AnswerType
		ok   bool
	}{
		{"예", AnswerYes, true},
		{"아니오", AnswerNo, true},
		{"답변: 관계없습니다.", AnswerIrrelevant, true},
		{"조금은 관계있습니다", AnswerSomewhat, true},
		{"전제가 틀렸습니다", AnswerFalsePremise, true},
		{"중요한 질문입니다!", AnswerImportant, true},
		{"글쎄요", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAnswerType(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAnswerType(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatAnswerText(t *testing.T) {
	tests := []struct {
		name      string
		answer    AnswerType
		found     bool
		important bool
		raw       string
		want      string
	}{
		{"plain yes", AnswerYes, true, false, "예", "예"},
		{"important yes", AnswerYes, true, true, "예, 중요합니다", "예, 중요한 질문입니다!"},
		{"important no", AnswerNo, true, true, "아니오, 중요합니다", "아니오 하지만 중요한 질문입니다!"},
		{"unparsed", "", false, false, "잘 모르겠네요", "잘 모르겠네요"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAnswerText(tt.answer, tt.found, tt.important, tt.raw)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswerStateless(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"예"}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Answer(context.Background(), AnswerRequest{
		Question: "남자는 죽었나요?",
		Scenario: "한 남자가 수프를 먹고 떠났다",
		Solution: "그는 과거를 떠올렸다",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "예" || resp.SessionID != "" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.QuestionCount != 1 {
		t.Errorf("question count = %d", resp.QuestionCount)
	}
	if len(resp.History) != 1 || resp.History[0].Question != "남자는 죽었나요?" || resp.History[0].Answer != "예" {
		t.Errorf("history = %+v", resp.History)
	}
	req := llm.chatRequests[0]
	if req.Task != "answer" {
		t.Errorf("task = %q", req.Task)
	}
	if !strings.Contains(req.Prompt, "남자는 죽었나요?") || !strings.Contains(req.Prompt, "수프를 먹고") {
		t.Errorf("prompt missing question or puzzle:\n%s", req.Prompt)
	}
}

func TestAnswerImportantMarker(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"yes important", "예. 중요한 질문입니다!", "예, 중요한 질문입니다!"},
		{"no important spaced", "아니오, 중요한 질문 입니다", "아니오 하지만 중요한 질문입니다!"},
		{"marker only", "중요한 질문입니다!", "예, 중요한 질문입니다!"},
		{"unparsed important", "핵심을 짚으셨네요, 중요합니다", "예, 중요한 질문입니다!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{chatReplies: []string{tt.raw}}
			p := newTestPipeline(t, llm, "")
			resp, err := p.Answer(context.Background(), AnswerRequest{Question: "q", Scenario: "s", Solution: "a"})
			if err != nil {
				t.Fatal(err)
			}
			if resp.Answer != tt.want {
				t.Errorf("answer = %q, want %q", resp.Answer, tt.want)
			}
		})
	}
}

func TestAnswerWithSessionHistory(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"예", "아니오"}}
	p := newTestPipeline(t, llm, "")
	ctx := context.Background()

	first, err := p.Answer(ctx, AnswerRequest{
		Question: "남자는 선원이었나요?",
		Scenario: "수프 이야기",
		Solution: "동료의 살",
		ChatID:   "room7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID != "turtle-soup:room7" {
		t.Errorf("session id = %q", first.SessionID)
	}
	if first.QuestionCount != 1 {
		t.Errorf("first question count = %d", first.QuestionCount)
	}

	second, err := p.Answer(ctx, AnswerRequest{
		Question: "그는 무언가를 깨달았나요?",
		Scenario: "수프 이야기",
		Solution: "동료의 살",
		ChatID:   "room7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.QuestionCount != 2 {
		t.Errorf("second question count = %d", second.QuestionCount)
	}
	if len(second.History) != 2 {
		t.Fatalf("history = %+v", second.History)
	}
	if second.History[0].Question != "남자는 선원이었나요?" || second.History[0].Answer != "예" {
		t.Errorf("history[0] = %+v", second.History[0])
	}
	if second.History[1].Answer != "아니오" {
		t.Errorf("history[1] = %+v", second.History[1])
	}

	prompt2 := llm.chatRequests[1].Prompt
	if !strings.Contains(prompt2, "[이전 질문/답변 기록]") {
		t.Errorf("second prompt missing history header:\n%s", prompt2)
	}
	if !strings.Contains(prompt2, "Q: 남자는 선원이었나요?") || !strings.Contains(prompt2, "A: 예") {
		t.Errorf("second prompt missing prior exchange:\n%s", prompt2)
	}
}

func TestHintStructured(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{"hint": "그의 직업을 생각해 보세요"}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Hint(context.Background(), "시나리오", "정답", 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Hint != "그의 직업을 생각해 보세요" || resp.Level != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if len(llm.chatRequests) != 0 {
		t.Error("structured success must not fall back to plain chat")
	}
	if llm.structuredRequest.Task != "hints" {
		t.Errorf("task = %q", llm.structuredRequest.Task)
	}
}

func TestHintFallbackStripsFence(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"```json\n{\"hint\": \"과거에 주목하세요\"}\n```"},
	}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Hint(context.Background(), "시나리오", "정답", 1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Hint != "과거에 주목하세요" {
		t.Errorf("hint = %q", resp.Hint)
	}
}

func TestHintFallbackPlainText(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"과거에 주목하세요"},
	}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Hint(context.Background(), "시나리오", "정답", 1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Hint != "과거에 주목하세요" {
		t.Errorf("hint = %q", resp.Hint)
	}
}

func TestValidate(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"판정: close"}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Validate(context.Background(), "그는 동료의 살을 먹었다", "뭔가 나쁜 것을 먹었다")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "CLOSE" {
		t.Errorf("result = %q", resp.Result)
	}
	if llm.chatRequests[0].Task != "verify" {
		t.Errorf("task = %q", llm.chatRequests[0].Task)
	}
}

func TestValidateUnparsedKeepsRaw(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"거의 다 왔어요"}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Validate(context.Background(), "정답", "추측")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "거의 다 왔어요" || resp.RawText != "거의 다 왔어요" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestReveal(t *testing.T) {
	llm := &fakeLLM{chatReplies: []string{"사실 그 수프는..."}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Reveal(context.Background(), "시나리오", "정답")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Narrative != "사실 그 수프는..." {
		t.Errorf("narrative = %q", resp.Narrative)
	}
}

func TestGeneratePrefersPreset(t *testing.T) {
	llm := &fakeLLM{}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Generate(context.Background(), "", 3, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.PuzzleID == nil {
		t.Fatal("preset puzzle must carry its id")
	}
	if resp.Category != "PRESET" {
		t.Errorf("category = %q", resp.Category)
	}
	if resp.Difficulty != 3 || resp.Title == "" || resp.Scenario == "" || resp.Solution == "" {
		t.Errorf("resp = %+v", resp)
	}
	if llm.structuredCount != 0 || len(llm.chatRequests) != 0 {
		t.Error("preset hit must not call the model")
	}
}

func TestGenerateFallsBackToModel(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{
		"title":    "사라진 승객",
		"scenario": "버스에서 한 사람이 사라졌다",
		"solution": "그는 처음부터 타지 않았다",
		"hints":    []any{"승객 수를 세어 보세요"},
	}}
	p := newTestPipeline(t, llm, t.TempDir())

	resp, err := p.Generate(context.Background(), "MYSTERY", 3, "버스")
	if err != nil {
		t.Fatal(err)
	}
	if resp.PuzzleID != nil {
		t.Error("model-generated puzzle must not carry a preset id")
	}
	if resp.Title != "사라진 승객" || resp.Category != "MYSTERY" || resp.Difficulty != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Hints) != 1 {
		t.Errorf("hints = %v", resp.Hints)
	}
	if llm.structuredRequest.Task != "hints" {
		t.Errorf("task = %q", llm.structuredRequest.Task)
	}
}

func TestGeneratePlainFallback(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"```json\n{\"scenario\": \"어떤 방\", \"solution\": \"얼음이 녹았다\"}\n```"},
	}
	p := newTestPipeline(t, llm, t.TempDir())

	resp, err := p.Generate(context.Background(), "MYSTERY", 4, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Title != "무제" {
		t.Errorf("title = %q, want default", resp.Title)
	}
	if resp.Scenario != "어떤 방" || resp.Solution != "얼음이 녹았다" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRewrite(t *testing.T) {
	llm := &fakeLLM{structuredReply: map[string]any{
		"scenario": "새 시나리오",
		"solution": "새 정답",
	}}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Rewrite(context.Background(), "제목", "원래 시나리오", "원래 정답", 3)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scenario != "새 시나리오" || resp.Solution != "새 정답" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.OriginalScenario != "원래 시나리오" || resp.OriginalSolution != "원래 정답" {
		t.Errorf("originals lost: %+v", resp)
	}
}

func TestRewriteKeepsOriginalOnFailure(t *testing.T) {
	llm := &fakeLLM{
		structuredErr: quizgate.ErrLLMParsing("bad json"),
		chatReplies:   []string{"JSON이 아닌 답변"},
	}
	p := newTestPipeline(t, llm, "")

	resp, err := p.Rewrite(context.Background(), "제목", "원래 시나리오", "원래 정답", 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Scenario != "원래 시나리오" || resp.Solution != "원래 정답" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{}\n```  ", "{}"},
	}
	for _, tt := range tests {
		if got := stripFence(tt.in); got != tt.want {
			t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
