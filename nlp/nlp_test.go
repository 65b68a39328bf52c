package nlp

import (
	"context"
	"errors"
	"math"
	"testing"
)

type failingTokenizer struct{}

func (failingTokenizer) Tokenize(string) ([]Token, error) {
	return nil, errors.New("dictionary unavailable")
}

func TestTokenizeSegmentsByScript(t *testing.T) {
	a := NewAnalyzer()
	tokens := a.Analyze(context.Background(), "하늘 hello 123!")

	want := []struct {
		form string
		tag  string
	}{
		{"하늘", TagNoun},
		{"hello", TagLatin},
		{"123", TagNumber},
		{"!", TagSymbol},
	}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %+v, want %d", tokens, len(want))
	}
	for i, w := range want {
		if tokens[i].Form != w.form || tokens[i].Tag != w.tag {
			t.Errorf("token %d = %+v, want %s/%s", i, tokens[i], w.form, w.tag)
		}
	}
}

func TestTokenizeLexiconSplitsHangulRun(t *testing.T) {
	a := NewAnalyzer()
	tokens := a.Analyze(context.Background(), "세글자인가요?")

	want := []struct {
		form string
		tag  string
	}{
		{"세", TagNumeral},
		{"글자", TagBoundNoun},
		{"인가요", TagEnding},
		{"?", TagSymbol},
	}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %+v, want %d", tokens, len(want))
	}
	for i, w := range want {
		if tokens[i].Form != w.form || tokens[i].Tag != w.tag {
			t.Errorf("token %d = %+v, want %s/%s", i, tokens[i], w.form, w.tag)
		}
	}
}

func TestTokenizePositionsAndLengths(t *testing.T) {
	a := NewAnalyzer()
	tokens := a.Analyze(context.Background(), "처음 글자")
	if len(tokens) != 2 {
		t.Fatalf("tokens = %+v, want 2", tokens)
	}
	if tokens[0].Position != 0 || tokens[0].Length != 2 {
		t.Errorf("first token = %+v, want pos 0 len 2", tokens[0])
	}
	if tokens[1].Position != 3 || tokens[1].Length != 2 {
		t.Errorf("second token = %+v, want pos 3 len 2", tokens[1])
	}
}

func TestTokenizeJamoRunIsUnknown(t *testing.T) {
	a := NewAnalyzer()
	tokens := a.Analyze(context.Background(), "ㅁㄴㅇㄹ")
	if len(tokens) != 1 || tokens[0].Tag != TagUnknown {
		t.Errorf("tokens = %+v, want single unknown run", tokens)
	}
}

func TestAnalyzeBlankInput(t *testing.T) {
	a := NewAnalyzer()
	if got := a.Analyze(context.Background(), "   "); got != nil {
		t.Errorf("blank input should yield nil, got %+v", got)
	}
}

func TestAnomalyScore(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		// 1.0 unknown ratio (0.4) plus zero composed-hangul ratio (0.2).
		{"jamo garbage", "ㅁㄴㅇㄹㅁㄴㅇㄹ", 0.6},
		{"normal question", "정상적인 질문입니다", 0.0},
		// Emoticon laughter is exempt from the incomplete-hangul signal,
		// but the unknown run still scores 0.3.
		{"laughter", "ㅋㅋㅋ 재밌다", 0.3},
		{"too short", "ab", 0.0},
		// Symbols only: four tokens, zero content words.
		{"symbol soup", "? ! ? !", 0.15},
	}
	a := NewAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.AnomalyScore(context.Background(), tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AnomalyScore(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAnomalyScoreEmptyTokens(t *testing.T) {
	a := NewAnalyzer()
	got, err := a.AnomalyScore(context.Background(), "   ")
	if err != nil {
		t.Fatal(err)
	}
	if got != emptyTokenAnomalyScore {
		t.Errorf("whitespace input = %v, want %v", got, emptyTokenAnomalyScore)
	}
}

func TestAnomalyScoreTokenizerFailure(t *testing.T) {
	a := NewAnalyzer(WithTokenizer(failingTokenizer{}))
	got, err := a.AnomalyScore(context.Background(), "아무 질문")
	if err != nil {
		t.Fatal(err)
	}
	if got != fallbackAnomalyScore {
		t.Errorf("tokenizer failure = %v, want fixed fallback %v", got, fallbackAnomalyScore)
	}
}

func TestAnalyzeHeuristics(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Heuristics
	}{
		{
			name:  "length question",
			input: "세 글자 이상인가요",
			want:  Heuristics{NumericQuantifier: true, UnitNoun: true, ComparisonWord: true},
		},
		{
			name:  "boundary question",
			input: "처음 글자",
			want:  Heuristics{UnitNoun: true, BoundaryRef: true},
		},
		{
			name:  "jamo component",
			input: "받침 있나요",
			want:  Heuristics{UnitNoun: true, BoundaryRef: true},
		},
		{
			name:  "plain question",
			input: "동물인가요",
			want:  Heuristics{},
		},
		{
			name:  "empty",
			input: "",
			want:  Heuristics{},
		},
	}
	a := NewAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.AnalyzeHeuristics(context.Background(), tt.input); got != tt.want {
				t.Errorf("AnalyzeHeuristics(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestHeuristicsDegradeOnFailure(t *testing.T) {
	a := NewAnalyzer(WithTokenizer(failingTokenizer{}))
	if got := a.AnalyzeHeuristics(context.Background(), "세 글자"); got != (Heuristics{}) {
		t.Errorf("failure should yield zero flags, got %+v", got)
	}
}

func TestLazyInitUnderConcurrency(t *testing.T) {
	a := NewAnalyzer()
	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			a.Analyze(context.Background(), "질문")
		}()
	}
	for range 8 {
		<-done
	}
	first := a.get()
	if second := a.get(); first != second {
		t.Error("tokenizer must initialize exactly once")
	}
}
