package prompt

import "strings"

// categoryForbidden lists words a hint must never contain per category, to
// keep the category itself from leaking into hints.
var categoryForbidden = map[string][]string{
	"음식": {"음식", "먹을 것", "식품"},
	"동물": {"동물", "생물", "생명체"},
	"사물": {"사물", "물건", "도구"},
	"장소": {"장소", "곳", "위치"},
	"인물": {"인물", "사람", "인간"},
	"개념": {"개념", "추상적", "관념"},
}

// ForbiddenWords returns the forbidden word list for a category, defaulting
// to the category name itself.
func ForbiddenWords(category string) []string {
	if words, ok := categoryForbidden[category]; ok {
		return words
	}
	return []string{category}
}

// TwentyQ exposes the twenty-questions prompt pairs.
type TwentyQ struct {
	reg *Registry
}

// NewTwentyQ loads the embedded twenty-questions templates.
func NewTwentyQ() (*TwentyQ, error) {
	reg, err := loadRegistry("twentyq")
	if err != nil {
		return nil, err
	}
	return &TwentyQ{reg: reg}, nil
}

// HintsSystem returns the hint-generation system prompt, with a category
// restriction block appended when a category is given.
func (p *TwentyQ) HintsSystem(category string) string {
	system := p.reg.Get("hints", "system")
	if category == "" {
		return system
	}
	restriction := p.reg.Get("hints", "category_restriction")
	if restriction == "" {
		return system
	}
	rendered := Render(restriction, map[string]string{
		"selectedCategory": category,
		"forbiddenWords":   strings.Join(ForbiddenWords(category), ", "),
	})
	return system + "\n\n" + rendered
}

func (p *TwentyQ) HintsUser(secret string) string {
	return Render(p.reg.Get("hints", "user"), map[string]string{"toon": secret})
}

func (p *TwentyQ) AnswerSystem() string {
	return p.reg.Get("answer", "system")
}

// AnswerUser composes the question-answer prompt; history, when present, is
// prepended as context.
func (p *TwentyQ) AnswerUser(secret, question, history string) string {
	result := Render(p.reg.Get("answer", "user"), map[string]string{
		"toon":     secret,
		"question": question,
	})
	if history != "" {
		result = history + "\n\n" + result
	}
	return result
}

func (p *TwentyQ) VerifySystem() string {
	return p.reg.Get("verify-answer", "system")
}

func (p *TwentyQ) VerifyUser(target, guess string) string {
	return Render(p.reg.Get("verify-answer", "user"), map[string]string{
		"target": target,
		"guess":  guess,
	})
}

func (p *TwentyQ) NormalizeSystem() string {
	return p.reg.Get("normalize", "system")
}

func (p *TwentyQ) NormalizeUser(question string) string {
	return Render(p.reg.Get("normalize", "user"), map[string]string{"question": question})
}

func (p *TwentyQ) SynonymSystem() string {
	return p.reg.Get("synonym-check", "system")
}

func (p *TwentyQ) SynonymUser(target, guess string) string {
	return Render(p.reg.Get("synonym-check", "user"), map[string]string{
		"target": target,
		"guess":  guess,
	})
}
