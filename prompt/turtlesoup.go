package prompt

import "strconv"

// TurtleSoup exposes the turtle-soup prompt pairs.
type TurtleSoup struct {
	reg *Registry
}

// NewTurtleSoup loads the embedded turtle-soup templates.
func NewTurtleSoup() (*TurtleSoup, error) {
	reg, err := loadRegistry("turtlesoup")
	if err != nil {
		return nil, err
	}
	return &TurtleSoup{reg: reg}, nil
}

func (p *TurtleSoup) AnswerSystem() string {
	return p.reg.Get("answer", "system")
}

func (p *TurtleSoup) AnswerUser(puzzle, question, history string) string {
	return Render(p.reg.Get("answer", "user"), map[string]string{
		"puzzle":   puzzle,
		"question": question,
		"history":  history,
	})
}

func (p *TurtleSoup) HintSystem() string {
	return p.reg.Get("hint", "system")
}

func (p *TurtleSoup) HintUser(puzzle string, level int) string {
	return Render(p.reg.Get("hint", "user"), map[string]string{
		"puzzle": puzzle,
		"level":  strconv.Itoa(level),
	})
}

func (p *TurtleSoup) ValidateSystem() string {
	return p.reg.Get("validate", "system")
}

func (p *TurtleSoup) ValidateUser(solution, playerAnswer string) string {
	return Render(p.reg.Get("validate", "user"), map[string]string{
		"solution":      solution,
		"player_answer": playerAnswer,
	})
}

func (p *TurtleSoup) RevealSystem() string {
	return p.reg.Get("reveal", "system")
}

func (p *TurtleSoup) RevealUser(puzzle string) string {
	return Render(p.reg.Get("reveal", "user"), map[string]string{"puzzle": puzzle})
}

func (p *TurtleSoup) GenerateSystem() string {
	return p.reg.Get("generate", "system")
}

func (p *TurtleSoup) GenerateUser(category string, difficulty int, theme, examples string) string {
	return Render(p.reg.Get("generate", "user"), map[string]string{
		"category":   category,
		"difficulty": strconv.Itoa(difficulty),
		"theme":      theme,
		"examples":   examples,
	})
}

func (p *TurtleSoup) RewriteSystem() string {
	return p.reg.Get("rewrite", "system")
}

func (p *TurtleSoup) RewriteUser(title, scenario, solution string, difficulty int) string {
	return Render(p.reg.Get("rewrite", "user"), map[string]string{
		"title":      title,
		"scenario":   scenario,
		"solution":   solution,
		"difficulty": strconv.Itoa(difficulty),
	})
}
