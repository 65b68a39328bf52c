package guard

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

const defaultPackThreshold = 0.7

type rawPack struct {
	Version     int       `yaml:"version"`
	Threshold   float64   `yaml:"threshold"`
	Normalizers []string  `yaml:"normalizers"`
	Rules       []rawRule `yaml:"rules"`
}

type rawRule struct {
	ID      string   `yaml:"id"`
	Type    string   `yaml:"type"`
	Pattern string   `yaml:"pattern"`
	Phrases []string `yaml:"phrases"`
	Weight  float64  `yaml:"weight"`
}

type regexRule struct {
	id      string
	pattern *regexp.Regexp
	weight  float64
}

// pack is one compiled rule file: ordered regex rules plus a multi-pattern
// phrase automaton. Built once at load, never mutated.
type pack struct {
	threshold     float64
	regexes       []regexRule
	phraseMatcher *ahocorasick.Matcher
	phrases       []string
	phraseWeights map[string]float64
}

// loadPacks compiles every *.yml / *.yaml file under dir. A broken file or
// rule is logged and skipped; loading never aborts as a whole.
func loadPacks(dir string, logger *slog.Logger) []pack {
	paths := packFiles(dir)
	if len(paths) == 0 {
		logger.Warn("rulepacks_not_found", "dir", dir)
		return nil
	}

	packs := make([]pack, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("rulepack_read_failed", "path", path, "err", err)
			continue
		}
		var raw rawPack
		if err := yaml.Unmarshal(data, &raw); err != nil {
			logger.Warn("rulepack_parse_failed", "path", path, "err", err)
			continue
		}
		compiled, err := compilePack(raw, logger)
		if err != nil {
			logger.Warn("rulepack_compile_failed", "path", path, "err", err)
			continue
		}
		packs = append(packs, compiled)
	}
	return packs
}

func packFiles(dir string) []string {
	var files []string
	for _, glob := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, glob))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files
}

func compilePack(raw rawPack, logger *slog.Logger) (pack, error) {
	threshold := raw.Threshold
	if threshold == 0 {
		threshold = defaultPackThreshold
	}

	var regexes []regexRule
	var phrases []string
	phraseWeights := make(map[string]float64)

	for _, rule := range raw.Rules {
		switch strings.ToLower(strings.TrimSpace(rule.Type)) {
		case "regex":
			if rule.ID == "" || rule.Pattern == "" {
				logger.Warn("rulepack_rule_invalid", "rule_id", rule.ID, "reason", "missing id or pattern")
				continue
			}
			re, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				logger.Warn("rulepack_regex_invalid", "rule_id", rule.ID, "err", err)
				continue
			}
			regexes = append(regexes, regexRule{id: rule.ID, pattern: re, weight: rule.Weight})
		case "phrases":
			if rule.ID == "" || len(rule.Phrases) == 0 {
				logger.Warn("rulepack_rule_invalid", "rule_id", rule.ID, "reason", "missing id or phrases")
				continue
			}
			for _, phrase := range rule.Phrases {
				lowered := strings.ToLower(phrase)
				// A repeated literal keeps the heaviest weight and is not
				// re-fed to the matcher, so it can only score once.
				if prev, ok := phraseWeights[lowered]; ok {
					logger.Warn("rulepack_phrase_duplicate", "rule_id", rule.ID, "phrase", lowered)
					if rule.Weight > prev {
						phraseWeights[lowered] = rule.Weight
					}
					continue
				}
				phrases = append(phrases, lowered)
				phraseWeights[lowered] = rule.Weight
			}
		default:
			return pack{}, fmt.Errorf("unknown rule type %q", rule.Type)
		}
	}

	var matcher *ahocorasick.Matcher
	if len(phrases) > 0 {
		matcher = ahocorasick.NewStringMatcher(phrases)
	}

	return pack{
		threshold:     threshold,
		regexes:       regexes,
		phraseMatcher: matcher,
		phrases:       phrases,
		phraseWeights: phraseWeights,
	}, nil
}
