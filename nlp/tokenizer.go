package nlp

import (
	"unicode"
)

// Token is one morphological unit: surface form, POS tag, rune offset and
// rune length.
type Token struct {
	Form     string `json:"form"`
	Tag      string `json:"tag"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
}

// Tokenizer splits text into POS-tagged tokens.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
}

// POS tags follow the Sejong-style tag set: NNG/NNB nouns, NR numerals,
// JX particles, EF endings, UN unknown, SN numbers, SL latin, SF symbols.
const (
	TagNoun      = "NNG"
	TagBoundNoun = "NNB"
	TagNumeral   = "NR"
	TagParticle  = "JX"
	TagEnding    = "EF"
	TagUnknown   = "UN"
	TagNumber    = "SN"
	TagLatin     = "SL"
	TagSymbol    = "SF"
)

// lexicon maps known Korean surface forms to tags. Longest match wins when
// segmenting a Hangul run.
var lexicon = map[string]string{
	// numerals
	"하나": TagNumeral, "둘": TagNumeral, "셋": TagNumeral, "넷": TagNumeral,
	"한": TagNumeral, "두": TagNumeral, "세": TagNumeral, "네": TagNumeral,
	"다섯": TagNumeral, "여섯": TagNumeral, "일곱": TagNumeral, "여덟": TagNumeral,
	"아홉": TagNumeral, "열": TagNumeral,

	// unit and bound nouns
	"글자": TagBoundNoun, "자": TagBoundNoun, "음절": TagBoundNoun, "문자": TagBoundNoun,
	"토큰": TagBoundNoun, "개": TagBoundNoun, "번": TagBoundNoun, "번째": TagBoundNoun,
	"회": TagBoundNoun, "차례": TagBoundNoun, "모음": TagBoundNoun, "자음": TagBoundNoun,
	"초성": TagBoundNoun, "중성": TagBoundNoun, "종성": TagBoundNoun, "받침": TagBoundNoun,

	// boundary references
	"처음": TagNoun, "끝": TagNoun, "마지막": TagNoun, "시작": TagNoun,
	"중간": TagNoun, "가운데": TagNoun,

	// comparison words
	"이상": TagNoun, "이하": TagNoun, "초과": TagNoun, "미만": TagNoun,
	"넘": TagNoun, "이내": TagNoun,

	// particles
	"은": TagParticle, "는": TagParticle, "이": TagParticle, "가": TagParticle,
	"을": TagParticle, "를": TagParticle, "의": TagParticle, "에": TagParticle,
	"에서": TagParticle, "로": TagParticle, "으로": TagParticle, "와": TagParticle,
	"과": TagParticle, "도": TagParticle, "만": TagParticle, "보다": TagParticle,

	// sentence endings
	"인가요": TagEnding, "입니까": TagEnding, "입니다": TagEnding, "습니까": TagEnding,
	"어요": TagEnding, "예요": TagEnding, "이에요": TagEnding, "나요": TagEnding,
}

// maxLexiconEntry is the longest lexicon key in runes.
const maxLexiconEntry = 3

// heuristicTokenizer segments text by script runs, then splits Hangul runs
// with greedy longest-match against the lexicon. A rough stand-in for a
// dictionary morph analyzer, good enough for anomaly scoring and the
// closed-vocabulary heuristics.
type heuristicTokenizer struct{}

func (heuristicTokenizer) Tokenize(text string) ([]Token, error) {
	runes := []rune(text)
	var tokens []Token

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isSyllable(r):
			j := i
			for j < len(runes) && isSyllable(runes[j]) {
				j++
			}
			tokens = append(tokens, segmentHangul(runes, i, j)...)
			i = j
		case isJamo(r):
			j := i
			for j < len(runes) && isJamo(runes[j]) {
				j++
			}
			tokens = append(tokens, runToken(runes, i, j, TagUnknown))
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			tokens = append(tokens, runToken(runes, i, j, TagNumber))
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && unicode.IsLetter(runes[j]) && !isSyllable(runes[j]) && !isJamo(runes[j]) {
				j++
			}
			tokens = append(tokens, runToken(runes, i, j, TagLatin))
			i = j
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !unicode.IsLetter(runes[j]) && !unicode.IsDigit(runes[j]) {
				j++
			}
			tokens = append(tokens, runToken(runes, i, j, TagSymbol))
			i = j
		}
	}
	return tokens, nil
}

// segmentHangul splits runes[start:end] by greedy longest lexicon match;
// stretches between matches become single noun tokens.
func segmentHangul(runes []rune, start, end int) []Token {
	var tokens []Token
	chunkStart := -1

	flush := func(until int) {
		if chunkStart >= 0 {
			tokens = append(tokens, runToken(runes, chunkStart, until, TagNoun))
			chunkStart = -1
		}
	}

	i := start
	for i < end {
		matched := 0
		tag := ""
		limit := min(maxLexiconEntry, end-i)
		for n := limit; n >= 1; n-- {
			if t, ok := lexicon[string(runes[i:i+n])]; ok {
				matched, tag = n, t
				break
			}
		}
		if matched > 0 {
			flush(i)
			tokens = append(tokens, runToken(runes, i, i+matched, tag))
			i += matched
			continue
		}
		if chunkStart < 0 {
			chunkStart = i
		}
		i++
	}
	flush(end)
	return tokens
}

func runToken(runes []rune, start, end int, tag string) Token {
	return Token{
		Form:     string(runes[start:end]),
		Tag:      tag,
		Position: start,
		Length:   end - start,
	}
}

func isSyllable(r rune) bool {
	return r >= 0xAC00 && r <= 0xD7A3
}

func isJamo(r rune) bool {
	return r >= 0x1100 && r <= 0x11FF ||
		r >= 0x3130 && r <= 0x318F ||
		r >= 0xA960 && r <= 0xA97F ||
		r >= 0xD7B0 && r <= 0xD7FF
}
