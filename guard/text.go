package guard

import (
	"encoding/base64"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// jamoRanges covers standalone Hangul letters (not composed syllables).
var jamoRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11FF, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318F, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xA960, Hi: 0xA97F, Stride: 1}, // Hangul Jamo Extended-A
		{Lo: 0xD7B0, Hi: 0xD7FF, Stride: 1}, // Hangul Jamo Extended-B
	},
}

// syllableRanges covers composed Hangul blocks (가-힣).
var syllableRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1},
	},
}

// emojiRanges is the fixed codepoint set treated as emoji, including the
// zero-width joiner and variation selectors.
var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1},
		{Lo: 0x2700, Hi: 0x27BF, Stride: 1},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F1E0, Hi: 0x1F1FF, Stride: 1},
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1},
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
		{Lo: 0x1FA00, Hi: 0x1FA6F, Stride: 1},
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1},
	},
}

// IsJamo reports whether r is a standalone Hangul letter.
func IsJamo(r rune) bool {
	return unicode.Is(jamoRanges, r)
}

// IsHangulSyllable reports whether r is a composed Hangul block.
func IsHangulSyllable(r rune) bool {
	return unicode.Is(syllableRanges, r)
}

// ContainsEmoji reports whether text carries any emoji codepoint.
func ContainsEmoji(text string) bool {
	for _, r := range text {
		if unicode.Is(emojiRanges, r) {
			return true
		}
	}
	return false
}

// IsJamoOnly reports whether text is built from standalone jamo plus
// whitespace, digits and punctuation. A single composed syllable makes it
// false, as does the absence of any jamo.
func IsJamoOnly(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	hasJamo := false
	for _, r := range trimmed {
		switch {
		case IsJamo(r):
			hasJamo = true
		case unicode.IsSpace(r), unicode.IsDigit(r), isFiller(r):
		default:
			return false
		}
	}
	return hasJamo
}

// isFiller reports whether r is punctuation noise around jamo. ASCII symbols
// ($ + < = > ^ ` | ~) count too; IsPunct alone puts them in the S* categories
// and would let "ㄱㄴㄷ+1" through.
func isFiller(r rune) bool {
	if unicode.IsPunct(r) {
		return true
	}
	return r < 128 && unicode.IsSymbol(r)
}

// Normalize applies NFKC composition and then drops Unicode format and
// control characters (Cf, Cc), defeating zero-width and homoglyph padding.
func Normalize(text string) string {
	composed := norm.NFKC.String(text)
	if !strings.ContainsFunc(composed, isFormatOrControl) {
		return composed
	}
	var b strings.Builder
	b.Grow(len(composed))
	for _, r := range composed {
		if isFormatOrControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isFormatOrControl(r rune) bool {
	return unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r)
}

// minBase64Run is the shortest base64 run worth decoding; shorter runs are
// overwhelmingly ordinary words.
const minBase64Run = 20

// containsSuspiciousBase64 reports whether text embeds a base64 run that
// decodes to readable text, which is how encoded instruction payloads are
// smuggled past phrase rules.
func containsSuspiciousBase64(text string) bool {
	n := len(text)
	for i := 0; i < n; {
		if !isBase64Byte(text[i]) {
			i++
			continue
		}
		start := i
		for i < n && isBase64Byte(text[i]) {
			i++
		}
		for pad := 0; i < n && text[i] == '=' && pad < 2; pad++ {
			i++
		}
		if i-start < minBase64Run {
			continue
		}
		if decoded, ok := decodeBase64Run(text[start:i]); ok && isReadableText(decoded) {
			return true
		}
	}
	return false
}

func isBase64Byte(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '+' || c == '/' || c == '-' || c == '_'
}

// decodeBase64Run decodes a candidate run, accepting URL-safe alphabets and
// repairing missing padding.
func decodeBase64Run(s string) ([]byte, bool) {
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if pad := (4 - len(normalized)%4) % 4; pad > 0 {
		normalized += strings.Repeat("=", pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil || len(decoded) == 0 {
		return nil, false
	}
	return decoded, true
}

// isReadableText requires valid UTF-8 with at least 90% printable runes.
func isReadableText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	printable, total := 0, 0
	for _, r := range string(data) {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return total > 0 && printable*100 > total*90
}
