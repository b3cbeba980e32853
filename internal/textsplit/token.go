// Package textsplit implements the deterministic tokenizer used to align
// ASR text against per-token timestamps, grounded on the original
// implementation's split_text helper.
package textsplit

import "unicode"

// Token is one unit of tokenized text.
type Token struct {
	Text          string
	IsPunctuation bool
	IsEmoji       bool
	IsEnglishWord bool
}

var punctuation = map[rune]bool{
	'，': true, '。': true, '！': true, '？': true, '；': true, '：': true, '、': true, '．': true,
	',': true, '.': true, ':': true, ';': true, '!': true, '?': true,
	'(': true, ')': true, '[': true, ']': true, '{': true, '}': true,
	'\'': true, '"': true, '…': true,
}

var emojis = map[rune]bool{
	'😊': true, '😔': true, '😡': true, '😰': true, '🤢': true, '😮': true, '🎼': true,
	'👏': true, '😀': true, '😭': true, '🤧': true, '😷': true, '❓': true,
}

// Split tokenizes text: each CJK character, each run of ASCII letters, each
// emoji, and each punctuation mark becomes one token. Whitespace is
// dropped. Emoji tokens are dropped entirely when skipEmojis is true.
func Split(text string, skipEmojis bool) []Token {
	runes := []rune(text)
	var tokens []Token

	for i := 0; i < len(runes); {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		if emojis[ch] {
			if !skipEmojis {
				tokens = append(tokens, Token{Text: string(ch), IsEmoji: true})
			}
			i++
			continue
		}

		if punctuation[ch] {
			tokens = append(tokens, Token{Text: string(ch), IsPunctuation: true})
			i++
			continue
		}

		if isASCIILetter(ch) {
			start := i
			for i < len(runes) && isASCIILetter(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			tokens = append(tokens, Token{Text: word, IsEnglishWord: true})
			continue
		}

		tokens = append(tokens, Token{Text: string(ch)})
		i++
	}

	return tokens
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// SentenceTerminators are the punctuation marks that close a sentence.
var SentenceTerminators = map[string]bool{
	"。": true, "！": true, "？": true, "!": true, "?": true,
}
