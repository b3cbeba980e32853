package textsplit

import "testing"

func TestSplitChinese(t *testing.T) {
	tokens := Split("你好，世界！", true)
	if len(tokens) != 6 {
		t.Fatalf("expected 6 tokens, got %d: %+v", len(tokens), tokens)
	}
	if !tokens[2].IsPunctuation || tokens[2].Text != "，" {
		t.Fatalf("expected punctuation token at index 2, got %+v", tokens[2])
	}
}

func TestSplitEnglishWordsGrouped(t *testing.T) {
	tokens := Split("Hello, world!", true)
	if tokens[0].Text != "Hello" || !tokens[0].IsEnglishWord {
		t.Fatalf("expected grouped english word, got %+v", tokens[0])
	}
}

func TestSplitSkipsWhitespace(t *testing.T) {
	tokens := Split("a b", true)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens (whitespace dropped), got %d", len(tokens))
	}
}

func TestSplitEmojiSkippedByDefault(t *testing.T) {
	tokens := Split("hi😊", true)
	for _, tok := range tokens {
		if tok.IsEmoji {
			t.Fatal("expected emoji to be skipped")
		}
	}
}

func TestSplitEmojiKeptWhenRequested(t *testing.T) {
	tokens := Split("😊", false)
	if len(tokens) != 1 || !tokens[0].IsEmoji {
		t.Fatalf("expected one emoji token, got %+v", tokens)
	}
}
