package prompts

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// encoding loads cl100k_base once. A nil result means the BPE ranks were not
// available and counts fall back to a 4-chars-per-token estimate.
func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

func CountTokens(s string) int {
	if s == "" {
		return 0
	}
	if e := encoding(); e != nil {
		return len(e.Encode(s, nil, nil))
	}
	return (utf8.RuneCountInString(s) + 3) / 4
}

// TrimToTokens shortens s to at most max tokens.
func TrimToTokens(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if e := encoding(); e != nil {
		toks := e.Encode(s, nil, nil)
		if len(toks) <= max {
			return s
		}
		return e.Decode(toks[:max])
	}
	if CountTokens(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) > max*4 {
		runes = runes[:max*4]
	}
	return string(runes)
}
