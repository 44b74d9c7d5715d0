package prompts

import (
	"regexp"
	"strings"
	"unicode"
)

const maxSceneLen = 200

var (
	locationWords = []string{
		"forest", "castle", "garden", "beach", "sea", "ocean", "river", "lake", "mountain", "cave",
		"sky", "cloud", "space", "planet", "moon", "star", "city", "village", "house", "room",
		"bridge", "meadow", "jungle", "valley", "island", "tower", "reef", "park", "rooftop", "kingdom",
	}
	actionWords = []string{
		"ran", "run", "running", "jumped", "jump", "flew", "fly", "flying", "swam", "swim", "climbed",
		"danced", "dance", "sailed", "explored", "discovered", "found", "opened", "hugged", "laughed",
		"rode", "raced", "floated", "played", "waved", "reached", "followed", "splashed", "soared", "hid",
	}
	objectWords = []string{
		"tree", "flower", "door", "key", "map", "treasure", "rocket", "boat", "book", "lantern",
		"crown", "cape", "egg", "shell", "rainbow", "wand", "ball", "kite", "balloon", "chest",
		"dragon", "owl", "turtle", "dinosaur", "robot", "puppy", "kitten", "fairy", "unicorn", "dolphin",
	}
	visualWords = func() map[string]bool {
		m := map[string]bool{}
		for _, list := range [][]string{locationWords, actionWords, objectWords} {
			for _, w := range list {
				m[w] = true
			}
		}
		return m
	}()

	dialogueRe = regexp.MustCompile(`"[^"]*"|“[^”]*”|‘[^’]*’`)
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// ExtractScene picks the most visual sentence of a page, with dialogue removed,
// trimmed to 200 characters. Falls back to the first sentence.
func ExtractScene(text string) string {
	cleaned := strings.TrimSpace(spaceRe.ReplaceAllString(dialogueRe.ReplaceAllString(text, " "), " "))
	if cleaned == "" {
		return ""
	}
	var sentences []string
	for _, s := range sentenceRe.FindAllString(cleaned, -1) {
		if s = strings.TrimSpace(s); s != "" && strings.IndexFunc(s, unicode.IsLetter) >= 0 {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return truncateWords(cleaned, maxSceneLen)
	}
	best, bestScore := sentences[0], 0
	for _, s := range sentences {
		if score := visualScore(s); score > bestScore {
			best, bestScore = s, score
		}
	}
	return truncateWords(best, maxSceneLen)
}

func visualScore(sentence string) int {
	score := 0
	for _, w := range strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if visualWords[w] {
			score++
		}
	}
	return score
}

// truncateWords cuts s to at most max bytes on a word boundary.
func truncateWords(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	for len(cut) > 0 && !utf8Boundary(s, len(cut)) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimRight(cut, " ,;:-")
}

func utf8Boundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}
