package prompts

import (
	"fmt"
	"strings"
)

const (
	DefaultPageCount = 8
	MinPageCount     = 4
	MaxPageCount     = 16

	storyPromptTokenBudget = 1200
	customElementsTokens   = 150
	descriptionTokens      = 120
)

type StoryRequest struct {
	Child          Child
	Title          string
	PageCount      int
	CustomElements string
}

type StoryPrompt struct {
	System string
	User   string
	Tokens int
}

const storySystemPrompt = `You are a children's book author who writes warm, age-appropriate picture book stories.
Write in simple sentences a parent can read aloud. Every page is 2 to 4 sentences.
The child is always the hero. Never include violence, fear, brand names or real people.
Each page must describe something that can be illustrated.
Respond with a single JSON object: {"title": string, "pages": [{"text": string, "scene": string}]}.
"scene" is one sentence describing what the illustration for that page shows.`

// BuildStoryPrompt renders the system and user prompts for story text. Free
// text inputs are trimmed so the pair stays within the prompt token budget.
func BuildStoryPrompt(req StoryRequest, theme Theme) StoryPrompt {
	pages := req.PageCount
	if pages <= 0 {
		pages = DefaultPageCount
	}
	child := req.Child
	child.Description = TrimToTokens(strings.TrimSpace(child.Description), descriptionTokens)
	custom := TrimToTokens(strings.TrimSpace(req.CustomElements), customElementsTokens)

	render := func(child Child, custom string) string {
		var b strings.Builder
		vars := characterVars(child)
		fmt.Fprintf(&b, "Write a %d-page story for %s, who is %s years old.\n", pages, vars["name"], vars["age"])
		if g := child.genderWord(); g != "" {
			fmt.Fprintf(&b, "%s is a %s.\n", vars["name"], g)
		}
		fmt.Fprintf(&b, "What %s looks like: %s.\n", vars["name"], vars["description"])
		fmt.Fprintf(&b, "Theme: %s. %s\n", theme.Name, theme.Description)
		fmt.Fprintf(&b, "Setting: %s.\nTone: %s.\n", theme.Setting, theme.Tone)
		if len(theme.SampleElements) > 0 {
			fmt.Fprintf(&b, "Ideas you may use: %s.\n", strings.Join(theme.SampleElements, ", "))
		}
		if theme.Moral != "" {
			fmt.Fprintf(&b, "Gently teach this lesson: %s.\n", theme.Moral)
		}
		if custom != "" {
			fmt.Fprintf(&b, "Include these details from the parent: %s.\n", custom)
		}
		if t := strings.TrimSpace(req.Title); t != "" {
			fmt.Fprintf(&b, "Use the title %q.\n", t)
		}
		fmt.Fprintf(&b, "Return exactly %d pages.", pages)
		return b.String()
	}

	user := render(child, custom)
	tokens := CountTokens(storySystemPrompt) + CountTokens(user)
	if tokens > storyPromptTokenBudget {
		user = render(child, "")
		tokens = CountTokens(storySystemPrompt) + CountTokens(user)
	}
	return StoryPrompt{System: storySystemPrompt, User: user, Tokens: tokens}
}

// ClampPageCount applies the default and the [MinPageCount, maxPages] bounds.
func ClampPageCount(requested, maxPages int) int {
	if maxPages <= 0 || maxPages > MaxPageCount {
		maxPages = MaxPageCount
	}
	n := requested
	if n <= 0 {
		n = DefaultPageCount
	}
	if n > maxPages {
		n = maxPages
	}
	if n < MinPageCount {
		n = MinPageCount
	}
	return n
}
