package prompts

import (
	"strconv"
	"strings"
)

const MaxImagePromptLen = 1000

// Child is what the image and story prompts know about the main character.
type Child struct {
	Name        string
	Age         int
	Gender      string
	Description string
}

func (c Child) genderWord() string {
	switch strings.ToLower(strings.TrimSpace(c.Gender)) {
	case "boy", "male", "m":
		return "boy"
	case "girl", "female", "f":
		return "girl"
	default:
		return ""
	}
}

const genericDescription = "a cheerful child with a bright smile and curious eyes"

func fill(text string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	out := strings.NewReplacer(pairs...).Replace(text)
	return strings.TrimSpace(spaceRe.ReplaceAllString(out, " "))
}

func characterVars(c Child) map[string]string {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = genericDescription
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "the child"
	}
	gender := c.genderWord()
	if gender == "" {
		gender = "young"
	}
	return map[string]string{
		"name":        name,
		"age":         strconv.Itoa(c.Age),
		"gender":      gender,
		"description": strings.TrimRight(desc, ". "),
	}
}

func BuildCharacterPrompt(c Child) string {
	return renderCharacter(defaultTemplate(CategoryCharacter), c)
}

func renderCharacter(t Template, c Child) string {
	return fill(t.Text, characterVars(c))
}

func BuildMagicalStylePrompt(theme Theme, scene string) string {
	return renderStyle(defaultTemplate(CategoryStyle), theme, scene)
}

func renderStyle(t Template, theme Theme, scene string) string {
	vars := styleVars(theme)
	vars["lighting"] = lightingFor(scene)
	style := fill(t.Text, vars)
	if theme.Setting != "" {
		style += " Setting: " + theme.Setting + "."
	}
	return style
}

func lightingFor(scene string) string {
	s := strings.ToLower(scene)
	switch {
	case strings.Contains(s, "night") || strings.Contains(s, "moon") || strings.Contains(s, "star"):
		return "a soft moonlit glow"
	case strings.Contains(s, "sea") || strings.Contains(s, "ocean") || strings.Contains(s, "underwater") || strings.Contains(s, "reef"):
		return "shimmering rays of light through the water"
	case strings.Contains(s, "cave") || strings.Contains(s, "forest"):
		return "dappled light with glowing sparkles"
	default:
		return "warm golden sunlight"
	}
}

func styleVars(theme Theme) map[string]string {
	palette := strings.Join(theme.ColorPalette, ", ")
	if palette == "" {
		palette = "soft pastel colors"
	}
	art := theme.ArtStyle
	if art == "" {
		art = "children's storybook illustration"
	}
	tone := theme.Tone
	if tone == "" {
		tone = "happy"
	}
	return map[string]string{"art_style": art, "palette": palette, "tone": tone}
}

func renderScene(t Template, c Child, scene string, pageIndex int) string {
	vars := characterVars(c)
	vars["scene"] = strings.TrimRight(strings.TrimSpace(scene), ".")
	vars["page"] = strconv.Itoa(pageIndex + 1)
	return fill(t.Text, vars)
}

// ImagePrompt is a rendered illustration prompt and the templates it used.
type ImagePrompt struct {
	Text        string
	TemplateIDs []string
}

// BuildImagePrompt renders scene, character and style sections with the
// default templates, capped at MaxImagePromptLen.
func BuildImagePrompt(c Child, theme Theme, scene string, pageIndex int) string {
	return assembleImagePrompt(
		defaultTemplate(CategoryScene),
		defaultTemplate(CategoryCharacter),
		defaultTemplate(CategoryStyle),
		c, theme, scene, pageIndex,
	).Text
}

func assembleImagePrompt(sceneT, charT, styleT Template, c Child, theme Theme, scene string, pageIndex int) ImagePrompt {
	if strings.TrimSpace(scene) == "" {
		scene = theme.Setting
	}
	parts := []string{
		renderScene(sceneT, c, scene, pageIndex),
		renderCharacter(charT, c),
		renderStyle(styleT, theme, scene),
	}
	text := strings.Join(nonEmpty(parts), "\n")
	return ImagePrompt{
		Text:        truncateWords(text, MaxImagePromptLen),
		TemplateIDs: nonEmpty([]string{sceneT.ID, charT.ID, styleT.ID}),
	}
}

// Builder renders image prompts with the best-scoring template per category.
type Builder struct {
	opt *Optimizer
}

func NewBuilder(opt *Optimizer) *Builder {
	return &Builder{opt: opt}
}

func (b *Builder) ImagePrompt(c Child, theme Theme, scene string, pageIndex int) ImagePrompt {
	pick := func(category string) Template {
		if b != nil && b.opt != nil {
			if t, ok := b.opt.Best(category); ok {
				return t
			}
		}
		return defaultTemplate(category)
	}
	return assembleImagePrompt(pick(CategoryScene), pick(CategoryCharacter), pick(CategoryStyle), c, theme, scene, pageIndex)
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
