package prompts

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

const (
	CategoryCharacter = "character"
	CategoryScene     = "scene"
	CategoryStyle     = "style"
)

type Theme struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description" json:"description"`
	Setting        string   `yaml:"setting" json:"setting"`
	Tone           string   `yaml:"tone" json:"tone"`
	ColorPalette   []string `yaml:"color_palette" json:"color_palette"`
	ArtStyle       string   `yaml:"art_style" json:"art_style"`
	Moral          string   `yaml:"moral" json:"moral"`
	AgeRange       []int    `yaml:"age_range" json:"age_range"`
	SampleElements []string `yaml:"sample_elements" json:"sample_elements"`
}

type Template struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category" json:"category"`
	Name     string `yaml:"name" json:"name"`
	Active   bool   `yaml:"active" json:"active"`
	Text     string `yaml:"text" json:"text"`
}

type catalog struct {
	Themes    []Theme    `yaml:"themes"`
	Templates []Template `yaml:"templates"`
}

var (
	catalogOnce sync.Once
	loaded      catalog
	catalogErr  error
)

func load() (catalog, error) {
	catalogOnce.Do(func() {
		catalogErr = yaml.Unmarshal(catalogYAML, &loaded)
		if catalogErr == nil {
			catalogErr = validateCatalog(loaded)
		}
	})
	return loaded, catalogErr
}

func mustLoad() catalog {
	c, err := load()
	if err != nil {
		panic(fmt.Sprintf("prompts: bad embedded catalog: %v", err))
	}
	return c
}

func validateCatalog(c catalog) error {
	seen := map[string]bool{}
	for _, t := range c.Themes {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("theme id %q empty or duplicated", t.ID)
		}
		seen[t.ID] = true
	}
	seen = map[string]bool{}
	for _, t := range c.Templates {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("template id %q empty or duplicated", t.ID)
		}
		switch t.Category {
		case CategoryCharacter, CategoryScene, CategoryStyle:
		default:
			return fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
		}
		seen[t.ID] = true
	}
	return nil
}

// Themes returns the catalog in file order.
func Themes() []Theme {
	c := mustLoad()
	out := make([]Theme, len(c.Themes))
	copy(out, c.Themes)
	return out
}

func ThemeByID(id string) (Theme, bool) {
	for _, t := range mustLoad().Themes {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

// Templates returns the prompt templates in file order.
func Templates() []Template {
	c := mustLoad()
	out := make([]Template, len(c.Templates))
	copy(out, c.Templates)
	return out
}

// defaultTemplate is the first active template of a category.
func defaultTemplate(category string) Template {
	for _, t := range mustLoad().Templates {
		if t.Category == category && t.Active {
			return t
		}
	}
	return Template{}
}
