// Package lexicon holds the reviewable text data the resolver works from:
// crisis keyword sets, helpline directories, grounding exercises and the
// templated fallback replies.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Lexicon is one version of the keyword and template data.
type Lexicon struct {
	Version            string     `yaml:"version" json:"version" jsonschema:"required"`
	Acknowledgement    string     `yaml:"acknowledgement" json:"acknowledgement" jsonschema:"required"`
	Closing            string     `yaml:"closing" json:"closing"`
	Disclaimer         string     `yaml:"disclaimer" json:"disclaimer"`
	Crisis             Crisis     `yaml:"crisis" json:"crisis" jsonschema:"required"`
	GroundingExercises []Exercise `yaml:"grounding_exercises" json:"grounding_exercises" jsonschema:"required,minItems=1"`
	Fallback           Fallback   `yaml:"fallback" json:"fallback" jsonschema:"required"`
}

// Crisis groups the two independently triggerable crisis categories.
type Crisis struct {
	SelfHarm CrisisCategory `yaml:"self_harm" json:"self_harm" jsonschema:"required"`
	Violence CrisisCategory `yaml:"violence" json:"violence" jsonschema:"required"`
}

// CrisisCategory is a keyword set plus the helplines shown when it matches.
type CrisisCategory struct {
	Heading   string     `yaml:"heading" json:"heading"`
	Keywords  Keywords   `yaml:"keywords" json:"keywords" jsonschema:"required,minItems=1"`
	Helplines []Helpline `yaml:"helplines" json:"helplines" jsonschema:"required,minItems=1"`
}

// Helpline is one entry of a helpline directory.
type Helpline struct {
	Name    string `yaml:"name" json:"name" jsonschema:"required"`
	Contact string `yaml:"contact" json:"contact" jsonschema:"required"`
}

// Exercise is a scripted grounding or breathing exercise.
type Exercise struct {
	Name  string   `yaml:"name" json:"name" jsonschema:"required"`
	Lines []string `yaml:"lines" json:"lines" jsonschema:"required,minItems=1"`
}

// Text returns the exercise as a multi-line block.
func (e Exercise) Text() string {
	return strings.Join(e.Lines, "\n")
}

// Fallback holds the local reply templates used when no remote reply is
// accepted.
type Fallback struct {
	Categories []Category `yaml:"categories" json:"categories"`
	Default    []string   `yaml:"default" json:"default" jsonschema:"required,minItems=1"`
}

// Category is a fallback topic. Categories are tried in file order.
type Category struct {
	Name     string   `yaml:"name" json:"name" jsonschema:"required"`
	Keywords Keywords `yaml:"keywords" json:"keywords" jsonschema:"required,minItems=1"`
	Replies  []string `yaml:"replies" json:"replies" jsonschema:"required,minItems=1"`
}

// DefaultCategory is the name reported when no fallback category matches.
const DefaultCategory = "default"

// Keywords is a list of substrings matched case-insensitively.
type Keywords []string

// MatchFolded reports whether any keyword occurs in text, which must already
// be folded with Fold.
func (k Keywords) MatchFolded(folded string) bool {
	for _, kw := range k {
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// Match folds text and reports whether any keyword occurs in it.
func (k Keywords) Match(text string) bool {
	return k.MatchFolded(Fold(text))
}

// apostrophes maps the typographic apostrophes phone keyboards insert to '.
var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// Fold normalizes apostrophes and applies Unicode case folding. A new Caser
// is built per call since Casers carry state and must not be shared across
// goroutines.
func Fold(s string) string {
	return cases.Fold().String(apostrophes.Replace(s))
}

// CategoryFor returns the first fallback category whose keywords occur in
// text. The second result is false when only the default pool applies.
func (l *Lexicon) CategoryFor(text string) (Category, bool) {
	folded := Fold(text)
	for _, c := range l.Fallback.Categories {
		if c.Keywords.MatchFolded(folded) {
			return c, true
		}
	}
	return Category{Name: DefaultCategory, Replies: l.Fallback.Default}, false
}

// Default returns the lexicon compiled into the binary.
func Default() *Lexicon {
	l, err := Parse(defaultYAML)
	if err != nil {
		panic("lexicon: embedded default is invalid: " + err.Error())
	}
	return l
}

// Load reads and validates a lexicon file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return l, nil
}

// LoadOrDefault loads path, or returns the embedded default when path is empty.
func LoadOrDefault(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes a YAML document, normalizes its keywords and validates it.
func Parse(data []byte) (*Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	l.normalize()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Lexicon) normalize() {
	l.Crisis.SelfHarm.Keywords = foldKeywords(l.Crisis.SelfHarm.Keywords)
	l.Crisis.Violence.Keywords = foldKeywords(l.Crisis.Violence.Keywords)
	for i := range l.Fallback.Categories {
		l.Fallback.Categories[i].Keywords = foldKeywords(l.Fallback.Categories[i].Keywords)
	}
}

func foldKeywords(in Keywords) Keywords {
	out := make(Keywords, 0, len(in))
	for _, kw := range in {
		kw = strings.TrimSpace(Fold(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// Validate reports every structural problem in the lexicon.
func (l *Lexicon) Validate() error {
	var errs []error
	if strings.TrimSpace(l.Version) == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if strings.TrimSpace(l.Acknowledgement) == "" {
		errs = append(errs, errors.New("acknowledgement is required"))
	}
	errs = append(errs, validateCrisis("crisis.self_harm", l.Crisis.SelfHarm)...)
	errs = append(errs, validateCrisis("crisis.violence", l.Crisis.Violence)...)

	if len(l.GroundingExercises) == 0 {
		errs = append(errs, errors.New("grounding_exercises must not be empty"))
	}
	for i, ex := range l.GroundingExercises {
		if len(ex.Lines) == 0 {
			errs = append(errs, fmt.Errorf("grounding_exercises[%d] (%s) has no lines", i, ex.Name))
		}
	}

	seen := make(map[string]bool, len(l.Fallback.Categories))
	for i, c := range l.Fallback.Categories {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("fallback.categories[%d] has no name", i))
		case c.Name == DefaultCategory:
			errs = append(errs, fmt.Errorf("fallback.categories[%d] uses reserved name %q", i, DefaultCategory))
		case seen[c.Name]:
			errs = append(errs, fmt.Errorf("fallback.categories[%d] duplicates name %q", i, c.Name))
		}
		seen[c.Name] = true
		if len(c.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("fallback category %q has no keywords", c.Name))
		}
		if nonBlank(c.Replies) == 0 {
			errs = append(errs, fmt.Errorf("fallback category %q has no replies", c.Name))
		}
	}
	if nonBlank(l.Fallback.Default) == 0 {
		errs = append(errs, errors.New("fallback.default must contain at least one reply"))
	}
	return errors.Join(errs...)
}

func validateCrisis(field string, c CrisisCategory) []error {
	var errs []error
	if len(c.Keywords) == 0 {
		errs = append(errs, fmt.Errorf("%s.keywords must not be empty", field))
	}
	if len(c.Helplines) == 0 {
		errs = append(errs, fmt.Errorf("%s.helplines must not be empty", field))
	}
	for i, h := range c.Helplines {
		if h.Name == "" || h.Contact == "" {
			errs = append(errs, fmt.Errorf("%s.helplines[%d] needs name and contact", field, i))
		}
	}
	return errs
}

func nonBlank(ss []string) int {
	n := 0
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// DefaultYAML returns the embedded default document, a starting point for
// override files.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}
