// Package safety detects crisis language and composes the static safety
// script shown instead of a model reply. Nothing here touches the network.
package safety

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/ashureev/manosakhi/internal/lexicon"
)

// CrisisSignal records which crisis categories a message triggered.
type CrisisSignal struct {
	SelfHarm bool `json:"self_harm"`
	Violence bool `json:"violence"`
}

// Any reports whether either category matched.
func (s CrisisSignal) Any() bool {
	return s.SelfHarm || s.Violence
}

// Classify tests text against the crisis keyword sets of l. It depends only
// on its arguments and has no side effects.
func Classify(l *lexicon.Lexicon, text string) CrisisSignal {
	folded := lexicon.Fold(text)
	return CrisisSignal{
		SelfHarm: l.Crisis.SelfHarm.Keywords.MatchFolded(folded),
		Violence: l.Crisis.Violence.Keywords.MatchFolded(folded),
	}
}

// Script composes the safety message for sig with a grounding exercise
// picked by rng. When the result would equal avoid, the remaining exercises
// are tried in order so a repeated crisis message gets a different script.
func Script(l *lexicon.Lexicon, sig CrisisSignal, rng *rand.Rand, avoid string) string {
	n := len(l.GroundingExercises)
	if n == 0 {
		return Compose(l, sig, nil)
	}
	start := rng.IntN(n)
	var script string
	for k := range n {
		ex := l.GroundingExercises[(start+k)%n]
		script = Compose(l, sig, &ex)
		if script != avoid {
			break
		}
	}
	return script
}

// Compose builds the safety message: acknowledgement, the helpline directory
// of each matched category, the exercise (if any) and the closing line.
func Compose(l *lexicon.Lexicon, sig CrisisSignal, ex *lexicon.Exercise) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(l.Acknowledgement))

	if sig.SelfHarm {
		writeDirectory(&b, l.Crisis.SelfHarm)
	}
	if sig.Violence {
		writeDirectory(&b, l.Crisis.Violence)
	}

	if ex != nil {
		b.WriteString("\n\n")
		b.WriteString(ex.Text())
	}

	if closing := strings.TrimSpace(l.Closing); closing != "" {
		b.WriteString("\n\n")
		b.WriteString(closing)
	}
	return b.String()
}

func writeDirectory(b *strings.Builder, c lexicon.CrisisCategory) {
	b.WriteString("\n\n")
	if c.Heading != "" {
		b.WriteString(c.Heading)
		b.WriteString("\n")
	}
	for i, h := range c.Helplines {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "📞 **%s:** %s", h.Name, h.Contact)
	}
}
