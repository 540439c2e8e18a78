// Package ontology describes the caption ontology handed to the zero-shot
// labeler: an ordered mapping from free-text prompts to output class names.
package ontology

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// A Pair binds one caption prompt to the class name the labeler should
// emit for everything the prompt matches.
type Pair struct {
	Prompt string `yaml:"prompt" json:"prompt"`
	Class  string `yaml:"class" json:"class"`
}

// An Ontology is a non-empty, ordered set of prompt/class pairs. Order is
// declaration order; class indices are assigned from the first pair that
// mentions each class.
type Ontology struct {
	pairs []Pair
}

// New validates the given pairs and builds an Ontology from them.
func New(pairs []Pair) (Ontology, error) {
	if len(pairs) == 0 {
		return Ontology{}, errors.New("ontology must contain at least one prompt")
	}
	seen := map[string]struct{}{}
	for i, p := range pairs {
		if p.Prompt == "" {
			return Ontology{}, errors.Errorf("ontology pair %d has an empty prompt", i)
		}
		if p.Class == "" {
			return Ontology{}, errors.Errorf("ontology prompt %q has an empty class", p.Prompt)
		}
		if _, ok := seen[p.Prompt]; ok {
			return Ontology{}, errors.Errorf("duplicate ontology prompt %q", p.Prompt)
		}
		seen[p.Prompt] = struct{}{}
	}
	copied := make([]Pair, len(pairs))
	copy(copied, pairs)
	return Ontology{pairs: copied}, nil
}

// Pairs returns the pairs in declaration order.
func (o Ontology) Pairs() []Pair {
	out := make([]Pair, len(o.pairs))
	copy(out, o.pairs)
	return out
}

// Len returns the number of prompt/class pairs.
func (o Ontology) Len() int {
	return len(o.pairs)
}

// Prompts returns all prompts in declaration order.
func (o Ontology) Prompts() []string {
	return lo.Map(o.pairs, func(p Pair, _ int) string { return p.Prompt })
}

// Classes returns the distinct class names in first-declared order. Its
// length is the class count the dataset manifest must carry.
func (o Ontology) Classes() []string {
	return lo.Uniq(lo.Map(o.pairs, func(p Pair, _ int) string { return p.Class }))
}

// ClassIndex returns the index of the named class within Classes.
func (o Ontology) ClassIndex(class string) (int, bool) {
	for i, c := range o.Classes() {
		if c == class {
			return i, true
		}
	}
	return 0, false
}
