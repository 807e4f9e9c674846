package spreadsheet

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultIngressFunctions pull external or real-time data into a model.
var DefaultIngressFunctions = []string{"RTGET", "TR", "TODAY", "NOW"}

// DefaultEgressFunctions push computed results out of a model.
var DefaultEgressFunctions = []string{"RTC", "OUTPUT"}

// Classifier tags formulas by the functions they call. names are matched
// case-insensitively.
type Classifier struct {
	ingress map[string]struct{}
	egress  map[string]struct{}
}

// NewClassifier builds a classifier from the two function sets. both must
// be non-empty.
func NewClassifier(ingress, egress []string) (*Classifier, error) {
	c := &Classifier{
		ingress: toNameSet(ingress),
		egress:  toNameSet(egress),
	}
	if len(c.ingress) == 0 {
		return nil, fmt.Errorf("ingress functions: %w", ErrEmptyFunctionSet)
	}
	if len(c.egress) == 0 {
		return nil, fmt.Errorf("egress functions: %w", ErrEmptyFunctionSet)
	}
	return c, nil
}

// DefaultClassifier uses DefaultIngressFunctions and DefaultEgressFunctions
func DefaultClassifier() *Classifier {
	c, _ := NewClassifier(DefaultIngressFunctions, DefaultEgressFunctions)
	return c
}

func toNameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// IngressFunctions returns the configured ingress names, sorted
func (c *Classifier) IngressFunctions() []string {
	return sortedNames(c.ingress)
}

// EgressFunctions returns the configured egress names, sorted
func (c *Classifier) EgressFunctions() []string {
	return sortedNames(c.egress)
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Classify scans the formula's calls once and stops as soon as both kinds
// have been seen. it does not modify the formula.
func (c *Classifier) Classify(f *Formula) (ingress, egress bool) {
	for _, in := range f.Instructions {
		if in.Op != OpCall {
			continue
		}
		name := strings.ToUpper(in.Func)
		if _, ok := c.ingress[name]; ok {
			ingress = true
		}
		if _, ok := c.egress[name]; ok {
			egress = true
		}
		if ingress && egress {
			break
		}
	}
	return ingress, egress
}
