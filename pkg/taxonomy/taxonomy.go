package taxonomy

import (
	"sort"
	"strings"
)

// Wildcard selects every intent of a domain in a label path.
const Wildcard = "*"

// Tree is the domain to intent to entity-type hierarchy of one application.
// It is assembled once, either by scanning application resources or from the
// labels of loaded models, and read concurrently afterwards.
type Tree struct {
	Domains map[string]*Domain `json:"domains"`
}

// Domain is one top-level category of the tree.
type Domain struct {
	Name    string             `json:"name"`
	Intents map[string]*Intent `json:"intents"`
}

// Intent is one action within a domain along with the entity types that may
// occur in its queries.
type Intent struct {
	Name        string   `json:"name"`
	EntityTypes []string `json:"entityTypes,omitempty"`
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{Domains: make(map[string]*Domain)}
}

// AddIntent records an intent under a domain, creating the domain as needed,
// and associates the given entity types with it. Repeated calls for the same
// intent merge entity types.
func (t *Tree) AddIntent(domain, intent string, entityTypes ...string) {
	d, ok := t.Domains[domain]
	if !ok {
		d = &Domain{Name: domain, Intents: make(map[string]*Intent)}
		t.Domains[domain] = d
	}
	in, ok := d.Intents[intent]
	if !ok {
		in = &Intent{Name: intent}
		d.Intents[intent] = in
	}
	for _, et := range entityTypes {
		if !contains(in.EntityTypes, et) {
			in.EntityTypes = append(in.EntityTypes, et)
		}
	}
}

// HasDomain reports whether the domain exists.
func (t *Tree) HasDomain(domain string) bool {
	_, ok := t.Domains[domain]
	return ok
}

// HasIntent reports whether the intent exists under the domain.
func (t *Tree) HasIntent(domain, intent string) bool {
	d, ok := t.Domains[domain]
	if !ok {
		return false
	}
	_, ok = d.Intents[intent]
	return ok
}

// DomainNames returns all domain names in sorted order.
func (t *Tree) DomainNames() []string {
	names := make([]string, 0, len(t.Domains))
	for name := range t.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntentNames returns the sorted intent names of a domain, or nil when the
// domain does not exist.
func (t *Tree) IntentNames(domain string) []string {
	d, ok := t.Domains[domain]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(d.Intents))
	for name := range d.Intents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntityTypes returns the sorted union of entity types across every intent,
// optionally restricted to one domain when domain is non-empty.
func (t *Tree) EntityTypes(domain string) []string {
	set := make(map[string]bool)
	for name, d := range t.Domains {
		if domain != "" && name != domain {
			continue
		}
		for _, in := range d.Intents {
			for _, et := range in.EntityTypes {
				set[et] = true
			}
		}
	}
	types := make([]string, 0, len(set))
	for et := range set {
		types = append(types, et)
	}
	sort.Strings(types)
	return types
}

// Path is one parsed label path of the form "domain.intent". Intent may be
// the wildcard, selecting every intent of the domain.
type Path struct {
	Domain string
	Intent string
}

func (p Path) String() string { return p.Domain + "." + p.Intent }

// ParsePath splits a "domain.intent" label path without consulting any tree.
// Exactly one dot is required and both components must be non-empty.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Path{}, newPathError(s, "expected the form domain.intent or domain.*")
	}
	return Path{Domain: parts[0], Intent: parts[1]}, nil
}

// Selection is a set of fully expanded domain and intent pairs produced by
// Expand. The top map is keyed by domain, the inner map by intent.
type Selection map[string]map[string]bool

// Expand validates each "domain.intent" path against the tree, expands
// wildcards to every intent of the domain, and returns the union. Any path
// naming a domain or intent the tree does not contain fails the whole call.
func (t *Tree) Expand(paths []string) (Selection, error) {
	selection := make(Selection)
	for _, raw := range paths {
		path, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		if !t.HasDomain(path.Domain) {
			return nil, newPathError(raw, "domain %q does not exist", path.Domain)
		}
		if path.Intent != Wildcard && !t.HasIntent(path.Domain, path.Intent) {
			return nil, newPathError(raw, "intent %q does not exist in domain %q", path.Intent, path.Domain)
		}
		if selection[path.Domain] == nil {
			selection[path.Domain] = make(map[string]bool)
		}
		if path.Intent == Wildcard {
			for intent := range t.Domains[path.Domain].Intents {
				selection[path.Domain][intent] = true
			}
			continue
		}
		selection[path.Domain][path.Intent] = true
	}
	return selection, nil
}

// Domains returns the selected domain names in sorted order.
func (s Selection) DomainNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntentNames returns the selected intents of a domain in sorted order.
func (s Selection) IntentNames(domain string) []string {
	intents, ok := s[domain]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(intents))
	for name := range intents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
