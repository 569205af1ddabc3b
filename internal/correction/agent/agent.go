// Package agent defines correction agent profiles and the static registry
// they are looked up in.
package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Profile is a named correction configuration. Profiles are immutable once
// registered.
type Profile struct {
	Key         string
	Name        string
	Description string
	// Template holds exactly one %s verb where the anonymized text goes.
	Template    string
	Model       string
	AccessLevel string
}

// Prompt substitutes text into the profile template.
func (p Profile) Prompt(text string) string {
	return strings.Replace(p.Template, "%s", text, 1)
}

// role ranks; unknown roles rank lowest.
var roleRank = map[string]int{
	"collaborateur": 1,
	"senior":        2,
	"expert":        3,
	"admin":         100,
}

// Allows reports whether a caller with role may use the profile.
func (p Profile) Allows(role string) bool {
	return roleRank[role] >= roleRank[p.AccessLevel]
}

// Registry is a read-only table of profiles keyed by short name.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry validates and indexes profiles. It fails on duplicate keys and
// on templates without exactly one insertion point.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Key == "" {
			return nil, fmt.Errorf("agent profile %q: empty key", p.Name)
		}
		if _, dup := r.profiles[p.Key]; dup {
			return nil, fmt.Errorf("agent profile %q: duplicate key", p.Key)
		}
		if n := strings.Count(p.Template, "%s"); n != 1 {
			return nil, fmt.Errorf("agent profile %q: template has %d insertion points, want 1", p.Key, n)
		}
		if _, ok := roleRank[p.AccessLevel]; !ok {
			return nil, fmt.Errorf("agent profile %q: unknown access level %q", p.Key, p.AccessLevel)
		}
		r.profiles[p.Key] = p
	}
	return r, nil
}

// Get returns the profile registered under key.
func (r *Registry) Get(key string) (Profile, bool) {
	p, ok := r.profiles[key]
	return p, ok
}

// Names returns registered keys in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Available returns the profiles a caller with role may use, sorted by key.
func (r *Registry) Available(role string) []Profile {
	var out []Profile
	for _, k := range r.Names() {
		if p := r.profiles[k]; p.Allows(role) {
			out = append(out, p)
		}
	}
	return out
}

// DefaultKey is the agent used when a request names none.
const DefaultKey = "jurifix"

const jurifixTemplate = `Tu es un correcteur orthographique expert spécialisé en textes juridiques.

RÈGLES ABSOLUES À RESPECTER :
1. Corrige UNIQUEMENT l'orthographe, la grammaire et la ponctuation
2. Ne change JAMAIS les formulations, le style ou le vocabulaire juridique
3. Préserve ABSOLUMENT la structure et la longueur des phrases
4. Ne reformule RIEN, ne résume RIEN, ne raccourcis RIEN
5. Garde exactement le même niveau de langage et le même ton
6. Conserve tous les termes juridiques techniques tels quels
7. Retourne UNIQUEMENT le texte corrigé, sans aucun commentaire avant ou après
8. Préserve EXACTEMENT le nombre de mots et la structure des phrases

Texte à corriger : """%s"""

Retourne UNIQUEMENT le texte corrigé :`

// DefaultRegistry returns the built-in profiles. model overrides the target
// model when non-empty.
func DefaultRegistry(model string) *Registry {
	if model == "" {
		model = "gpt-4"
	}
	r, err := NewRegistry(Profile{
		Key:         DefaultKey,
		Name:        "JuriFix - Correction Orthographique Précise",
		Description: "Corrige uniquement l'orthographe et la grammaire sans modifier le style ou les formulations juridiques",
		Template:    jurifixTemplate,
		Model:       model,
		AccessLevel: "collaborateur",
	})
	if err != nil {
		panic(err)
	}
	return r
}
