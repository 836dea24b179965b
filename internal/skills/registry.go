// Package skills implements the two-phase skill registry: an always-on
// name/description listing folded into the system prompt, plus full
// instructions for explicitly activated skills.
package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentforge/agentcore/pkg/models"
)

const (
	listingHeader      = "\n\n## Available skills\n"
	instructionsHeader = "\n\n## Activated skill instructions\n"
)

// DuplicateSkillError is returned by Register when a skill name is already taken.
type DuplicateSkillError struct{ Name string }

func (e *DuplicateSkillError) Error() string { return "skill already registered: " + e.Name }

// NotFoundError is returned by Activate for an unknown skill name.
type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return "skill not found: " + e.Name }

// Registry holds registered skills and tracks which are activated.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]models.Skill
	active map[string]bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		skills: make(map[string]models.Skill),
		active: make(map[string]bool),
	}
}

// Register adds a skill. A second registration of the same name fails with
// *DuplicateSkillError.
func (r *Registry) Register(skill models.Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[skill.Name]; exists {
		return &DuplicateSkillError{Name: skill.Name}
	}
	r.skills[skill.Name] = skill
	return nil
}

// Activate marks a registered skill active, so its full instructions are
// folded into Compose. Unknown names fail with *NotFoundError.
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[name]; !ok {
		return &NotFoundError{Name: name}
	}
	r.active[name] = true
	return nil
}

// Deactivate marks a skill inactive, a no-op if it wasn't active.
func (r *Registry) Deactivate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, name)
}

// Get returns a skill's definition by name.
func (r *Registry) Get(name string) (models.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns every registered skill, sorted by name for stable output.
func (r *Registry) List() []models.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsActive reports whether name is currently activated.
func (r *Registry) IsActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[name]
}

// Compose returns basePrompt unchanged when the registry is empty;
// otherwise it appends the always-on listing followed by the full
// instructions of every activated skill, skipping DisableModelInvocation
// entries from both — they appear in neither listing nor activated block,
// regardless of activation state.
func (r *Registry) Compose(basePrompt string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.skills) == 0 {
		return basePrompt
	}

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)

	var listing strings.Builder
	for _, name := range names {
		s := r.skills[name]
		if s.DisableModelInvocation {
			continue
		}
		fmt.Fprintf(&listing, "- %s: %s\n", s.Name, s.Description)
	}

	// DisableModelInvocation hides a skill from both the listing and the
	// activated-instructions block, even if it has been explicitly
	// activated; Get still returns its definition.
	var activated strings.Builder
	for _, name := range names {
		if !r.active[name] {
			continue
		}
		s := r.skills[name]
		if s.DisableModelInvocation {
			continue
		}
		activated.WriteString(s.Instructions)
		activated.WriteString("\n")
	}

	result := basePrompt
	if listing.Len() > 0 {
		result += listingHeader + listing.String()
	}
	if activated.Len() > 0 {
		result += instructionsHeader + activated.String()
	}
	return result
}
