package models

// Skill is a named bundle of instructions that can be offered to the model
// (via a listing entry) and/or injected in full once activated.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Instructions string `json:"instructions"`

	// DisableModelInvocation hides the skill from both the listing and the
	// activated-instructions block, even once Activate'd — the model never
	// sees its instructions. Registry.Get still returns the definition.
	DisableModelInvocation bool `json:"disable_model_invocation,omitempty"`
}
