package models

// Persona is an immutable entry in the process-wide registry of simulated
// experts. There is no lifecycle: personas are loaded once at startup.
type Persona struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	// Prompt is the personality/system prompt prefix used for generation.
	Prompt string `json:"-" yaml:"prompt"`
	// Affinities are topical tags the persona gravitates toward.
	Affinities []string `json:"affinities,omitempty" yaml:"affinities"`
	// Autonomous personas may initiate topics on the tick schedule.
	Autonomous bool `json:"autonomous,omitempty" yaml:"autonomous"`
}
