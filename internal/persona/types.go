package persona

// Persona is one agent's configuration bundle loaded from YAML.
type Persona struct {
	Name                   string                `yaml:"name"`
	Description            string                `yaml:"description"`
	Identity               *Identity             `yaml:"identity"`
	Objectives             *Objectives           `yaml:"objectives"`
	ResponseGuidelines     *ResponseGuidelines   `yaml:"response_guidelines"`
	ConversationPatterns   *ConversationPatterns `yaml:"conversation_patterns"`
	EscalationTriggers     []string              `yaml:"escalation_triggers"`
	CulturalConsiderations []string              `yaml:"cultural_considerations"`
}

// Identity describes the agent's tone and language.
type Identity struct {
	Tone            string `yaml:"tone"`
	Personality     string `yaml:"personality"`
	DefaultLanguage string `yaml:"default_language"`
	EmojiUsage      string `yaml:"emoji_usage"`
}

// Objectives lists the agent's primary and secondary goals.
type Objectives struct {
	Primary   string   `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
}

// ResponseGuidelines holds per-stage response rules.
type ResponseGuidelines struct {
	FirstContact []string `yaml:"first_contact"`
	FollowUp     []string `yaml:"follow_up"`
	Escalation   []string `yaml:"escalation"`
}

// ConversationPatterns holds stylistic hints for the conversation flow.
type ConversationPatterns struct {
	GreetingStyle    string `yaml:"greeting_style"`
	ValueProposition string `yaml:"value_proposition"`
	LocalReferences  string `yaml:"local_references"`
	ClosingStyle     string `yaml:"closing_style"`
}

// Bundle is everything loaded for one agent id: the persona plus its named
// template sets (template values are strings or string maps or string lists).
type Bundle struct {
	AgentID   string
	Persona   *Persona
	Templates map[string]any
}

// registryFile mirrors the agent_registry.yaml layout.
type registryFile struct {
	AgentRegistry map[string]registryEntry `yaml:"agent_registry"`
}

type registryEntry struct {
	AgentID         string           `yaml:"agent_id"`
	ContactSelector *contactSelector `yaml:"contact_selector"`
}

type contactSelector struct {
	CountryCode string `yaml:"country_code"`
}
