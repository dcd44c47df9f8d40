// Package persona turns agent configuration bundles into deterministic
// system prompts and message templates. Resolution never fails: unknown
// agents and missing sections fall through to built-in defaults.
package persona

import (
	"fmt"
	"log/slog"
	"strings"
)

// Context carries contact-specific values into prompt and template
// resolution. Recognized substitution keys: contact_name, venue_name,
// phone_number, location, business_type.
type Context map[string]string

// Resolver resolves system prompts and templates for agent personas.
type Resolver struct {
	defaultAgentID string
	bundles        map[string]*Bundle
	countryAgents  map[string]string
	logger         *slog.Logger
}

// DefaultAgentID returns the configured fallback agent id.
func (r *Resolver) DefaultAgentID() string {
	if r.defaultAgentID != "" {
		return r.defaultAgentID
	}
	return "icupa_rwanda"
}

// AgentForNumber routes a phone number to an agent id by the registry's
// country calling codes. The longest matching code wins; unmapped numbers
// go to the default agent.
func (r *Resolver) AgentForNumber(phone string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	agentID, matched := "", ""
	for code, id := range r.countryAgents {
		if code == "" || !strings.HasPrefix(trimmed, code) {
			continue
		}
		if len(code) > len(matched) {
			agentID, matched = id, code
		}
	}
	if agentID != "" {
		return agentID
	}
	return r.DefaultAgentID()
}

// BuildSystemPrompt assembles the instruction text for the completion
// provider: identity, objectives, response guidelines, conversation
// patterns, escalation and cultural instructions, then contact context
// lines. Each section is emitted only when present in the configuration.
func (r *Resolver) BuildSystemPrompt(agentID string, tctx Context) string {
	bundle, ok := r.bundles[agentID]
	if !ok || bundle.Persona == nil {
		return withContextLines(defaultSystemPrompt(agentID), tctx)
	}
	return withContextLines(buildPrompt(bundle.Persona), tctx)
}

func buildPrompt(p *Persona) string {
	var sb strings.Builder

	name := p.Name
	if name == "" {
		name = "a professional sales agent"
	}
	fmt.Fprintf(&sb, "You are %s.\n\n", name)

	if p.Description != "" {
		fmt.Fprintf(&sb, "ROLE: %s\n\n", p.Description)
	}

	if id := p.Identity; id != nil {
		sb.WriteString("PERSONALITY GUIDELINES:\n")
		fmt.Fprintf(&sb, "- Tone: %s\n", id.Tone)
		fmt.Fprintf(&sb, "- Personality: %s\n", id.Personality)
		fmt.Fprintf(&sb, "- Default Language: %s\n", id.DefaultLanguage)
		if id.EmojiUsage != "" {
			fmt.Fprintf(&sb, "- Emoji Usage: %s\n", id.EmojiUsage)
		}
		sb.WriteString("\n")
	}

	if obj := p.Objectives; obj != nil {
		sb.WriteString("OBJECTIVES:\n")
		fmt.Fprintf(&sb, "- Primary: %s\n", obj.Primary)
		for _, secondary := range obj.Secondary {
			fmt.Fprintf(&sb, "- %s\n", secondary)
		}
		sb.WriteString("\n")
	}

	if rg := p.ResponseGuidelines; rg != nil {
		sb.WriteString("RESPONSE GUIDELINES:\n")
		writeRuleSet(&sb, "First Contact", rg.FirstContact)
		writeRuleSet(&sb, "Follow-up", rg.FollowUp)
		writeRuleSet(&sb, "Escalation", rg.Escalation)
		sb.WriteString("\n")
	}

	if cp := p.ConversationPatterns; cp != nil {
		sb.WriteString("CONVERSATION PATTERNS:\n")
		if cp.GreetingStyle != "" {
			fmt.Fprintf(&sb, "- Greeting: %s\n", cp.GreetingStyle)
		}
		if cp.ValueProposition != "" {
			fmt.Fprintf(&sb, "- Value Prop: %s\n", cp.ValueProposition)
		}
		if cp.LocalReferences != "" {
			fmt.Fprintf(&sb, "- Local References: %s\n", cp.LocalReferences)
		}
		if cp.ClosingStyle != "" {
			fmt.Fprintf(&sb, "- Closing: %s\n", cp.ClosingStyle)
		}
		sb.WriteString("\n")
	}

	if len(p.EscalationTriggers) > 0 || len(p.CulturalConsiderations) > 0 {
		sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
		if len(p.EscalationTriggers) > 0 {
			sb.WriteString("ESCALATE TO HUMAN WHEN:\n")
			for _, trigger := range p.EscalationTriggers {
				fmt.Fprintf(&sb, "- %s\n", trigger)
			}
			sb.WriteString("\n")
		}
		if len(p.CulturalConsiderations) > 0 {
			sb.WriteString("CULTURAL CONSIDERATIONS:\n")
			for _, consideration := range p.CulturalConsiderations {
				fmt.Fprintf(&sb, "- %s\n", consideration)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func writeRuleSet(sb *strings.Builder, title string, rules []string) {
	if len(rules) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, rule := range rules {
		fmt.Fprintf(sb, "- %s\n", rule)
	}
}

func withContextLines(prompt string, tctx Context) string {
	if name := tctx["contact_name"]; name != "" {
		prompt += fmt.Sprintf("\n\nCurrent contact: %s", name)
	}
	if venue := tctx["venue_name"]; venue != "" {
		prompt += fmt.Sprintf("\nVenue: %s", venue)
	}
	return prompt
}

// Template resolves a named template set for the agent: persona templates
// first, then the built-in per-agent defaults, then the generic default.
// String values get placeholder substitution; map values are substituted
// per entry. The result is a string, a map of strings, or a string list.
func (r *Resolver) Template(agentID, templateType string, tctx Context) any {
	if bundle, ok := r.bundles[agentID]; ok {
		if tpl, ok := bundle.Templates[templateType]; ok {
			return substituteTemplate(tpl, tctx)
		}
	}
	return substituteTemplate(defaultTemplate(agentID, templateType), tctx)
}

// FollowUpMessage renders the named follow-up template for the agent. An
// unknown template name falls back to the default follow-up text; resolution
// never fails the sweep.
func (r *Resolver) FollowUpMessage(agentID, templateName string, tctx Context) string {
	if set, ok := r.Template(agentID, "followup_templates", tctx).(map[string]string); ok {
		if text, ok := set[templateName]; ok {
			return text
		}
	}
	if set, ok := defaultTemplate("", "followup_templates").(map[string]string); ok {
		if text, ok := substituteTemplate(set[templateName], tctx).(string); ok && text != "" {
			return text
		}
		if text, ok := substituteTemplate(set["default_followup"], tctx).(string); ok && text != "" {
			return text
		}
	}
	return genericFollowUp
}

// Greeting returns the greeting template for the given kind
// ("new_contact" or "returning_contact").
func (r *Resolver) Greeting(agentID, kind string, tctx Context) string {
	if set, ok := r.Template(agentID, "greeting_templates", tctx).(map[string]string); ok {
		if text, ok := set[kind]; ok && text != "" {
			return text
		}
	}
	return genericGreeting
}

func substituteTemplate(tpl any, tctx Context) any {
	switch typed := tpl.(type) {
	case string:
		return ReplaceContextVariables(typed, tctx)
	case map[string]string:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = ReplaceContextVariables(v, tctx)
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			if s, ok := v.(string); ok {
				out[k] = ReplaceContextVariables(s, tctx)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(typed))
		for _, v := range typed {
			if s, ok := v.(string); ok {
				out = append(out, ReplaceContextVariables(s, tctx))
			}
		}
		return out
	default:
		return tpl
	}
}

// ReplaceContextVariables substitutes [VARIABLE_NAME] tokens from the fixed
// set of recognized context keys. Unrecognized tokens are left verbatim.
func ReplaceContextVariables(template string, tctx Context) string {
	replacements := map[string]string{
		"CONTACT_NAME":  orDefault(tctx["contact_name"], "there"),
		"VENUE_NAME":    orDefault(tctx["venue_name"], "your venue"),
		"PHONE_NUMBER":  tctx["phone_number"],
		"LOCATION":      tctx["location"],
		"BUSINESS_TYPE": orDefault(tctx["business_type"], "business"),
	}
	out := template
	for key, value := range replacements {
		out = strings.ReplaceAll(out, "["+key+"]", value)
	}
	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
