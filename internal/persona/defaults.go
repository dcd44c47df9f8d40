package persona

// Built-in fallback prompts and templates, keyed by agent id. These keep
// resolution total when a persona directory is missing or incomplete.

const (
	genericGreeting = "Hello! I'm reaching out from ICUPA to help improve your business operations."
	genericFollowUp = "Hi! Just following up on our previous conversation. Is there anything I can help you with today?"
)

var defaultPrompts = map[string]string{
	"icupa_rwanda": `You are a warm and respectful sales assistant for ICUPA in Rwanda.
Speak primarily in Kinyarwanda and focus on helping local bars and restaurants digitize their ordering systems.
Be patient, supportive, and familiar with local business customs.`,

	"icupa_malta": `You are a friendly and knowledgeable sales assistant for ICUPA in Malta.
Help bars, restaurants, and hotels understand how our mobile ordering platform can improve their operations.
Be energetic, conversational, and aware of local hospitality challenges.`,

	"lifuti_rwanda": `You are a warm sales assistant for Lifuti in Rwanda.
Speak primarily in Kinyarwanda and help local businesses understand our services.
Be respectful and community-focused in your approach.`,
}

func defaultSystemPrompt(agentID string) string {
	if prompt, ok := defaultPrompts[agentID]; ok {
		return prompt
	}
	return defaultPrompts["icupa_rwanda"]
}

var defaultTemplateSets = map[string]map[string]any{
	"icupa_rwanda": {
		"greeting_templates": map[string]string{
			"new_contact":       "Muraho neza! Neza ko ubucuruzi bwawe bugenda neza. Ndavuga kuva kuri ICUPA...",
			"returning_contact": "Muraho neza! Nizeye ko ubucuruzi bugenda neza. Ndagaruka kuganira nawe kuri ICUPA...",
		},
		"qualification_questions": []any{
			"Ubucuruzi bwawe ni ubwite (bar, restaurant, hotel)?",
			"Hari ibibazo ukura kuri menu yawe cyangwa serivisi?",
			"Ugomba kugira uburyo bworoshye bwo gutegeka?",
		},
	},
	"icupa_malta": {
		"greeting_templates": map[string]string{
			"new_contact":       "Hi! Hope business is going well. I'm reaching out from ICUPA to help improve your venue's operations...",
			"returning_contact": "Hi again! Following up on our conversation about ICUPA's mobile ordering platform...",
		},
		"qualification_questions": []any{
			"What type of venue do you operate?",
			"What are your main challenges with current ordering processes?",
			"How busy do you get during peak times?",
		},
	},
}

var defaultFollowUps = map[string]string{
	"default_followup":       "Hi [CONTACT_NAME]! I wanted to follow up on our previous conversation. Do you have any questions about how ICUPA can help with your business needs?",
	"qualification_followup": "Hello again! I was wondering if you've had a chance to think about the business solutions we discussed. I'd be happy to answer any questions you might have.",
	"consultation_followup":  "Hi [CONTACT_NAME]! Just following up to see if you'd like to schedule that consultation we talked about. I have some time slots available this week.",
}

func defaultTemplate(agentID, templateType string) any {
	if templateType == "followup_templates" {
		set := make(map[string]string, len(defaultFollowUps))
		for k, v := range defaultFollowUps {
			set[k] = v
		}
		return set
	}
	agentSet, ok := defaultTemplateSets[agentID]
	if !ok {
		agentSet = defaultTemplateSets["icupa_rwanda"]
	}
	if tpl, ok := agentSet[templateType]; ok {
		return tpl
	}
	return agentSet["greeting_templates"]
}
