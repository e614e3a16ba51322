package ai

import (
	"fmt"
	"strings"

	"discussion-lab/persona"
)

func systemPrompt(topic, background string, personas []persona.Descriptor) string {
	var b strings.Builder
	b.WriteString("You simulate a panel of discussion participants debating the topic: ")
	b.WriteString(topic)
	b.WriteString(".\n")
	if background != "" {
		b.WriteString("Background provided by the organizer: ")
		b.WriteString(background)
		b.WriteString("\n")
	}
	b.WriteString("The panel members are:\n")
	for _, p := range personas {
		fmt.Fprintf(&b, "- %s (%s, type %q): expertise in %s; style: %s\n",
			p.Name, p.Role, p.Type, p.Expertise, p.Style)
	}
	b.WriteString("Stay in character for each member. Keep contributions short and conversational.")
	return b.String()
}

func openingPrompt(topic string) string {
	return fmt.Sprintf("As the discussion moderator, write a short opening statement (2-3 sentences) "+
		"introducing the topic %q and inviting everyone to contribute. Respond with the statement only.", topic)
}

func turnPrompt(transcript, message, focusPersona string) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(transcript)
	b.WriteString("\nThe human participant just said: ")
	b.WriteString(message)
	b.WriteString("\n")
	if focusPersona != "" {
		fmt.Fprintf(&b, "Only the panel member of type %q should respond this turn.\n", focusPersona)
	} else {
		b.WriteString("Decide which panel members respond (one to three of them).\n")
	}
	b.WriteString(`Answer with JSON only, no prose around it, in this shape:
{"responses":[{"agent":"<persona type>","message":"<contribution>"}],"progress":<number between 0 and 1 estimating how close the discussion is to a conclusion>}`)
	return b.String()
}

func askPrompt(transcript, personaType, question string) string {
	return fmt.Sprintf("Conversation so far:\n%s\nThe human asks the panel member of type %q directly: %s\n"+
		"Answer in character as that member. Respond with the answer text only.",
		transcript, personaType, question)
}

func consensusPrompt(transcript string) string {
	return fmt.Sprintf("Conversation so far:\n%s\nAnalyze where the panel agrees and disagrees. "+
		"Write a short consensus analysis in plain text.", transcript)
}

func summaryPrompt(transcript string) string {
	return fmt.Sprintf(`Conversation so far:
%s
Summarize the discussion. Answer with JSON only, in this shape:
{"summary":"<a few sentences>","metrics":{"<metric name>":<value>}}
Metrics may include counts of contributions, points of agreement, or open questions.`, transcript)
}

func closePrompt(transcript string) string {
	return fmt.Sprintf("Conversation so far:\n%s\nThe discussion is ending. Write the final report: "+
		"key arguments, points of agreement, and recommended next steps. Respond with the report text only.", transcript)
}
