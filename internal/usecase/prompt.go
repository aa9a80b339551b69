package usecase

import (
	"fmt"
	"strings"

	"slack-responder/internal/domain"
)

func actionInstructions() string {
	return strings.Join([]string{
		"Task:",
		"Decide whether the message asks you to act on your own most recent reply in this channel.",
		"",
		"Answers:",
		"- delete: the user wants your last reply removed, retracted or undone.",
		"- send: the user wants your last reply posted to the channel itself, outside the thread.",
		"- none: anything else, including questions that merely mention deleting or sending.",
		"",
		"Output Contract:",
		"Reply with exactly one lowercase word: delete, send or none.",
	}, "\n")
}

func announcementInstructions() string {
	return strings.Join([]string{
		"Task:",
		"Decide whether the message asks about the latest announcement, news or update from the team.",
		"",
		"Output Contract:",
		"Reply with exactly one lowercase word: yes or no.",
	}, "\n")
}

func domainQuestionInstructions(topic string) string {
	return strings.Join([]string{
		"Task:",
		fmt.Sprintf("Decide whether the message is a question about %s.", topic),
		"",
		"Output Contract:",
		"Reply with exactly one lowercase word: yes or no.",
	}, "\n")
}

func summarizeInstructions() string {
	return strings.Join([]string{
		"Task:",
		"Decide whether the message asks for a summary of a Slack channel.",
		"Channel references look like <#C0123ABCD> or <#C0123ABCD|name>.",
		"",
		"Output Contract:",
		`Return JSON only, with no prose: {"action":"summarize","channel_id":"C0123ABCD"} when a summary of a referenced channel is requested,`,
		`otherwise {"action":"none"}.`,
	}, "\n")
}

// generationMessages assembles persona, grounding, thread turns and the
// current user text in that order.
func generationMessages(systemPrompt string, grounding []string, history []domain.ChatMessage, text string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(grounding)+len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, g := range grounding {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: g})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	return messages
}

func announcementGrounding(announcement, link string) string {
	if strings.TrimSpace(announcement) == "" {
		return strings.Join([]string{
			"Announcement Context:",
			"There is no recent announcement. Tell the user so briefly.",
		}, "\n")
	}
	lines := []string{
		"Announcement Context:",
		"Present the latest announcement below to the user in your own voice.",
		"Keep the key facts, dates and names intact.",
	}
	if link != "" {
		lines = append(lines, fmt.Sprintf("End with this link to the original post: %s", link))
	}
	lines = append(lines, "", "Latest announcement:", announcement)
	return strings.Join(lines, "\n")
}

func referenceGrounding(topic string, reference []string) string {
	lines := []string{
		"Reference Context:",
		fmt.Sprintf("Answer the user's question about %s using only the reference messages below.", topic),
		"If the reference messages do not cover it, say you don't know rather than guessing.",
		"",
		"Reference messages:",
	}
	if len(reference) == 0 {
		lines = append(lines, "(none)")
	}
	lines = append(lines, reference...)
	return strings.Join(lines, "\n")
}

func summaryGrounding(channelID, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		transcript = "(no recent messages)"
	}
	return strings.Join([]string{
		"Summary Context:",
		fmt.Sprintf("The transcript below is the recent history of <#%s>, oldest first, one message per line as @/name: text.", channelID),
		"Write a short summary of what is going on, attributing points to people by name.",
		"Never say you cannot access the channel or its messages; this transcript is what you can see.",
		"",
		"Transcript:",
		transcript,
	}, "\n")
}

func summaryPrefix(channelID string) string {
	return fmt.Sprintf("Here's what's going on in <#%s>:", channelID)
}
