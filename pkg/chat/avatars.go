package chat

import (
	"regexp"
	"strings"
)

const (
	UserAvatar      = "🧑"
	AssistantAvatar = "🤖"
	SystemAvatar    = "⚙️"
	ErrorAvatar     = "❌"
)

// DefaultAvatars maps well-known user names to avatars. Keys are matched
// after normalization, so "Chat Bot" and "chatbot" resolve identically.
var DefaultAvatars = map[string]string{
	"client":   UserAvatar,
	"customer": UserAvatar,
	"human":    UserAvatar,
	"person":   UserAvatar,
	"user":     UserAvatar,

	"agent":     AssistantAvatar,
	"ai":        AssistantAvatar,
	"assistant": AssistantAvatar,
	"bot":       AssistantAvatar,
	"chatbot":   AssistantAvatar,
	"machine":   AssistantAvatar,
	"robot":     AssistantAvatar,

	"system":    SystemAvatar,
	"exception": ErrorAvatar,
	"error":     ErrorAvatar,

	"calculator": "🧮",
	"translator": "🌐",
	"llama":      "🦙",
}

var nonAlphaNumeric = regexp.MustCompile(`\W+`)

func normalizeUser(user string) string {
	return strings.ToLower(nonAlphaNumeric.ReplaceAllString(user, ""))
}

// LookupAvatar resolves the avatar for a user name. Overrides take precedence
// over the built-in table; both are matched on normalized keys. The fallback
// is returned when no entry matches.
func LookupAvatar(user string, overrides map[string]string, fallback string) string {
	key := normalizeUser(user)
	for k, v := range overrides {
		if normalizeUser(k) == key {
			return v
		}
	}
	if v, ok := DefaultAvatars[key]; ok {
		return v
	}
	return fallback
}
