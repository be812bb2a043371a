package bot

import (
	"strings"

	"github.com/keepmind9/pandabot/pkg/constants"
)

// maskSecret masks sensitive information for logging
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}

// truncate cuts message to at most limit bytes without splitting a rune
func truncate(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// flattenEmbed renders an Embed as markdown-ish text for platforms without embeds
func flattenEmbed(embed Embed) string {
	var sb strings.Builder
	if embed.Title != "" {
		sb.WriteString("**" + embed.Title + "**\n")
	}
	if embed.Description != "" {
		sb.WriteString(embed.Description + "\n")
	}
	for _, field := range embed.Fields {
		sb.WriteString("\n**" + field.Name + "**\n")
		sb.WriteString(field.Value + "\n")
	}
	if embed.Footer != "" {
		sb.WriteString("\n" + embed.Footer + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
