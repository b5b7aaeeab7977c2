package relay

import (
	"fmt"
	"html"
)

// Fixed user-facing notices. Messages are HTML formatted.
const (
	NoticeMaintenance  = "🛠 The bot is under maintenance. Please try again later."
	NoticeNoCredential = "⚠️ Voice generation is temporarily unavailable. Please try again later."
	NoticeFailure      = "❌ Something went wrong. Please try again later."
	NoticeGenerating   = "🎙 Generating…"
)

func usageNotice(prefix string) string {
	return fmt.Sprintf("Usage: <b>%s</b> &lt;text&gt;", html.EscapeString(prefix))
}

func tooLongNotice(length, limit int) string {
	return fmt.Sprintf("✂️ The text is too long: %d characters, the limit is %d.", length, limit)
}

func announceNotice(mention string) string {
	return fmt.Sprintf("🎙 %s is recording a voice message…", mention)
}

func attributionCaption(mention string) string {
	return "🗣 " + mention
}

func synthesisFailedNotice(reason string) string {
	return fmt.Sprintf("❌ Could not generate audio: %s", html.EscapeString(reason))
}

func attributedFailedNotice(mention, reason string) string {
	return fmt.Sprintf("❌ %s, could not generate audio: %s", mention, html.EscapeString(reason))
}
