// Package tgui builds Telegram HTML message fragments.
package tgui

import (
	"fmt"
	"html"
	"strings"
)

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

func B(s string) string    { return "<b>" + Esc(s) + "</b>" }
func I(s string) string    { return "<i>" + Esc(s) + "</i>" }
func Code(s string) string { return "<code>" + Esc(s) + "</code>" }

func Link(text, url string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, Esc(url), Esc(text))
}

// Mention renders a tg://user deep link for id with the given label.
func Mention(label string, id int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, Esc(label))
}

// MessageLink builds a t.me permalink to a message in a private
// supergroup/channel (the -100 prefix is stripped per Telegram's scheme).
func MessageLink(chatID int64, messageID int) string {
	s := fmt.Sprintf("%d", chatID)
	s = strings.TrimPrefix(s, "-100")
	s = strings.TrimPrefix(s, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", s, messageID)
}

// JoinH joins non-empty lines with newlines.
func JoinH(lines ...string) string {
	out := lines[:0:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
