// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"html"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/veil-im/veil/directory"
	"github.com/veil-im/veil/messaging"
)

// markdownInstance is initialized once and reused. The configuration
// never changes and a goldmark.Markdown is safe to share; each Convert
// call creates its own parse state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// renderHTML renders markdown input to HTML for a message's
// formatted_body. Falls back to escaped plain text when the renderer
// fails, so a reply is never dropped over formatting.
func renderHTML(input string) string {
	var buffer bytes.Buffer
	if err := getMarkdown().Convert([]byte(input), &buffer); err != nil {
		return "<p>" + html.EscapeString(input) + "</p>"
	}
	return strings.TrimRight(buffer.String(), "\n")
}

// relayMessage builds the anonymized room message: the sender's
// pseudonym in bold, then the payload rendered as markdown. The plain
// body always carries the canonical "pseudonym: payload" text.
func relayMessage(pseudonym directory.Pseudonym, payload string) messaging.MessageContent {
	body := pseudonym.String() + ": " + payload
	formatted := "<strong>" + pseudonym.String() + "</strong>: " + renderHTML(payload)
	return messaging.NewHTMLMessage(body, formatted)
}

// mentionMessage builds the DM sent to a mentioned handle's owner. It
// names only the sender's pseudonym, never the sender.
func mentionMessage(sender directory.Pseudonym, payload string) messaging.MessageContent {
	body := "You were mentioned by " + sender.String() + ": " + payload
	formatted := "You were mentioned by <strong>" + sender.String() + "</strong>: " + renderHTML(payload)
	content := messaging.NewHTMLMessage(body, formatted)
	content.MsgType = messaging.MsgTypeNotice
	return content
}
