// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"strings"
	"testing"

	"github.com/veil-im/veil/messaging"
)

func TestRelayMessage(t *testing.T) {
	content := relayMessage("anon1234", "plain words")
	if content.Body != "anon1234: plain words" {
		t.Errorf("body = %q", content.Body)
	}
	if content.MsgType != messaging.MsgTypeText {
		t.Errorf("msgtype = %q, want text", content.MsgType)
	}
	if content.Format != "org.matrix.custom.html" {
		t.Errorf("format = %q", content.Format)
	}
	if !strings.HasPrefix(content.FormattedBody, "<strong>anon1234</strong>: ") {
		t.Errorf("formatted body = %q", content.FormattedBody)
	}
}

func TestRelayMessageMarkdown(t *testing.T) {
	content := relayMessage("anon1234", "some *emphasis* here")
	if !strings.Contains(content.FormattedBody, "<em>emphasis</em>") {
		t.Errorf("markdown not rendered: %q", content.FormattedBody)
	}
	// The plain body keeps the raw markdown.
	if content.Body != "anon1234: some *emphasis* here" {
		t.Errorf("body = %q", content.Body)
	}
}

func TestRelayMessageEscapesHTML(t *testing.T) {
	content := relayMessage("anon1234", "look: <script>alert(1)</script>")
	if strings.Contains(content.FormattedBody, "<script>") {
		t.Errorf("raw HTML leaked into formatted body: %q", content.FormattedBody)
	}
}

func TestMentionMessage(t *testing.T) {
	content := mentionMessage("anon1234", "hey anon5678")
	if content.MsgType != messaging.MsgTypeNotice {
		t.Errorf("msgtype = %q, want notice", content.MsgType)
	}
	if !strings.Contains(content.Body, "anon1234") {
		t.Errorf("body should carry the sender pseudonym: %q", content.Body)
	}
}
