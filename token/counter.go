// Package token estimates context window usage. The default heuristic
// counter approximates provider tokenization closely enough for threshold
// decisions; exact counting can be plugged in through the Counter interface.
package token

import (
	"unicode/utf8"

	"github.com/agentloop/agentloop/core"
)

const (
	// perMessageOverhead covers the role/control framing around each message.
	perMessageOverhead = 4
	// assistantPriming is added once per message for the reply scaffold.
	assistantPriming = 2
	// conversationPriming is added once per message list.
	conversationPriming = 3
	// charsPerToken is the rough ratio used to estimate text tokens.
	charsPerToken = 4
)

// Counter estimates token usage of text and messages.
type Counter interface {
	CountText(text string) int
	CountMessage(msg core.Message) int
	CountMessages(msgs []core.Message) int
}

// HeuristicCounter estimates ~4 characters per token plus the per-message
// and per-conversation overheads of chat-format prompts.
type HeuristicCounter struct{}

// NewHeuristicCounter returns the default counter.
func NewHeuristicCounter() *HeuristicCounter { return &HeuristicCounter{} }

// CountText estimates tokens for a plain string.
func (c *HeuristicCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	tokens := n / charsPerToken
	if n%charsPerToken != 0 {
		tokens++
	}
	return tokens
}

// CountMessage estimates tokens for one message, including its tool call
// payloads and the chat framing overhead.
func (c *HeuristicCounter) CountMessage(msg core.Message) int {
	tokens := perMessageOverhead
	tokens += c.CountText(msg.Content)
	for _, tc := range msg.ToolCalls {
		tokens += c.CountText(tc.Name)
		tokens += c.CountText(string(tc.Arguments))
	}
	if msg.ToolCallID != "" {
		tokens += c.CountText(msg.ToolCallID)
	}
	tokens += assistantPriming
	return tokens
}

// CountMessages estimates tokens for a full message list.
func (c *HeuristicCounter) CountMessages(msgs []core.Message) int {
	total := conversationPriming
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

// TruncateText trims text so its estimate fits maxTokens. Truncation happens
// on rune boundaries.
func (c *HeuristicCounter) TruncateText(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if c.CountText(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	limit := maxTokens * charsPerToken
	if limit > len(runes) {
		limit = len(runes)
	}
	return string(runes[:limit])
}
