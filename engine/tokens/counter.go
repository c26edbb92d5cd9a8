// Package tokens implements the Token Counter (C3): tiktoken-backed token
// estimation used to size LLM requests and check usage quotas before a
// call is made.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// Message is one conversation turn, keyed the same as the wire format.
type Message struct {
	Role    string
	Content string
}

// Counter estimates token counts for text and conversations.
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter resolves the encoding for model, falling back to cl100k_base
// when the model isn't one tiktoken-go recognizes directly — mirroring the
// encoding_for_model/KeyError fallback pattern, since every current chat
// model tokenizes close enough to gpt-3.5-turbo/cl100k_base for estimation
// purposes.
func NewCounter(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Counter{encoding: enc}, nil
}

// Count returns the token length of text, falling back to a len/4
// estimate if the encoder is unavailable.
func (c *Counter) Count(text string) int {
	if c.encoding == nil {
		return fallbackCount(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountConversation sums per-message token costs plus per-message and
// per-conversation formatting overhead (4 tokens per message, 3 overall),
// mirroring the chat-completion framing cost most providers charge for.
func (c *Counter) CountConversation(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Role)
		total += c.Count(m.Content)
		total += 4
	}
	total += 3
	return total
}

func fallbackCount(text string) int {
	return len(text) / 4
}
