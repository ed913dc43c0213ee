package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapeUsage(t *testing.T) {
	var r ForwardResult

	scrapeUsage([]byte(`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":34}}`), &r)
	assert.Equal(t, 12, r.PromptTokens)
	assert.Equal(t, 34, r.CompletionTokens)

	// Payloads without usage leave the counts alone.
	scrapeUsage([]byte(`{"choices":[{"delta":{"content":"x"}}]}`), &r)
	assert.Equal(t, 12, r.PromptTokens)

	// Garbage is ignored.
	scrapeUsage([]byte(`not json`), &r)
	assert.Equal(t, 12, r.PromptTokens)
}

func TestFeedPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	f := NewFeed(testLogger())
	for i := 0; i < 1000; i++ {
		f.Publish("routed", map[string]int{"n": i})
	}
	assert.Equal(t, 0, f.Subscribers())
}
