package llm

import (
	"context"
	"sync"

	"github.com/shopsteward/steward/internal/errors"
)

// ScriptedClient replays canned responses in order and records every
// request it sees. Test use only.
type ScriptedClient struct {
	mu       sync.Mutex
	script   []scriptEntry
	Requests []Request
}

type scriptEntry struct {
	text string
	err  error
}

// NewScripted creates an empty scripted client; chain Reply/Fail to
// queue responses.
func NewScripted() *ScriptedClient {
	return &ScriptedClient{}
}

// Reply queues a successful response.
func (c *ScriptedClient) Reply(text string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scriptEntry{text: text})
	return c
}

// Fail queues an error response.
func (c *ScriptedClient) Fail(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scriptEntry{err: err})
	return c
}

// Generate pops the next scripted response. An exhausted script is an
// error so tests notice unexpected extra calls.
func (c *ScriptedClient) Generate(_ context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if len(c.script) == 0 {
		return "", errors.New(errors.ErrCodeLLMResponseInvalid, "scripted client exhausted", nil)
	}
	entry := c.script[0]
	c.script = c.script[1:]
	return entry.text, entry.err
}

// Model identifies the fake in logs.
func (c *ScriptedClient) Model() string { return "scripted" }

// CallCount returns how many requests have been made.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
