// Package assistant answers free-text questions about the user's expenses
// with a generative-language model.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"expense-ledger/internal/format"
	"expense-ledger/internal/models"
)

// Roles of a transcript message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Fallback replies.
const (
	EmptyReply   = "Sorry, I didn't quite understand that."
	FailedPrefix = "Oops! Something went wrong. "
)

// Greeting opens every conversation.
const Greeting = `👋 **Hello there!**
Welcome back to your **Expense Tracker Assistant** 💰

I'm here to help you manage your finances with ease.
You can ask me things like:

- 💵 *"Add an expense for groceries"*
- 📊 *"Show my total expenses this week"*
- 🧾 *"List my health-related expenses"*

Let's make tracking your spending simple and smart! 🚀`

// Provider sends one prompt and returns the generated text.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Message is one transcript entry.
type Message struct {
	ID        string
	Role      string
	Text      string
	CreatedAt time.Time
}

// BuildPrompt embeds the expenses as JSON ahead of the user's question.
func BuildPrompt(expenses []models.Expense, question string) (string, error) {
	if expenses == nil {
		expenses = []models.Expense{}
	}
	dump, err := json.Marshal(expenses)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User's expenses: %s.\n", dump)
	b.WriteString("Please answer the following query in markdown format, using clear lists and bold labels.\n")
	b.WriteString("Query:\n\n")
	b.WriteString(question)
	return b.String(), nil
}

// Conversation is a chat transcript. Each turn resends the full expense list;
// earlier turns are not sent to the model.
type Conversation struct {
	provider Provider
	expenses func() []models.Expense
	now      func() time.Time

	mu       sync.Mutex
	messages []Message
}

// NewConversation starts a transcript with the greeting. expenses is read on
// every turn.
func NewConversation(p Provider, expenses func() []models.Expense) *Conversation {
	c := &Conversation{provider: p, expenses: expenses, now: time.Now}
	c.messages = []Message{{ID: format.NewID(), Role: RoleAssistant, Text: Greeting, CreatedAt: c.now()}}
	return c
}

// Messages returns the transcript, oldest first.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Ask appends the question and the reply to the transcript and returns the
// reply. Provider failures become an assistant message, never an error.
func (c *Conversation) Ask(ctx context.Context, question string) Message {
	c.append(RoleUser, question)

	reply, err := c.generate(ctx, question)
	if err != nil {
		slog.Error("assistant request failed", "error", err)
		return c.append(RoleAssistant, FailedPrefix+err.Error())
	}
	if strings.TrimSpace(reply) == "" {
		reply = EmptyReply
	}
	return c.append(RoleAssistant, reply)
}

func (c *Conversation) generate(ctx context.Context, question string) (string, error) {
	var expenses []models.Expense
	if c.expenses != nil {
		expenses = c.expenses()
	}
	prompt, err := BuildPrompt(expenses, question)
	if err != nil {
		return "", err
	}
	return c.provider.Generate(ctx, prompt)
}

func (c *Conversation) append(role, text string) Message {
	m := Message{ID: format.NewID(), Role: role, Text: text, CreatedAt: c.now()}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return m
}
