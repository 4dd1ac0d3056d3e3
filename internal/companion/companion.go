// Package companion is Anna's conversational core. It picks the model that
// answers, feeds it the persona and recent memories, and records both turns.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/bootstrap"
	"github.com/jxucoder/anna/internal/localmodel"
	"github.com/jxucoder/anna/internal/logging"
	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/metrics"
	"github.com/jxucoder/anna/llm"
)

// Backend names the model family that produced a reply.
type Backend string

const (
	BackendMentor Backend = "mentor"
	BackendLocal  Backend = "local"
)

var (
	// ErrNoBackend is returned when neither the mentor nor a local model can
	// answer.
	ErrNoBackend = errors.New("no model available to answer")
	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is empty")
)

const defaultContextTurns = 10

// Reply is Anna's answer to one message.
type Reply struct {
	ConversationID string        `json:"conversation_id"`
	Text           string        `json:"reply"`
	Backend        Backend       `json:"backend"`
	Duration       time.Duration `json:"-"`
}

// Options configures a Companion.
type Options struct {
	// ContextTurns is how many earlier memories of the conversation are
	// passed to the model.
	ContextTurns int
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Companion answers messages.
type Companion struct {
	learner *bootstrap.Learner
	local   *localmodel.Selector
	memory  *memory.Store
	mentor  llm.Client
	opts    Options
	log     zerolog.Logger
}

// New creates a Companion. mentor may be nil.
func New(learner *bootstrap.Learner, local *localmodel.Selector, mem *memory.Store, mentor llm.Client, opts Options) *Companion {
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = defaultContextTurns
	}
	return &Companion{
		learner: learner,
		local:   local,
		memory:  mem,
		mentor:  mentor,
		opts:    opts,
		log:     logging.Component(opts.Logger, "companion"),
	}
}

// SetMetrics attaches collectors after construction, since the metrics
// stats collector itself reads Stats.
func (c *Companion) SetMetrics(m *metrics.Metrics) {
	c.opts.Metrics = m
}

// backend chooses who answers. Once autonomous only the local model may
// answer; before that the mentor is preferred.
func (c *Companion) backend(ctx context.Context) (Backend, error) {
	autonomous, err := c.learner.IsAutonomous(ctx)
	if err != nil {
		return "", err
	}
	if autonomous {
		if !c.local.Available(ctx) {
			return "", fmt.Errorf("%w: Anna is autonomous but the local model is unavailable", ErrNoBackend)
		}
		return BackendLocal, nil
	}
	if c.mentor != nil {
		return BackendMentor, nil
	}
	if c.local.Available(ctx) {
		return BackendLocal, nil
	}
	return "", ErrNoBackend
}

// Reply answers message from speaker within a conversation. An empty
// conversationID starts a new conversation.
func (c *Companion) Reply(ctx context.Context, conversationID, speaker, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply, err := c.reply(ctx, conversationID, speaker, message)
	if err != nil {
		c.opts.Metrics.ObserveError()
		return nil, err
	}
	c.opts.Metrics.ObserveReply(string(reply.Backend), reply.Duration)
	return reply, nil
}

func (c *Companion) reply(ctx context.Context, conversationID, speaker, message string) (*Reply, error) {
	backend, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}

	system, err := c.systemPrompt(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := c.memory.Recent(ctx, conversationID, c.opts.ContextTurns)
	if err != nil {
		return nil, err
	}
	prompt := buildPrompt(recent, speaker, message)

	start := time.Now()
	var text string
	switch backend {
	case BackendMentor:
		text, err = c.mentor.Complete(ctx, system, prompt)
	default:
		text, err = c.local.Generate(ctx, system, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", backend, err)
	}
	text = strings.TrimSpace(text)
	elapsed := time.Since(start)

	if err := c.memory.RememberExchange(ctx, conversationID, speaker, message, text); err != nil {
		c.log.Warn().Err(err).Str("conversation", conversationID).Msg("failed to remember exchange")
	}
	c.log.Debug().Str("backend", string(backend)).Dur("took", elapsed).Str("conversation", conversationID).Msg("replied")

	return &Reply{ConversationID: conversationID, Text: text, Backend: backend, Duration: elapsed}, nil
}

func (c *Companion) systemPrompt(ctx context.Context) (string, error) {
	stats, err := c.learner.Stats(ctx)
	if err != nil {
		return "", err
	}
	fr, _ := stats["vocabulary_fr_count"].(int)
	en, _ := stats["vocabulary_en_count"].(int)
	return Persona(fr, en), nil
}

func buildPrompt(recent []memory.Entry, speaker, message string) string {
	var b strings.Builder
	if ctx := memory.FormatContext(recent); ctx != "" {
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	if speaker != "" {
		fmt.Fprintf(&b, "Message from %s: %s", speaker, message)
	} else {
		fmt.Fprintf(&b, "Message: %s", message)
	}
	return b.String()
}

// Stats merges learner, local model and memory statistics into one flat map
// with bootstrap.*, local_model.* and memory.* keys.
func (c *Companion) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	parts := []struct {
		prefix string
		stats  func(context.Context) (map[string]any, error)
	}{
		{"bootstrap", c.learner.Stats},
		{"local_model", c.local.Stats},
		{"memory", c.memory.Stats},
	}
	for _, p := range parts {
		stats, err := p.stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s stats: %w", p.prefix, err)
		}
		for k, v := range stats {
			out[p.prefix+"."+k] = v
		}
	}
	out["mentor_configured"] = c.mentor != nil
	return out, nil
}

var quitWords = map[string]bool{
	"bye":       true,
	"au revoir": true,
	"quit":      true,
	"exit":      true,
	"adieu":     true,
}

// IsQuit reports whether message ends a chat session.
func IsQuit(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, " .!")
	return quitWords[m]
}
