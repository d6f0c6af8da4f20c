package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/Tyrowin/lanchat/internal/nickname"
)

const (
	answerInstruction = "Answer concisely and directly. Only provide the answer, no extra commentary."
	systemNickname    = "system"
	promptQueueSize   = 8
	outboxSize        = 16
	writeWait         = 10 * time.Second
)

var interrogatives = []string{
	"how", "what", "why", "when", "where", "who", "is", "are", "can", "do", "does",
	"did", "will", "should", "could", "would", "may", "might",
}

var trivia = []string{
	"Did you know? The honeybee is the only insect that produces food eaten by humans.",
	"Fun fact: The Eiffel Tower can be 15 cm taller during hot days.",
	"Reminder: Stay hydrated!",
	"Did you know? Octopuses have three hearts.",
	"Tip: Use @username to get someone's attention.",
	"Fact: Bananas are berries, but strawberries aren't.",
	"Did you know? A group of flamingos is called a 'flamboyance'.",
	"Tip: You can use emojis in your messages!",
	"Fact: The shortest war in history lasted 38 minutes.",
}

// ChatMessage is the payload of a chat event as the hub sends it.
type ChatMessage struct {
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Participant is a chat member driven by a language model.
type Participant struct {
	cfg      Config
	log      *slog.Logger
	replies  Replier
	dialer   *websocket.Dialer
	nickname string
	roll     func() float64
}

// NewParticipant picks a nickname that stays fixed across reconnects.
func NewParticipant(cfg Config, replies Replier, log *slog.Logger) *Participant {
	if log == nil {
		log = slog.Default()
	}
	nick := nickname.Generate()
	return &Participant{
		cfg:      cfg,
		log:      log.With("nickname", nick),
		replies:  replies,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		nickname: nick,
		roll:     rand.Float64,
	}
}

// Nickname is the name the participant joins with.
func (p *Participant) Nickname() string { return p.nickname }

// Run keeps the participant connected until ctx is cancelled. A lost or
// refused connection is retried after ReconnectWait.
func (p *Participant) Run(ctx context.Context) error {
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			p.log.Info("bot.stopped")
			return nil
		}
		p.log.Warn("bot.connection_lost", "err", err, "retry_in", p.cfg.ReconnectWait)

		select {
		case <-ctx.Done():
			p.log.Info("bot.stopped")
			return nil
		case <-time.After(p.cfg.ReconnectWait):
		}
	}
}

// session joins once and serves one connection until it fails.
func (p *Participant) session(ctx context.Context) error {
	conn, resp, err := p.dialer.DialContext(ctx, p.cfg.ServerURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dialing %s: %w", p.cfg.ServerURL, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	if err := p.write(conn, "join", map[string]string{"nickname": p.nickname}); err != nil {
		return fmt.Errorf("joining: %w", err)
	}
	p.log.Info("bot.joined", "server", p.cfg.ServerURL)

	prompts := make(chan string, promptQueueSize)
	outbox := make(chan string, outboxSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.answer(sessCtx, prompts, outbox)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		p.writeLoop(sessCtx, conn, outbox)
	}()

	err = p.readLoop(conn, prompts, outbox)
	cancel()
	wg.Wait()
	return err
}

func (p *Participant) readLoop(conn *websocket.Conn, prompts, outbox chan<- string) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}

		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			var f frame
			if err := json.Unmarshal(line, &f); err != nil || f.Event != "chat" {
				continue
			}
			var msg ChatMessage
			if err := json.Unmarshal(f.Data, &msg); err != nil {
				continue
			}

			prompt, extra := p.Consider(msg)
			if prompt != "" {
				p.log.Info("bot.responding", "to", msg.Nickname, "text", msg.Text)
				enqueue(p.log, prompts, prompt)
			}
			if extra != "" {
				enqueue(p.log, outbox, extra)
			}
		}
	}
}

// answer asks the model one prompt at a time so the read loop keeps
// answering pings while a slow model thinks.
func (p *Participant) answer(ctx context.Context, prompts <-chan string, outbox chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case prompt := <-prompts:
			reply := p.replies.Reply(ctx, prompt)
			p.log.Debug("bot.reply_generated", "reply", reply)
			select {
			case outbox <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Participant) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-outbox:
			if err := p.write(conn, "chat", map[string]string{"text": text}); err != nil {
				p.log.Warn("bot.write_failed", "err", err)
				return
			}
		}
	}
}

func (p *Participant) write(conn *websocket.Conn, event string, data any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

func enqueue(log *slog.Logger, ch chan<- string, text string) {
	select {
	case ch <- text:
	default:
		log.Warn("bot.queue_full", "dropped", text)
	}
}

// Consider decides what to post in reaction to msg. prompt is the model
// input for a reply and extra is a trivia line; either may be empty.
func (p *Participant) Consider(msg ChatMessage) (prompt, extra string) {
	if msg.Nickname == p.nickname || strings.EqualFold(msg.Nickname, systemNickname) {
		return "", ""
	}
	lower := strings.ToLower(msg.Text)
	if strings.Contains(lower, "joined") || strings.Contains(lower, "left") {
		return "", ""
	}

	if p.addressed(msg.Text) || p.roll() < p.cfg.ResponseProbability {
		prompt = msg.Text + "\n" + answerInstruction
	}
	if p.roll() < p.cfg.TriviaProbability {
		extra = lo.Sample(trivia)
	}
	return prompt, extra
}

// addressed reports whether text is aimed at the participant: it names the
// full nickname or display name, uses one of the nickname's words, or asks a
// question containing any nickname part including the numeric suffix.
func (p *Participant) addressed(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(p.nickname)) ||
		(p.cfg.FullName != "" && strings.Contains(lower, strings.ToLower(p.cfg.FullName))) {
		return true
	}

	textWords := words(text)
	nameParts := words(p.nickname)
	nameWords := lo.Reject(nameParts, func(part string, _ int) bool {
		_, err := strconv.Atoi(part)
		return err == nil
	})
	if lo.Some(textWords, nameWords) {
		return true
	}
	return lo.Some(textWords, nameParts) && isQuestion(text)
}

func isQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	w := words(text)
	return len(w) > 0 && lo.Contains(interrogatives, w[0])
}

// words lowercases s and splits it into runs of letters and digits.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
