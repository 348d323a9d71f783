// Package notify sends a short summary to operators after every sweep.
//
// The only transport is Telegram. With notifications disabled the Notifier
// still formats summaries but drops them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"sort"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"questsweep/internal/eventbus"
	"questsweep/internal/sweep"
	logx "questsweep/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

type Config struct {
	Enabled  bool
	Token    string
	ChatID   int64
	ThreadID int
	// OnlyFailures suppresses summaries of sweeps where every account succeeded.
	OnlyFailures bool

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Sender delivers one formatted message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Notifier struct {
	cfg    Config
	sender Sender
	log    logx.Logger
}

// New builds a Notifier. A disabled config yields a Notifier whose Notify
// returns ErrDisabled.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return NewWithSender(cfg, nil, log), nil
	}
	tg, err := NewTelegram(cfg.Token, cfg.ChatID, cfg.ThreadID)
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, tg, log), nil
}

func NewWithSender(cfg Config, sender Sender, log logx.Logger) *Notifier {
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{cfg: cfg, sender: sender, log: log}
}

// Notify sends the summary of rep.
func (n *Notifier) Notify(ctx context.Context, rep sweep.Report) error {
	if n.sender == nil {
		return ErrDisabled
	}
	if n.cfg.OnlyFailures && rep.Failed == 0 {
		return nil
	}
	return n.sendWithRetry(ctx, Summary(rep))
}

// Run delivers a summary for every finished sweep until ctx is done.
func (n *Notifier) Run(ctx context.Context, bus eventbus.Bus) {
	if n.sender == nil {
		return
	}
	events, unsub := bus.Subscribe(4)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.SweepFinished {
				continue
			}
			rep, ok := e.Data.(sweep.Report)
			if !ok {
				continue
			}
			if err := n.Notify(ctx, rep); err != nil && !errors.Is(err, context.Canceled) {
				n.log.Warn("sweep summary not sent", logx.String("sweep", rep.ID), logx.Err(err))
			}
		}
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, text string) error {
	attempts := 1 + n.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
		err := n.sender.Send(callCtx, text)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		n.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(n.cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("send after %d attempts: %w", attempts, lastErr)
}

// retryDelay is exponential from RetryBase, capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	j := 0.7 + rand.Float64()*0.6
	return min(time.Duration(float64(d)*j), cfg.RetryMaxDelay)
}

// Summary renders rep as Telegram HTML.
func Summary(rep sweep.Report) string {
	var b strings.Builder
	id := rep.ID
	if len(id) > 8 {
		id = id[:8]
	}
	fmt.Fprintf(&b, "<b>Sweep %s</b>\n", html.EscapeString(id))
	fmt.Fprintf(&b, "Accounts: %d ok, %d failed\n", rep.Succeeded, rep.Failed)

	var rolled int
	var credits float64
	var failed []sweep.Outcome
	for _, o := range rep.Outcomes {
		if o.Rolled {
			rolled++
		}
		credits += o.Credits
		if !o.Success {
			failed = append(failed, o)
		}
	}
	fmt.Fprintf(&b, "Rolled: %d | Credits: %s\n", rolled, formatCredits(credits))

	next := rep.Wait.Until.Local().Format("2006-01-02 15:04")
	fmt.Fprintf(&b, "Next sweep: %s (in %s)", next, rep.Wait.Duration.Round(time.Minute))
	switch {
	case rep.Wait.Scheduled:
		b.WriteString(" by schedule")
	case rep.Wait.Account != "":
		fmt.Fprintf(&b, " set by %s", html.EscapeString(rep.Wait.Account))
	}
	b.WriteString("\n")

	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i].Index < failed[j].Index })
		b.WriteString("\n<b>Failed</b>\n")
		for _, o := range failed {
			reason := "unknown error"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			fmt.Fprintf(&b, "• %s: %s\n", html.EscapeString(o.Label), html.EscapeString(reason))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCredits(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// Telegram sends messages to one chat (and optional forum thread).
type Telegram struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
}

func NewTelegram(token string, chatID int64, threadID int) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, threadID: threadID}, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.threadID,
	})
	return err
}
