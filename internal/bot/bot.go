package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/querychat/querychat/internal/engine"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/sqlrun"
)

const (
	instructionsMessage = "This is a centralised student management system!"
	entryPrompt         = "You can ask for any information from the database or " +
		"insert any information into the database in your natural language!\n\n" +
		"for example: Show all students in division B."
	cancelledMessage = "Your query has been cancelled. To start a new query use command /aiquery"

	modelUnavailableApology = "Sorry, I couldn't reach the language model. Please try again."
	malformedReplyApology   = "Sorry, the language model returned a reply I couldn't use. Please try again."
	genericApology          = "Sorry, something went wrong while handling your query. Please try again."
)

// Transport is the subset of the Telegram API the dispatcher needs.
type Transport interface {
	GetMe(ctx context.Context) (User, error)
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot long-polls for updates and serializes turns per chat. Each chat gets
// its own queue and worker, so one chat's blocking model call never stalls
// another chat.
type Bot struct {
	Transport Transport
	Engine    *engine.Engine
	Logger    *slog.Logger

	mu       sync.Mutex
	queues   map[int64]chan Message
	awaiting map[int64]bool
	wg       sync.WaitGroup
}

func New(transport Transport, eng *engine.Engine, logger *slog.Logger) *Bot {
	return &Bot{
		Transport: transport,
		Engine:    eng,
		Logger:    logger,
		queues:    make(map[int64]chan Message),
		awaiting:  make(map[int64]bool),
	}
}

// Run polls for updates until ctx is cancelled, then drains the per-chat
// workers.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.Transport.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot identity: %w", err)
	}
	if b.Logger != nil {
		b.Logger.InfoContext(ctx, "bot online",
			slog.Int64("bot_id", me.ID),
			slog.String("username", me.Username),
		)
	}

	var offset int64
	for {
		if ctx.Err() != nil {
			break
		}

		updates, err := b.Transport.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if b.Logger != nil {
				b.Logger.WarnContext(ctx, "poll updates failed", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
				continue
			}
			b.dispatch(ctx, *update.Message)
		}
	}

	b.wg.Wait()
	return nil
}

// dispatch hands the message to the chat's worker, starting one on first
// contact. A full queue gets an immediate busy reply instead of blocking the
// poll loop.
func (b *Bot) dispatch(ctx context.Context, message Message) {
	b.mu.Lock()
	queue, ok := b.queues[message.Chat.ID]
	if !ok {
		queue = make(chan Message, 16)
		b.queues[message.Chat.ID] = queue
		b.wg.Add(1)
		go b.worker(ctx, message.Chat.ID, queue)
	}
	b.mu.Unlock()

	select {
	case queue <- message:
	default:
		b.send(ctx, message.Chat.ID, "I'm still working on your previous messages, please wait a moment.")
	}
}

func (b *Bot) worker(ctx context.Context, chatID int64, queue chan Message) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-queue:
			b.handleMessage(ctx, chatID, message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, chatID int64, message Message) {
	text := strings.TrimSpace(message.Text)
	sessionID := sessionIDForChat(chatID)

	switch command(text) {
	case "/start":
		b.send(ctx, chatID, instructionsMessage)
	case "/aiquery":
		b.setAwaiting(chatID, true)
		b.send(ctx, chatID, entryPrompt)
	case "/cancel":
		b.Engine.Cancel(sessionID)
		b.setAwaiting(chatID, false)
		b.send(ctx, chatID, cancelledMessage)
	default:
		if !b.isAwaiting(chatID) && !b.Engine.ActiveSession(sessionID) {
			b.send(ctx, chatID, instructionsMessage)
			return
		}
		b.handleTurn(ctx, chatID, sessionID, text)
	}
}

func (b *Bot) handleTurn(ctx context.Context, chatID int64, sessionID, text string) {
	turn, err := b.Engine.HandleTurn(ctx, sessionID, text)
	if err != nil {
		b.send(ctx, chatID, apologyFor(err))
		return
	}
	if !turn.Resolved {
		b.send(ctx, chatID, turn.Text)
		return
	}
	b.setAwaiting(chatID, false)
	b.send(ctx, chatID, fmt.Sprintf("Here is the result of your query:\n\n%s\n\nTo start a new query use command /aiquery", turn.Text))
}

// apologyFor maps engine failures to user-visible messages. The session is
// preserved by the engine on all of these, so the user can simply retry.
func apologyFor(err error) string {
	var execErr *sqlrun.ExecError
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return modelUnavailableApology
	case errors.Is(err, llm.ErrMalformedReply):
		return malformedReplyApology
	case errors.As(err, &execErr):
		return fmt.Sprintf("Sorry, your query could not be executed: %v. Please rephrase and try again.", execErr.Err)
	default:
		return genericApology
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.Transport.SendMessage(ctx, chatID, text); err != nil && b.Logger != nil {
		b.Logger.WarnContext(ctx, "send message failed",
			slog.Int64("chat_id", chatID),
			slog.Any("error", err),
		)
	}
}

func (b *Bot) setAwaiting(chatID int64, awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if awaiting {
		b.awaiting[chatID] = true
		return
	}
	delete(b.awaiting, chatID)
}

func (b *Bot) isAwaiting(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaiting[chatID]
}

func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	command := strings.Fields(text)[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command
}

func sessionIDForChat(chatID int64) string {
	return fmt.Sprintf("chat-%d", chatID)
}
