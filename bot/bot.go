// Package bot runs the chat gateway: a Telegram long-polling loop that drives
// the in-chat upload conversation and delivers relay posts to destination
// channels. The loop is the relay outbox's sole consumer; attachment uploads
// run on worker goroutines so the loop never blocks behind a download or a
// media-host call (the Telegram client is safe for concurrent use).
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/akimotok/clipcast/channels"
	"github.com/akimotok/clipcast/config"
	"github.com/akimotok/clipcast/media"
	"github.com/akimotok/clipcast/relay"
	"github.com/akimotok/clipcast/upload"
)

const destCallbackPrefix = "dest:"

// API is the slice of the Telegram client the gateway needs. *tgbotapi.BotAPI
// satisfies it; tests substitute a fake.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot holds the gateway's dependencies and conversation state.
type Bot struct {
	api      API
	pipeline *upload.Pipeline
	resolver *channels.Resolver
	relay    *relay.Relay
	pending  *pendingStore

	httpClient    *http.Client
	baseURL       string
	titleRequired bool

	workers sync.WaitGroup
}

// New wires a Bot from configuration. The relay's outbox is consumed by Run.
func New(api API, cfg *config.Config, pipe *upload.Pipeline, rly *relay.Relay) *Bot {
	return &Bot{
		api:           api,
		pipeline:      pipe,
		resolver:      pipe.Resolver,
		relay:         rly,
		pending:       newPendingStore(cfg.PromptTTL, cfg.PendingTTL),
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		baseURL:       cfg.BaseURL,
		titleRequired: cfg.TitleRequired,
	}
}

// Start connects to Telegram and runs the gateway loop until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, pipe *upload.Pipeline, rly *relay.Relay) error {
	if err := cfg.ValidateBotReady(); err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	slog.Info("chat gateway connected", slog.String("username", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	b := New(api, cfg, pipe, rly)
	b.run(ctx, updates)
	b.workers.Wait()
	return nil
}

// run serves inbound updates and outbound relay posts from one loop.
func (b *Bot) run(ctx context.Context, updates <-chan tgbotapi.Update) {
	go b.pending.sweepLoop(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-b.relay.Posts():
			p.Finish(b.deliver(p))
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// deliver posts a relay message into its destination channel.
func (b *Bot) deliver(p relay.Post) error {
	msg := tgbotapi.NewMessage(p.ChatID, p.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "chat not found") ||
			strings.Contains(lower, "not enough rights") ||
			strings.Contains(lower, "bot was kicked") ||
			strings.Contains(lower, "forbidden") {
			return &relay.ChannelError{ChatID: p.ChatID, Msg: "invalid channel", Err: err}
		}
		return &relay.ChannelError{ChatID: p.ChatID, Msg: "send failed", Err: err}
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "upload":
			b.handleUploadCommand(msg)
		case "skip":
			b.handleSkip(msg)
		case "cancel":
			b.pending.remove(msg.From.ID)
			b.reply(msg.Chat.ID, "Upload cancelled.")
		}
		return
	}

	// Plain messages are only inspected while a conversation is in flight.
	p, ok := b.pending.get(msg.From.ID)
	if !ok {
		return
	}
	switch p.Stage {
	case stageTitle:
		b.handleTitle(msg, p)
	case stageAttachment:
		b.handleAttachment(ctx, msg, p)
	}
}

// handleUploadCommand starts the conversation. "/upload <channel> [title]"
// jumps straight to the attachment prompt; bare "/upload" offers the
// destination keyboard plus a link to the web form when one is configured.
func (b *Bot) handleUploadCommand(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) > 0 {
		key := args[0]
		if _, err := b.resolver.Resolve(key); err != nil {
			b.reply(msg.Chat.ID, fmt.Sprintf("Unknown channel %q. Choices: %s.", key, strings.Join(b.resolver.Keys(), ", ")))
			return
		}
		title := strings.Join(args[1:], " ")
		if title == "" && b.titleRequired {
			b.pending.put(msg.From.ID, &pending{
				Stage:    stageTitle,
				ChatID:   msg.Chat.ID,
				DestKey:  key,
				Uploader: displayName(msg.From),
			})
			b.reply(msg.Chat.ID, "Reply with a title for the clip.")
			return
		}
		b.pending.put(msg.From.ID, &pending{
			Stage:    stageAttachment,
			ChatID:   msg.Chat.ID,
			DestKey:  key,
			Title:    title,
			Uploader: displayName(msg.From),
		})
		b.reply(msg.Chat.ID, "Now attach the video as your next message.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(b.resolver.Keys())+1)
	for _, key := range b.resolver.Keys() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(key, destCallbackPrefix+key),
		))
	}
	if b.baseURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("use the web form", b.baseURL+"/"),
		))
	}
	prompt := tgbotapi.NewMessage(msg.Chat.ID, "Pick a destination channel:")
	prompt.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(prompt); err != nil {
		slog.Error("failed to send destination prompt", slog.Any("err", err))
	}
}

// handleCallback records the picked destination and moves on to the title
// prompt.
func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || !strings.HasPrefix(cq.Data, destCallbackPrefix) {
		return
	}
	key := strings.TrimPrefix(cq.Data, destCallbackPrefix)
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Debug("callback ack failed", slog.Any("err", err))
	}
	if _, err := b.resolver.Resolve(key); err != nil {
		b.reply(cq.Message.Chat.ID, fmt.Sprintf("Unknown channel %q.", key))
		return
	}
	b.pending.put(cq.From.ID, &pending{
		Stage:    stageTitle,
		ChatID:   cq.Message.Chat.ID,
		DestKey:  key,
		Uploader: displayName(cq.From),
	})
	if b.titleRequired {
		b.reply(cq.Message.Chat.ID, "Reply with a title for the clip.")
	} else {
		b.reply(cq.Message.Chat.ID, "Reply with a title for the clip, or send /skip.")
	}
}

func (b *Bot) handleSkip(msg *tgbotapi.Message) {
	p, ok := b.pending.get(msg.From.ID)
	if !ok || p.Stage != stageTitle {
		return
	}
	if b.titleRequired {
		b.reply(msg.Chat.ID, "A title is required here. Reply with one.")
		return
	}
	p.Stage = stageAttachment
	b.pending.put(msg.From.ID, p)
	b.reply(msg.Chat.ID, "Now attach the video as your next message.")
}

func (b *Bot) handleTitle(msg *tgbotapi.Message, p *pending) {
	title := strings.TrimSpace(msg.Text)
	if title == "" {
		b.reply(msg.Chat.ID, "That doesn't look like a title. Reply with plain text.")
		return
	}
	p.Title = title
	p.Stage = stageAttachment
	b.pending.put(msg.From.ID, p)
	b.reply(msg.Chat.ID, "Now attach the video as your next message.")
}

// handleAttachment consumes the PendingUpload on the first video attachment,
// then hands the download-upload-relay work to its own goroutine. The gateway
// loop must stay free: the pipeline's relay send completes only when this same
// loop picks it off the outbox, and other users' updates keep arriving while a
// multi-minute upload runs. Wrong attachments get a corrective reply and leave
// the record in place.
func (b *Bot) handleAttachment(ctx context.Context, msg *tgbotapi.Message, p *pending) {
	fileID, filename, ok := videoAttachment(msg)
	if !ok {
		b.reply(msg.Chat.ID, "That's not a video. Attach a video file to continue.")
		return
	}
	// Consumed now: the record never lingers to capture an unrelated future
	// attachment, success or failure.
	b.pending.remove(msg.From.ID)

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		b.processAttachment(ctx, msg.Chat.ID, fileID, filename, p)
	}()
}

func (b *Bot) processAttachment(ctx context.Context, chatID int64, fileID, filename string, p *pending) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		b.reply(chatID, "Couldn't fetch your attachment from Telegram, try again.")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.reply(chatID, "Couldn't fetch your attachment from Telegram, try again.")
		return
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.reply(chatID, "Couldn't fetch your attachment from Telegram, try again.")
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close attachment body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b.reply(chatID, "Couldn't fetch your attachment from Telegram, try again.")
		return
	}

	res, err := b.pipeline.Run(ctx, upload.Request{
		Filename:    filename,
		Body:        resp.Body,
		Title:       p.Title,
		Destination: p.DestKey,
		Author:      p.Uploader,
	})
	if err != nil {
		b.reply(chatID, userMessage(err))
		return
	}
	b.reply(chatID, "Uploaded and posted: "+res.URL)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("failed to send reply", slog.Int64("chat_id", chatID), slog.Any("err", err))
	}
}

// videoAttachment extracts the file id and name of a video attachment, either
// a native video or a document with a video mime type.
func videoAttachment(msg *tgbotapi.Message) (fileID, filename string, ok bool) {
	if msg.Video != nil {
		name := msg.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		return msg.Video.FileID, name, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "video/") {
		name := msg.Document.FileName
		if name == "" {
			name = "video.mp4"
		}
		return msg.Document.FileID, name, true
	}
	return "", "", false
}

// userMessage turns a pipeline failure into a reply for the requester.
func userMessage(err error) string {
	var ve *upload.ValidationError
	if errors.As(err, &ve) {
		return "Upload rejected: " + ve.Msg + "."
	}
	var ue *media.UploadError
	if errors.As(err, &ue) {
		return "The media host rejected the upload: " + ue.Msg + "."
	}
	var ce *relay.ChannelError
	if errors.As(err, &ce) {
		return "Uploaded, but posting to the channel failed."
	}
	return "Something went wrong handling your upload."
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
