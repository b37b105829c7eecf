package telegram

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evalbot/evalbot/internal/controller"
)

const (
	evalCommand           = "/bval"
	processingMessageText = "<i>Processing...</i>"
	pollTimeoutSeconds    = 30
	loopRetryDelay        = 5 * time.Second
)

// Handler runs the update loop and dispatches messages and callback queries
// to the controller. Chat I/O failures are logged and retried at the loop
// level; they never reach storage.
type Handler struct {
	client     *Client
	controller *controller.Controller
}

func NewHandler(client *Client, ctrl *controller.Controller) *Handler {
	return &Handler{client: client, controller: ctrl}
}

// Run long-polls getUpdates until ctx is cancelled. Loop-level errors back
// off and retry; per-update errors are logged and skipped.
func (h *Handler) Run(ctx context.Context) {
	var offset int64
	for {
		err := h.poll(ctx, &offset)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("update loop error", "error", err)
			select {
			case <-time.After(loopRetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Handler) poll(ctx context.Context, offset *int64) error {
	updates, err := h.client.GetUpdates(ctx, &GetUpdatesRequest{
		Offset:  *offset,
		Timeout: pollTimeoutSeconds,
	})
	if err != nil {
		return err
	}
	for _, update := range updates {
		if next := update.UpdateID + 1; next > *offset {
			*offset = next
		}

		switch {
		case update.CallbackQuery != nil:
			if err := h.handleCallbackQuery(ctx, update.CallbackQuery); err != nil {
				slog.Error("callback query error", "error", err)
			}
		case update.Message != nil:
			h.dispatchMessage(ctx, update.Message)
		case update.EditedMessage != nil:
			h.dispatchMessage(ctx, update.EditedMessage)
		}
	}
	return nil
}

func (h *Handler) dispatchMessage(ctx context.Context, msg *Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	command, ok := strings.CutPrefix(text, evalCommand)
	if !ok {
		return
	}
	err := h.handleNewMessage(ctx, msg.Chat.ID, msg.MessageID, msg.From.ID, strings.TrimLeft(command, " \t\n"))
	if err != nil {
		slog.Error("new message error", "chat_id", msg.Chat.ID, "msg_id", msg.MessageID, "error", err)
	}
}

// handleNewMessage starts an evaluation, replies with (or edits into) the
// "Processing..." message, and finishes asynchronously so the update loop
// stays responsive.
func (h *Handler) handleNewMessage(ctx context.Context, chatID, userMsgID, userID int64, command string) error {
	evalID := uuid.NewString()
	slog.Info("new eval", "eval_id", evalID, "chat_id", chatID, "user_msg_id", userMsgID, "user_id", userID)

	processing, err := h.controller.NewEval(ctx, chatID, userMsgID, userID, command)
	if err != nil {
		_, sendErr := h.client.SendMessage(ctx, &SendMessageRequest{
			ChatID:           chatID,
			Text:             "<i>Fatal error: " + html.EscapeString(err.Error()) + "</i>",
			ParseMode:        "HTML",
			ReplyToMessageID: userMsgID,
		})
		return sendErr
	}

	// Edit the slot's existing message when there is one; fall back to
	// sending a fresh reply when it is gone or was never sent.
	var evalMsgID int64
	for {
		if processing.EvalMsgID != nil {
			edited, err := h.client.EditMessageText(ctx, &EditMessageTextRequest{
				ChatID:    chatID,
				MessageID: *processing.EvalMsgID,
				Text:      processingMessageText,
				ParseMode: "HTML",
			})
			if err != nil {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					return err
				}
				edited = nil
			}
			if edited == nil {
				processing.EvalMsgID = nil
				continue
			}
			evalMsgID = *processing.EvalMsgID
			break
		}
		sent, err := h.client.SendMessage(ctx, &SendMessageRequest{
			ChatID:           chatID,
			Text:             processingMessageText,
			ParseMode:        "HTML",
			ReplyToMessageID: userMsgID,
		})
		if err != nil {
			return err
		}
		evalMsgID = sent.MessageID
		processing.UpdateEvalMsgID(ctx, evalMsgID)
		break
	}

	go func() {
		if err := h.continueProcessing(ctx, chatID, evalMsgID, processing); err != nil {
			slog.Error("continue processing error", "eval_id", evalID, "error", err)
		}
	}()
	return nil
}

func (h *Handler) continueProcessing(ctx context.Context, chatID, evalMsgID int64, processing *controller.EvalProcessing) error {
	res := processing.WaitForEvalResult(ctx)
	switch res.Outcome {
	case controller.EvalCancelled, controller.EvalOutdated:
		// A fresher revision owns the message, or we are shutting down.
		return nil
	case controller.EvalErr:
		_, err := h.client.EditMessageText(ctx, &EditMessageTextRequest{
			ChatID:    chatID,
			MessageID: evalMsgID,
			Text:      "<i>Error: " + html.EscapeString(res.ErrMsg) + "</i>",
			ParseMode: "HTML",
		})
		return err
	}

	text, keyboard := renderPageData(res.Page)
	_, err := h.client.EditMessageText(ctx, &EditMessageTextRequest{
		ChatID:      chatID,
		MessageID:   evalMsgID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}

// parseCallback splits a "v1:<action>:<args>" payload. ok is false for
// anything malformed or from another version.
func parseCallback(payload string) (action, args string, ok bool) {
	version, rest, found := strings.Cut(payload, ":")
	if !found || version != "v1" {
		return "", "", false
	}
	action, args, found = strings.Cut(rest, ":")
	if !found {
		return "", "", false
	}
	return action, args, true
}

func (h *Handler) handleCallbackQuery(ctx context.Context, query *CallbackQuery) error {
	handled, err := h.handleCallbackQueryInner(ctx, query)
	if err == nil && handled {
		return nil
	}
	text := "Unknown command"
	if err != nil {
		slog.Error("error handling callback query", "query_id", query.ID, "error", err)
		text = "Internal error"
	}
	return h.client.AnswerCallbackQuery(ctx, &AnswerCallbackQueryRequest{
		CallbackQueryID: query.ID,
		Text:            text,
	})
}

func (h *Handler) handleCallbackQueryInner(ctx context.Context, query *CallbackQuery) (bool, error) {
	action, args, ok := parseCallback(query.Data)
	if !ok {
		return false, nil
	}
	switch action {
	case "del":
		return h.handleDeleteEval(ctx, args, query)
	case "state":
		return h.handleEvalState(ctx, args, query)
	case "genlink":
		return h.handleGenLink(ctx, args, query)
	}
	return false, nil
}

func (h *Handler) handleDeleteEval(ctx context.Context, args string, query *CallbackQuery) (bool, error) {
	msg := query.Message
	if msg == nil {
		return false, nil
	}
	revisionID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return false, nil
	}

	answer := &AnswerCallbackQueryRequest{CallbackQueryID: query.ID}
	revert, err := h.controller.RequestDeleteEval(ctx, msg.MessageID, query.From.ID, revisionID)
	switch {
	case err == nil:
		deleteErr := h.client.DeleteMessage(ctx, &DeleteMessageRequest{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
		})
		if deleteErr != nil {
			slog.Error("failed to delete message",
				"msg_id", msg.MessageID, "from_id", query.From.ID, "chat_id", msg.Chat.ID,
				"error", deleteErr)
			// Storage already forgot the message; put the association back
			// so the still-visible message keeps working.
			revert(ctx)
		}
	case errors.Is(err, controller.ErrSenderMismatch):
		answer.Text = "Only the original sender can delete"
	default:
		answer.Text = err.Error()
		answer.ShowAlert = true
	}
	if err := h.client.AnswerCallbackQuery(ctx, answer); err != nil {
		return true, err
	}
	return true, nil
}

func (h *Handler) handleEvalState(ctx context.Context, args string, query *CallbackQuery) (bool, error) {
	msg := query.Message
	if msg == nil {
		return false, nil
	}
	page, rest, found := strings.Cut(args, ":")
	if !found {
		return false, nil
	}
	var requestPage controller.EvalPageState
	switch page {
	case "output":
		requestPage = controller.EvalPageOutput
	case "build":
		requestPage = controller.EvalPageBuild
	default:
		return false, nil
	}
	revisionID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return false, nil
	}

	answer := &AnswerCallbackQueryRequest{CallbackQueryID: query.ID}
	data, err := h.controller.SwitchEvalState(ctx, msg.MessageID, query.From.ID, revisionID, requestPage)
	switch {
	case err == nil:
		text, keyboard := renderPageData(data)
		if _, err := h.client.EditMessageText(ctx, &EditMessageTextRequest{
			ChatID:      msg.Chat.ID,
			MessageID:   msg.MessageID,
			Text:        text,
			ParseMode:   "HTML",
			ReplyMarkup: keyboard,
		}); err != nil {
			return true, err
		}
	case errors.Is(err, controller.ErrSenderMismatch):
		answer.Text = "Only the original sender can switch state"
	default:
		answer.Text = err.Error()
		answer.ShowAlert = true
	}
	if err := h.client.AnswerCallbackQuery(ctx, answer); err != nil {
		return true, err
	}
	return true, nil
}

func (h *Handler) handleGenLink(ctx context.Context, args string, query *CallbackQuery) (bool, error) {
	msg := query.Message
	if msg == nil {
		return false, nil
	}
	revisionID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return false, nil
	}

	answer := &AnswerCallbackQueryRequest{CallbackQueryID: query.ID}
	data, err := h.controller.GetEvalLink(ctx, revisionID)
	switch {
	case err == nil:
		text, keyboard := renderPageData(data)
		if _, err := h.client.EditMessageText(ctx, &EditMessageTextRequest{
			ChatID:      msg.Chat.ID,
			MessageID:   msg.MessageID,
			Text:        text,
			ParseMode:   "HTML",
			ReplyMarkup: keyboard,
		}); err != nil {
			return true, err
		}
		answer.Text = "Link generated in-place"
	case errors.Is(err, controller.ErrNotFound):
		answer.Text = "Revision not found"
		answer.ShowAlert = true
	default:
		answer.Text = err.Error()
		answer.ShowAlert = true
	}
	if err := h.client.AnswerCallbackQuery(ctx, answer); err != nil {
		return true, err
	}
	return true, nil
}
