package telegram

import (
	"fmt"
	"html"

	"github.com/evalbot/evalbot/internal/controller"
)

// Callback payloads are "v1:<action>:<args>"; the keyboard below produces
// them and parseCallback in handler.go consumes them.

func callbackStatePayload(page string, revisionID int64) string {
	return fmt.Sprintf("v1:state:%s:%d", page, revisionID)
}

func callbackGenLinkPayload(revisionID int64) string {
	return fmt.Sprintf("v1:genlink:%d", revisionID)
}

func callbackDeletePayload(revisionID int64) string {
	return fmt.Sprintf("v1:del:%d", revisionID)
}

// renderPageData turns page data into the HTML message text and its inline
// keyboard.
func renderPageData(data *controller.EvalPageData) (string, *InlineKeyboardMarkup) {
	text := fmt.Sprintf(
		"<b>%s</b>\n<blockquote expandable><code>%s</code></blockquote>",
		html.EscapeString(data.Title),
		html.EscapeString(data.Content),
	)

	status := "✅"
	switch {
	case data.HasFatalError:
		status = "👻"
	case data.HasError:
		status = "❌️"
	case data.HasWarning:
		status = "⚠️"
	}

	revisionLabel := "📃"
	if data.Revision > 0 {
		revisionLabel = fmt.Sprintf("📃%d", data.Revision)
	}

	linkButton := InlineKeyboardButton{Text: "🔗"}
	if data.PermaLink != nil {
		linkButton.URL = *data.PermaLink
	} else {
		linkButton.CallbackData = callbackGenLinkPayload(data.RevisionID)
	}

	keyboard := &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: status, CallbackData: callbackStatePayload("build", data.RevisionID)},
			{Text: revisionLabel, CallbackData: callbackStatePayload("output", data.RevisionID)},
			linkButton,
			{Text: "🗑️", CallbackData: callbackDeletePayload(data.RevisionID)},
		}},
	}
	return text, keyboard
}
