package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalbot/evalbot/internal/controller"
)

func TestRenderPageData(t *testing.T) {
	data := &controller.EvalPageData{
		RevisionID: 7,
		Revision:   3,
		Title:      "Output",
		Content:    `println!("<hi>")`,
	}

	text, keyboard := renderPageData(data)
	assert.Equal(t, "<b>Output</b>\n<blockquote expandable><code>println!(&#34;&lt;hi&gt;&#34;)</code></blockquote>", text)

	require.Len(t, keyboard.InlineKeyboard, 1)
	row := keyboard.InlineKeyboard[0]
	require.Len(t, row, 4)
	assert.Equal(t, "✅", row[0].Text)
	assert.Equal(t, "v1:state:build:7", row[0].CallbackData)
	assert.Equal(t, "📃3", row[1].Text)
	assert.Equal(t, "v1:state:output:7", row[1].CallbackData)
	assert.Equal(t, "🔗", row[2].Text)
	assert.Equal(t, "v1:genlink:7", row[2].CallbackData)
	assert.Empty(t, row[2].URL)
	assert.Equal(t, "🗑️", row[3].Text)
	assert.Equal(t, "v1:del:7", row[3].CallbackData)
}

func TestRenderPageDataStatusEmoji(t *testing.T) {
	tests := []struct {
		name string
		data controller.EvalPageData
		want string
	}{
		{name: "ok", data: controller.EvalPageData{}, want: "✅"},
		{name: "warning", data: controller.EvalPageData{HasWarning: true}, want: "⚠️"},
		{name: "error beats warning", data: controller.EvalPageData{HasError: true, HasWarning: true}, want: "❌️"},
		{name: "fatal beats all", data: controller.EvalPageData{HasFatalError: true, HasError: true}, want: "👻"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, keyboard := renderPageData(&tt.data)
			assert.Equal(t, tt.want, keyboard.InlineKeyboard[0][0].Text)
		})
	}
}

func TestRenderPageDataPermaLink(t *testing.T) {
	link := "https://play.rust-lang.org/?gist=abc"
	data := &controller.EvalPageData{RevisionID: 9, PermaLink: &link}

	_, keyboard := renderPageData(data)
	button := keyboard.InlineKeyboard[0][2]
	assert.Equal(t, link, button.URL)
	assert.Empty(t, button.CallbackData, "a known link needs no genlink roundtrip")
}

func TestRenderPageDataZeroRevisionLabel(t *testing.T) {
	_, keyboard := renderPageData(&controller.EvalPageData{RevisionID: 1})
	assert.Equal(t, "📃", keyboard.InlineKeyboard[0][1].Text)
}
