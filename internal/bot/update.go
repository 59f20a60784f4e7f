package bot

// Incoming Telegram update shapes, trimmed to the fields the bot reads.

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type message struct {
	MessageID int64    `json:"message_id"`
	Chat      *chatRef `json:"chat"`
	From      *userRef `json:"from"`
	Text      string   `json:"text"`
}

type chatRef struct {
	ID int64 `json:"id"`
}

type userRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    *userRef `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}
