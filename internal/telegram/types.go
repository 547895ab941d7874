package telegram

// Update is a text message or a button press, flattened for handlers.
type Update struct {
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Text      string

	CallbackID   string
	CallbackData string
}

func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

type Button struct {
	Text string
	Data string
}

type Keyboard [][]Button

func Row(buttons ...Button) []Button {
	return buttons
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       Keyboard
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type Command struct {
	Name        string
	Description string
}
