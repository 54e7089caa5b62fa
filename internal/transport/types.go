package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Forward describes the provenance of a forwarded message.
// Telegram exposes either the original sender, the original channel,
// or only a display name when the sender hides their account.
type Forward struct {
	FromID     int64
	FromName   string
	ChannelID  int64
	HiddenName string
}

func (f *Forward) IsChannel() bool { return f != nil && f.ChannelID != 0 }
func (f *Forward) IsHidden() bool  { return f != nil && f.FromID == 0 && f.ChannelID == 0 }

type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool

	ReplyTo *Message
	Forward *Forward
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyTo            int // message id to reply to (0 = none)
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	ForwardMessage(ctx context.Context, to ChatTarget, ref MessageRef) (MessageRef, error)

	// AnswerPrompt performs the one follow-up interaction some remote
	// moderation bots require before an action commits. The Bot API cannot
	// press another bot's inline button, so the adapter replies to the
	// prompt with the button label instead.
	AnswerPrompt(ctx context.Context, ref MessageRef, label string) error

	// ResolveUser maps a @username to a user id and display name.
	ResolveUser(ctx context.Context, username string) (int64, string, error)
}
