package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestMapMessageReplyCarriesForwardOrigin(t *testing.T) {
	chat := &tele.Chat{ID: -100500, Type: tele.ChatSuperGroup, Title: "Control Room"}
	m := &tele.Message{
		ID:     10,
		Chat:   chat,
		Sender: &tele.User{ID: 1, FirstName: "Owner"},
		Text:   "/report",
		ReplyTo: &tele.Message{
			ID:             9,
			Chat:           chat,
			Sender:         &tele.User{ID: 42, FirstName: "Forwarder"},
			OriginalSender: &tele.User{ID: 777, FirstName: "Spammer"},
			Text:           "fwd",
		},
	}

	out := mapMessage(m)
	if out.ReplyTo == nil || out.ReplyTo.Forward == nil {
		t.Fatalf("reply forward origin lost: %+v", out.ReplyTo)
	}
	if out.ReplyTo.Forward.FromID != 777 {
		t.Fatalf("forward must carry the original sender, got %d", out.ReplyTo.Forward.FromID)
	}
	if out.ReplyTo.FromID != 42 {
		t.Fatalf("unexpected reply author %d", out.ReplyTo.FromID)
	}
}

func TestMapMessageReplyWithoutSender(t *testing.T) {
	// Channel posts carry no Sender; their forward origin must still
	// surface so channel forwards can be rejected.
	chat := &tele.Chat{ID: -100500, Type: tele.ChatSuperGroup}
	m := &tele.Message{
		ID:     11,
		Chat:   chat,
		Sender: &tele.User{ID: 1},
		ReplyTo: &tele.Message{
			ID:           8,
			Chat:         chat,
			OriginalChat: &tele.Chat{ID: -100123, Title: "Some Channel"},
		},
	}

	out := mapMessage(m)
	if out.ReplyTo == nil || out.ReplyTo.Forward == nil {
		t.Fatalf("sender-less reply dropped: %+v", out.ReplyTo)
	}
	if !out.ReplyTo.Forward.IsChannel() {
		t.Fatalf("expected channel forward, got %+v", out.ReplyTo.Forward)
	}
}

func TestMapMessageHiddenForward(t *testing.T) {
	chat := &tele.Chat{ID: -100500, Type: tele.ChatSuperGroup}
	m := &tele.Message{
		ID:                 12,
		Chat:               chat,
		Sender:             &tele.User{ID: 42},
		OriginalSenderName: "Ghost",
	}

	out := mapMessage(m)
	if out.Forward == nil || !out.Forward.IsHidden() {
		t.Fatalf("hidden forward not mapped: %+v", out.Forward)
	}
}
