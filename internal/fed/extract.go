package fed

import (
	"context"
	"errors"
	"strconv"
	"strings"

	kit "fedbot/internal/transport"
	"fedbot/pkg/tgui"
)

var (
	// ErrNoTarget means no user could be resolved from the message at all.
	ErrNoTarget = errors.New("no target user")
	// ErrChannelForward rejects forwards originating from a channel; there
	// is no user to attribute the message to.
	ErrChannelForward = errors.New("forwarded from a channel, not a user")
	// ErrHiddenForward rejects forwards whose sender hid their account.
	ErrHiddenForward = errors.New("cannot determine user: sender is hidden")
)

// Resolver maps a @username to an id and display name. Satisfied by the
// transport adapter.
type Resolver interface {
	ResolveUser(ctx context.Context, username string) (int64, string, error)
}

// Target is a resolved action subject.
type Target struct {
	ID      int64
	Name    string // best-known display name, may be empty
	Mention string // HTML mention linking the id
}

// ExtractTarget resolves the subject and free-text reason of an action from
// the triggering message, in priority order: explicit argument (numeric id
// or @username), then the replied-to message's author.
func ExtractTarget(ctx context.Context, msg *kit.Message, args []string, res Resolver) (Target, string, error) {
	if len(args) > 0 {
		first, rest := args[0], strings.Join(args[1:], " ")

		if id, err := strconv.ParseInt(first, 10, 64); err == nil && id != 0 {
			return mkTarget(id, ""), rest, nil
		}
		if strings.HasPrefix(first, "@") {
			id, name, err := res.ResolveUser(ctx, first)
			if err != nil {
				return Target{}, "", err
			}
			return mkTarget(id, name), rest, nil
		}
		// Not an id or username: the whole argument line is the reason,
		// the target must come from the reply context.
		if msg.ReplyTo != nil {
			return targetFromReply(msg.ReplyTo, strings.Join(args, " "))
		}
		return Target{}, "", ErrNoTarget
	}

	if msg.ReplyTo != nil {
		return targetFromReply(msg.ReplyTo, "")
	}
	return Target{}, "", ErrNoTarget
}

func targetFromReply(reply *kit.Message, reason string) (Target, string, error) {
	// A reply to a forwarded message targets the original sender, not the
	// forwarder.
	if fw := reply.Forward; fw != nil {
		t, err := TargetFromForward(fw)
		return t, reason, err
	}
	if reply.FromID == 0 {
		return Target{}, "", ErrNoTarget
	}
	return mkTarget(reply.FromID, reply.FromName), reason, nil
}

// TargetFromForward resolves the original author of a forwarded message.
// Channel forwards and hidden senders carry no usable user identity.
func TargetFromForward(fw *kit.Forward) (Target, error) {
	switch {
	case fw.IsChannel():
		return Target{}, ErrChannelForward
	case fw.IsHidden():
		return Target{}, ErrHiddenForward
	case fw.FromID == 0:
		return Target{}, ErrNoTarget
	}
	return mkTarget(fw.FromID, fw.FromName), nil
}

func mkTarget(id int64, name string) Target {
	label := name
	if label == "" {
		label = strconv.FormatInt(id, 10)
	}
	return Target{ID: id, Name: name, Mention: tgui.Mention(label, id)}
}

// RenderCommand builds the outbound text sent to each federation chat:
// the slash command, an HTML link addressing the user by id, the reason,
// and the optional proof link.
func RenderCommand(req Request) string {
	verb := "/fban"
	if req.Action == ActionUnban {
		verb = "/unfban"
	}
	parts := []string{verb, tgui.Mention(strconv.FormatInt(req.TargetID, 10), req.TargetID)}
	if req.Reason != "" {
		parts = append(parts, req.Reason)
	}
	if req.ProofLink != "" {
		parts = append(parts, req.ProofLink)
	}
	return strings.Join(parts, " ")
}

// RelayCommand re-renders cmd for the auxiliary relay by substituting the
// leading "/" with the configured trigger string.
func RelayCommand(cmd, trigger string) string {
	if trigger == "" || !strings.HasPrefix(cmd, "/") {
		return cmd
	}
	return trigger + strings.TrimPrefix(cmd, "/")
}
