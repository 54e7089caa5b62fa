package fed

import (
	"fmt"
	"strings"

	"fedbot/pkg/tgui"
)

// Summarize renders the final broadcast report as Telegram HTML.
// Pure function of its inputs; the same text goes to the log channel and
// into the edited progress message.
func Summarize(outcomes []Outcome, req Request, initiatedIn, byLine string) string {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	total := len(outcomes)

	var b strings.Builder
	fmt.Fprintf(&b, "❯❯❯ <b>%s</b> %s\n", req.Action.Verb(), req.TargetMention)
	fmt.Fprintf(&b, "%s: %s\n", tgui.B("ID"), tgui.Code(fmt.Sprintf("%d", req.TargetID)))
	fmt.Fprintf(&b, "%s: %s\n", tgui.B("Reason"), tgui.Esc(req.Reason))
	if req.ProofLink != "" {
		fmt.Fprintf(&b, "%s: %s\n", tgui.B("Proof"), tgui.Link("here", req.ProofLink))
	}
	fmt.Fprintf(&b, "%s: %s\n", tgui.B("Initiated in"), tgui.Esc(initiatedIn))

	if len(failed) == 0 {
		fmt.Fprintf(&b, "%s: %s in %s feds.", tgui.B("Status"), req.Action.Verb(), tgui.B(fmt.Sprintf("%d", total)))
	} else {
		fmt.Fprintf(&b, "%s: %d/%d feds", tgui.B("Failed in"), len(failed), total)
		for _, o := range failed {
			b.WriteString("\n• ")
			b.WriteString(tgui.Esc(o.Target.Name))
			if o.Detail != "" {
				fmt.Fprintf(&b, " (%s)", tgui.Esc(o.Detail))
			}
		}
	}

	if byLine != "" {
		fmt.Fprintf(&b, "\n\n%s: %s", tgui.B("By"), tgui.Esc(byLine))
	}
	return b.String()
}
