package core

import (
	"strings"

	"fedbot/pkg/tgui"
)

func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		cmd, ok := m.byName[strings.TrimPrefix(args[0], "/")]
		if !ok {
			return "command not found. try /help"
		}
		lines := []string{"📌 " + tgui.B(cmd.Name), tgui.Esc(cmd.Description)}
		if cmd.Usage != "" {
			lines = append(lines, "Usage: "+tgui.Code(cmd.Usage))
		}
		if len(cmd.Aliases) > 0 {
			lines = append(lines, "Aliases: /"+strings.Join(cmd.Aliases, ", /"))
		}
		return tgui.JoinH(lines...)
	}

	lines := []string{"📚 " + tgui.B("Commands") + " (use /help <cmd>):"}
	for _, name := range m.order {
		c := m.byName[name]
		if c.Description != "" {
			lines = append(lines, "- /"+name+" — "+tgui.Esc(c.Description))
		} else {
			lines = append(lines, "- /"+name)
		}
	}
	return strings.Join(lines, "\n")
}
