package botapi

import "strings"

// ParseCommand extracts a leading bot command from message text. It returns
// the command name without the slash and the remaining argument text, or two
// empty strings if the text is not a command.
//
// A trailing "@botname" mention is accepted only when it matches username;
// an empty username accepts any mention.
func ParseCommand(text, username string) (cmd, args string) {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	if t == "" {
		return "", ""
	}

	head, rest, _ := strings.Cut(t, " ")

	base := head
	if at := strings.LastIndex(head, "@"); at >= 0 {
		base = head[:at]
		mention := head[at+1:]
		if username != "" && mention != username {
			return "", ""
		}
	}

	if len(base) < 2 || base[0] != '/' {
		return "", ""
	}
	return base[1:], strings.TrimSpace(rest)
}
