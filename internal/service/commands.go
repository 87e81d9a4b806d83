package service

import (
	"regexp"
	"strings"
)

// Kind identifies a command.
type Kind int

const (
	CmdUnknown Kind = iota
	CmdOpen
	CmdClose
	CmdAdd
	CmdCarryOver
	CmdUndo
	CmdGrant
	CmdRevoke
	CmdOperators
	CmdHelp
)

var kindNames = map[Kind]string{
	CmdOpen:      "open",
	CmdClose:     "close",
	CmdAdd:       "add",
	CmdCarryOver: "carry_over",
	CmdUndo:      "undo",
	CmdGrant:     "grant_operator",
	CmdRevoke:    "revoke_operator",
	CmdOperators: "list_operators",
	CmdHelp:      "help",
}

// String returns the command's metrics label.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var keywords = map[string]Kind{
	"上课":    CmdOpen,
	"下课":    CmdClose,
	"结余":    CmdCarryOver,
	"撤销":    CmdUndo,
	"设置操作员": CmdGrant,
	"删除操作员": CmdRevoke,
	"当前操作员": CmdOperators,
	"帮助":    CmdHelp,
}

// commandPattern matches a whole message that starts with a command word
// or a signed amount, optionally followed by whitespace and arguments.
var commandPattern = regexp.MustCompile(`(?s)^([+-]\d+|上课|下课|设置操作员|删除操作员|当前操作员|帮助|结余|撤销)(\s.*)?$`)

// Command is a parsed chat command.
type Command struct {
	Kind Kind

	// Word is the first token: the keyword or the signed amount.
	Word string

	// Args are the whitespace-separated tokens after Word.
	Args []string
}

// ParseCommand recognizes a command message. Keywords are matched exactly
// and case-sensitively.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !commandPattern.MatchString(text) {
		return Command{}, false
	}

	fields := strings.Fields(text)
	cmd := Command{Word: fields[0], Args: fields[1:]}
	if kind, ok := keywords[cmd.Word]; ok {
		cmd.Kind = kind
	} else {
		cmd.Kind = CmdAdd
	}
	return cmd, true
}

// Note joins the arguments from index i on.
func (c Command) Note(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}
