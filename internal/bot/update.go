package bot

import "github.com/nexanet/configbot/internal/notify"

// Update is one inbound interaction, already decoded by the transport. Exactly one
// of Command, Action or the message fields is expected to be set.
type Update struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`

	Command string `json:"command,omitempty"` // slash command without the slash
	Action  string `json:"action,omitempty"`  // inline button payload

	Text     string             `json:"text,omitempty"`
	Photo    *notify.Attachment `json:"photo,omitempty"`
	Document *notify.Attachment `json:"document,omitempty"`
}

// Reply is one outbound message for the user who sent the update.
type Reply struct {
	Text     string             `json:"text"`
	Buttons  [][]notify.Button  `json:"buttons,omitempty"`
	Photo    *notify.Attachment `json:"photo,omitempty"`
	Document *notify.Attachment `json:"document,omitempty"`
}

func text(msg string, rows ...[]notify.Button) Reply {
	return Reply{Text: msg, Buttons: rows}
}

func button(label, action string) notify.Button {
	return notify.Button{Text: label, Action: action}
}
