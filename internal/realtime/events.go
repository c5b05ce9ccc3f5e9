package realtime

import (
	"encoding/json"
	"strings"
)

const (
	ActionCreate     = "create"
	ActionCreateLink = "createLink"
	ActionAddMessage = "addMessage"
	ActionDone       = "done"
	ActionError      = "error"
)

// WhitespaceSentinel replaces literal spaces in streamed content so that clients
// rendering into HTML do not collapse them.
const WhitespaceSentinel = "<SPECIAL_WHITE_SPACE>"

// ClientEvent is one message on a session stream. Every event carries the document it
// belongs to so that interleaved per-document streams can be demultiplexed.
type ClientEvent struct {
	Action     string `json:"action"`
	DocumentID string `json:"documentId"`
	URL        string `json:"url,omitempty"`
	PageNumber int    `json:"pageNumber,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Content    string `json:"content,omitempty"`
	Message    string `json:"message,omitempty"`
}

func CreateEvent(documentID string) ClientEvent {
	return ClientEvent{Action: ActionCreate, DocumentID: documentID}
}

func CreateLinkEvent(documentID, url string, pageNumber int, filename string) ClientEvent {
	return ClientEvent{Action: ActionCreateLink, DocumentID: documentID, URL: url, PageNumber: pageNumber, Filename: filename}
}

// AddMessageEvent escapes spaces in content with WhitespaceSentinel.
func AddMessageEvent(documentID, content string) ClientEvent {
	return ClientEvent{Action: ActionAddMessage, DocumentID: documentID, Content: EscapeSpaces(content)}
}

func DoneEvent(documentID string) ClientEvent {
	return ClientEvent{Action: ActionDone, DocumentID: documentID}
}

func ErrorEvent(documentID, message string) ClientEvent {
	return ClientEvent{Action: ActionError, DocumentID: documentID, Message: message}
}

func EscapeSpaces(s string) string {
	return strings.ReplaceAll(s, " ", WhitespaceSentinel)
}

func (e ClientEvent) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeClientEvent(raw string) (ClientEvent, error) {
	var e ClientEvent
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}
