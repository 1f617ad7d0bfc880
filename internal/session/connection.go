package session

import (
	"ffchat/internal/client"
	"ffchat/internal/domain"
)

// Connection is the slice of the connection facade the session layer
// depends on. *client.Conn implements it; tests substitute fakes.
type Connection interface {
	Events() *client.Dispatcher
	Directory() *client.Directory
	IsConnected() bool
	IsAuthenticated() bool
	MyID() string
	IsMe(userID string) bool
	IsLive(topic string) bool
	Subscribe(topic string, get *client.MetaGet) <-chan client.Reply
	Leave(topic string, unsub bool) <-chan client.Reply
	Publish(topic string, content domain.Content, head map[string]any) <-chan client.Reply
	NoteRead(topic string, seq int)
	NoteRecv(topic string, seq int)
	NoteKeyPress(topic string)
	Reconnect(force bool)
	Logout()
}
