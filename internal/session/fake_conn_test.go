package session

import (
	"encoding/json"
	"strconv"
	"sync"

	"ffchat/internal/client"
	"ffchat/internal/domain"
)

type noteCall struct {
	topic string
	seq   int
}

// fakeConn is an in-memory Connection for session tests. Replies resolve
// immediately from configured outcomes.
type fakeConn struct {
	mu            sync.Mutex
	events        *client.Dispatcher
	dir           *client.Directory
	connected     bool
	authenticated bool
	self          string
	live          map[string]bool

	subscribes []string
	leaves     []string
	publishes  []string
	reads      []noteCall
	recvs      []noteCall
	keyPresses []string
	reconnects []bool
	loggedOut  bool

	subscribeErr   error
	subscribeCtrls []*client.MsgCtrl
	publishErr     error
	leaveErr       error
	nextSeq        int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events:        client.NewDispatcher(),
		dir:           client.NewDirectory(),
		connected:     true,
		authenticated: true,
		self:          "usrMe",
		live:          make(map[string]bool),
		nextSeq:       100,
	}
}

func (f *fakeConn) asFactory() func() Connection {
	return func() Connection { return f }
}

func (f *fakeConn) Events() *client.Dispatcher   { return f.events }
func (f *fakeConn) Directory() *client.Directory { return f.dir }

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected
}

func (f *fakeConn) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.authenticated
}

func (f *fakeConn) MyID() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.self
}

func (f *fakeConn) IsMe(userID string) bool {
	return userID == f.MyID()
}

func (f *fakeConn) IsLive(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.live[topic]
}

func (f *fakeConn) Subscribe(topic string, get *client.MetaGet) <-chan client.Reply {
	f.mu.Lock()
	f.subscribes = append(f.subscribes, topic)
	err := f.subscribeErr
	var ctrl *client.MsgCtrl
	if len(f.subscribeCtrls) > 0 {
		ctrl = f.subscribeCtrls[0]
		f.subscribeCtrls = f.subscribeCtrls[1:]
	}
	f.mu.Unlock()

	ch := make(chan client.Reply, 1)
	if err != nil {
		ch <- client.Reply{Err: err}

		return ch
	}
	if ctrl == nil {
		ctrl = &client.MsgCtrl{Code: 200, Topic: topic}
	}
	if ctrl.Code < 300 {
		name := ctrl.Topic
		if name == "" {
			name = topic
		}
		f.mu.Lock()
		f.live[name] = true
		f.mu.Unlock()
	}
	ch <- client.Reply{Ctrl: ctrl}

	return ch
}

func (f *fakeConn) Leave(topic string, unsub bool) <-chan client.Reply {
	f.mu.Lock()
	f.leaves = append(f.leaves, topic)
	delete(f.live, topic)
	err := f.leaveErr
	f.mu.Unlock()

	ch := make(chan client.Reply, 1)
	if err != nil {
		ch <- client.Reply{Err: err}
	} else {
		ch <- client.Reply{Ctrl: &client.MsgCtrl{Code: 200, Topic: topic}}
	}

	return ch
}

func (f *fakeConn) Publish(topic string, content domain.Content, head map[string]any) <-chan client.Reply {
	f.mu.Lock()
	f.publishes = append(f.publishes, content.Text)
	err := f.publishErr
	f.nextSeq++
	seq := f.nextSeq
	f.mu.Unlock()

	ch := make(chan client.Reply, 1)
	if err != nil {
		ch <- client.Reply{Err: err}

		return ch
	}
	ch <- client.Reply{Ctrl: &client.MsgCtrl{
		Code:  202,
		Topic: topic,
		Params: map[string]json.RawMessage{
			"seq": json.RawMessage(strconv.Itoa(seq)),
		},
	}}

	return ch
}

func (f *fakeConn) NoteRead(topic string, seq int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, noteCall{topic: topic, seq: seq})
}

func (f *fakeConn) NoteRecv(topic string, seq int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvs = append(f.recvs, noteCall{topic: topic, seq: seq})
}

func (f *fakeConn) NoteKeyPress(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyPresses = append(f.keyPresses, topic)
}

func (f *fakeConn) Reconnect(force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects = append(f.reconnects, force)
}

func (f *fakeConn) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
}

func (f *fakeConn) subscribeCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, name := range f.subscribes {
		if name == topic {
			count++
		}
	}

	return count
}

func (f *fakeConn) readNotes() []noteCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]noteCall(nil), f.reads...)
}

func (f *fakeConn) leftTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.leaves...)
}
