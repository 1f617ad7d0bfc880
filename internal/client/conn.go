package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"ffchat/internal/domain"
)

const (
	protocolVersion = "0.22"
	channelPath     = "/v0/channels"
	writeTimeout    = 8 * time.Second
	maxBackoff      = 15 * time.Second
)

// Options configures a connection to the chat server.
type Options struct {
	Host      string
	UseTLS    bool
	APIKey    string
	Locale    string
	UserAgent string
}

// Reply is the asynchronous completion of a client request.
type Reply struct {
	Ctrl *MsgCtrl
	Err  error
}

type pendingReq struct {
	ch    chan Reply
	topic string
	kind  string
}

// Conn is the connection facade: a websocket session speaking the JSON
// chat protocol, with promise-style request completion and tagged push
// event dispatch. All push handling runs on the read loop goroutine,
// which is the single mutator context for session state.
type Conn struct {
	logger *slog.Logger
	opts   Options
	events *Dispatcher
	dir    *Directory

	mu            sync.Mutex
	ws            *websocket.Conn
	connected     bool
	authenticated bool
	selfID        string
	autoLogin     string
	autoPassword  string
	live          map[string]bool
	pending       map[string]*pendingReq
	shutdown      bool

	redial chan struct{}
}

func NewConn(logger *slog.Logger, opts Options) *Conn {
	return &Conn{
		logger:  logger,
		opts:    opts,
		events:  NewDispatcher(),
		dir:     NewDirectory(),
		live:    make(map[string]bool),
		pending: make(map[string]*pendingReq),
		redial:  make(chan struct{}, 1),
	}
}

func (c *Conn) Events() *Dispatcher { return c.events }
func (c *Conn) Directory() *Directory { return c.dir }

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

func (c *Conn) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.authenticated
}

func (c *Conn) MyID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selfID
}

func (c *Conn) IsMe(userID string) bool {
	return userID != "" && userID == c.MyID()
}

// IsLive reports whether a subscription to the topic is currently
// attached on this connection.
func (c *Conn) IsLive(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.live[topic]
}

// SetAutoLogin stores credentials replayed automatically after every
// successful dial, so subscriptions can re-attach on the login event.
func (c *Conn) SetAutoLogin(login, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoLogin = login
	c.autoPassword = password
}

// Run dials the server and keeps the session alive, redialing with
// exponential backoff until ctx is done or the connection is shut down.
func (c *Conn) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil || c.isShutdown() {
			return
		}

		if err := c.dial(ctx); err != nil {
			c.logger.Warn("dial failed", "host", c.opts.Host, "error", err)
			if !c.waitRetry(ctx, backoff) {
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		c.events.Dispatch(Event{Kind: EventConnected})
		c.maybeAutoLogin()

		err := c.readLoop(ctx)
		c.teardownSocket(err)
		c.events.Dispatch(Event{Kind: EventDisconnected, Text: errText(err)})

		if !c.waitRetry(ctx, backoff) {
			return
		}
	}
}

// Reconnect forces a new dial. With force set, the current socket is
// torn down first even if it looks healthy.
func (c *Conn) Reconnect(force bool) {
	if force {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close(websocket.StatusGoingAway, "reconnect")
		}
	}
	select {
	case c.redial <- struct{}{}:
	default:
	}
}

// Login authenticates with the basic scheme. On success the connection
// remembers the server-assigned user id and replays the credentials on
// every reconnect.
func (c *Conn) Login(login, password string) <-chan Reply {
	secret := base64.StdEncoding.EncodeToString([]byte(login + ":" + password))
	out, err := c.send("login", "", clientMsg{Login: &msgLogin{Scheme: "basic", Secret: secret}})
	if err != nil {
		return failedReply(err)
	}

	final := make(chan Reply, 1)
	go func() {
		reply := <-out
		if reply.Err == nil && reply.Ctrl != nil {
			switch {
			case reply.Ctrl.Code < 300:
				c.mu.Lock()
				c.authenticated = true
				c.selfID = reply.Ctrl.StringParam("user", c.selfID)
				c.mu.Unlock()
				c.SetAutoLogin(login, password)
				c.events.Dispatch(Event{Kind: EventLogin, Code: reply.Ctrl.Code, Text: reply.Ctrl.Text})
			case reply.Ctrl.Code == 300 || strings.Contains(reply.Ctrl.Text, "validate credentials"):
				reply.Err = ErrCredentialsRequired
			default:
				reply.Err = &ServerError{Code: reply.Ctrl.Code, Text: reply.Ctrl.Text}
			}
		}
		final <- reply
	}()

	return final
}

// Subscribe attaches to a topic, requesting the metadata described by
// get. Subscribing to an already-live topic fails with
// ErrAlreadySubscribed; callers treat that as a no-op.
func (c *Conn) Subscribe(topic string, get *MetaGet) <-chan Reply {
	c.mu.Lock()
	if c.live[topic] {
		c.mu.Unlock()

		return failedReply(ErrAlreadySubscribed)
	}
	authed := c.authenticated
	c.mu.Unlock()
	if !authed {
		return failedReply(ErrUnauthenticated)
	}

	out, err := c.send("sub", topic, clientMsg{Sub: &msgSub{Topic: topic, Get: get}})
	if err != nil {
		return failedReply(err)
	}

	return out
}

// Leave detaches from a topic; with unsub set the subscription itself is
// dropped server-side.
func (c *Conn) Leave(topic string, unsub bool) <-chan Reply {
	out, err := c.send("leave", topic, clientMsg{Leave: &msgLeave{Topic: topic, Unsub: unsub}})
	if err != nil {
		return failedReply(err)
	}

	return out
}

// Publish sends message content to a topic. The server echoes the
// assigned sequence id in the ctrl params.
func (c *Conn) Publish(topic string, content domain.Content, head map[string]any) <-chan Reply {
	out, err := c.send("pub", topic, clientMsg{Pub: &msgPub{Topic: topic, Head: head, Content: content}})
	if err != nil {
		return failedReply(err)
	}

	return out
}

// NoteRead sends a read acknowledgement for messages up to seq.
func (c *Conn) NoteRead(topic string, seq int) {
	c.note(topic, "read", seq)
}

// NoteRecv sends a received acknowledgement for messages up to seq.
func (c *Conn) NoteRecv(topic string, seq int) {
	c.note(topic, "recv", seq)
}

// NoteKeyPress informs the topic's peers that the user is typing.
func (c *Conn) NoteKeyPress(topic string) {
	c.note(topic, "kp", 0)
}

func (c *Conn) note(topic, what string, seq int) {
	if !c.IsConnected() {
		return
	}
	if err := c.write(clientMsg{Note: &msgNote{Topic: topic, What: what, Seq: seq}}); err != nil {
		c.logger.Debug("note send failed", "topic", topic, "what", what, "error", err)
	}
}

// Logout drops authentication and closes the socket. The connection is
// unusable afterwards; the owner creates a fresh one.
func (c *Conn) Logout() {
	c.mu.Lock()
	c.shutdown = true
	c.authenticated = false
	c.autoLogin = ""
	c.autoPassword = ""
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "logout")
	}
	c.dir.Clear()
}

func (c *Conn) isShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.shutdown
}

func (c *Conn) dial(ctx context.Context) error {
	scheme := "ws"
	if c.opts.UseTLS {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, c.opts.Host, channelPath)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	hi := clientMsg{Hi: &msgHi{
		ID:        uuid.NewString(),
		Version:   protocolVersion,
		UserAgent: c.opts.UserAgent,
		APIKey:    c.opts.APIKey,
		Lang:      c.opts.Locale,
	}}
	if err := c.write(hi); err != nil {
		c.teardownSocket(err)

		return fmt.Errorf("send handshake: %w", err)
	}
	c.logger.Info("connected", "host", c.opts.Host)

	return nil
}

func (c *Conn) maybeAutoLogin() {
	c.mu.Lock()
	login, password := c.autoLogin, c.autoPassword
	c.mu.Unlock()
	if login == "" {
		return
	}
	go func() {
		reply := <-c.Login(login, password)
		if reply.Err != nil {
			c.logger.Warn("auto login failed", "error", reply.Err)
		}
	}()
}

func (c *Conn) readLoop(ctx context.Context) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		var msg serverMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode server packet failed", "error", err)
			continue
		}
		c.handleServerMsg(&msg)
	}
}

func (c *Conn) handleServerMsg(msg *serverMsg) {
	switch {
	case msg.Ctrl != nil:
		c.handleCtrl(msg.Ctrl)
	case msg.Data != nil:
		c.dir.ApplyData(msg.Data, c.IsMe(msg.Data.From))
		c.events.Dispatch(Event{Kind: EventData, Topic: msg.Data.Topic, Data: msg.Data})
	case msg.Pres != nil:
		c.dir.ApplyPres(msg.Pres)
		c.events.Dispatch(Event{Kind: EventPres, Topic: msg.Pres.Topic, Pres: msg.Pres})
	case msg.Info != nil:
		c.events.Dispatch(Event{Kind: EventInfo, Topic: msg.Info.Topic, Info: msg.Info})
	case msg.Meta != nil:
		c.handleMeta(msg.Meta)
	}
}

func (c *Conn) handleCtrl(ctrl *MsgCtrl) {
	if ctrl.ID == "" {
		return
	}

	c.mu.Lock()
	req, ok := c.pending[ctrl.ID]
	if ok {
		delete(c.pending, ctrl.ID)
		if ctrl.Code < 300 {
			switch req.kind {
			case "sub":
				c.live[req.topic] = true
			case "leave":
				delete(c.live, req.topic)
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	reply := Reply{Ctrl: ctrl}
	if ctrl.Code >= 400 {
		reply.Err = &ServerError{Code: ctrl.Code, Text: ctrl.Text}
	}
	req.ch <- reply
}

func (c *Conn) handleMeta(meta *MsgMeta) {
	if meta.Desc != nil {
		c.dir.ApplyDesc(meta.Topic, meta.Desc)
		c.events.Dispatch(Event{Kind: EventMetaDesc, Topic: meta.Topic, Desc: meta.Desc})
	}
	for i := range meta.Sub {
		c.dir.ApplySub(meta.Topic, meta.Sub[i])
		c.events.Dispatch(Event{Kind: EventMetaSub, Topic: meta.Topic, Sub: &meta.Sub[i]})
	}
	if meta.Tags != nil {
		c.events.Dispatch(Event{Kind: EventMetaTags, Topic: meta.Topic, Tags: meta.Tags})
	}
	if meta.Cred != nil {
		c.events.Dispatch(Event{Kind: EventMetaCred, Topic: meta.Topic, Cred: meta.Cred})
	}
}

// send registers a pending request and writes the packet, stamping it
// with a fresh id.
func (c *Conn) send(kind, topic string, msg clientMsg) (chan Reply, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()

		return nil, ErrShutdown
	}
	if !c.connected {
		c.mu.Unlock()

		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	req := &pendingReq{ch: make(chan Reply, 1), topic: topic, kind: kind}
	c.pending[id] = req
	c.mu.Unlock()

	switch {
	case msg.Login != nil:
		msg.Login.ID = id
	case msg.Sub != nil:
		msg.Sub.ID = id
	case msg.Leave != nil:
		msg.Leave.ID = id
	case msg.Pub != nil:
		msg.Pub.ID = id
	}

	if err := c.write(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()

		return nil, err
	}

	return req.ch, nil
}

func (c *Conn) write(msg clientMsg) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode client packet: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("write client packet: %w", err)
	}

	return nil
}

// teardownSocket closes the socket and fails every pending request so no
// caller is left waiting across a reconnect.
func (c *Conn) teardownSocket(cause error) {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.authenticated = false
	stale := c.pending
	c.pending = make(map[string]*pendingReq)
	c.live = make(map[string]bool)
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "teardown")
	}
	for _, req := range stale {
		req.ch <- Reply{Err: ErrNotConnected}
	}
	if cause != nil {
		c.logger.Debug("socket closed", "cause", cause)
	}
}

func (c *Conn) waitRetry(ctx context.Context, backoff time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.redial:
		return !c.isShutdown()
	case <-time.After(backoff):
		return !c.isShutdown()
	}
}

func failedReply(err error) <-chan Reply {
	ch := make(chan Reply, 1)
	ch <- Reply{Err: err}

	return ch
}

func errText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
