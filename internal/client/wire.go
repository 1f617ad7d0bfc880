package client

import (
	"encoding/json"
	"strings"
	"time"

	"ffchat/internal/domain"
)

// Client packets. Exactly one field is set per message.
type clientMsg struct {
	Hi    *msgHi    `json:"hi,omitempty"`
	Login *msgLogin `json:"login,omitempty"`
	Sub   *msgSub   `json:"sub,omitempty"`
	Leave *msgLeave `json:"leave,omitempty"`
	Pub   *msgPub   `json:"pub,omitempty"`
	Note  *msgNote  `json:"note,omitempty"`
}

type msgHi struct {
	ID        string `json:"id,omitempty"`
	Version   string `json:"ver"`
	UserAgent string `json:"ua,omitempty"`
	APIKey    string `json:"key,omitempty"`
	Lang      string `json:"lang,omitempty"`
	Platform  string `json:"platf,omitempty"`
}

type msgLogin struct {
	ID     string `json:"id,omitempty"`
	Scheme string `json:"scheme"`
	Secret string `json:"secret"`
}

type msgSub struct {
	ID    string   `json:"id,omitempty"`
	Topic string   `json:"topic"`
	Get   *MetaGet `json:"get,omitempty"`
}

type msgLeave struct {
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Unsub bool   `json:"unsub,omitempty"`
}

type msgPub struct {
	ID      string         `json:"id,omitempty"`
	Topic   string         `json:"topic"`
	NoEcho  bool           `json:"noecho,omitempty"`
	Head    map[string]any `json:"head,omitempty"`
	Content domain.Content `json:"content"`
}

type msgNote struct {
	Topic string `json:"topic"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// Server packets. Exactly one field is set per message.
type serverMsg struct {
	Ctrl *MsgCtrl `json:"ctrl,omitempty"`
	Data *MsgData `json:"data,omitempty"`
	Pres *MsgPres `json:"pres,omitempty"`
	Info *MsgInfo `json:"info,omitempty"`
	Meta *MsgMeta `json:"meta,omitempty"`
}

// MsgCtrl is the server's response to a client request.
type MsgCtrl struct {
	ID     string                     `json:"id,omitempty"`
	Topic  string                     `json:"topic,omitempty"`
	Code   int                        `json:"code"`
	Text   string                     `json:"text,omitempty"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

// StringParam extracts a string parameter from ctrl params, returning def
// when absent or malformed.
func (c *MsgCtrl) StringParam(key, def string) string {
	if c == nil || c.Params == nil {
		return def
	}
	raw, ok := c.Params[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}

	return s
}

// IntParam extracts an integer parameter from ctrl params.
func (c *MsgCtrl) IntParam(key string, def int) int {
	if c == nil || c.Params == nil {
		return def
	}
	raw, ok := c.Params[key]
	if !ok {
		return def
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return def
	}

	return n
}

// MsgData is a published message delivered to a subscriber.
type MsgData struct {
	Topic   string         `json:"topic"`
	From    string         `json:"from,omitempty"`
	Seq     int            `json:"seq"`
	Ts      time.Time      `json:"ts"`
	Head    map[string]any `json:"head,omitempty"`
	Content domain.Content `json:"content"`
}

// MsgPres is a presence notification.
type MsgPres struct {
	Topic string `json:"topic"`
	Src   string `json:"src,omitempty"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// MsgInfo is an ephemeral notification: read/recv acknowledgements and
// key-press events.
type MsgInfo struct {
	Topic string `json:"topic"`
	From  string `json:"from,omitempty"`
	What  string `json:"what"`
	Seq   int    `json:"seq,omitempty"`
}

// MsgMeta carries topic metadata requested at subscribe time.
type MsgMeta struct {
	Topic string     `json:"topic"`
	Desc  *TopicDesc `json:"desc,omitempty"`
	Sub   []SubEntry `json:"sub,omitempty"`
	Tags  []string   `json:"tags,omitempty"`
	Cred  []Cred     `json:"cred,omitempty"`
}

// TopicDesc is the topic description block of a meta packet.
type TopicDesc struct {
	Public    *domain.Profile `json:"public,omitempty"`
	SeqID     int             `json:"seq,omitempty"`
	ReadID    int             `json:"read,omitempty"`
	RecvID    int             `json:"recv,omitempty"`
	LastSeen  time.Time       `json:"seen,omitempty"`
	Online    bool            `json:"online,omitempty"`
	IsOwner   bool            `json:"owner,omitempty"`
	IsDeleted bool            `json:"deleted,omitempty"`
}

// SubEntry is one row of a topic's subscription list.
type SubEntry struct {
	User    string          `json:"user,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Public  *domain.Profile `json:"public,omitempty"`
	ReadID  int             `json:"read,omitempty"`
	RecvID  int             `json:"recv,omitempty"`
	Online  bool            `json:"online,omitempty"`
	Deleted *time.Time      `json:"deleted,omitempty"`
}

// Cred is a validated or pending account credential.
type Cred struct {
	Method string `json:"meth"`
	Value  string `json:"val"`
	Done   bool   `json:"done,omitempty"`
}

// MetaGet describes what metadata a subscribe request asks for.
type MetaGet struct {
	What string       `json:"what"`
	Data *MetaGetData `json:"data,omitempty"`
}

type MetaGetData struct {
	Limit int `json:"limit,omitempty"`
}

// MetaGetBuilder assembles a MetaGet the way call sites compose it: desc,
// sub, tags, cred, del and a recent-data window.
type MetaGetBuilder struct {
	parts []string
	data  *MetaGetData
}

func NewMetaGetBuilder() *MetaGetBuilder {
	return &MetaGetBuilder{}
}

func (b *MetaGetBuilder) WithDesc() *MetaGetBuilder { return b.add("desc") }
func (b *MetaGetBuilder) WithSub() *MetaGetBuilder  { return b.add("sub") }
func (b *MetaGetBuilder) WithTags() *MetaGetBuilder { return b.add("tags") }
func (b *MetaGetBuilder) WithCred() *MetaGetBuilder { return b.add("cred") }
func (b *MetaGetBuilder) WithDel() *MetaGetBuilder  { return b.add("del") }

// WithLaterData requests a window of the most recent messages.
func (b *MetaGetBuilder) WithLaterData(limit int) *MetaGetBuilder {
	b.data = &MetaGetData{Limit: limit}

	return b.add("data")
}

func (b *MetaGetBuilder) add(part string) *MetaGetBuilder {
	for _, p := range b.parts {
		if p == part {
			return b
		}
	}
	b.parts = append(b.parts, part)

	return b
}

func (b *MetaGetBuilder) Build() *MetaGet {
	if len(b.parts) == 0 {
		return nil
	}

	return &MetaGet{What: strings.Join(b.parts, " "), Data: b.data}
}
