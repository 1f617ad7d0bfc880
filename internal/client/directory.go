package client

import (
	"sort"
	"sync"
	"time"

	"ffchat/internal/domain"
)

// Directory is the connection-owned registry of known topics and their
// subscription lists, kept current from meta/pres/data traffic.
type Directory struct {
	mu     sync.RWMutex
	topics map[string]*domain.Topic
	subs   map[string]map[string]domain.Subscriber
}

func NewDirectory() *Directory {
	return &Directory{
		topics: make(map[string]*domain.Topic),
		subs:   make(map[string]map[string]domain.Subscriber),
	}
}

// Get returns a snapshot of the named topic.
func (d *Directory) Get(name string) (domain.Topic, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.topics[name]
	if !ok {
		return domain.Topic{}, false
	}

	return *t, true
}

// Ensure resolves or creates the named topic.
func (d *Directory) Ensure(name string) domain.Topic {
	d.mu.Lock()
	defer d.mu.Unlock()

	return *d.ensureLocked(name)
}

func (d *Directory) ensureLocked(name string) *domain.Topic {
	t, ok := d.topics[name]
	if !ok {
		t = &domain.Topic{Name: name, Kind: domain.KindForTopicName(name)}
		d.topics[name] = t
	}

	return t
}

// Conversations returns conversation-capable topics, most recently
// touched first.
func (d *Directory) Conversations() []domain.Topic {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Topic, 0, len(d.topics))
	for _, t := range d.topics {
		if t.IsConversation() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Touched.After(out[j].Touched)
	})

	return out
}

// Subscriber resolves one entry of a topic's subscription list.
func (d *Directory) Subscriber(topic, userID string) (domain.Subscriber, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sub, ok := d.subs[topic][userID]

	return sub, ok
}

func (d *Directory) Subscribers(topic string) []domain.Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Subscriber, 0, len(d.subs[topic]))
	for _, sub := range d.subs[topic] {
		out = append(out, sub)
	}

	return out
}

// ApplyDesc folds a description update into the topic.
func (d *Directory) ApplyDesc(name string, desc *TopicDesc) {
	if desc == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.ensureLocked(name)
	if desc.Public != nil {
		t.Public = *desc.Public
	}
	if !desc.LastSeen.IsZero() {
		t.LastSeen = desc.LastSeen
	}
	t.Online = desc.Online
	t.Owner = desc.IsOwner
	t.Deleted = desc.IsDeleted
	if desc.SeqID > desc.ReadID {
		t.Unread = desc.SeqID - desc.ReadID
	} else {
		t.Unread = 0
	}
}

// ApplySub folds a subscription-list entry into the directory. On the
// "me" topic the entry describes another conversation; elsewhere it
// describes a member of the current topic.
func (d *Directory) ApplySub(name string, entry SubEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "me" && entry.Topic != "" {
		t := d.ensureLocked(entry.Topic)
		if entry.Public != nil {
			t.Public = *entry.Public
		}
		t.Online = entry.Online
		if entry.Deleted != nil {
			t.Deleted = true
		}

		return
	}

	if entry.User == "" {
		return
	}
	if d.subs[name] == nil {
		d.subs[name] = make(map[string]domain.Subscriber)
	}
	sub := domain.Subscriber{UserID: entry.User, Deleted: entry.Deleted != nil}
	if entry.Public != nil {
		sub.Public = *entry.Public
	}
	d.subs[name][entry.User] = sub
}

// ApplyData records message arrival effects: touch ordering and, for
// messages from others, the unread counter.
func (d *Directory) ApplyData(data *MsgData, mine bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.ensureLocked(data.Topic)
	if data.Ts.After(t.Touched) {
		t.Touched = data.Ts
	}
	if !mine {
		t.Unread++
	}
}

// ApplyPres folds a presence notification into the directory. Presence
// on the "me" topic describes the topic named by Src.
func (d *Directory) ApplyPres(pres *MsgPres) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := pres.Topic
	if name == "me" && pres.Src != "" {
		name = pres.Src
	}
	t := d.ensureLocked(name)

	switch pres.What {
	case "on":
		t.Online = true
		t.LastSeen = time.Now()
	case "off":
		t.Online = false
		t.LastSeen = time.Now()
	case "msg":
		t.Touched = time.Now()
		t.Unread++
	case "gone":
		t.Deleted = true
	}
}

// ClearUnread resets the unread counter after the caller marked the
// conversation read.
func (d *Directory) ClearUnread(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.topics[name]; ok {
		t.Unread = 0
	}
}

// SetDeleted marks a topic removed server-side.
func (d *Directory) SetDeleted(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.topics[name]; ok {
		t.Deleted = true
	}
}

// Clear drops all cached state. Used when the connection is invalidated.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.topics = make(map[string]*domain.Topic)
	d.subs = make(map[string]map[string]domain.Subscriber)
}
