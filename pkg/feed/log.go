package feed

import (
	"sync"

	"github.com/go-go-golems/chatfeed/pkg/chat"
)

// LogEventType tags log change notifications.
type LogEventType string

const (
	LogAppend  LogEventType = "message.append"
	LogReplace LogEventType = "message.replace"
	LogUpdate  LogEventType = "message.update"
	LogRemove  LogEventType = "message.remove"
	LogClear   LogEventType = "feed.clear"
)

// LogEvent describes one mutation of the log. Index is the affected slot at
// the time of the mutation (-1 for clear).
type LogEvent struct {
	Type    LogEventType
	Index   int
	Message *chat.Message
}

// Notifier receives log change events. It is called outside the log lock and
// must not block for long; slow consumers should buffer.
type Notifier func(LogEvent)

// Log is the ordered container of feed messages. Mutations are serialized by
// an internal mutex so that length samples are atomic with respect to appends.
type Log struct {
	mu       sync.Mutex
	entries  []*chat.Message
	notifier Notifier
}

func NewLog(notifier Notifier) *Log {
	return &Log{notifier: notifier}
}

func (l *Log) notify(ev LogEvent) {
	if l.notifier != nil {
		l.notifier(ev)
	}
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the final entry, or nil on an empty log.
func (l *Log) Last() *chat.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

// At returns the entry at index, or nil when out of range.
func (l *Log) At(index int) *chat.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.entries) {
		return nil
	}
	return l.entries[index]
}

// IndexOf finds msg by identity. Returns -1 when absent.
func (l *Log) IndexOf(msg *chat.Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexOfLocked(msg)
}

func (l *Log) indexOfLocked(msg *chat.Message) int {
	for i, e := range l.entries {
		if e == msg {
			return i
		}
	}
	return -1
}

// Append adds msg at the end and returns its index.
func (l *Log) Append(msg *chat.Message) int {
	l.mu.Lock()
	l.entries = append(l.entries, msg)
	idx := len(l.entries) - 1
	l.mu.Unlock()
	l.notify(LogEvent{Type: LogAppend, Index: idx, Message: msg})
	return idx
}

// ReplaceAt swaps the entry at index for msg. Out-of-range indices are a no-op
// returning false.
func (l *Log) ReplaceAt(index int, msg *chat.Message) bool {
	l.mu.Lock()
	if index < 0 || index >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	l.entries[index] = msg
	l.mu.Unlock()
	l.notify(LogEvent{Type: LogReplace, Index: index, Message: msg})
	return true
}

// RemoveAt deletes the entry at index, preserving the order of the rest.
func (l *Log) RemoveAt(index int) (*chat.Message, bool) {
	l.mu.Lock()
	if index < 0 || index >= len(l.entries) {
		l.mu.Unlock()
		return nil, false
	}
	msg := l.entries[index]
	l.entries = append(l.entries[:index], l.entries[index+1:]...)
	l.mu.Unlock()
	l.notify(LogEvent{Type: LogRemove, Index: index, Message: msg})
	return msg, true
}

// Remove deletes msg by identity.
func (l *Log) Remove(msg *chat.Message) bool {
	l.mu.Lock()
	idx := l.indexOfLocked(msg)
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	l.mu.Unlock()
	l.notify(LogEvent{Type: LogRemove, Index: idx, Message: msg})
	return true
}

// TruncateLast removes the final count entries and returns them in their
// original order. count <= 0 removes nothing.
func (l *Log) TruncateLast(count int) []*chat.Message {
	if count <= 0 {
		return []*chat.Message{}
	}
	l.mu.Lock()
	if count > len(l.entries) {
		count = len(l.entries)
	}
	cut := len(l.entries) - count
	removed := append([]*chat.Message(nil), l.entries[cut:]...)
	l.entries = l.entries[:cut]
	l.mu.Unlock()
	for i := len(removed) - 1; i >= 0; i-- {
		l.notify(LogEvent{Type: LogRemove, Index: cut + i, Message: removed[i]})
	}
	return removed
}

// Drain removes all entries and returns them in order.
func (l *Log) Drain() []*chat.Message {
	l.mu.Lock()
	removed := l.entries
	l.entries = nil
	l.mu.Unlock()
	l.notify(LogEvent{Type: LogClear, Index: -1})
	return removed
}

// Snapshot copies the current entries.
func (l *Log) Snapshot() []*chat.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*chat.Message(nil), l.entries...)
}

// NotifyUpdated signals an in-place mutation of msg (streamed token, field
// update) to subscribers. No-op when msg is not in the log.
func (l *Log) NotifyUpdated(msg *chat.Message) {
	l.mu.Lock()
	idx := l.indexOfLocked(msg)
	l.mu.Unlock()
	if idx < 0 {
		return
	}
	l.notify(LogEvent{Type: LogUpdate, Index: idx, Message: msg})
}
