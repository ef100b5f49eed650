package mocks

import (
	"sync"

	"social-chat-service/internal/models"
)

// SinkCall records one fan-out call.
type SinkCall struct {
	Users  []int
	Except int
	All    bool
	Event  models.ServerEvent
}

// EventSinkRecorder captures broadcasts instead of delivering them.
type EventSinkRecorder struct {
	mu    sync.Mutex
	calls []SinkCall
}

func (r *EventSinkRecorder) SendToUsers(userIDs []int, ev models.ServerEvent) {
	r.record(SinkCall{Users: append([]int(nil), userIDs...), Event: ev})
}

func (r *EventSinkRecorder) SendToUsersExcept(userIDs []int, except int, ev models.ServerEvent) {
	r.record(SinkCall{Users: append([]int(nil), userIDs...), Except: except, Event: ev})
}

func (r *EventSinkRecorder) SendToAll(ev models.ServerEvent) {
	r.record(SinkCall{All: true, Event: ev})
}

func (r *EventSinkRecorder) Calls() []SinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SinkCall(nil), r.calls...)
}

func (r *EventSinkRecorder) record(call SinkCall) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}
