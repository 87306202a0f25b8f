package testhelpers

import (
	"context"
	"sync"

	"arcstack.dev/arcstack/internal/submitqueue"
)

// QueueRequest is one submission seen by a FakeQueue
type QueueRequest struct {
	RemoteURL string
	Stack     []submitqueue.StackEntry
	Shadow    bool
	Target    string
}

// FakeQueue records merge-queue submissions
type FakeQueue struct {
	mu       sync.Mutex
	requests []QueueRequest

	// Err fails every submission
	Err error
	// StatusURL is returned on success
	StatusURL string
}

var _ submitqueue.Submitter = (*FakeQueue)(nil)

// NewFakeQueue creates a queue that accepts every submission
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{StatusURL: "https://submitqueue.example.com/status/1"}
}

// SubmitMergeStackRequest implements submitqueue.Submitter
func (q *FakeQueue) SubmitMergeStackRequest(_ context.Context, remoteURL string, stack []submitqueue.StackEntry, shadow bool, target string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, QueueRequest{
		RemoteURL: remoteURL,
		Stack:     append([]submitqueue.StackEntry{}, stack...),
		Shadow:    shadow,
		Target:    target,
	})
	if q.Err != nil {
		return "", q.Err
	}
	return q.StatusURL, nil
}

// Requests returns every submission, in order
func (q *FakeQueue) Requests() []QueueRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueRequest{}, q.requests...)
}

// FakePrompter answers confirmations from a script
type FakePrompter struct {
	mu       sync.Mutex
	answers  []bool
	Default  bool
	Messages []string
}

// NewFakePrompter answers with the given values in order, then with Default
func NewFakePrompter(answers ...bool) *FakePrompter {
	return &FakePrompter{answers: answers}
}

// Confirm implements tui.Prompter
func (p *FakePrompter) Confirm(message string, _ bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, message)
	if len(p.answers) == 0 {
		return p.Default, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}
