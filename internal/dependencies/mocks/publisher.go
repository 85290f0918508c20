package mocks

import (
	"context"
	"sync"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/notify"
)

// MockPublisher records published events for assertions
type MockPublisher struct {
	mu     sync.Mutex
	events []model.LifecycleEvent

	// Err, when set, is returned from every Publish
	Err error
}

// Ensure MockPublisher implements Publisher
var _ notify.Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates an empty MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) Publish(_ context.Context, event model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *MockPublisher) Close() error { return nil }

// Events returns a copy of everything published so far
func (p *MockPublisher) Events() []model.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.LifecycleEvent(nil), p.events...)
}

// Types returns the type of every published event, in order
func (p *MockPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}
