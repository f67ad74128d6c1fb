package appkafka

import (
	"context"
	"errors"
	"sync"

	"example.com/timelinefeed/internal/store"
	"github.com/segmentio/kafka-go"
)

// MockKafka records written messages and, when Store is set, appends the
// decoded events to the journal straight away as the worker would.
type MockKafka struct {
	mu              sync.Mutex
	Store           *store.MockStore
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	ShouldFail      bool            // flag to simulate failures during write or read operations
}

// WriteMessages simulates publishing activity events.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}

	for _, msg := range messages {
		if m.Store != nil {
			ev, err := DecodeEvent(msg.Value)
			if err != nil {
				return err
			}
			if err := m.Store.AppendEvent(ev); err != nil {
				return err
			}
		}
		m.WrittenMessages = append(m.WrittenMessages, msg)
	}
	return nil
}

// SetShouldFail toggles failure simulation while the mock is in use.
func (m *MockKafka) SetShouldFail(v bool) {
	m.mu.Lock()
	m.ShouldFail = v
	m.mu.Unlock()
}

// Written returns a copy of the messages written so far.
func (m *MockKafka) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.WrittenMessages...)
}

// ReadMessage pops the next queued message.
func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
