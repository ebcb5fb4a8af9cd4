package services

import (
	"context"
	"sync"

	"github.com/MegaGrindStone/talkback/internal/models"
)

// Memory is a MessageStore that lives as long as the process.
type Memory struct {
	mu       *sync.RWMutex
	messages map[string]models.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() Memory {
	return Memory{
		mu:       &sync.RWMutex{},
		messages: make(map[string]models.Message),
	}
}

func (m Memory) Message(_ context.Context, id string) (models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (m Memory) AddMessage(_ context.Context, message models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[message.ID] = message
	return nil
}
