// Copyright 2025 The Civic Educator Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one question/answer exchange kept in conversation history.
type Turn struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conversation holds the state carried between turns.
type Conversation struct {
	ID      string         `json:"id"`
	Turns   []Turn         `json:"turns"`
	Context map[string]any `json:"context,omitempty"`
	Updated time.Time      `json:"updated"`
}

// ConversationStore is an in-memory conversation registry keyed by
// UUID. State is lost on restart.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	maxTurns      int
}

// NewConversationStore creates an empty store. maxTurns caps the
// history kept per conversation; 0 means the default of 20.
func NewConversationStore(maxTurns int) *ConversationStore {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &ConversationStore{
		conversations: make(map[string]*Conversation),
		maxTurns:      maxTurns,
	}
}

// Resolve returns a copy of the conversation for id, creating one under
// a fresh UUID when id is empty or unknown.
func (s *ConversationStore) Resolve(id string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if conv, ok := s.conversations[id]; ok {
			return conv.snapshot()
		}
	}
	conv := &Conversation{
		ID:      uuid.NewString(),
		Updated: time.Now(),
	}
	s.conversations[conv.ID] = conv
	return conv.snapshot()
}

// Get returns a copy of the conversation by id. Callers hold it outside
// the store lock, so the live record never escapes.
func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return conv.snapshot(), true
}

// snapshot deep-copies the mutable fields. Record keeps appending to
// the live record while copies are serialized.
func (c *Conversation) snapshot() Conversation {
	out := Conversation{ID: c.ID, Updated: c.Updated}
	if len(c.Turns) > 0 {
		out.Turns = make([]Turn, len(c.Turns))
		copy(out.Turns, c.Turns)
	}
	if c.Context != nil {
		out.Context = make(map[string]any, len(c.Context))
		for k, v := range c.Context {
			out.Context[k] = v
		}
	}
	return out
}

// Record appends a turn and replaces the carried context.
func (s *ConversationStore) Record(id string, turn Turn, context map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	conv.Turns = append(conv.Turns, turn)
	if len(conv.Turns) > s.maxTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-s.maxTurns:]
	}
	conv.Context = context
	conv.Updated = time.Now()
}

// Delete removes a conversation. Returns false if it did not exist.
func (s *ConversationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	return true
}

// Len returns the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
