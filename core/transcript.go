package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/steps"
)

// Turn is one role-tagged utterance in the transcript. Immutable once
// appended.
type Turn struct {
	ID        uuid.UUID     `json:"id"`
	Role      dialogue.Role `json:"role"`
	Content   string        `json:"content"`
	Step      int           `json:"step"`
	Timestamp time.Time     `json:"timestamp"`
}

// transcriptStore is the append-only log of turns, the ground truth every
// other component reads from. It is cleared only on session reset.
type transcriptStore struct {
	mu    sync.RWMutex
	turns []Turn
}

func (t *transcriptStore) append(role dialogue.Role, content string, step int) Turn {
	turn := Turn{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Step:      step,
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	return turn
}

func (t *transcriptStore) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

func (t *transcriptStore) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}

// snapshot returns a point-in-time deep copy of the transcript.
func (t *transcriptStore) snapshot() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	turns := []Turn{}
	if err := copier.Copy(&turns, t.turns); err != nil {
		turns = append(turns, t.turns...)
	}
	return turns
}

// dialogueTurns renders the transcript as the history sent to the dialogue
// service.
func (t *transcriptStore) dialogueTurns() []dialogue.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	turns := make([]dialogue.Turn, 0, len(t.turns))
	for _, turn := range t.turns {
		turns = append(turns, dialogue.Turn{Role: turn.Role, Content: turn.Content})
	}
	return turns
}

// stepMessages renders the transcript shape consumed by the step policy.
func (t *transcriptStore) stepMessages() []steps.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	messages := make([]steps.Message, 0, len(t.turns))
	for _, turn := range t.turns {
		messages = append(messages, steps.Message{Role: turn.Role, Step: turn.Step})
	}
	return messages
}
