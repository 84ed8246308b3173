package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/apperrors"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
)

// sweepInterval is how often the engine scans for expired conversations.
const sweepInterval = time.Minute

// Engine owns the in-memory conversation registry. Conversations live for
// the configured TTL after their last turn and are then swept.
type Engine struct {
	kb        *kb.KnowledgeBase
	walker    *Walker
	generator *Generator
	logger    *zap.Logger
	ttl       time.Duration

	mu            sync.RWMutex
	conversations map[string]*Conversation

	stop     chan struct{}
	stopOnce sync.Once
}

// NewEngine creates the engine and starts its background sweeper.
func NewEngine(knowledge *kb.KnowledgeBase, generator *Generator, logger *zap.Logger, ttl time.Duration) *Engine {
	e := &Engine{
		kb:            knowledge,
		walker:        NewWalker(knowledge),
		generator:     generator,
		logger:        logger.Named("engine"),
		ttl:           ttl,
		conversations: make(map[string]*Conversation),
		stop:          make(chan struct{}),
	}
	go e.sweepLoop()
	return e
}

// Start opens a new conversation and returns it with the greeting already in
// its log.
func (e *Engine) Start(vehicle *models.VehicleInfo) *Conversation {
	c := &Conversation{
		ID:        uuid.NewString(),
		Vehicle:   vehicle,
		kb:        e.kb,
		walker:    e.walker,
		generator: e.generator,
		logger:    e.logger,
	}
	c.reset()

	e.mu.Lock()
	e.conversations[c.ID] = c
	e.mu.Unlock()

	e.logger.Info("conversation started", zap.String("conversation_id", c.ID))
	return c
}

// Get returns the conversation with the given ID.
func (e *Engine) Get(id string) (*Conversation, error) {
	e.mu.RLock()
	c, ok := e.conversations[id]
	e.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

// Reset returns an existing conversation to a fresh greeting, keeping its ID
// and vehicle.
func (e *Engine) Reset(id string) (*Conversation, error) {
	c, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	c.reset()
	e.logger.Info("conversation reset", zap.String("conversation_id", id))
	return c, nil
}

// Count returns the number of live conversations.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conversations)
}

// Close stops the background sweeper. Live conversations are dropped with
// the process.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.sweep(time.Now())
		case <-e.stop:
			return
		}
	}
}

// sweep removes conversations idle past the TTL.
func (e *Engine) sweep(now time.Time) {
	var expired []string

	e.mu.RLock()
	for id, c := range e.conversations {
		if now.Sub(c.LastActive()) > e.ttl {
			expired = append(expired, id)
		}
	}
	e.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	e.mu.Lock()
	for _, id := range expired {
		delete(e.conversations, id)
	}
	e.mu.Unlock()

	e.logger.Info("swept expired conversations", zap.Int("count", len(expired)))
}
