package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event describing build-engine progress:
// build lifecycle, node evaluation, and action execution.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// BuildID is the associated build invocation ID, if applicable.
	BuildID string `json:"build_id,omitempty"`

	// Key is the associated evaluator key, if applicable.
	Key string `json:"key,omitempty"`

	// ActionKey is the associated action-cache key, if applicable.
	ActionKey string `json:"action_key,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeBuildStarted      = "build.started"
	EventTypeBuildCompleted    = "build.completed"
	EventTypeBuildFailed       = "build.failed"
	EventTypeNodeEvaluating    = "node.evaluating"
	EventTypeNodeEvaluated     = "node.evaluated"
	EventTypeNodeFailed        = "node.failed"
	EventTypeActionCacheHit    = "action.cache_hit"
	EventTypeActionExecuting   = "action.executing"
	EventTypeActionCompleted   = "action.completed"
	EventTypeActionFailed      = "action.failed"
	EventTypeCycleDetected     = "graph.cycle_detected"
	EventTypeError             = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions for a single
// build invocation. It is the backing store for the CLI's progress
// renderer and for any external listener attached via Subscribe.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishBuildStarted publishes a build started event.
func (ep *EventPublisher) PublishBuildStarted(buildID, user string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildStarted,
		Source:  "evaluator",
		BuildID: buildID,
		Message: fmt.Sprintf("build %s started by %s", buildID, user),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"user": user,
		},
	})
}

// PublishBuildCompleted publishes a build completed event.
func (ep *EventPublisher) PublishBuildCompleted(buildID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildCompleted,
		Source:  "evaluator",
		BuildID: buildID,
		Message: fmt.Sprintf("build %s completed with status: %s", buildID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishBuildFailed publishes a build failed event.
func (ep *EventPublisher) PublishBuildFailed(buildID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildFailed,
		Source:  "evaluator",
		BuildID: buildID,
		Message: fmt.Sprintf("build %s failed: %s", buildID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishNodeEvaluating publishes a node-evaluation-started event.
func (ep *EventPublisher) PublishNodeEvaluating(buildID, key, keyType string) error {
	return ep.Publish(Event{
		Type:    EventTypeNodeEvaluating,
		Source:  "evaluator",
		BuildID: buildID,
		Key:     key,
		Message: fmt.Sprintf("evaluating %s (%s)", key, keyType),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"key_type": keyType,
		},
	})
}

// PublishNodeEvaluated publishes a node-evaluation-completed event.
func (ep *EventPublisher) PublishNodeEvaluated(buildID, key string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeNodeEvaluated,
		Source:  "evaluator",
		BuildID: buildID,
		Key:     key,
		Message: fmt.Sprintf("evaluated %s", key),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishNodeFailed publishes a node-evaluation-failed event.
func (ep *EventPublisher) PublishNodeFailed(buildID, key, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeNodeFailed,
		Source:  "evaluator",
		BuildID: buildID,
		Key:     key,
		Message: fmt.Sprintf("evaluation of %s failed: %s", key, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishActionCacheHit publishes an action-cache-hit event.
func (ep *EventPublisher) PublishActionCacheHit(buildID, actionKey string) error {
	return ep.Publish(Event{
		Type:      EventTypeActionCacheHit,
		Source:    "actionexec",
		BuildID:   buildID,
		ActionKey: actionKey,
		Message:   fmt.Sprintf("action cache hit for %s", actionKey),
		Level:     EventLevelInfo,
	})
}

// PublishActionCompleted publishes an action-execution-completed event.
func (ep *EventPublisher) PublishActionCompleted(buildID, actionKey string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeActionCompleted,
		Source:    "actionexec",
		BuildID:   buildID,
		ActionKey: actionKey,
		Message:   fmt.Sprintf("action %s completed", actionKey),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishActionFailed publishes an action-execution-failed event.
func (ep *EventPublisher) PublishActionFailed(buildID, actionKey, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeActionFailed,
		Source:    "actionexec",
		BuildID:   buildID,
		ActionKey: actionKey,
		Message:   fmt.Sprintf("action %s failed: %s", actionKey, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishCycleDetected publishes a request-cycle-detected event.
func (ep *EventPublisher) PublishCycleDetected(buildID string, cycle []string) error {
	return ep.Publish(Event{
		Type:    EventTypeCycleDetected,
		Source:  "evaluator",
		BuildID: buildID,
		Message: fmt.Sprintf("cycle detected: %v", cycle),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"cycle": cycle,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Nothing to do here: processEvents runs its own FlushInterval
			// ticker and delivers a partly filled batch on each tick.
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByBuildID creates a filter that only allows events for a specific build.
func FilterByBuildID(buildID string) EventFilter {
	return func(event Event) bool {
		return event.BuildID == buildID
	}
}

// FilterByKey creates a filter that only allows events for a specific key.
func FilterByKey(key string) EventFilter {
	return func(event Event) bool {
		return event.Key == key
	}
}
