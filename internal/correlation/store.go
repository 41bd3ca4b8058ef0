// internal/correlation/store.go
package correlation

import (
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/user/threatsight/internal/scheduler"
	"github.com/user/threatsight/internal/types"
)

const (
	// DefaultCapacity bounds the message log; the oldest record is evicted
	// once the bound is exceeded.
	DefaultCapacity = 100

	// DefaultRevertDelay is how long a message-selection highlight survives
	// before clearing itself.
	DefaultRevertDelay = 3 * time.Second

	// DefaultRateWindow is the trailing window for the message rate.
	DefaultRateWindow = 60 * time.Second
)

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	Capacity    int
	RevertDelay time.Duration
	RateWindow  time.Duration

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time

	// Classifier assigns a type to messages that arrive without one.
	Classifier *Classifier

	// TokenCounter, when set, stamps a token count on messages whose payload
	// carries a "text" attribute.
	TokenCounter func(string) int
}

// Store owns the bounded message log, the correlation index, and the
// selection/highlight state. All mutation goes through its methods; readers
// only ever receive copies.
type Store struct {
	mu          sync.Mutex
	capacity    int
	revertDelay time.Duration
	rateWindow  time.Duration
	now         func() time.Time
	classifier  *Classifier
	countTokens func(string) int

	messages []*types.Message
	byID     map[types.MessageID]*types.Message

	sel    selection
	selGen uint64
	sched  *scheduler.Keyed
}

// Compile-time interface compliance check.
var _ types.MessageLog = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.RevertDelay <= 0 {
		opts.RevertDelay = DefaultRevertDelay
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(DefaultCategories(), ClassifierOptions{})
	}
	return &Store{
		capacity:    opts.Capacity,
		revertDelay: opts.RevertDelay,
		rateWindow:  opts.RateWindow,
		now:         opts.Clock,
		classifier:  opts.Classifier,
		countTokens: opts.TokenCounter,
		byID:        make(map[types.MessageID]*types.Message),
		sel:         idleSelection(),
		sched:       scheduler.NewKeyed(),
	}
}

// Add inserts a fully-formed message. Duplicate IDs are silently rejected.
// Returns whether the message was inserted.
func (s *Store) Add(msg *types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(msg)
}

func (s *Store) addLocked(msg *types.Message) bool {
	if msg == nil || msg.ID == "" {
		return false
	}
	if _, exists := s.byID[msg.ID]; exists {
		return false
	}
	if msg.Latency < 0 {
		msg.Latency = 0
	}

	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg

	for len(s.messages) > s.capacity {
		evicted := s.messages[0]
		s.messages = s.messages[1:]
		delete(s.byID, evicted.ID)
	}
	return true
}

// Process backfills defaults on a partially-specified event, inserts the
// resulting message, and returns the enriched record so the caller can use it
// immediately. The bool reports whether the record was actually inserted
// (false when its ID already exists).
func (s *Store) Process(raw *types.RawMessage) (*types.Message, bool) {
	msg := &types.Message{
		ID:            raw.ID,
		SourceID:      raw.SourceID,
		TargetID:      raw.TargetID,
		Type:          raw.Type,
		Timestamp:     raw.Timestamp,
		Payload:       raw.Payload,
		Latency:       raw.Latency,
		Success:       true,
		Priority:      raw.Priority,
		CorrelationID: raw.CorrelationID,
		ParentID:      raw.ParentID,
	}
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.Latency <= 0 {
		msg.Latency = pseudoLatency()
	}
	if raw.Success != nil {
		msg.Success = *raw.Success
	}
	if msg.Priority == "" {
		msg.Priority = types.PriorityMedium
	}
	msg.PayloadSize = payloadSize(msg.Payload)
	if s.countTokens != nil {
		if text, ok := msg.Payload["text"].(string); ok {
			msg.TokenCount = s.countTokens(text)
		}
	}
	if msg.Type == "" {
		msg.Type = types.TypeGeneric
		if a := s.classifier.Analyze(msg); a.Score > 0 {
			msg.Type = a.Type
		}
	}

	added := s.Add(msg)
	return msg, added
}

// Analyze runs the advisory classifier over a stored message.
func (s *Store) Analyze(id types.MessageID) (Analysis, bool) {
	s.mu.Lock()
	msg, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return Analysis{}, false
	}
	return s.classifier.Analyze(msg), true
}

// Related returns the messages tied to id: every other message sharing its
// non-empty correlation ID, its parent when still present, and its children.
// Unknown IDs yield an empty slice, never an error.
func (s *Store) Related(id types.MessageID) []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	related := []*types.Message{}
	msg, ok := s.byID[id]
	if !ok {
		return related
	}

	seen := map[types.MessageID]bool{id: true}
	if msg.CorrelationID != "" {
		for _, m := range s.messages {
			if m.CorrelationID == msg.CorrelationID && !seen[m.ID] {
				related = append(related, m)
				seen[m.ID] = true
			}
		}
	}
	if msg.ParentID != "" {
		if parent, ok := s.byID[msg.ParentID]; ok && !seen[parent.ID] {
			related = append(related, parent)
			seen[parent.ID] = true
		}
	}
	for _, m := range s.messages {
		if m.ParentID == id && !seen[m.ID] {
			related = append(related, m)
			seen[m.ID] = true
		}
	}
	return related
}

// Messages returns a copy of the log, oldest first.
func (s *Store) Messages() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the current log size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear resets the log, the index, and the selection state, and cancels any
// pending highlight-reversion timers. No intermediate state is observable.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.byID = make(map[types.MessageID]*types.Message)
	s.sel = idleSelection()
	s.selGen++
	s.sched.CancelAll()
}

func pseudoLatency() time.Duration {
	return time.Duration(50+rand.IntN(500)) * time.Millisecond
}

func payloadSize(payload map[string]any) int {
	if len(payload) == 0 {
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(data)
}
