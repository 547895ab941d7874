// Package session keeps the in-memory conversation state for every chat.
// Nothing here survives a restart.
package session

import "sync"

type State int

const (
	Idle State = iota
	AwaitingSourceURL
	AwaitingCaptionText
	AwaitingPlatformChoice
	AwaitingScheduleChoice
	AwaitingScheduleDateTime
	AwaitingWatermarkText
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingSourceURL:
		return "awaiting_source_url"
	case AwaitingCaptionText:
		return "awaiting_caption_text"
	case AwaitingPlatformChoice:
		return "awaiting_platform_choice"
	case AwaitingScheduleChoice:
		return "awaiting_schedule_choice"
	case AwaitingScheduleDateTime:
		return "awaiting_schedule_datetime"
	case AwaitingWatermarkText:
		return "awaiting_watermark_text"
	}
	return "unknown"
}

// Session is the job under construction for one chat. Source, Target,
// VideoPath and Caption are plain strings so this package stays a leaf.
type Session struct {
	ChatID    int64
	State     State
	Source    string
	SourceURL string
	Target    string
	VideoPath string
	VideoID   string
	Caption   string

	// VideoIndex maps the short tokens shown on list buttons to catalog ids.
	VideoIndex map[string]string

	// Messages are bot message ids sent to this chat, for "clear messages".
	Messages []int
}

// ResetFlow drops the in-progress job but keeps the video index and the
// tracked messages.
func (s *Session) ResetFlow() {
	s.State = Idle
	s.Source = ""
	s.SourceURL = ""
	s.Target = ""
	s.VideoPath = ""
	s.VideoID = ""
	s.Caption = ""
}

func (s Session) clone() Session {
	if s.VideoIndex != nil {
		idx := make(map[string]string, len(s.VideoIndex))
		for k, v := range s.VideoIndex {
			idx[k] = v
		}
		s.VideoIndex = idx
	}
	if s.Messages != nil {
		s.Messages = append([]int(nil), s.Messages...)
	}
	return s
}

const maxTrackedMessages = 200

type entry struct {
	turn sync.Mutex
	s    Session
}

// Store hands out copies of sessions, so callers never share mutable
// state. Lock serializes event handling per chat.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (st *Store) entry(chatID int64) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.sessions[chatID]
	if !ok {
		e = &entry{s: Session{ChatID: chatID}}
		st.sessions[chatID] = e
	}
	return e
}

// Lock takes the chat's turn and returns the release func. Handlers for the
// same chat run one at a time; different chats proceed in parallel.
func (st *Store) Lock(chatID int64) func() {
	e := st.entry(chatID)
	e.turn.Lock()
	return e.turn.Unlock
}

func (st *Store) Get(chatID int64) Session {
	e := st.entry(chatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	return e.s.clone()
}

// Put replaces the session. Tracked messages are owned by TrackMessage and
// TakeMessages and are not overwritten.
func (st *Store) Put(s Session) {
	e := st.entry(s.ChatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	msgs := e.s.Messages
	e.s = s.clone()
	e.s.Messages = msgs
}

func (st *Store) Reset(chatID int64) {
	e := st.entry(chatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	e.s.ResetFlow()
}

// TrackMessage remembers a bot message id. Only the newest ids are kept.
func (st *Store) TrackMessage(chatID int64, messageID int) {
	e := st.entry(chatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	e.s.Messages = append(e.s.Messages, messageID)
	if n := len(e.s.Messages); n > maxTrackedMessages {
		e.s.Messages = e.s.Messages[n-maxTrackedMessages:]
	}
}

// TakeMessages returns and forgets the tracked message ids.
func (st *Store) TakeMessages(chatID int64) []int {
	e := st.entry(chatID)

	st.mu.Lock()
	defer st.mu.Unlock()
	ids := e.s.Messages
	e.s.Messages = nil
	return ids
}
