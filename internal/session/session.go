// Package session records what happened during one validation run and
// persists the record as JSONL.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/planval/internal/state"
)

// Status constants for sessions. They match the validator's verdicts.
const (
	StatusRunning   = "running"
	StatusValid     = "valid"
	StatusInvalid   = "invalid"
	StatusUndecided = "undecided"
	StatusError     = "error"
)

// Event types for the run log
const (
	EventRunStart  = "run_start"
	EventHappening = "happening" // a happening was applied
	EventBlocked   = "blocked"   // a happening could not be applied
	EventCondition = "condition" // an error log record
	EventViolation = "violation" // a trajectory constraint broke
	EventGoal      = "goal"
	EventRunEnd    = "run_end"
)

// Session is the record of one plan's validation.
type Session struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	Value     *float64  `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the run log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Plan time of the happening or record.
	Time float64 `json:"time"`

	Actions []string `json:"actions,omitempty"`
	Content string   `json:"content,omitempty"`
	Success *bool    `json:"success,omitempty"`

	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta carries the state delta of a happening or the kind of a record.
type EventMeta struct {
	Kind       string             `json:"kind,omitempty"`
	Added      []string           `json:"added,omitempty"`
	Deleted    []string           `json:"deleted,omitempty"`
	Values     map[string]float64 `json:"values,omitempty"`
	Preference string             `json:"preference,omitempty"`
}

// New creates a running session.
func New(id, task, plan string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Task:      task,
		Plan:      plan,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) nextSeqID() uint64 {
	return atomic.AddUint64(&s.seqCounter, 1)
}

// AddEvent appends an event, assigning its sequence number and timestamp.
func (s *Session) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.SeqID = s.nextSeqID()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// Finish records the verdict.
func (s *Session) Finish(status string, value *float64, err error) {
	s.mu.Lock()
	s.Status = status
	s.Value = value
	if err != nil {
		s.Error = err.Error()
	}
	s.mu.Unlock()

	ok := status == StatusValid
	s.AddEvent(Event{Type: EventRunEnd, Content: status, Success: &ok})
}

func actionNames(h state.Happening) []string {
	acts := h.Actions()
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.String()
	}
	return out
}

// NotifyChanged implements state.Observer. It logs the happening together
// with the literals and values it changed.
func (s *Session) NotifyChanged(st *state.State, h state.Happening) {
	terms := st.Context().Terms
	meta := &EventMeta{}
	for _, p := range st.ChangedProps() {
		lit := terms.PropAtom(p).String()
		if st.Prop(p) {
			meta.Added = append(meta.Added, lit)
		} else {
			meta.Deleted = append(meta.Deleted, lit)
		}
	}
	for id := range st.ChangedFuncs() {
		v, err := st.Value(id)
		if err != nil {
			continue
		}
		if meta.Values == nil {
			meta.Values = make(map[string]float64)
		}
		meta.Values[terms.FuncAtom(id).String()] = v
	}
	ok := true
	s.AddEvent(Event{
		Type:    EventHappening,
		Time:    h.Time(),
		Actions: actionNames(h),
		Success: &ok,
		Meta:    meta,
	})
}

// Blocked logs a happening that did not apply.
func (s *Session) Blocked(h state.Happening, reason string) {
	ok := false
	s.AddEvent(Event{Type: EventBlocked, Time: h.Time(), Actions: actionNames(h), Content: reason, Success: &ok})
}

// Store persists sessions.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
}

// JSONL record types
const (
	RecordTypeHeader = "header"
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer"
)

// JSONLRecord is one line of a session file: a header, an event or a
// footer.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// Header fields
	ID        string    `json:"id,omitempty"`
	Task      string    `json:"task,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	// Footer fields
	Status    string    `json:"status,omitempty"`
	Value     *float64  `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileStore keeps one JSONL file per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a session is saved to.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save writes the session to a temporary file and renames it into place.
func (s *FileStore) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	path := s.Path(sess.ID)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}

	w := bufio.NewWriter(f)
	err = writeSession(w, sess)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeSession(w io.Writer, sess *Session) error {
	header := JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         sess.ID,
		Task:       sess.Task,
		Plan:       sess.Plan,
		CreatedAt:  sess.CreatedAt,
	}
	if err := writeLine(w, header); err != nil {
		return err
	}
	for _, evt := range sess.Events {
		evtCopy := evt
		if err := writeLine(w, JSONLRecord{RecordType: RecordTypeEvent, Event: &evtCopy}); err != nil {
			return err
		}
	}
	footer := JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     sess.Status,
		Value:      sess.Value,
		Error:      sess.Error,
		UpdatedAt:  sess.UpdatedAt,
	}
	return writeLine(w, footer)
}

func writeLine(w io.Writer, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Load reads the session with the given id.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// LoadFile reads a session file.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Events: []Event{}}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if perr := parseJSONLLine(trimmed, sess); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
	}

	if n := len(sess.Events); n > 0 {
		sess.seqCounter = sess.Events[n-1].SeqID
	}
	return sess, nil
}

func parseJSONLLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.Task = record.Task
		sess.Plan = record.Plan
		sess.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Value = record.Value
		sess.Error = record.Error
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}
