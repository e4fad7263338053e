package raft

import "fmt"

// EntryKind determines how the apply loop interprets a log entry
type EntryKind uint8

const (
	// EntryCommand carries an encoded state machine command
	EntryCommand EntryKind = 0
	// EntryConfiguration is reserved for cluster membership changes
	EntryConfiguration EntryKind = 1
	// EntryNoop is appended by a new leader to assert leadership
	EntryNoop EntryKind = 2
)

func (k EntryKind) String() string {
	switch k {
	case EntryCommand:
		return "command"
	case EntryConfiguration:
		return "configuration"
	case EntryNoop:
		return "noop"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// LogEntry is a single entry in the replicated log
type LogEntry struct {
	Term    uint64
	Index   uint64
	Kind    EntryKind
	Payload []byte
}

// Log is the ordered command log of one node. Indexes are logical, 1-based
// and gap-free; after a snapshot install the first index is rebased so that
// lookups below it return nil and callers fall back to snapshot semantics.
//
// The log is exclusively owned by its node; it performs no locking.
type Log struct {
	entries []LogEntry

	// lastIncludedIndex/Term describe the snapshot boundary. entries[0], when
	// present, always has index lastIncludedIndex+1.
	lastIncludedIndex uint64
	lastIncludedTerm  uint64
}

// NewLog creates an empty log with first index 1
func NewLog() *Log {
	return &Log{}
}

// FirstIndex returns the lowest logical index the log can serve
func (l *Log) FirstIndex() uint64 {
	return l.lastIncludedIndex + 1
}

// LastIndex returns the index of the last entry, or the snapshot boundary
// when the log holds no entries (0 for a fresh log)
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return l.lastIncludedIndex
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the last entry, or the snapshot boundary term
// when the log holds no entries (0 for a fresh log)
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return l.lastIncludedTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// Append adds an entry at the tail. The entry must continue the sequence:
// index == LastIndex()+1 and term >= LastTerm().
func (l *Log) Append(entry LogEntry) error {
	if entry.Index != l.LastIndex()+1 {
		return fmt.Errorf("append at index %d breaks sequence, last index is %d", entry.Index, l.LastIndex())
	}
	if entry.Term < l.LastTerm() {
		return fmt.Errorf("append with term %d below last term %d", entry.Term, l.LastTerm())
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Get returns the entry at a logical index, or nil when the index is beyond
// the tail or below the first index (compacted into a snapshot)
func (l *Log) Get(index uint64) *LogEntry {
	if index < l.FirstIndex() || index > l.LastIndex() {
		return nil
	}
	return &l.entries[index-l.FirstIndex()]
}

// Term returns the term of the entry at index. The snapshot boundary index
// resolves to the snapshot term; index 0 and unknown indexes resolve to 0.
func (l *Log) Term(index uint64) uint64 {
	if index == l.lastIncludedIndex {
		return l.lastIncludedTerm
	}
	if e := l.Get(index); e != nil {
		return e.Term
	}
	return 0
}

// TruncateFrom removes all entries with index >= index. The caller is
// responsible for never truncating a committed index.
func (l *Log) TruncateFrom(index uint64) {
	if index <= l.lastIncludedIndex {
		panic(fmt.Sprintf("raft: truncate at %d below snapshot boundary %d", index, l.lastIncludedIndex))
	}
	if index > l.LastIndex() {
		return
	}
	l.entries = l.entries[:index-l.FirstIndex()]
}

// Suffix returns a copy of all entries with index >= from. Indexes below the
// first index are clamped to it.
func (l *Log) Suffix(from uint64) []LogEntry {
	if from < l.FirstIndex() {
		from = l.FirstIndex()
	}
	if from > l.LastIndex() {
		return nil
	}
	out := make([]LogEntry, l.LastIndex()-from+1)
	copy(out, l.entries[from-l.FirstIndex():])
	return out
}

// CompactTo drops all entries at or before index and rebases the first index
// to index+1. Called after the state up to index has been snapshotted.
func (l *Log) CompactTo(index, term uint64) {
	if index < l.lastIncludedIndex {
		panic(fmt.Sprintf("raft: compact to %d below snapshot boundary %d", index, l.lastIncludedIndex))
	}
	if index >= l.FirstIndex() && index <= l.LastIndex() {
		kept := l.entries[index-l.FirstIndex()+1:]
		l.entries = append([]LogEntry(nil), kept...)
	} else if index > l.LastIndex() {
		l.entries = nil
	}
	l.lastIncludedIndex = index
	l.lastIncludedTerm = term
}

// Len returns the number of entries currently held (excludes compacted ones)
func (l *Log) Len() int {
	return len(l.entries)
}
