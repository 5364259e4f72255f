package realtime

import (
	"sync"
	"time"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

// Form is the shared proposal list: a sequence-valued collaborative
// document plus a "current record" selection for the editing surface.
// Selection follows the record's draft id across remote snapshots, so a
// concurrent insert or removal elsewhere in the list does not silently
// shift which record is being edited; when the id is gone the selection
// falls back to the old position clamped to the new length.
type Form struct {
	doc *Document[[]domain.ProposalRecord]

	mu        sync.Mutex
	current   int
	currentID string
	focused   func(field string) bool
}

func cloneRecords(in []domain.ProposalRecord) []domain.ProposalRecord {
	out := make([]domain.ProposalRecord, len(in))
	copy(out, in)
	return out
}

func equalRecords(a, b []domain.ProposalRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NewForm creates the proposal-form replica. send flushes the entire list.
func NewForm(localID string, window time.Duration, send func([]domain.ProposalRecord)) *Form {
	return &Form{
		doc: NewDocument[[]domain.ProposalRecord](localID, window, cloneRecords, equalRecords, send),
	}
}

// OnChange registers the re-render notification for remote updates.
func (f *Form) OnChange(fn func()) { f.doc.OnChange(fn) }

// SetFocusFunc installs the view's focus probe. During a remote overwrite,
// fields of the current record whose input reports focus keep their local
// value. This is a UX mitigation against destroying in-progress typing,
// not a consistency guarantee; true conflicts resolve last-write-wins in
// the server's broadcast order.
func (f *Form) SetFocusFunc(fn func(field string) bool) {
	f.mu.Lock()
	f.focused = fn
	f.mu.Unlock()
}

// Synced reports whether the initial state has arrived.
func (f *Form) Synced() bool { return f.doc.Synced() }

// Init installs the server's initial proposal list. An empty list gets a
// single blank record so the editing surface always has a current entry.
func (f *Form) Init(proposals []domain.ProposalRecord) {
	if len(proposals) == 0 {
		proposals = []domain.ProposalRecord{domain.NewProposalRecord()}
	}
	f.doc.Init(proposals)

	f.mu.Lock()
	f.current = 0
	f.currentID = proposals[0].DraftID
	f.mu.Unlock()
}

// Records returns a snapshot of the proposal list.
func (f *Form) Records() []domain.ProposalRecord { return f.doc.Value() }

// Current returns the record under edit, its position and the list length.
func (f *Form) Current() (domain.ProposalRecord, int, int) {
	records := f.doc.Value()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(records) == 0 {
		return domain.ProposalRecord{}, 0, 0
	}
	idx := f.clampLocked(len(records))
	return records[idx], idx, len(records)
}

// SetField applies a local edit to one field of the current record and
// (re)arms the debounce window.
func (f *Form) SetField(key, value string) error {
	f.mu.Lock()
	idx := f.current
	id := f.currentID
	f.mu.Unlock()

	return f.doc.Edit(func(records *[]domain.ProposalRecord) {
		i := indexOf(*records, id, idx)
		if i < 0 {
			return
		}
		(*records)[i].Set(key, value)
	})
}

// ApplySample force-reads a whole set of field values into the current
// record without waiting for the debounce, mirroring the forced re-sample
// before posting. It does not schedule a flush of its own.
func (f *Form) ApplySample(fields map[string]string) error {
	f.mu.Lock()
	idx := f.current
	id := f.currentID
	f.mu.Unlock()

	return f.doc.Mutate(func(records *[]domain.ProposalRecord) {
		i := indexOf(*records, id, idx)
		if i < 0 {
			return
		}
		for key, value := range fields {
			(*records)[i].Set(key, value)
		}
	})
}

// Append adds a fresh record at the end, selects it, and flushes
// immediately so collaborators see the new empty entry without the
// debounce delay.
func (f *Form) Append() error {
	rec := domain.NewProposalRecord()

	if err := f.doc.Mutate(func(records *[]domain.ProposalRecord) {
		*records = append(*records, rec)
	}); err != nil {
		return err
	}

	f.mu.Lock()
	f.current = len(f.doc.Value()) - 1
	f.currentID = rec.DraftID
	f.mu.Unlock()

	f.doc.Flush()
	return nil
}

// Navigate moves the current selection by delta, clamped to the list
// bounds. Purely local; no network effect.
func (f *Form) Navigate(delta int) {
	records := f.doc.Value()
	if len(records) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.clampLocked(len(records)) + delta
	if idx < 0 {
		idx = 0
	}
	if idx > len(records)-1 {
		idx = len(records) - 1
	}
	f.current = idx
	f.currentID = records[idx].DraftID
}

// Flush sends the current list immediately, cancelling any pending
// debounce.
func (f *Form) Flush() { f.doc.Flush() }

// ApplyRemote reconciles a server-broadcast list snapshot, preserving
// locally focused fields of the current record, then re-anchors the
// selection by draft id (falling back to the clamped old position).
func (f *Form) ApplyRemote(sender string, proposals []domain.ProposalRecord) bool {
	f.mu.Lock()
	id := f.currentID
	idx := f.current
	focused := f.focused
	f.mu.Unlock()

	changed := f.doc.ApplyRemote(sender, proposals, func(local, remote []domain.ProposalRecord) []domain.ProposalRecord {
		if focused == nil {
			return remote
		}
		li := indexOf(local, id, idx)
		ri := indexOf(remote, id, idx)
		if li < 0 || ri < 0 {
			return remote
		}
		for _, key := range domain.FieldKeys {
			if focused(key) {
				remote[ri].Set(key, local[li].Get(key))
			}
		}
		return remote
	})

	if changed {
		f.reselect()
	}
	return changed
}

// Close cancels any pending flush.
func (f *Form) Close() { f.doc.Close() }

// reselect re-anchors the current selection after a remote snapshot.
func (f *Form) reselect() {
	records := f.doc.Value()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(records) == 0 {
		f.current = 0
		f.currentID = ""
		return
	}

	for i, rec := range records {
		if rec.DraftID != "" && rec.DraftID == f.currentID {
			f.current = i
			return
		}
	}

	f.current = f.clampLocked(len(records))
	f.currentID = records[f.current].DraftID
}

// clampLocked bounds the current index to [0, length-1].
func (f *Form) clampLocked(length int) int {
	if f.current > length-1 {
		f.current = length - 1
	}
	if f.current < 0 {
		f.current = 0
	}
	return f.current
}

// indexOf locates a record by draft id, falling back to the positional
// index for records that predate draft ids.
func indexOf(records []domain.ProposalRecord, id string, fallback int) int {
	if id != "" {
		for i, rec := range records {
			if rec.DraftID == id {
				return i
			}
		}
	}
	if fallback >= 0 && fallback < len(records) {
		return fallback
	}
	if len(records) > 0 {
		return len(records) - 1
	}
	return -1
}
