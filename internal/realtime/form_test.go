package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
)

type formRecorder struct {
	mu    sync.Mutex
	sends [][]domain.ProposalRecord
}

func (r *formRecorder) send(p []domain.ProposalRecord) {
	r.mu.Lock()
	r.sends = append(r.sends, p)
	r.mu.Unlock()
}

func (r *formRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

func (r *formRecorder) last() []domain.ProposalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sends) == 0 {
		return nil
	}
	return r.sends[len(r.sends)-1]
}

func record(what string) domain.ProposalRecord {
	rec := domain.NewProposalRecord()
	rec.Q1 = what
	return rec
}

func TestFormInitEmptyListGetsBlankRecord(t *testing.T) {
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init(nil)

	rec, idx, total := f.Current()
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, total)
	assert.NotEmpty(t, rec.DraftID)
}

func TestFormAppendSelectsAndFlushesImmediately(t *testing.T) {
	rec := &formRecorder{}
	f := NewForm("alice", time.Hour, rec.send)
	f.Init([]domain.ProposalRecord{record("first")})

	require.NoError(t, f.Append())

	// Adding an entry bypasses the debounce so collaborators see it now.
	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.last(), 2)

	cur, idx, total := f.Current()
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, total)
	assert.Empty(t, cur.Q1)
}

func TestFormSetFieldDebounced(t *testing.T) {
	rec := &formRecorder{}
	f := NewForm("alice", 50*time.Millisecond, rec.send)
	f.Init([]domain.ProposalRecord{record("")})

	require.NoError(t, f.SetField(domain.FieldWhat, "ゴミ拾い"))
	assert.Equal(t, 0, rec.count())

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ゴミ拾い", rec.last()[0].Q1)
}

func TestFormNavigateClampsToBounds(t *testing.T) {
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init([]domain.ProposalRecord{record("a"), record("b"), record("c")})

	f.Navigate(10)
	_, idx, _ := f.Current()
	assert.Equal(t, 2, idx)

	f.Navigate(-10)
	_, idx, _ = f.Current()
	assert.Equal(t, 0, idx)
}

func TestFormSelectionFollowsDraftIDAcrossReorder(t *testing.T) {
	a, b, c := record("a"), record("b"), record("c")
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init([]domain.ProposalRecord{a, b, c})
	f.Navigate(1) // select b

	// A collaborator reorders the list; the selection must stay on b.
	changed := f.ApplyRemote("bob", []domain.ProposalRecord{c, a, b})
	require.True(t, changed)

	cur, idx, _ := f.Current()
	assert.Equal(t, b.DraftID, cur.DraftID)
	assert.Equal(t, 2, idx)
}

func TestFormSelectionClampsWhenRecordRemoved(t *testing.T) {
	a, b, c := record("a"), record("b"), record("c")
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init([]domain.ProposalRecord{a, b, c})
	f.Navigate(2) // select c

	changed := f.ApplyRemote("bob", []domain.ProposalRecord{a, b})
	require.True(t, changed)

	cur, idx, total := f.Current()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, idx)
	assert.Equal(t, b.DraftID, cur.DraftID)
}

func TestFormFocusedFieldSurvivesRemoteOverwrite(t *testing.T) {
	a := record("original")
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init([]domain.ProposalRecord{a})
	f.SetFocusFunc(func(field string) bool { return field == domain.FieldWhat })

	require.NoError(t, f.SetField(domain.FieldWhat, "typing in progress"))

	remote := a
	remote.Q1 = "bob's overwrite"
	remote.Q2 = "bob's reason"
	changed := f.ApplyRemote("bob", []domain.ProposalRecord{remote})
	require.True(t, changed)

	cur, _, _ := f.Current()
	assert.Equal(t, "typing in progress", cur.Q1)
	assert.Equal(t, "bob's reason", cur.Q2)
}

func TestFormSelfEchoDiscarded(t *testing.T) {
	a := record("mine")
	f := NewForm("alice", time.Hour, func([]domain.ProposalRecord) {})
	f.Init([]domain.ProposalRecord{a})
	require.NoError(t, f.SetField(domain.FieldWhat, "newer local"))

	stale := a
	changed := f.ApplyRemote("alice", []domain.ProposalRecord{stale})
	assert.False(t, changed)

	cur, _, _ := f.Current()
	assert.Equal(t, "newer local", cur.Q1)
}

func TestFormApplySampleDoesNotSchedule(t *testing.T) {
	rec := &formRecorder{}
	f := NewForm("alice", 50*time.Millisecond, rec.send)
	f.Init([]domain.ProposalRecord{record("")})

	require.NoError(t, f.ApplySample(map[string]string{
		domain.FieldWhat: "清掃活動",
		domain.FieldWhy:  "地域のため",
	}))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	cur, _, _ := f.Current()
	assert.Equal(t, "清掃活動", cur.Q1)
	assert.Equal(t, "地域のため", cur.Q2)
}
