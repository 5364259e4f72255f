package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProposalRecordMintsDraftID(t *testing.T) {
	a := NewProposalRecord()
	b := NewProposalRecord()
	assert.NotEmpty(t, a.DraftID)
	assert.NotEqual(t, a.DraftID, b.DraftID)
}

func TestProposalRecordGetSetRoundTrip(t *testing.T) {
	var p ProposalRecord
	for i, key := range FieldKeys {
		p.Set(key, string(rune('a'+i)))
	}
	assert.Equal(t, "a", p.Q1)
	assert.Equal(t, "f", p.Q6)
	assert.Equal(t, "g", p.Get(FieldThinking))

	p.Set("q99", "ignored")
	assert.Equal(t, "", p.Get("q99"))
}

func TestFormatPostedFullRecord(t *testing.T) {
	p := ProposalRecord{
		Q1: "公園の清掃活動",
		Q2: "地域を綺麗にするため",
		Q3: "来月の第一土曜日",
		Q4: "中央公園",
		Q5: "町内会のメンバー",
		Q6: "ボランティア募集",
		Q7: ThinkingForecast,
	}

	want := "【5W1Hフォームからの提案】\n" +
		"Q1 (What): 公園の清掃活動\n" +
		"Q2 (Why): 地域を綺麗にするため\n" +
		"Q3 (How): ボランティア募集\n" +
		"Q4 (When): 来月の第一土曜日\n" +
		"Q5 (Where): 中央公園\n" +
		"Q6 (Who): 町内会のメンバー\n" +
		"Q7 (思考法): フォアキャスティング"
	assert.Equal(t, want, FormatPosted(p))
}

func TestFormatPostedEmptyFieldsGetPlaceholders(t *testing.T) {
	p := ProposalRecord{Q1: "最低限の提案"}

	want := "【5W1Hフォームからの提案】\n" +
		"Q1 (What): 最低限の提案\n" +
		"Q2 (Why): 未記入\n" +
		"Q3 (How): 未記入\n" +
		"Q4 (When): 未記入\n" +
		"Q5 (Where): 未記入\n" +
		"Q6 (Who): 未記入\n" +
		"Q7 (思考法): 未選択"
	assert.Equal(t, want, FormatPosted(p))
}

func TestThinkingModeLabelClosedMapping(t *testing.T) {
	assert.Equal(t, "フォアキャスティング", ThinkingModeLabel(ThinkingForecast))
	assert.Equal(t, "バックキャスティング", ThinkingModeLabel(ThinkingBackcast))
	assert.Equal(t, "未選択", ThinkingModeLabel(""))
	assert.Equal(t, "未選択", ThinkingModeLabel("something else"))
}

func TestMethodCompositeRoundTrip(t *testing.T) {
	s := BuildMethod([]string{"アンケート", "ワークショップ"}, "SNSで告知")
	assert.Equal(t, "アンケート、ワークショップ、その他：SNSで告知", s)

	selected, other := ParseMethod(s)
	assert.Equal(t, []string{"アンケート", "ワークショップ"}, selected)
	assert.Equal(t, "SNSで告知", other)
}

func TestParseMethodEmpty(t *testing.T) {
	selected, other := ParseMethod("")
	assert.Nil(t, selected)
	assert.Empty(t, other)
}

func TestWhoCompositeRoundTrip(t *testing.T) {
	s := BuildWho("町内会", "住民全員", "市役所")
	implementer, target, stakeholder := ParseWho(s)
	assert.Equal(t, "町内会", implementer)
	assert.Equal(t, "住民全員", target)
	assert.Equal(t, "市役所", stakeholder)
}

func TestParseWhoLegacyValueLandsInImplementer(t *testing.T) {
	implementer, target, stakeholder := ParseWho("昔の自由記述")
	assert.Equal(t, "昔の自由記述", implementer)
	assert.Empty(t, target)
	assert.Empty(t, stakeholder)
}

func TestParseWhoMultilineStakeholder(t *testing.T) {
	s := BuildWho("a", "b", "市役所") + "\nNPO法人"
	_, _, stakeholder := ParseWho(s)
	assert.Equal(t, "市役所\nNPO法人", stakeholder)
}

func TestChatMessageFromEnvelopeCollapsesReactorSets(t *testing.T) {
	env := &MessageEnvelope{
		MessageID: "m1",
		Username:  "alice",
		Stance:    StanceProposal,
		Reactions: map[string][]string{
			ReactionAgree:    {"bob", "carol"},
			ReactionDisagree: {"dave"},
		},
	}
	m := FromEnvelope(env)
	assert.Equal(t, 2, m.Reactions[ReactionAgree])
	assert.Equal(t, 0, m.Reactions[ReactionPartial])
	assert.Equal(t, 1, m.Reactions[ReactionDisagree])
	assert.True(t, m.IsProposal())

	m.IsResolved = true
	assert.False(t, m.IsProposal())
}

func TestDecodeDispatchesByType(t *testing.T) {
	raw := []byte(`{"type":"reaction_update","message_id":"m1","reactions":{"agree":2}}`)
	v, err := Decode(raw)
	require.NoError(t, err)
	env, ok := v.(*ReactionUpdateEnvelope)
	require.True(t, ok)
	assert.Equal(t, 2, env.Reactions["agree"])
}

func TestDecodeUnknownTypeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
