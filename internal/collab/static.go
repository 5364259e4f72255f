package collab

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// StaticFacilitator returns canned facilitation text. It stands in when
// no AI provider is configured so rooms stay usable.
type StaticFacilitator struct{}

func (StaticFacilitator) Answer(_ context.Context, _, question string, _ []domain.ChatMessage, _ string) (string, error) {
	return fmt.Sprintf("現在AI応答は利用できません。質問「%s」は記録されました。", question), nil
}

func (StaticFacilitator) Nudge(_ context.Context, topic string, _ []domain.ChatMessage) (string, error) {
	return fmt.Sprintf("議論が停滞しているようです。「%s」について、別の視点から意見を出してみませんか？", topic), nil
}

// StaticSummarizer concatenates proposals into a plain-text summary.
type StaticSummarizer struct{}

func (StaticSummarizer) Summarize(_ context.Context, topic string, history []domain.ChatMessage, proposals []domain.ProposalRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "議題「%s」の議論が終了しました。発言数: %d\n", topic, len(history))
	for i, p := range proposals {
		if p.Q1 == "" {
			continue
		}
		fmt.Fprintf(&b, "\n提案%d: %s", i+1, p.Q1)
	}
	return b.String(), nil
}

// TextExporter renders proposals as a UTF-8 text document. It is the
// fallback when no Word renderer is wired in.
type TextExporter struct{}

func (TextExporter) Export(_ context.Context, topic string, proposals []domain.ProposalRecord) ([]byte, string, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "議題: %s\n", topic)
	for i, p := range proposals {
		fmt.Fprintf(&b, "\n--- 提案 %d ---\n%s\n", i+1, domain.FormatPosted(p))
	}
	return b.Bytes(), "proposals.txt", nil
}

// LogPushSender records notifications instead of delivering them.
type LogPushSender struct{}

func (LogPushSender) Send(_ context.Context, sub domain.PushSubscription, title, body string) error {
	log.L().Info().
		Str(log.FieldRoomID, sub.RoomID).
		Str(log.FieldUsername, sub.Username).
		Str("title", title).
		Msg("push notification suppressed (no sender configured)")
	return nil
}
