package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ProposalRecord is one entry of the shared 5W1H proposal form. Field keys
// q1..q7 are the wire names; their external question numbering differs (see
// FormatPosted). DraftID is minted client-side at creation so the "current"
// selection survives concurrent inserts and removals; it is additive on the
// wire and older clients ignore it.
type ProposalRecord struct {
	DraftID string `json:"draft_id,omitempty"`
	Q1      string `json:"q1"` // what
	Q2      string `json:"q2"` // why
	Q3      string `json:"q3"` // when
	Q4      string `json:"q4"` // where
	Q5      string `json:"q5"` // who composite
	Q6      string `json:"q6"` // method composite
	Q7      string `json:"q7"` // thinking mode: forecast / backcast
}

// Proposal field keys.
const (
	FieldWhat     = "q1"
	FieldWhy      = "q2"
	FieldWhen     = "q3"
	FieldWhere    = "q4"
	FieldWho      = "q5"
	FieldMethod   = "q6"
	FieldThinking = "q7"
)

// Thinking-mode wire values and display labels.
const (
	ThinkingForecast = "forecast"
	ThinkingBackcast = "backcast"

	labelForecast   = "フォアキャスティング"
	labelBackcast   = "バックキャスティング"
	labelUnselected = "未選択"
)

const emptyFieldLabel = "未記入"

// NewProposalRecord returns an empty record with a fresh draft id.
func NewProposalRecord() ProposalRecord {
	return ProposalRecord{DraftID: uuid.New().String()}
}

// Get returns the value of a field by wire key.
func (p *ProposalRecord) Get(key string) string {
	switch key {
	case FieldWhat:
		return p.Q1
	case FieldWhy:
		return p.Q2
	case FieldWhen:
		return p.Q3
	case FieldWhere:
		return p.Q4
	case FieldWho:
		return p.Q5
	case FieldMethod:
		return p.Q6
	case FieldThinking:
		return p.Q7
	}
	return ""
}

// Set assigns the value of a field by wire key. Unknown keys are ignored.
func (p *ProposalRecord) Set(key, value string) {
	switch key {
	case FieldWhat:
		p.Q1 = value
	case FieldWhy:
		p.Q2 = value
	case FieldWhen:
		p.Q3 = value
	case FieldWhere:
		p.Q4 = value
	case FieldWho:
		p.Q5 = value
	case FieldMethod:
		p.Q6 = value
	case FieldThinking:
		p.Q7 = value
	}
}

// FieldKeys lists every editable field key.
var FieldKeys = []string{
	FieldWhat, FieldWhy, FieldWhen, FieldWhere, FieldWho, FieldMethod, FieldThinking,
}

// ThinkingModeLabel maps the thinking-mode wire value to its display label.
// The mapping is closed: anything unrecognised renders as unselected.
func ThinkingModeLabel(v string) string {
	switch v {
	case ThinkingForecast:
		return labelForecast
	case ThinkingBackcast:
		return labelBackcast
	}
	return labelUnselected
}

func orEmptyLabel(s string) string {
	if s == "" {
		return emptyFieldLabel
	}
	return s
}

// FormatPosted serialises a record into the chat text posted with
// stance=提案. The external question numbers deliberately differ from the
// internal keys: the HTML form shows How as Q3 (stored in q6), When as Q4
// (q3), Where as Q5 (q4) and Who as Q6 (q5). Keep this mapping exact.
func FormatPosted(p ProposalRecord) string {
	var b strings.Builder
	b.WriteString("【5W1Hフォームからの提案】\n")
	fmt.Fprintf(&b, "Q1 (What): %s\n", p.Q1)
	fmt.Fprintf(&b, "Q2 (Why): %s\n", orEmptyLabel(p.Q2))
	fmt.Fprintf(&b, "Q3 (How): %s\n", orEmptyLabel(p.Q6))
	fmt.Fprintf(&b, "Q4 (When): %s\n", orEmptyLabel(p.Q3))
	fmt.Fprintf(&b, "Q5 (Where): %s\n", orEmptyLabel(p.Q4))
	fmt.Fprintf(&b, "Q6 (Who): %s\n", orEmptyLabel(p.Q5))
	fmt.Fprintf(&b, "Q7 (思考法): %s", ThinkingModeLabel(p.Q7))
	return b.String()
}

// Method composite (q6): selected options joined by 、 with an
// "その他：<free text>" escape for the other option.
const (
	methodSeparator   = "、"
	methodOtherPrefix = "その他："
)

// BuildMethod renders the multi-select method field.
func BuildMethod(selected []string, other string) string {
	parts := make([]string, 0, len(selected)+1)
	for _, s := range selected {
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	if other != "" {
		parts = append(parts, methodOtherPrefix+other)
	}
	return strings.Join(parts, methodSeparator)
}

// ParseMethod splits a method composite back into selections and the other
// free text.
func ParseMethod(s string) (selected []string, other string) {
	if s == "" {
		return nil, ""
	}
	for _, part := range strings.Split(s, methodSeparator) {
		if strings.HasPrefix(part, methodOtherPrefix) {
			other = strings.TrimPrefix(part, methodOtherPrefix)
			continue
		}
		if part != "" {
			selected = append(selected, part)
		}
	}
	return selected, other
}

// Who composite (q5): three bracketed sections, one per line.
const (
	whoImplementerMark = "【実施者】"
	whoTargetMark      = "【対象】"
	whoStakeholderMark = "【ステークホルダー】"
)

// BuildWho renders the three-part who field.
func BuildWho(implementer, target, stakeholder string) string {
	return whoImplementerMark + implementer + "\n" +
		whoTargetMark + target + "\n" +
		whoStakeholderMark + stakeholder
}

// ParseWho splits a who composite into its three parts. Values written
// before the composite format existed land wholesale in implementer.
func ParseWho(s string) (implementer, target, stakeholder string) {
	if s == "" {
		return "", "", ""
	}

	hasMarks := false
	for _, line := range strings.Split(s, "\n") {
		switch {
		case strings.HasPrefix(line, whoImplementerMark):
			implementer = strings.TrimPrefix(line, whoImplementerMark)
			hasMarks = true
		case strings.HasPrefix(line, whoTargetMark):
			target = strings.TrimPrefix(line, whoTargetMark)
			hasMarks = true
		case strings.HasPrefix(line, whoStakeholderMark):
			stakeholder = strings.TrimPrefix(line, whoStakeholderMark)
			hasMarks = true
		case hasMarks && stakeholder != "":
			// Stakeholder may span multiple lines.
			stakeholder += "\n" + line
		}
	}

	if !hasMarks && strings.TrimSpace(s) != "" {
		implementer = s
	}
	return implementer, target, stakeholder
}
