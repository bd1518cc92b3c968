package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/token"
)

// Summarizer condenses demoted messages into summary text. The default is
// the deterministic extractive form; callers can plug a model-backed one.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []core.Message, maxTokens int) (string, error)
}

// Result is the outcome of one compression pass. Retained preserves the
// original message order. Incomplete means the target size was not reached
// because nothing else was eligible for demotion.
type Result struct {
	Retained   []core.Message
	Summary    string
	Demoted    int
	Incomplete bool
}

// Compressor demotes low-importance messages out of the verbatim window and
// folds them into the cold summary.
//
// Never demoted: system messages and the trailing KeepRecent window. An
// assistant message carrying tool calls and the tool results answering it
// form one unit, demoted together or not at all.
type Compressor struct {
	scorer     *Scorer
	counter    token.Counter
	summarizer Summarizer

	// KeepRecent is the trailing window size pinned in the hot tier.
	KeepRecent int
	// SummaryMaxTokens caps the cold summary size.
	SummaryMaxTokens int
}

// NewCompressor builds a compressor with the default extractive summarizer.
func NewCompressor(scorer *Scorer, counter token.Counter, optFns ...func(c *Compressor)) *Compressor {
	c := &Compressor{
		scorer:           scorer,
		counter:          counter,
		KeepRecent:       4,
		SummaryMaxTokens: 500,
	}
	for _, fn := range optFns {
		fn(c)
	}
	if c.summarizer == nil {
		c.summarizer = &ExtractiveSummarizer{Scorer: scorer, Counter: counter}
	}
	return c
}

// WithSummarizer overrides the summary synthesis.
func WithSummarizer(s Summarizer) func(c *Compressor) {
	return func(c *Compressor) { c.summarizer = s }
}

// demotionUnit groups message indices that must be demoted atomically.
type demotionUnit struct {
	indices []int
	score   float64
	tokens  int
	first   int
}

// Compress demotes messages until the window fits targetTokens or nothing
// else is eligible. priorSummary is merged into the new summary. The error
// is core.ErrCompressionIncomplete when the pass was best-effort only.
func (c *Compressor) Compress(ctx context.Context, msgs []core.Message, priorSummary string, targetTokens int) (Result, error) {
	total := 0
	for _, m := range msgs {
		total += m.TokenCount
	}
	if total <= targetTokens {
		return Result{Retained: msgs, Summary: priorSummary}, nil
	}

	units := c.buildUnits(msgs)
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].score != units[j].score {
			return units[i].score < units[j].score
		}
		return units[i].first < units[j].first
	})

	demoted := make(map[int]bool)
	for _, u := range units {
		if total <= targetTokens {
			break
		}
		for _, idx := range u.indices {
			demoted[idx] = true
		}
		total -= u.tokens
	}

	if len(demoted) == 0 {
		return Result{Retained: msgs, Summary: priorSummary, Incomplete: total > targetTokens}, core.ErrCompressionIncomplete
	}

	retained := make([]core.Message, 0, len(msgs)-len(demoted))
	removed := make([]core.Message, 0, len(demoted))
	for i, m := range msgs {
		if demoted[i] {
			removed = append(removed, m)
		} else {
			retained = append(retained, m)
		}
	}

	summary, err := c.summarizer.Summarize(ctx, removed, c.SummaryMaxTokens)
	if err != nil {
		// Fall back to the extractive form rather than losing the messages
		// without any trace.
		ex := &ExtractiveSummarizer{Scorer: c.scorer, Counter: c.counter}
		summary, _ = ex.Summarize(ctx, removed, c.SummaryMaxTokens)
	}
	merged := c.mergeSummaries(priorSummary, summary)

	res := Result{
		Retained:   retained,
		Summary:    merged,
		Demoted:    len(removed),
		Incomplete: total > targetTokens,
	}
	if res.Incomplete {
		return res, core.ErrCompressionIncomplete
	}
	return res, nil
}

// buildUnits groups messages into demotion units and drops ineligible ones.
func (c *Compressor) buildUnits(msgs []core.Message) []demotionUnit {
	pinnedFrom := len(msgs) - c.KeepRecent
	if pinnedFrom < 0 {
		pinnedFrom = 0
	}

	// Map tool call IDs to the index of the assistant message issuing them.
	callOwner := map[string]int{}
	for i, m := range msgs {
		for _, tc := range m.ToolCalls {
			callOwner[tc.ID] = i
		}
	}

	grouped := map[int][]int{} // owner index -> member indices
	var singles []int
	for i, m := range msgs {
		if owner, ok := callOwner[m.ToolCallID]; ok && m.Role == core.RoleTool {
			grouped[owner] = append(grouped[owner], i)
			continue
		}
		if m.HasToolCalls() {
			grouped[i] = append([]int{i}, grouped[i]...)
			continue
		}
		singles = append(singles, i)
	}

	eligible := func(idx int) bool {
		return msgs[idx].Role != core.RoleSystem && idx < pinnedFrom
	}

	var units []demotionUnit
	appendUnit := func(indices []int) {
		for _, idx := range indices {
			if !eligible(idx) {
				return
			}
		}
		u := demotionUnit{indices: indices, first: indices[0], score: 1e9}
		for _, idx := range indices {
			u.tokens += msgs[idx].TokenCount
			if s := c.scorer.Score(msgs[idx], idx, len(msgs)); s < u.score {
				u.score = s
			}
		}
		units = append(units, u)
	}

	for _, idx := range singles {
		appendUnit([]int{idx})
	}
	for _, members := range grouped {
		sort.Ints(members)
		appendUnit(members)
	}
	return units
}

func (c *Compressor) mergeSummaries(prior, next string) string {
	switch {
	case prior == "":
		return c.truncate(next)
	case next == "":
		return c.truncate(prior)
	default:
		return c.truncate(prior + "\n" + next)
	}
}

func (c *Compressor) truncate(s string) string {
	if hc, ok := c.counter.(*token.HeuristicCounter); ok {
		return hc.TruncateText(s, c.SummaryMaxTokens)
	}
	if c.counter.CountText(s) <= c.SummaryMaxTokens {
		return s
	}
	// Conservative rune cut when the counter offers no truncation.
	runes := []rune(s)
	limit := c.SummaryMaxTokens * 4
	if limit > len(runes) {
		limit = len(runes)
	}
	return string(runes[:limit])
}

// ExtractiveSummarizer builds a summary by keeping the highest-signal line
// of each demoted message. Deterministic, no model round-trip.
type ExtractiveSummarizer struct {
	Scorer  *Scorer
	Counter token.Counter
}

// Summarize implements Summarizer.
func (e *ExtractiveSummarizer) Summarize(_ context.Context, msgs []core.Message, maxTokens int) (string, error) {
	var b strings.Builder
	used := 0
	for _, m := range msgs {
		line := e.pickLine(m)
		if line == "" {
			continue
		}
		entry := string(m.Role) + ": " + line
		cost := e.Counter.CountText(entry)
		if used+cost > maxTokens {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(entry)
		used += cost
	}
	return b.String(), nil
}

// pickLine selects the sentence with the highest keyword score, defaulting
// to the first non-empty one.
func (e *ExtractiveSummarizer) pickLine(m core.Message) string {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		if m.HasToolCalls() {
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Name
			}
			return "called tools: " + strings.Join(names, ", ")
		}
		return ""
	}
	sentences := splitSentences(content)
	best := sentences[0]
	bestScore := e.Scorer.KeywordScore(best)
	for _, s := range sentences[1:] {
		if sc := e.Scorer.KeywordScore(s); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best
}

func splitSentences(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []string{s}
	}
	return out
}
