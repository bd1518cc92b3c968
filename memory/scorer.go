package memory

import (
	"math"
	"strings"

	"github.com/agentloop/agentloop/core"
)

// DefaultKeywordWeights marks content that tends to matter long after the
// surrounding turn has gone stale.
var DefaultKeywordWeights = map[string]float64{
	"error":      0.3,
	"critical":   0.3,
	"decision":   0.25,
	"important":  0.2,
	"remember":   0.2,
	"conclusion": 0.2,
	"key":        0.15,
	"result":     0.15,
}

// DefaultRoleWeights order roles by how costly their loss is: instructions
// above user intent above model output above tool chatter.
var DefaultRoleWeights = map[core.Role]float64{
	core.RoleSystem:    1.0,
	core.RoleUser:      0.8,
	core.RoleAssistant: 0.6,
	core.RoleTool:      0.5,
}

// Scorer computes message importance for demotion ranking. Higher scores are
// demoted later. The score combines role weight, recency decay, keyword
// density and a flat bonus for tool activity.
type Scorer struct {
	Decay          float64
	RoleWeights    map[core.Role]float64
	KeywordWeights map[string]float64
	ToolBonus      float64

	WRole    float64
	WPos     float64
	WKeyword float64
}

// NewScorer returns a scorer with the default weights.
func NewScorer(optFns ...func(s *Scorer)) *Scorer {
	s := &Scorer{
		Decay:          0.95,
		RoleWeights:    DefaultRoleWeights,
		KeywordWeights: DefaultKeywordWeights,
		ToolBonus:      0.2,
		WRole:          0.2,
		WPos:           0.3,
		WKeyword:       0.15,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Score rates one message. position is the message's index and total the
// window length, so the last message has distance zero and full recency.
func (s *Scorer) Score(msg core.Message, position, total int) float64 {
	score := s.WRole * s.roleWeight(msg.Role)
	score += s.WPos * s.PositionFactor(position, total)
	score += s.WKeyword * s.KeywordScore(msg.Content)
	if msg.HasToolCalls() || msg.Role == core.RoleTool {
		score += s.ToolBonus
	}
	return score
}

// PositionFactor is decay^(distance from the window end), in (0, 1].
func (s *Scorer) PositionFactor(position, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	distance := total - 1 - position
	if distance < 0 {
		distance = 0
	}
	return math.Pow(s.Decay, float64(distance))
}

// KeywordScore sums the weights of matched keywords, capped at 1.0.
// Matching is case-insensitive substring containment.
func (s *Scorer) KeywordScore(content string) float64 {
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	sum := 0.0
	for kw, w := range s.KeywordWeights {
		if strings.Contains(lower, kw) {
			sum += w
		}
	}
	if sum > 1.0 {
		sum = 1.0
	}
	return sum
}

func (s *Scorer) roleWeight(r core.Role) float64 {
	if w, ok := s.RoleWeights[r]; ok {
		return w
	}
	return 0.5
}
