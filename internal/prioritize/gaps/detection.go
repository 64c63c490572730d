package gaps

import (
	"regexp"
	"strings"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// cosineDistanceThreshold is the skill/topic-jump indicator cutoff (§4.4).
const cosineDistanceThreshold = 0.45

// earlyVerbs/lateVerbs classify a task's dominant action stage for the
// action_type_jump indicator.
var earlyVerbs = map[string]bool{"research": true, "plan": true, "design": true}
var lateVerbs = map[string]bool{"build": true, "launch": true, "ship": true}

// keywordFamilies buckets dominant-topic words, generalized from
// internal/task/scope_config.go's configurable scope keyword table
// into a fixed family set for the skill_jump indicator.
var keywordFamilies = map[string]string{
	"research": "discovery", "explore": "discovery", "interview": "discovery", "survey": "discovery",
	"design": "design", "wireframe": "design", "prototype": "design", "mockup": "design",
	"build": "engineering", "implement": "engineering", "code": "engineering", "develop": "engineering",
	"test": "qa", "qa": "qa", "verify": "qa", "validate": "qa",
	"deploy": "ops", "launch": "ops", "ship": "ops", "release": "ops",
	"market": "growth", "campaign": "growth", "promote": "growth",
}

var wordPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func words(text string) []string {
	return wordPattern.Split(strings.ToLower(text), -1)
}

func dominantFamily(text string) string {
	counts := make(map[string]int)
	for _, w := range words(text) {
		if family, ok := keywordFamilies[w]; ok {
			counts[family]++
		}
	}
	best, bestCount := "", 0
	for family, n := range counts {
		if n > bestCount {
			best, bestCount = family, n
		}
	}
	return best
}

func dominantVerbStage(text string) string {
	for _, w := range words(text) {
		if earlyVerbs[w] {
			return "early"
		}
		if lateVerbs[w] {
			return "late"
		}
	}
	return ""
}

// Detector scans an ordered task list for gaps between adjacent tasks.
type Detector struct {
	lookup    TaskLookup
	embedding EmbeddingLookup
}

// NewDetector constructs a Detector over the given lookups.
func NewDetector(lookup TaskLookup, embedding EmbeddingLookup) *Detector {
	return &Detector{lookup: lookup, embedding: embedding}
}

// DetectGaps analyzes each adjacent pair in orderedTaskIDs and returns
// the gaps whose computed confidence is > 0, plus summary metadata.
// A missing task or embedding surfaces as perrors.KindNotFound per the
// MissingTaskError → 404 mapping.
func (d *Detector) DetectGaps(orderedTaskIDs []string, now time.Time) ([]models.Gap, models.GapDetectionMetadata, error) {
	start := now
	var gaps []models.Gap
	pairs := 0

	for i := 0; i+1 < len(orderedTaskIDs); i++ {
		predID, succID := orderedTaskIDs[i], orderedTaskIDs[i+1]
		pairs++

		predText, predEffort, ok := d.lookup(predID)
		if !ok {
			return nil, models.GapDetectionMetadata{}, perrors.NotFound("task", predID)
		}
		succText, succEffort, ok := d.lookup(succID)
		if !ok {
			return nil, models.GapDetectionMetadata{}, perrors.NotFound("task", succID)
		}
		predVec, ok := d.embedding(predID)
		if !ok {
			return nil, models.GapDetectionMetadata{}, perrors.NotFound("task_embedding", predID)
		}
		succVec, ok := d.embedding(succID)
		if !ok {
			return nil, models.GapDetectionMetadata{}, perrors.NotFound("task_embedding", succID)
		}

		distance := 1 - float64(embedstore.CosineSimilarity(predVec, succVec))

		predStage, succStage := dominantVerbStage(predText), dominantVerbStage(succText)
		actionJump := predStage != "" && succStage != "" && predStage != succStage

		predFamily, succFamily := dominantFamily(predText), dominantFamily(succText)
		skillJump := predFamily != "" && succFamily != "" && predFamily != succFamily

		timeGap := succEffort > 0 && predEffort > 0 && succEffort >= predEffort*3

		confidence := gapConfidence(distance, actionJump, skillJump, timeGap)
		if confidence <= 0 {
			continue
		}

		gaps = append(gaps, models.Gap{
			ID:                deterministicGapID(predID, succID),
			PredecessorTaskID: predID,
			SuccessorTaskID:   succID,
			Indicators: models.GapIndicators{
				CosineDistance: distance,
				ActionTypeJump: actionJump,
				SkillJump:      skillJump,
				TimeGap:        timeGap,
			},
			Confidence: confidence,
		})
	}

	metadata := models.GapDetectionMetadata{
		TotalPairsAnalyzed: pairs,
		GapsDetected:       len(gaps),
		AnalysisDurationMs: now.Sub(start).Milliseconds(),
	}
	return gaps, metadata, nil
}

// gapConfidence combines the four §4.4 indicators into a weighted,
// clamped-[0,1] confidence score. Cosine distance contributes only the
// excess above the threshold (scaled to [0,1], weighted 0.4); the three
// booleans contribute fixed weights of 0.35 (action), 0.25 (skill) and
// 0.15 (time).
func gapConfidence(distance float64, actionJump, skillJump, timeGap bool) float64 {
	var score float64
	if distance > cosineDistanceThreshold {
		excess := (distance - cosineDistanceThreshold) / (1 - cosineDistanceThreshold)
		score += 0.4 * clamp01(excess)
	}
	if actionJump {
		score += 0.35
	}
	if skillJump {
		score += 0.25
	}
	if timeGap {
		score += 0.15
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// deterministicGapID derives a stable id from the pair so re-running
// detection over an unchanged plan reproduces the same gap ids.
func deterministicGapID(predID, succID string) string {
	return "gap_" + predID + "_" + succID
}
