package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/percept-io/percept/internal/domain"
	"github.com/percept-io/percept/internal/domain/intent"
	"github.com/percept-io/percept/internal/domain/worker"
	"github.com/percept-io/percept/internal/port/judge"
)

const intentSystemPrompt = `You route image classification prompts to specialist domains.
Given a user prompt, rank these domains by how likely the image belongs to each:
- medical: clinical imagery (x-rays, MRI, CT, ultrasound, pathology slides)
- satellite: aerial and orbital imagery (terrain, land use, crops, weather)
- general: everyday photographs and everything else

Respond with ONLY a JSON object, no prose:
{"candidates":[{"domain":"<name>","confidence":<0..1>},...],"reasoning":"<one sentence>"}
List every domain exactly once, highest confidence first.`

// fallbackConfidence is the confidence assigned to the keyword-matched
// domain when the judge is unavailable or returns malformed output.
const fallbackConfidence = 0.5

// IntentService classifies a prompt into a ranked list of worker domains.
// The judge is the primary classifier; a keyword heuristic is the fallback
// so intent classification itself can never fail a request.
type IntentService struct {
	judge   judge.Judge
	timeout time.Duration
	logger  *slog.Logger
}

// NewIntentService creates an intent classifier.
func NewIntentService(j judge.Judge, timeout time.Duration, logger *slog.Logger) *IntentService {
	return &IntentService{judge: j, timeout: timeout, logger: logger}
}

// Classify ranks the known domains for the given prompt.
func (s *IntentService) Classify(ctx context.Context, prompt string) intent.Result {
	res, err := s.classifyWithJudge(ctx, prompt)
	if err != nil {
		s.logger.Warn("intent judge unavailable, using keyword fallback", "error", err)
		return keywordIntent(prompt)
	}
	return res
}

func (s *IntentService) classifyWithJudge(ctx context.Context, prompt string) (intent.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.judge.Complete(ctx, judge.Request{
		System:      intentSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		return intent.Result{}, err
	}
	return parseIntentJudgment(raw)
}

type intentJudgment struct {
	Candidates []struct {
		Domain     string  `json:"domain"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
	Reasoning string `json:"reasoning"`
}

// parseIntentJudgment schema-validates the judge output. Any violation
// returns ErrMalformedJudgment so the caller falls back to keywords.
func parseIntentJudgment(raw string) (intent.Result, error) {
	var j intentJudgment
	if err := json.Unmarshal([]byte(stripFences(raw)), &j); err != nil {
		return intent.Result{}, fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
	}
	if len(j.Candidates) == 0 {
		return intent.Result{}, fmt.Errorf("%w: empty candidate list", domain.ErrMalformedJudgment)
	}

	seen := make(map[worker.Domain]bool)
	res := intent.Result{Reasoning: j.Reasoning}
	for _, c := range j.Candidates {
		d := worker.Domain(strings.ToLower(strings.TrimSpace(c.Domain)))
		if !d.Valid() {
			return intent.Result{}, fmt.Errorf("%w: unknown domain %q", domain.ErrMalformedJudgment, c.Domain)
		}
		if seen[d] {
			return intent.Result{}, fmt.Errorf("%w: duplicate domain %q", domain.ErrMalformedJudgment, c.Domain)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return intent.Result{}, fmt.Errorf("%w: confidence %v out of range", domain.ErrMalformedJudgment, c.Confidence)
		}
		seen[d] = true
		res.Candidates = append(res.Candidates, intent.Candidate{Domain: d, Confidence: c.Confidence})
	}

	sort.SliceStable(res.Candidates, func(a, b int) bool {
		return res.Candidates[a].Confidence > res.Candidates[b].Confidence
	})
	return res, nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var medicalKeywords = []string{
	"x-ray", "xray", "mri", "ct scan", "ultrasound", "radiograph",
	"medical", "clinical", "tumor", "lesion", "pneumonia", "fracture",
	"chest", "pathology", "diagnosis",
}

var satelliteKeywords = []string{
	"satellite", "aerial", "terrain", "land use", "landcover", "crop",
	"deforestation", "orbital", "geospatial", "remote sensing", "overhead",
	"map", "vegetation",
}

// keywordIntent is the rule-based fallback classifier. The matched domain
// gets a fixed mid confidence; the rest split the remainder evenly so the
// ranking still covers every domain.
func keywordIntent(prompt string) intent.Result {
	p := strings.ToLower(prompt)

	top := worker.DomainGeneral
	switch {
	case containsAny(p, medicalKeywords):
		top = worker.DomainMedical
	case containsAny(p, satelliteKeywords):
		top = worker.DomainSatellite
	}

	res := intent.Result{
		Reasoning: "keyword fallback",
		Fallback:  true,
	}
	res.Candidates = append(res.Candidates, intent.Candidate{Domain: top, Confidence: fallbackConfidence})

	rest := (1 - fallbackConfidence) / float64(len(worker.KnownDomains())-1)
	for _, d := range worker.KnownDomains() {
		if d != top {
			res.Candidates = append(res.Candidates, intent.Candidate{Domain: d, Confidence: rest})
		}
	}
	return res
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
