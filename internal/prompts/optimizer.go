package prompts

import (
	"errors"
	"math"
	"sync"
)

var ErrUnknownTemplate = errors.New("unknown prompt template")

type record struct {
	successRate         float64
	avgQualityScore     float64
	avgConsistencyScore float64
	totalUses           int
}

// TemplateStats is a snapshot of one template's record and score.
type TemplateStats struct {
	TemplateID          string  `json:"template_id"`
	Category            string  `json:"category"`
	Name                string  `json:"name"`
	Active              bool    `json:"active"`
	SuccessRate         float64 `json:"success_rate"`
	AvgQualityScore     float64 `json:"avg_quality_score"`
	AvgConsistencyScore float64 `json:"avg_consistency_score"`
	TotalUses           int     `json:"total_uses"`
	Score               float64 `json:"score"`
}

// Optimizer keeps per-template usage records in memory. Records are not
// shared between processes and reset on restart.
type Optimizer struct {
	mu        sync.Mutex
	order     []string
	templates map[string]Template
	records   map[string]*record
}

func NewOptimizer(templates []Template) *Optimizer {
	o := &Optimizer{
		templates: make(map[string]Template, len(templates)),
		records:   make(map[string]*record, len(templates)),
	}
	for _, t := range templates {
		if _, dup := o.templates[t.ID]; dup {
			continue
		}
		o.order = append(o.order, t.ID)
		o.templates[t.ID] = t
		o.records[t.ID] = &record{}
	}
	return o
}

// RecordUse folds one observation into the running averages. quality and
// consistency are on a 0..10 scale and are clamped to it.
func (o *Optimizer) RecordUse(templateID string, success bool, quality, consistency float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[templateID]
	if !ok {
		return ErrUnknownTemplate
	}
	s := 0.0
	if success {
		s = 1
	}
	n := float64(r.totalUses)
	r.successRate = runningAvg(r.successRate, n, s)
	r.avgQualityScore = runningAvg(r.avgQualityScore, n, clamp10(quality))
	r.avgConsistencyScore = runningAvg(r.avgConsistencyScore, n, clamp10(consistency))
	r.totalUses++
	return nil
}

func (o *Optimizer) Score(templateID string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[templateID]
	if !ok {
		return 0
	}
	return score(r)
}

// Best returns the active template of category with the highest score. Ties
// keep catalog order.
func (o *Optimizer) Best(category string) (Template, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		best      Template
		bestScore = -1.0
		found     bool
	)
	for _, id := range o.order {
		t := o.templates[id]
		if t.Category != category || !t.Active {
			continue
		}
		if s := score(o.records[id]); s > bestScore {
			best, bestScore, found = t, s, true
		}
	}
	return best, found
}

// Stats lists records in catalog order; an empty category lists everything.
func (o *Optimizer) Stats(category string) []TemplateStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TemplateStats, 0, len(o.order))
	for _, id := range o.order {
		if category != "" && o.templates[id].Category != category {
			continue
		}
		out = append(out, o.statsLocked(id))
	}
	return out
}

func (o *Optimizer) TemplateStats(templateID string) (TemplateStats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.records[templateID]; !ok {
		return TemplateStats{}, false
	}
	return o.statsLocked(templateID), true
}

func (o *Optimizer) statsLocked(id string) TemplateStats {
	t := o.templates[id]
	r := o.records[id]
	return TemplateStats{
		TemplateID:          id,
		Category:            t.Category,
		Name:                t.Name,
		Active:              t.Active,
		SuccessRate:         r.successRate,
		AvgQualityScore:     r.avgQualityScore,
		AvgConsistencyScore: r.avgConsistencyScore,
		TotalUses:           r.totalUses,
		Score:               score(r),
	}
}

func runningAvg(old, n, sample float64) float64 {
	return (old*n + sample) / (n + 1)
}

func score(r *record) float64 {
	weighted := 0.3*r.successRate + 0.4*r.avgQualityScore/10 + 0.3*r.avgConsistencyScore/10
	return weighted * math.Min(1, float64(r.totalUses)/100)
}

func clamp10(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
