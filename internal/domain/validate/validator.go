// Package validate screens merged stats and computed scores before
// they are persisted. Hard failures block persistence; soft findings
// annotate the data and let it through.
package validate

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/okian/harpastum/internal/domain/model"
	"github.com/okian/harpastum/pkg/metrics"
)

// Status is the outcome of one validation.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

const (
	defaultSigma         = 3.0
	defaultEfficiencyEps = 1e-6

	// screenMinSamples is the smallest batch a distributional screen
	// can say anything about.
	screenMinSamples = 4
)

// Rule is a declarative range check on one metric.
type Rule struct {
	Name  string
	Field string
	Min   float64
	Max   float64
	Hard  bool
}

// Issue is one finding raised by a rule or a screen.
type Issue struct {
	Rule   string
	Field  string
	Value  float64
	Detail string
	Hard   bool
}

// Result bundles the findings of one validation.
type Result struct {
	Status Status
	Issues []Issue
}

// Err returns ErrValidationFailed when the result is a hard failure,
// nil otherwise.
func (r Result) Err() error {
	if r.Status == StatusFail {
		return fmt.Errorf("%d issue(s): %w", len(r.Issues), ErrValidationFailed)
	}
	return nil
}

func defaultRules() []Rule {
	return []Rule{
		{Name: "minutes_range", Field: "minutes", Min: 0, Max: 120, Hard: true},
		{Name: "rating_range", Field: "rating", Min: 0, Max: 10, Hard: false},
		{Name: "goals_range", Field: "goals", Min: 0, Max: 10, Hard: false},
	}
}

// Validator applies range rules and distributional screens.
type Validator struct {
	rules         []Rule
	sigma         float64
	efficiencyEps float64
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(v *Validator) {
		if len(rules) > 0 {
			v.rules = rules
		}
	}
}

// WithSigma sets the outlier threshold in standard deviations.
func WithSigma(k float64) Option {
	return func(v *Validator) {
		if k > 0 {
			v.sigma = k
		}
	}
}

// WithEfficiencyTolerance sets the allowed drift between the sum of
// exact scores and the grand coalition value.
func WithEfficiencyTolerance(eps float64) Option {
	return func(v *Validator) {
		if eps > 0 {
			v.efficiencyEps = eps
		}
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		rules:         defaultRules(),
		sigma:         defaultSigma,
		efficiencyEps: defaultEfficiencyEps,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Stat checks a merged stat line against the range rules. Only metrics
// the record actually carries are checked; absence is not a finding.
func (v *Validator) Stat(stat model.PlayerMatchStat) Result {
	var issues []Issue
	for _, rule := range v.rules {
		field, ok := stat.Metrics[rule.Field]
		if !ok {
			continue
		}
		if field.Value < rule.Min || field.Value > rule.Max {
			issues = append(issues, Issue{
				Rule:   rule.Name,
				Field:  rule.Field,
				Value:  field.Value,
				Detail: fmt.Sprintf("player %s: %s=%g outside [%g, %g]", stat.Player, rule.Field, field.Value, rule.Min, rule.Max),
				Hard:   rule.Hard,
			})
		}
	}
	return v.finish(issues)
}

// Vector checks a feature vector for non-finite or negative rates,
// which indicate a normalization bug upstream.
func (v *Validator) Vector(fv model.FeatureVector) Result {
	var issues []Issue
	names := make([]string, 0, len(fv.Rates))
	for name := range fv.Rates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rate := fv.Rates[name]
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
			issues = append(issues, Issue{
				Rule:   "rate_finite",
				Field:  name,
				Value:  rate,
				Detail: fmt.Sprintf("player %s: rate %s=%g is not a plausible rate", fv.Player, name, rate),
				Hard:   true,
			})
		}
	}
	return v.finish(issues)
}

// Scores checks a contribution run for the efficiency property: the
// shares must sum to the grand coalition value. Exact runs fail hard
// on drift; sampled runs only warn, within a band widened by the
// estimates' own standard errors.
func (v *Validator) Scores(scores []model.ContributionScore, grandValue float64, exact bool) Result {
	var issues []Issue
	sum := 0.0
	varSum := 0.0
	for _, s := range scores {
		sum += s.Value
		varSum += s.Variance
	}
	drift := math.Abs(sum - grandValue)

	if exact {
		if drift > v.efficiencyEps {
			issues = append(issues, Issue{
				Rule:   "efficiency",
				Field:  "value",
				Value:  drift,
				Detail: fmt.Sprintf("exact shares sum to %g, grand value is %g", sum, grandValue),
				Hard:   true,
			})
		}
	} else {
		band := v.sigma*math.Sqrt(varSum) + v.efficiencyEps
		if drift > band {
			issues = append(issues, Issue{
				Rule:   "efficiency",
				Field:  "value",
				Value:  drift,
				Detail: fmt.Sprintf("sampled shares drift %g beyond the %g band", drift, band),
				Hard:   false,
			})
		}
	}

	for _, s := range scores {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			issues = append(issues, Issue{
				Rule:   "score_finite",
				Field:  "value",
				Value:  s.Value,
				Detail: fmt.Sprintf("player %s: non-finite contribution", s.Player),
				Hard:   true,
			})
		}
	}
	return v.finish(issues)
}

// ScreenMetrics flags per-metric outliers across a batch of stat
// lines. A value further than sigma standard deviations from the
// batch mean is reported as a soft finding. Small batches and
// zero-variance metrics are skipped.
func (v *Validator) ScreenMetrics(batch []model.PlayerMatchStat) []Issue {
	type sample struct {
		player string
		value  float64
	}
	byMetric := make(map[string][]sample)
	for _, s := range batch {
		for name, field := range s.Metrics {
			byMetric[name] = append(byMetric[name], sample{player: s.Player, value: field.Value})
		}
	}

	names := make([]string, 0, len(byMetric))
	for name := range byMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []Issue
	for _, name := range names {
		samples := byMetric[name]
		if len(samples) < screenMinSamples {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}
		mean, err := stats.Mean(values)
		if err != nil {
			continue
		}
		stddev, err := stats.StandardDeviation(values)
		if err != nil || stddev == 0 {
			continue
		}
		for _, s := range samples {
			if math.Abs(s.value-mean) > v.sigma*stddev {
				issues = append(issues, Issue{
					Rule:   "metric_outlier",
					Field:  name,
					Value:  s.value,
					Detail: fmt.Sprintf("player %s: %s=%g is %0.1f sigma from the batch mean %g", s.player, name, s.value, math.Abs(s.value-mean)/stddev, mean),
					Hard:   false,
				})
			}
		}
	}
	return issues
}

func (v *Validator) finish(issues []Issue) Result {
	status := StatusPass
	for _, issue := range issues {
		if issue.Hard {
			status = StatusFail
			break
		}
		status = StatusWarn
	}
	metrics.RecordValidation(string(status))
	return Result{Status: status, Issues: issues}
}
