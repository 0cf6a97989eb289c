// Package recommendation defines the Recommendation entity recorded by
// the Recommendation Engine and updated only by the Performance Tracker.
package recommendation

import "time"

// RecType identifies the strategy/kind combination a recommendation
// was produced under.
type RecType string

const (
	ShortStock RecType = "short_stock"
	LongStock  RecType = "long_stock"
	ShortFund  RecType = "short_fund"
	LongFund   RecType = "long_fund"
)

// EvaluationStatus tracks a recommendation's forward-grading lifecycle.
// It progresses monotonically: pending -> evaluated_7d -> evaluated_30d
// -> closed. A recommendation never regresses.
type EvaluationStatus string

const (
	Pending      EvaluationStatus = "pending"
	Evaluated7d  EvaluationStatus = "evaluated_7d"
	Evaluated30d EvaluationStatus = "evaluated_30d"
	Closed       EvaluationStatus = "closed"
)

// Record is one recommendation, keyed uniquely by (Code, RecType, RecDate).
type Record struct {
	Code    string
	RecType RecType
	RecDate string

	RecPrice        *float64
	RecScore        float64
	TargetReturnPct float64
	StopLossPct     float64

	CheckDate7d *string
	Price7d     *float64
	Return7d    *float64

	CheckDate30d *string
	Price30d     *float64
	Return30d    *float64

	HitTarget   bool
	HitStop     bool
	FinalReturn *float64

	Status EvaluationStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TargetsFor returns the literal target-return / stop-loss percentages
// for a rec type.
func TargetsFor(rt RecType) (target, stop float64) {
	switch rt {
	case ShortStock:
		return 5.0, -3.0
	case LongStock:
		return 10.0, -5.0
	case ShortFund:
		return 3.0, -2.0
	case LongFund:
		return 8.0, -4.0
	default:
		return 0, 0
	}
}

// NextStatus returns the status reachable from cur after the given
// evaluation stage completes, enforcing monotonic progression.
func NextStatus(cur EvaluationStatus, stage EvaluationStatus) EvaluationStatus {
	rank := map[EvaluationStatus]int{Pending: 0, Evaluated7d: 1, Evaluated30d: 2, Closed: 3}
	if rank[stage] > rank[cur] {
		return stage
	}
	return cur
}
