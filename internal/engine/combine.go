package engine

import (
	"stratrack/internal/plan"
)

// Combine folds a set of normalized contributions into one achievement
// metric for a target. It is a pure function of its inputs: reordering a
// contribution list never changes the result, because SUM and AVERAGE are
// order-free and LATEST/QUALITATIVE select by the stored (CreatedAt, Seq)
// ordering key rather than list position. Recomputation re-reads the full
// set on every write, so this stability is what makes retries safe.
// No intermediate rounding; callers round for display only.
func Combine(targetType plan.TargetType, targetValue float64, contribs []Contribution) Result {
	if len(contribs) == 0 {
		return Result{}
	}

	switch targetType.Class() {
	case plan.ClassSum:
		var sum float64
		for _, c := range contribs {
			sum += c.Value
		}
		return Result{
			CombinedValue:      sum,
			AchievementPercent: achievementAgainst(sum, targetValue),
		}

	case plan.ClassAverage:
		var sum float64
		var count int
		for _, c := range contribs {
			if !c.Valid {
				continue
			}
			sum += c.Value
			count++
		}
		if count == 0 {
			return Result{}
		}
		mean := sum / float64(count)
		return Result{
			CombinedValue:      mean,
			AchievementPercent: achievementAgainst(mean, targetValue),
		}

	case plan.ClassLatest:
		latest := latestContribution(contribs)
		result := Result{CombinedValue: latest.Value}
		if targetType == plan.TargetSnapshot {
			result.AchievementPercent = achievementAgainst(latest.Value, targetValue)
		} else if latest.Value == 1 {
			result.AchievementPercent = 100
		}
		return result

	case plan.ClassQualitative:
		latest := latestContribution(contribs)
		return Result{
			CombinedValue:      latest.Value,
			AchievementPercent: latest.Value,
			LatestLabel:        latest.Label,
		}
	}

	return Result{}
}

// latestContribution selects by CreatedAt, breaking timestamp ties with
// the insertion sequence.
func latestContribution(contribs []Contribution) Contribution {
	latest := contribs[0]
	for _, c := range contribs[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
			continue
		}
		if c.CreatedAt.Equal(latest.CreatedAt) && c.Seq > latest.Seq {
			latest = c
		}
	}
	return latest
}

// achievementAgainst is zero whenever the target is non-positive; the
// result is deliberately uncapped, a 110% quarter stores as 110.
func achievementAgainst(combined, targetValue float64) float64 {
	if targetValue <= 0 {
		return 0
	}
	return combined / targetValue * 100
}
