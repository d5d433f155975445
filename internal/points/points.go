// Package points содержит чистые правила начисления баллов:
// бонусы за ранний голос и серию дней активности, а также уровни счёта.
package points

import "time"

const (
	// earlyVotePercent — надбавка за ранний голос, процент от базы.
	earlyVotePercent = 20
	// streakStepPercent — надбавка за каждый день серии сверх первого.
	streakStepPercent = 5
	// maxStreakSteps ограничивает серию десятью засчитываемыми днями (50%).
	maxStreakSteps = 10
)

// Award описывает разбивку одного начисления за голос.
// Обе надбавки считаются от базы и не перемножаются между собой.
type Award struct {
	Base          int64
	EarlyBonus    int64
	StreakBonus   int64
	StreakPercent int
	Total         int64
}

// ComputeAward рассчитывает начисление за голос: база по уровню DAO,
// надбавка за ранний голос и надбавка за серию дней streak.
func ComputeAward(base int64, earlyVote bool, streak int) Award {
	a := Award{Base: base}

	if earlyVote {
		a.EarlyBonus = base * earlyVotePercent / 100
	}

	if streak > 1 {
		steps := streak - 1
		if steps > maxStreakSteps {
			steps = maxStreakSteps
		}
		a.StreakPercent = steps * streakStepPercent
		a.StreakBonus = base * int64(a.StreakPercent) / 100
	}

	a.Total = a.Base + a.EarlyBonus + a.StreakBonus
	return a
}

// AdvanceStreak возвращает новое значение серии для события активности now.
// Серия растёт, если последняя активность была ровно вчера; сбрасывается
// к единице, если день активности не сегодняшний; повторная активность
// в тот же день серию не меняет.
func AdvanceStreak(lastActivity, now time.Time, streak int) int {
	if lastActivity.IsZero() {
		return 1
	}

	today := now.UTC().Truncate(24 * time.Hour)
	last := lastActivity.UTC().Truncate(24 * time.Hour)

	switch {
	case last.Equal(today.AddDate(0, 0, -1)):
		return streak + 1
	case !last.Equal(today):
		return 1
	default:
		return streak
	}
}

// levelThreshold описывает порог уровня по общему количеству баллов.
type levelThreshold struct {
	level     int
	minPoints int64
	name      string
}

var levelThresholds = []levelThreshold{
	{1, 0, "Newcomer"},
	{2, 500, "Participant"},
	{3, 2000, "Active Member"},
	{4, 5000, "Power Voter"},
	{5, 10000, "Governance Expert"},
	{6, 25000, "DAO Legend"},
}

// LevelFor возвращает уровень счёта по общему количеству заработанных баллов.
func LevelFor(total int64) int {
	for i := len(levelThresholds) - 1; i >= 0; i-- {
		if total >= levelThresholds[i].minPoints {
			return levelThresholds[i].level
		}
	}
	return 1
}

// LevelName возвращает название уровня.
func LevelName(level int) string {
	for _, t := range levelThresholds {
		if t.level == level {
			return t.name
		}
	}
	return levelThresholds[0].name
}

// LevelProgress возвращает целочисленный процент продвижения к следующему
// уровню; на максимальном уровне всегда 100.
func LevelProgress(total int64) int {
	level := LevelFor(total)
	if level >= levelThresholds[len(levelThresholds)-1].level {
		return 100
	}

	cur := levelThresholds[level-1].minPoints
	next := levelThresholds[level].minPoints

	return int((total - cur) * 100 / (next - cur))
}

// MaxLevel возвращает наивысший достижимый уровень.
func MaxLevel() int {
	return levelThresholds[len(levelThresholds)-1].level
}
