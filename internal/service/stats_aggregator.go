package service

import (
	"math"
	"sort"
	"time"

	"safety-app/internal/domain"
)

const (
	dateLayout = "2006-01-02"

	// bounds a snapshot to a sane amount of rows for "all"
	maxActivitiesPerSnapshot = 10000
)

// EmptySnapshot is a snapshot with every counter at zero and every list
// empty, served when there is no activity store to aggregate from
func EmptySnapshot(userID string, timeRange domain.TimeRange, now time.Time) *domain.UserStatsSnapshot {
	return &domain.UserStatsSnapshot{
		UserID:      userID,
		TimeRange:   timeRange,
		LastUpdated: now.UTC(),
		Videos: domain.VideoStats{
			Completed:  []string{},
			InProgress: []string{},
		},
		Quizzes: domain.QuizStats{
			Completed: []string{},
			Scores:    []domain.QuizScore{},
		},
		Progress: domain.ProgressStats{
			DailyActivity:  []domain.DailyActivity{},
			WeeklyProgress: []domain.WeeklyProgress{},
			Achievements:   []domain.Achievement{},
		},
	}
}

// BuildSnapshot aggregates activities, oldest first, into a snapshot.
// totalContent is the number of learning items the completion rate is
// measured against.
func BuildSnapshot(userID string, timeRange domain.TimeRange, activities []*domain.Activity, totalContent int, now time.Time) *domain.UserStatsSnapshot {
	snap := EmptySnapshot(userID, timeRange, now)

	sorted := make([]*domain.Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	snap.Videos = videoStats(sorted)
	snap.Quizzes = quizStats(sorted)
	snap.Progress = progressStats(sorted)
	snap.Trends = trendStats(sorted, snap.Quizzes.Scores, now)

	snap.Overview = domain.StatsOverview{
		TotalVideosWatched: len(snap.Videos.Completed),
		TotalQuizzesTaken:  len(snap.Quizzes.Completed),
		TotalLearningTime:  snap.Videos.TotalWatchTime,
		AverageScore:       snap.Quizzes.AverageScore,
		CompletionRate:     completionRate(len(snap.Videos.Completed)+len(snap.Quizzes.Completed), totalContent),
	}
	return snap
}

func completionRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	rate := int(math.Round(float64(completed) / float64(total) * 100))
	if rate > 100 {
		return 100
	}
	return rate
}

func videoStats(activities []*domain.Activity) domain.VideoStats {
	stats := domain.VideoStats{Completed: []string{}, InProgress: []string{}}
	completed := map[string]bool{}
	touched := map[string]bool{}
	var order []string

	for _, a := range activities {
		if a.Action != domain.ActionVideoProgress && a.Action != domain.ActionVideoComplete {
			continue
		}
		if wt, ok := a.NumberField("watchTime"); ok && wt > 0 {
			stats.TotalWatchTime += wt
		}
		id := a.StringField("videoId")
		if id == "" {
			continue
		}
		if !touched[id] {
			touched[id] = true
			order = append(order, id)
		}
		if a.Action == domain.ActionVideoComplete && !completed[id] {
			completed[id] = true
			stats.Completed = append(stats.Completed, id)
		}
	}

	for _, id := range order {
		if !completed[id] {
			stats.InProgress = append(stats.InProgress, id)
		}
	}
	stats.TotalWatchTime = round1(stats.TotalWatchTime)
	if len(order) > 0 {
		stats.AverageWatchTime = round1(stats.TotalWatchTime / float64(len(order)))
	}
	return stats
}

func quizStats(activities []*domain.Activity) domain.QuizStats {
	stats := domain.QuizStats{Completed: []string{}, Scores: []domain.QuizScore{}}
	seen := map[string]bool{}
	var sum float64

	for _, a := range activities {
		if a.Action != domain.ActionQuizComplete {
			continue
		}
		id := a.StringField("quizId")
		if id != "" && !seen[id] {
			seen[id] = true
			stats.Completed = append(stats.Completed, id)
		}
		score, ok := a.NumberField("score")
		if !ok {
			continue
		}
		stats.Scores = append(stats.Scores, domain.QuizScore{QuizID: id, Score: score, TakenAt: a.CreatedAt.UTC()})
		sum += score
		if score > stats.BestScore {
			stats.BestScore = score
		}
	}

	stats.TotalAttempts = len(stats.Scores)
	if stats.TotalAttempts > 0 {
		stats.AverageScore = round1(sum / float64(stats.TotalAttempts))
	}
	return stats
}

func progressStats(activities []*domain.Activity) domain.ProgressStats {
	stats := domain.ProgressStats{
		DailyActivity:  []domain.DailyActivity{},
		WeeklyProgress: []domain.WeeklyProgress{},
		Achievements:   achievements(activities),
	}

	daily := map[string]int{}
	weekly := map[string]*domain.WeeklyProgress{}
	for _, a := range activities {
		t := a.CreatedAt.UTC()
		daily[t.Format(dateLayout)]++

		if a.Action != domain.ActionVideoComplete && a.Action != domain.ActionQuizComplete {
			continue
		}
		week := weekStart(t).Format(dateLayout)
		w, ok := weekly[week]
		if !ok {
			w = &domain.WeeklyProgress{WeekStart: week}
			weekly[week] = w
		}
		if a.Action == domain.ActionVideoComplete {
			w.VideosCompleted++
		} else {
			w.QuizzesCompleted++
		}
	}

	for date, n := range daily {
		stats.DailyActivity = append(stats.DailyActivity, domain.DailyActivity{Date: date, Count: n})
	}
	sort.Slice(stats.DailyActivity, func(i, j int) bool {
		return stats.DailyActivity[i].Date < stats.DailyActivity[j].Date
	})

	for _, w := range weekly {
		stats.WeeklyProgress = append(stats.WeeklyProgress, *w)
	}
	sort.Slice(stats.WeeklyProgress, func(i, j int) bool {
		return stats.WeeklyProgress[i].WeekStart < stats.WeeklyProgress[j].WeekStart
	})
	return stats
}

// achievements are earned at the activity that first satisfied them
func achievements(activities []*domain.Activity) []domain.Achievement {
	earned := []domain.Achievement{}
	have := map[string]bool{}
	award := func(id, title string, at time.Time) {
		if !have[id] {
			have[id] = true
			earned = append(earned, domain.Achievement{ID: id, Title: title, EarnedAt: at.UTC()})
		}
	}

	videos := map[string]bool{}
	for _, a := range activities {
		switch a.Action {
		case domain.ActionVideoComplete:
			award("first_video", "初次观看", a.CreatedAt)
			if id := a.StringField("videoId"); id != "" {
				videos[id] = true
			}
			if len(videos) >= 5 {
				award("five_videos", "学习达人", a.CreatedAt)
			}
		case domain.ActionQuizComplete:
			award("first_quiz", "初试身手", a.CreatedAt)
			if score, ok := a.NumberField("score"); ok && score >= 100 {
				award("perfect_score", "满分达人", a.CreatedAt)
			}
		}
	}
	return earned
}

func trendStats(activities []*domain.Activity, scores []domain.QuizScore, now time.Time) domain.TrendStats {
	trends := domain.TrendStats{ImprovementRate: improvementRate(scores)}
	if len(activities) == 0 {
		return trends
	}

	days := map[string]bool{}
	var weekdays [7]int
	buckets := map[string]int{}
	for _, a := range activities {
		t := a.CreatedAt.UTC()
		days[t.Format(dateLayout)] = true
		weekdays[t.Weekday()]++
		buckets[timeOfDay(t.Hour())]++
	}

	trends.LearningStreak = streak(days, now.UTC())

	best := 0
	for d, n := range weekdays {
		if n > best {
			best = n
			trends.MostActiveDay = time.Weekday(d).String()
		}
	}

	best = 0
	for _, bucket := range []string{"morning", "afternoon", "evening", "night"} {
		if buckets[bucket] > best {
			best = buckets[bucket]
			trends.PreferredLearningTime = bucket
		}
	}
	return trends
}

// streak counts consecutive active days ending today, or yesterday when
// nothing has happened yet today
func streak(days map[string]bool, now time.Time) int {
	day := now
	if !days[day.Format(dateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day.Format(dateLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

// improvementRate compares the mean score of the later half of attempts
// with the earlier half, as a percentage
func improvementRate(scores []domain.QuizScore) float64 {
	if len(scores) < 2 {
		return 0
	}
	half := len(scores) / 2
	early := mean(scores[:half])
	late := mean(scores[len(scores)-half:])
	if early == 0 {
		return 0
	}
	return round1((late - early) / early * 100)
}

func mean(scores []domain.QuizScore) float64 {
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return sum / float64(len(scores))
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 23:
		return "evening"
	}
	return "night"
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
