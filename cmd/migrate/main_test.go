package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-app/internal/domain"
)

func TestDemoActivities(t *testing.T) {
	now := time.Date(2026, 3, 11, 20, 30, 0, 0, time.UTC)
	activities := demoActivities("demo", now)

	require.Len(t, activities, 21)

	counts := map[string]int{}
	for _, a := range activities {
		assert.Equal(t, "demo", a.UserID)
		assert.False(t, a.CreatedAt.After(now.Add(15*time.Minute)))
		assert.True(t, a.CreatedAt.After(now.AddDate(0, 0, -7)))
		counts[a.Action]++
	}
	assert.Equal(t, map[string]int{
		domain.ActionPageView:      7,
		domain.ActionVideoComplete: 7,
		domain.ActionQuizComplete:  7,
	}, counts)

	first, _ := activities[2].NumberField("score")
	last, _ := activities[len(activities)-1].NumberField("score")
	assert.Less(t, first, last, "scores improve over the week")
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "DROP TABLE x", summarize("DROP TABLE x"))
	assert.Len(t, summarize(createQueries[0]), 53)
}

func TestRootCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"up"})
	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
