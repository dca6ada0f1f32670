package achievements

import "github.com/aimd54/leafline/internal/models"

// Definition describes a catalog achievement before it is stored.
type Definition struct {
	Name        string
	Description string
	Icon        string
	Criteria    models.AchievementCriteria
}

// DefaultCatalog returns the achievements every installation starts with.
func DefaultCatalog() []Definition {
	return []Definition{
		{
			Name:        "Seedling",
			Description: "Earn your first 10 XP",
			Icon:        "🌱",
			Criteria:    models.AchievementCriteria{Metric: MetricTotalXP, Operator: ">=", Value: 10},
		},
		{
			Name:        "Sprout",
			Description: "Reach level 3",
			Icon:        "🌿",
			Criteria:    models.AchievementCriteria{Metric: MetricLevel, Operator: ">=", Value: 3},
		},
		{
			Name:        "Green Thumb",
			Description: "Share 25 posts with the community",
			Icon:        "👍",
			Criteria:    models.AchievementCriteria{Metric: MetricPostsCreated, Operator: ">=", Value: 25},
		},
		{
			Name:        "Chatterbox",
			Description: "Leave 50 comments",
			Icon:        "💬",
			Criteria:    models.AchievementCriteria{Metric: MetricCommentsCreated, Operator: ">=", Value: 50},
		},
		{
			Name:        "Bookworm",
			Description: "Read 30 care guides",
			Icon:        "📚",
			Criteria:    models.AchievementCriteria{Metric: MetricArticlesRead, Operator: ">=", Value: 30},
		},
		{
			Name:        "Pot Parent",
			Description: "Link your first pot",
			Icon:        "🪴",
			Criteria:    models.AchievementCriteria{Metric: MetricPotsLinked, Operator: ">=", Value: 1},
		},
		{
			Name:        "Collector",
			Description: "Link 5 pots",
			Icon:        "🏺",
			Criteria:    models.AchievementCriteria{Metric: MetricPotsLinked, Operator: ">=", Value: 5},
		},
		{
			Name:        "Player One",
			Description: "Play 100 game blocks",
			Icon:        "🎮",
			Criteria:    models.AchievementCriteria{Metric: MetricGameBlocksPlayed, Operator: ">=", Value: 100},
		},
		{
			Name:        "Gardener of the Week",
			Description: "Be among the top 3 XP earners over the last 7 days",
			Icon:        "🏆",
			Criteria:    models.AchievementCriteria{Metric: MetricTotalXP, Operator: "top", Value: 3, Period: "week"},
		},
	}
}
