package main

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dodo5517/Prism/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
)

// statsEpoch is the lower bound when no period filter is given.
var statsEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// findAdminUser is the authorization gate for the statistics endpoints: a
// single lookup joined on the administrator role. Any non-admin or unknown
// id yields not-found, which the handlers map to a permission error without
// revealing whether the id exists.
func findAdminUser(userID uint) (*models.User, error) {
	var user models.User
	err := db.Joins("JOIN roles ON roles.id = users.role_id").
		Where("users.id = ? AND roles.name = ?", userID, "administrator").
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// statsRange computes the aggregation window. No year: from the fixed epoch
// through tomorrow (today inclusive). Year only: that whole year. Year and
// month: that month.
func statsRange(year, month int, now time.Time) (time.Time, time.Time) {
	switch {
	case year == 0:
		return statsEpoch, now.AddDate(0, 0, 1)
	case month == 0:
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	default:
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	}
}

// KeywordStat is one aggregated keyword with its occurrence count.
type KeywordStat struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// topKeywords ranks keywords by count with dense ranking: equal counts share
// a rank and every keyword at rank <= maxRank is included, so ties at the
// cutoff are never dropped. Output is ordered by count desc, keyword asc.
func topKeywords(counts map[string]int, maxRank int) []KeywordStat {
	if len(counts) == 0 {
		return []KeywordStat{}
	}
	distinct := make([]int, 0, len(counts))
	seen := map[int]bool{}
	for _, n := range counts {
		if !seen[n] {
			seen[n] = true
			distinct = append(distinct, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(distinct)))

	rankOf := make(map[int]int, len(distinct))
	for i, n := range distinct {
		rankOf[n] = i + 1 // dense rank
	}

	out := []KeywordStat{}
	for kw, n := range counts {
		if rankOf[n] <= maxRank {
			out = append(out, KeywordStat{Keyword: kw, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out
}

// keywordStatsHandler aggregates keyword frequency over the requested
// period and returns the top-3 dense ranks, ties included. Admin only.
func keywordStatsHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if _, err := findAdminUser(userID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin permission required"})
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))
	month, _ := strconv.Atoi(c.Query("month"))
	start, end := statsRange(year, month, time.Now())

	rows, err := db.Table("analyses a").
		Select("a.keywords").
		Joins("JOIN diary_entries d ON a.diary_entry_id = d.id").
		Where("d.log_date BETWEEN ? AND ?", start, end).
		Rows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var keywords pq.StringArray
		if err := rows.Scan(&keywords); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		for _, kw := range keywords {
			counts[kw]++
		}
	}
	c.JSON(http.StatusOK, topKeywords(counts, 3))
}

// MoodStat is the average mood score for one month bucket.
type MoodStat struct {
	Period       string  `json:"period"`
	AverageScore float64 `json:"average_score"`
}

// moodStatsHandler returns the month-bucketed average mood score for the
// requested year (default: current year). Admin only.
func moodStatsHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if _, err := findAdminUser(userID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin permission required"})
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))
	if year == 0 {
		year = time.Now().Year()
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)

	// to_char groups by YYYY-MM on Postgres
	rows, err := db.Table("analyses a").
		Select("to_char(d.log_date, 'YYYY-MM') as period, round(avg(a.mood_score), 1) as average_score").
		Joins("JOIN diary_entries d ON a.diary_entry_id = d.id").
		Where("d.log_date BETWEEN ? AND ?", start, end).
		Group("period").
		Order("period asc").
		Rows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	stats := []MoodStat{}
	for rows.Next() {
		var s MoodStat
		if err := rows.Scan(&s.Period, &s.AverageScore); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		stats = append(stats, s)
	}
	c.JSON(http.StatusOK, stats)
}
