package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dodo5517/Prism/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// defaultCharacter is used when a user has no persona configured.
const defaultCharacter = "dog"

// entryLocks serializes delete/regenerate/image mutations per entry id so
// two concurrent requests for the same entry cannot race each other. The
// deployment is a single synchronous instance, so an in-process lock is
// sufficient; multi-instance setups would need a DB advisory lock instead.
// Each lock is refcounted and removed from the map when its last holder
// unlocks, so the map stays bounded by in-flight requests.
var entryLocks = struct {
	mu sync.Mutex
	m  map[uint]*entryLock
}{m: make(map[uint]*entryLock)}

type entryLock struct {
	sync.Mutex
	refs int
}

func lockEntry(id uint) func() {
	entryLocks.mu.Lock()
	l, ok := entryLocks.m[id]
	if !ok {
		l = &entryLock{}
		entryLocks.m[id] = l
	}
	l.refs++
	entryLocks.mu.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		entryLocks.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(entryLocks.m, id)
		}
		entryLocks.mu.Unlock()
	}
}

// findOwnedEntry looks an entry up by id AND owner. A wrong owner and a
// nonexistent id are indistinguishable on purpose: both come back as
// gorm.ErrRecordNotFound so the API never reveals other users' entries.
func findOwnedEntry(entryID, userID uint) (*models.DiaryEntry, error) {
	var entry models.DiaryEntry
	err := db.Preload("Analysis").Where("id = ? AND user_id = ?", entryID, userID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func entryIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// runTextAnalysis calls the text-analysis model and persists the Analysis
// row immediately, fallback values included. The row is committed on its
// own before any image work so a later image failure can never roll back
// the analysis (or the entry).
func runTextAnalysis(ctx context.Context, user *models.User, entry *models.DiaryEntry) (*models.Analysis, error) {
	character := user.CharacterDescription
	if character == "" {
		character = defaultCharacter
	}
	out := getClients().analyzer.Analyze(ctx, entry.Content, character)
	if out.Degraded {
		logx.Warnw("text analysis degraded, storing fallback", "entry_id", entry.ID, "reason", out.Reason)
	}

	status := models.AnalysisStatusAnalyzed
	if out.Degraded {
		status = models.AnalysisStatusFallback
	}
	analysis := &models.Analysis{
		DiaryEntryID:       entry.ID,
		RepresentativeMood: out.RepresentativeMood,
		MoodScore:          out.MoodScore,
		Keywords:           out.Keywords,
		ImagePrompt:        out.ImagePrompt,
		Status:             status,
	}
	if err := db.Create(analysis).Error; err != nil {
		return nil, err
	}
	return analysis, nil
}

// runImageStep generates an illustration from the stored prompt, uploads the
// resized result and writes the URL onto the analysis row. Failures leave
// image_url null and mark the row image_failed; they are never surfaced to
// the caller.
func runImageStep(ctx context.Context, userID uint, entry *models.DiaryEntry, analysis *models.Analysis) {
	if analysis == nil || analysis.ImagePrompt == "" {
		return
	}
	rc := getClients()

	imageBytes := rc.images.Generate(ctx, analysis.ImagePrompt)
	if imageBytes == nil {
		logx.Warnw("image generation failed, keeping analysis without image", "entry_id", entry.ID)
		markImageFailed(analysis)
		return
	}

	filename := fmt.Sprintf("user_%d_log_%d.png", userID, entry.ID)
	imageURL := rc.store.Upload(ctx, imageBytes, filename)
	if imageURL == "" {
		logx.Warnw("image upload failed, keeping analysis without image", "entry_id", entry.ID)
		markImageFailed(analysis)
		return
	}

	analysis.ImageURL = &imageURL
	// a fallback analysis stays marked fallback even with an image attached
	if analysis.Status != models.AnalysisStatusFallback {
		analysis.Status = models.AnalysisStatusComplete
	}
	if err := db.Model(analysis).Updates(map[string]interface{}{
		"image_url": imageURL,
		"status":    analysis.Status,
	}).Error; err != nil {
		logx.Errorw("failed to persist image url", "entry_id", entry.ID, "err", err)
	}
}

// markImageFailed records the failed image step; the fallback marker from a
// degraded text step takes precedence.
func markImageFailed(analysis *models.Analysis) {
	if analysis.Status == models.AnalysisStatusFallback {
		return
	}
	analysis.Status = models.AnalysisStatusImageFailed
	if err := db.Model(analysis).Update("status", models.AnalysisStatusImageFailed).Error; err != nil {
		logx.Errorw("failed to persist image_failed status", "analysis_id", analysis.ID, "err", err)
	}
}

// analysisResponse is the payload returned by create and regenerate.
func analysisResponse(entry *models.DiaryEntry, analysis *models.Analysis) gin.H {
	keywords := []string(analysis.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return gin.H{
		"log_id":              entry.ID,
		"keywords":            keywords,
		"representative_mood": analysis.RepresentativeMood,
		"status":              analysis.Status,
	}
}

// createLogHandler saves a diary entry and runs the whole analysis pipeline
// synchronously: text analysis, analysis row insert, image generation,
// storage upload, url update. The save never fails because of the AI steps.
func createLogHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var req struct {
		Date    string `json:"date"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logDate := time.Now()
	if req.Date != "" {
		t, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		logDate = t
	}

	entry := models.DiaryEntry{UserID: user.ID, LogDate: logDate, Content: req.Content}
	if err := db.Create(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	ctx := c.Request.Context()
	analysis, err := runTextAnalysis(ctx, user, &entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis save failed"})
		return
	}
	runImageStep(ctx, user.ID, &entry, analysis)

	c.JSON(http.StatusOK, analysisResponse(&entry, analysis))
}

// logDetailHandler returns one entry with its analysis for the modal view.
func logDetailHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}
	entry, err := findOwnedEntry(entryID, userID)
	if err != nil {
		if errIsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}
	analysis := entry.Analysis
	if analysis == nil || analysis.ImagePrompt == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "log is not analyzed yet"})
		return
	}
	keywords := []string(analysis.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         entry.ID,
		"date":       entry.LogDate.Format(dateLayout),
		"keywords":   keywords,
		"image_url":  analysis.ImageURL,
		"content":    entry.Content,
		"mood_score": analysis.MoodScore,
		"status":     analysis.Status,
	})
}

type monthlyItem struct {
	ID        uint    `json:"id"`
	Date      string  `json:"date"`
	ImageURL  *string `json:"image_url"`
	MoodScore *int    `json:"mood_score"`
}

// monthlyHandler lists one row per diary entry in the requested month.
// Entries without an analysis still appear, with null image and score.
func monthlyHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	year, errY := strconv.Atoi(c.Query("year"))
	month, errM := strconv.Atoi(c.Query("month"))
	if errY != nil || errM != nil || month < 1 || month > 12 || year < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year and month query params required"})
		return
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	rows, err := db.Table("diary_entries d").
		Select("d.id, d.log_date, a.image_url, a.mood_score").
		Joins("LEFT JOIN analyses a ON a.diary_entry_id = d.id").
		Where("d.user_id = ? AND d.log_date BETWEEN ? AND ?", userID, start, end).
		Order("d.log_date asc").
		Rows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	defer rows.Close()

	items := []monthlyItem{}
	for rows.Next() {
		var (
			id        uint
			logDate   time.Time
			imageURL  *string
			moodScore *int
		)
		if err := rows.Scan(&id, &logDate, &imageURL, &moodScore); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
			return
		}
		items = append(items, monthlyItem{ID: id, Date: logDate.Format(dateLayout), ImageURL: imageURL, MoodScore: moodScore})
	}
	c.JSON(http.StatusOK, items)
}

// deleteLogHandler removes the stored image (best-effort), the analysis row
// and the entry row. A failed storage delete is logged but never stops the
// DB deletion.
func deleteLogHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}
	unlock := lockEntry(entryID)
	defer unlock()

	entry, err := findOwnedEntry(entryID, userID)
	if err != nil {
		if errIsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}

	ctx := c.Request.Context()
	if entry.Analysis != nil {
		if entry.Analysis.ImageURL != nil {
			if !getClients().store.Delete(ctx, *entry.Analysis.ImageURL) {
				logx.Warnw("storage delete failed, removing rows anyway", "entry_id", entry.ID, "url", *entry.Analysis.ImageURL)
			}
		}
		if err := db.Delete(entry.Analysis).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
			return
		}
	}
	if err := db.Delete(entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// regenerateHandler throws the old analysis (and its stored image) away and
// reruns the whole pipeline against the existing diary content. The content
// itself is never regenerated.
func regenerateHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}
	unlock := lockEntry(entryID)
	defer unlock()

	entry, err := findOwnedEntry(entryID, user.ID)
	if err != nil {
		if errIsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}

	ctx := c.Request.Context()
	if entry.Analysis != nil {
		// old storage object goes first, before any new analysis call
		if entry.Analysis.ImageURL != nil {
			if !getClients().store.Delete(ctx, *entry.Analysis.ImageURL) {
				logx.Warnw("old image delete failed during regenerate", "entry_id", entry.ID, "url", *entry.Analysis.ImageURL)
			}
		}
		if err := db.Delete(entry.Analysis).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "regenerate failed"})
			return
		}
		entry.Analysis = nil
	}

	analysis, err := runTextAnalysis(ctx, user, entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis save failed"})
		return
	}
	runImageStep(ctx, user.ID, entry, analysis)

	c.JSON(http.StatusOK, analysisResponse(entry, analysis))
}

// generateImageHandler reruns only the image half of the pipeline from the
// stored prompt, replacing a previously stored image if present.
func generateImageHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	entryID, ok := entryIDParam(c)
	if !ok {
		return
	}
	unlock := lockEntry(entryID)
	defer unlock()

	entry, err := findOwnedEntry(entryID, userID)
	if err != nil {
		if errIsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}
	analysis := entry.Analysis
	if analysis == nil || analysis.ImagePrompt == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "log is not analyzed yet"})
		return
	}

	ctx := c.Request.Context()
	if analysis.ImageURL != nil {
		if !getClients().store.Delete(ctx, *analysis.ImageURL) {
			logx.Warnw("old image delete failed before re-generation", "entry_id", entry.ID, "url", *analysis.ImageURL)
		}
		// clear the stale url so a failed re-generation cannot leave a
		// pointer to the deleted object
		analysis.ImageURL = nil
		if err := db.Model(analysis).Update("image_url", nil).Error; err != nil {
			logx.Errorw("failed to clear stale image url", "analysis_id", analysis.ID, "err", err)
		}
	}
	runImageStep(ctx, userID, entry, analysis)

	c.JSON(http.StatusOK, gin.H{
		"log_id":    entry.ID,
		"image_url": analysis.ImageURL,
		"status":    analysis.Status,
	})
}

// errIsNotFound reports whether err is the collapsed not-found outcome.
func errIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
