package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/models"
	"hostel_app/internal/services"
)

const (
	dashboardCacheKey = "hostel:dashboard:overview"
	dashboardCacheTTL = 30 * time.Second
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	db     *gorm.DB
	cache  *services.RedisCache
	logger *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler. cache may be nil.
func NewDashboardHandler(db *gorm.DB, cache *services.RedisCache, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{db: db, cache: cache, logger: logger}
}

// Overview holds the headline counters of the admin dashboard
type Overview struct {
	Students           int64     `json:"students"`
	Members            int64     `json:"members"`
	UnresolvedComplain int64     `json:"unresolved_complaints"`
	AvailableRooms     int64     `json:"available_rooms"`
	PendingFees        int64     `json:"pending_fees"`
	LeavesAwaiting     int64     `json:"leaves_awaiting_warden"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// Dashboard returns the overview, served from cache for a short while
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		overview Overview
		err      error
	)
	if h.cache != nil {
		overview, err = services.GetOrSet(h.cache, ctx, dashboardCacheKey, dashboardCacheTTL, func() (Overview, error) {
			return h.computeOverview(ctx)
		})
	} else {
		overview, err = h.computeOverview(ctx)
	}
	if err != nil {
		h.logger.Error("Failed to compute dashboard overview", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load dashboard")
	}
	return c.JSON(http.StatusOK, overview)
}

func (h *DashboardHandler) computeOverview(ctx context.Context) (Overview, error) {
	db := h.db.WithContext(ctx)
	o := Overview{GeneratedAt: time.Now().UTC()}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&o.Students, db.Model(&models.Student{})},
		{&o.Members, db.Model(&models.Member{})},
		{&o.UnresolvedComplain, db.Model(&models.Complaint{}).Where("status <> ?", models.ComplaintStatusResolved)},
		{&o.AvailableRooms, db.Model(&models.Room{}).Where("status = ?", models.RoomStatusAvailable)},
		{&o.PendingFees, db.Model(&models.Fee{}).Where("status IN ?", []models.FeeStatus{models.FeeStatusPending, models.FeeStatusOverdue})},
		{&o.LeavesAwaiting, db.Model(&models.LeaveRequest{}).Where("status = ?", models.LeaveStatusPendingWarden)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return Overview{}, err
		}
	}
	return o, nil
}

// InvalidateOnChange drops the cached overview whenever a change event arrives, until ctx is done
func (h *DashboardHandler) InvalidateOnChange(ctx context.Context, hub *services.EventHub) {
	if h.cache == nil {
		return
	}
	events, unsubscribe := hub.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := h.cache.Delete(ctx, dashboardCacheKey); err != nil {
				h.logger.Warn("Failed to invalidate dashboard cache", zap.Error(err))
			}
		}
	}
}
