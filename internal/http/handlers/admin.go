package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/http/response"
	"github.com/yumenosora/otakudb-backend/internal/jobs/scheduler"
	"github.com/yumenosora/otakudb-backend/internal/services"
)

type AdminHandler struct {
	sched *scheduler.Scheduler
	pop   services.PopularityService
	stats services.StatsService
}

func NewAdminHandler(sched *scheduler.Scheduler, pop services.PopularityService, stats services.StatsService) *AdminHandler {
	return &AdminHandler{sched: sched, pop: pop, stats: stats}
}

// POST /api/admin/popularity/:class/run?mode=full|recent
func (h *AdminHandler) RunPass(c *gin.Context) {
	class, err := catalog.ParseClass(c.Param("class"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_class", err)
		return
	}
	mode := services.RunMode(c.DefaultQuery("mode", string(services.RunModeFull)))
	if mode != services.RunModeFull && mode != services.RunModeRecent {
		response.RespondError(c, http.StatusBadRequest, "invalid_mode", errors.New("mode must be full or recent"))
		return
	}

	result, err := h.sched.TriggerRun(c.Request.Context(), class, mode)
	if err != nil {
		if errors.Is(err, services.ErrPassRunning) {
			response.RespondError(c, http.StatusConflict, "pass_running", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}

// POST /api/admin/popularity/notify
func (h *AdminHandler) RunNotify(c *gin.Context) {
	result, err := h.sched.TriggerNotify(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "notify_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}

// POST /api/admin/counters/reset?period=daily|weekly
func (h *AdminHandler) ResetCounters(c *gin.Context) {
	period, err := scheduler.ParseResetPeriod(c.DefaultQuery("period", string(scheduler.ResetDaily)))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_period", err)
		return
	}
	rows, err := h.sched.TriggerCounterReset(c.Request.Context(), period)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "reset_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"period": period, "rows": rows})
}

// GET /api/admin/popularity/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	snap, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"stats": snap})
}

// GET /api/admin/popularity/:class/preview?limit=N
func (h *AdminHandler) PreviewPass(c *gin.Context) {
	class, err := catalog.ParseClass(c.Param("class"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_class", err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "25"))
	if err != nil || limit < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
		return
	}

	items, err := h.pop.Preview(c.Request.Context(), class, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "preview_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"class": class, "items": items})
}
