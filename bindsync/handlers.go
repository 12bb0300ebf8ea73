package bindsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/models"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

// ConfigHandler exposes the parsed config sheet as header + row maps.
func ConfigHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sheet, err := svc.ConfigSheet(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"header": sheet.ColumnTitles(),
			"data":   sheet.RecordsByTitle(),
		})
	}
}

// SheetHandler is a raw passthrough for any sheet the token can read.
func SheetHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sheetID, err := strconv.ParseInt(c.Param("sheetId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sheet id"})
			return
		}
		sheet, err := svc.Sheet(c.Request.Context(), sheetID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"header": sheet.ColumnTitles(),
			"data":   sheet.RecordsByTitle(),
		})
	}
}

// InvoicesHandler is the synchronous fetch-only trigger: per-account invoice
// counts, or the captured error for accounts whose fetch failed.
func InvoicesHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("accountId"))
		if id == "" {
			id = strings.TrimSpace(c.Query("id"))
		}

		accounts, err := svc.LoadAccounts(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		outcomes := svc.SyncAccounts(c.Request.Context(), accounts, false, models.SyncTriggeredManual)
		c.JSON(http.StatusOK, outcomes)
	}
}

// PushHandler is the asynchronous fetch-and-push trigger. The cycle is
// dispatched through Pub/Sub; if Pub/Sub is unavailable the job degrades to
// an in-process goroutine so the trigger still works in minimal deployments.
func PushHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PushRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid field " + verrs[0].Field()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		id := strings.TrimSpace(req.ID)
		if id == "" {
			id = strings.TrimSpace(c.Query("id"))
		}

		payload := SyncJobPayload{AccountId: id, TriggeredBy: models.SyncTriggeredManual}
		if err := PublishSyncJob(c.Request.Context(), id, models.SyncTriggeredManual); err != nil {
			config.LogError(svc.logger, "bindsync", "PushHandler", "publish; falling back to in-process", payload, err)
			bg := utils.DetachContext(c.Request.Context())
			go svc.ProcessPushJob(bg, payload)
		}
		c.JSON(http.StatusOK, gin.H{"status": "queued", "id": id})
	}
}

// SyncRunsHandler lists recent run history, optionally per account. When a
// single account is requested its cached last-cycle summary rides along, so
// a deployment without the history database still answers something useful.
func SyncRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		id := strings.TrimSpace(c.Query("id"))
		runs, err := models.ListSyncRuns(c.Request.Context(), id, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp := gin.H{"items": runs}
		if id != "" {
			if cached, ok, _ := config.GetRedisValue(lastCycleKey(id)); ok {
				resp["last_cycle"] = json.RawMessage(cached)
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// SyncRunDetailHandler returns one run with its captured errors.
func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		run, errs, err := models.GetSyncRun(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "run history not available"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": run, "errors": errs})
	}
}
