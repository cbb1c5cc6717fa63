package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kwalsh/ticketyard/internal/depgraph"
	"github.com/kwalsh/ticketyard/internal/export"
	"github.com/kwalsh/ticketyard/internal/models"
	"github.com/kwalsh/ticketyard/internal/ticket"
	"github.com/kwalsh/ticketyard/internal/upload"
	"github.com/kwalsh/ticketyard/internal/workflow"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	db := opts.DB

	api := router.Group("/api")

	api.POST("/sessions", handleCreateSession(db))
	api.GET("/sessions", handleIncompleteSessions(db))
	api.GET("/sessions/:id", handleGetSession(db))
	api.POST("/sessions/:id/stage", handleTransition(db))

	api.POST("/sessions/:id/files", handleAddFile(db))
	api.GET("/sessions/:id/files", handleListFiles(db))
	api.POST("/sessions/:id/files/:fileID/validate", handleValidateFile(db))

	api.GET("/sessions/:id/tickets", handleListTickets(db))
	api.POST("/sessions/:id/tickets", handleCreateTicket(db))
	api.PATCH("/sessions/:id/tickets/:ticketID", handleUpdateTicket(db))
	api.DELETE("/sessions/:id/tickets/:ticketID", handleDeleteTicket(db))
	api.POST("/sessions/:id/tickets/reorder", handleReorder(db))

	api.GET("/sessions/:id/graph", handleGraph(db))
	api.POST("/sessions/:id/dependencies", handleAddDependency(db))
	api.DELETE("/sessions/:id/dependencies/:ticketID/:dependsOnID", handleRemoveDependency(db))

	api.GET("/sessions/:id/task", handleGetTask(db))
	api.POST("/sessions/:id/task/start", handleStartTask(db))
	api.POST("/sessions/:id/task/complete", handleCompleteTask(db))
	api.POST("/sessions/:id/task/fail", handleFailTask(db))

	api.POST("/sessions/:id/validation/start", handleStartValidation(db))
	api.POST("/sessions/:id/validation/complete", handleCompleteValidation(db))
	api.GET("/sessions/:id/export/ready", handleExportReady(db))
	api.POST("/sessions/:id/export", handleExport(opts))

	api.GET("/sessions/:id/errors", handleListErrors(db))
}

func handleCreateSession(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			JiraUserID      string `json:"jira_user_id" binding:"required"`
			JiraDisplayName string `json:"jira_display_name"`
			SiteName        string `json:"site_name" binding:"required"`
			SiteDescription string `json:"site_description"`
			JiraProjectKey  string `json:"jira_project_key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		session, err := workflow.CreateSession(db, workflow.CreateOpts{
			JiraUserID:      req.JiraUserID,
			JiraDisplayName: req.JiraDisplayName,
			SiteName:        req.SiteName,
			SiteDescription: req.SiteDescription,
			JiraProjectKey:  req.JiraProjectKey,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

func handleIncompleteSessions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: "user query parameter is required"})
			return
		}
		sessions, err := workflow.IncompleteSessions(db, user)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sessions)
	}
}

func handleGetSession(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := workflow.GetSession(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func handleTransition(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Target models.Stage `json:"target" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		session, err := workflow.Transition(db, c.Param("id"), req.Target)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func handleAddFile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Filename      string `json:"filename" binding:"required"`
			SizeBytes     int    `json:"size_bytes"`
			ParsedContent string `json:"parsed_content"`
			RowCount      int    `json:"row_count"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		f, err := upload.Add(db, c.Param("id"), upload.AddOpts{
			Filename:      req.Filename,
			SizeBytes:     req.SizeBytes,
			ParsedContent: req.ParsedContent,
			RowCount:      req.RowCount,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, f)
	}
}

func handleListFiles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := upload.List(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, files)
	}
}

func handleValidateFile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Valid   bool   `json:"valid"`
			CSVType string `json:"csv_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		sessionID, fileID := c.Param("id"), c.Param("fileID")
		if req.CSVType != "" {
			if err := upload.Classify(db, sessionID, fileID, req.CSVType); err != nil {
				fail(c, err)
				return
			}
		}
		if err := upload.MarkValidated(db, sessionID, fileID, req.Valid); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleListTickets(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tickets, err := ticket.List(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)
	}
}

func handleCreateTicket(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title       string             `json:"title" binding:"required"`
			Description string             `json:"description"`
			EntityGroup string             `json:"entity_group" binding:"required"`
			UserOrder   int                `json:"user_order"`
			Sources     []models.CSVSource `json:"sources"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		t, err := ticket.Create(db, c.Param("id"), ticket.CreateOpts{
			Title:       req.Title,
			Description: req.Description,
			EntityGroup: req.EntityGroup,
			UserOrder:   req.UserOrder,
			Sources:     req.Sources,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func handleUpdateTicket(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ticket.UpdateOpts
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		t, err := ticket.Update(db, c.Param("id"), c.Param("ticketID"), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func handleDeleteTicket(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ticket.Delete(db, c.Param("id"), c.Param("ticketID")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleReorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TicketIDs []string `json:"ticket_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		if err := ticket.Reorder(db, c.Param("id"), req.TicketIDs); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleGraph(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := depgraph.Load(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"depends_on": g.Adjacency()})
	}
}

func handleAddDependency(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TicketID    string `json:"ticket_id" binding:"required"`
			DependsOnID string `json:"depends_on_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		if err := depgraph.AddEdge(db, c.Param("id"), req.TicketID, req.DependsOnID); err != nil {
			fail(c, err)
			return
		}
		if err := workflow.Invalidate(db, c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

func handleRemoveDependency(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := depgraph.RemoveEdge(db, c.Param("ticketID"), c.Param("dependsOnID")); err != nil {
			fail(c, err)
			return
		}
		if err := workflow.Invalidate(db, c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleGetTask(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := workflow.GetTask(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func handleStartTask(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Kind  models.TaskKind `json:"kind" binding:"required"`
			JobID string          `json:"job_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		task, err := workflow.StartTask(db, c.Param("id"), req.Kind, req.JobID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

func handleCompleteTask(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := workflow.CompleteTask(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func handleFailTask(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Context string `json:"context"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		task, err := workflow.FailTask(db, c.Param("id"), req.Context)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func handleStartValidation(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		validation, err := workflow.StartValidation(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, validation)
	}
}

func handleCompleteValidation(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Passed  bool   `json:"passed"`
			Results string `json:"results"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Category: "user_fixable", Message: err.Error()})
			return
		}
		validation, err := workflow.CompleteValidation(db, c.Param("id"), req.Passed, req.Results)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, validation)
	}
}

func handleExportReady(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ready, err := workflow.IsExportReady(db, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": ready})
	}
}

func handleExport(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Exporter == nil {
			c.JSON(http.StatusServiceUnavailable, errorBody{
				Category: "admin_required",
				Message:  "no export target configured",
			})
			return
		}
		sessionID := c.Param("id")

		// The export runs as the session's single background task slot.
		task, err := workflow.StartTask(opts.DB, sessionID, models.TaskExport, models.NewID())
		if err != nil {
			fail(c, err)
			return
		}

		result, err := export.Run(c.Request.Context(), export.RunOpts{
			DB:        opts.DB,
			SessionID: sessionID,
			Exporter:  opts.Exporter,
			Notifier:  opts.Notifier,
		})
		if err != nil {
			if _, ferr := workflow.FailTask(opts.DB, sessionID, err.Error()); ferr != nil {
				fail(c, ferr)
				return
			}
			fail(c, err)
			return
		}
		if _, err := workflow.CompleteTask(opts.DB, sessionID); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"task_id": task.ID, "result": result})
	}
}

func handleListErrors(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var errs []models.SessionError
		if err := db.Where("session_id = ?", c.Param("id")).
			Order("created_at DESC").Find(&errs).Error; err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, errs)
	}
}
