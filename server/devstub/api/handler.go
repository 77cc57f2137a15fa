package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"signoff/client/domain"
	"signoff/client/realtime"
	commonlog "signoff/server/common/log"
	"signoff/server/devstub/service"
)

type Handler struct {
	projects *service.ProjectStore
	storage  *service.StorageService
	notifier *service.Notifier
}

func NewHandler(projects *service.ProjectStore, storage *service.StorageService, notifier *service.Notifier) *Handler {
	return &Handler{projects: projects, storage: storage, notifier: notifier}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.notifier.HandleWS)

	apiGroup := r.Group("/api")
	apiGroup.POST("/projects", h.createProject)
	apiGroup.GET("/projects/view/:token", h.publicProject)
	apiGroup.POST("/projects/:token/status", h.submitDecision)
	apiGroup.GET("/storage/download/:fileId", h.downloadHandle)

	admin := apiGroup.Group("", h.adminAuth)
	admin.GET("/projects/admin/me", h.adminProject)
	admin.PATCH("/projects/admin/expiration", h.updateExpiration)
	admin.DELETE("/projects/admin/me", h.deleteProject)
	admin.POST("/storage/sign-url", h.signUpload)
	admin.POST("/storage/confirm", h.confirmUpload)
	admin.POST("/storage/:fileId", h.deleteFile)
}

func (h *Handler) adminAuth(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token is required"})
		return
	}
	project, err := h.projects.ByAdminToken(c.Request.Context(), token)
	if errors.Is(err, service.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Set("project", project)
	c.Next()
}

func (h *Handler) createProject(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	project, err := h.projects.Create(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	commonlog.Infof("event=devstub action=create_project project_id=%s", project.ID)
	c.JSON(http.StatusCreated, gin.H{"data": project})
}

func (h *Handler) adminProject(c *gin.Context) {
	project := boundProject(c)
	c.JSON(http.StatusOK, gin.H{"data": withComputedStatus(project)})
}

func (h *Handler) publicProject(c *gin.Context) {
	project, err := h.projects.ByPublicToken(c.Request.Context(), c.Param("token"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": publicView(withComputedStatus(project))})
}

func (h *Handler) submitDecision(c *gin.Context) {
	var req struct {
		Decision domain.DecisionType `json:"decision"`
		Comment  string              `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.Decision != domain.DecisionApproved && req.Decision != domain.DecisionChangesRequested {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be APPROVED or CHANGES_REQUESTED"})
		return
	}
	project, err := h.projects.ApplyDecision(c.Request.Context(), c.Param("token"), req.Decision, req.Comment)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifier.Broadcast(roomTokens(project), realtime.EventStatusUpdated, realtime.StatusPayload{
		Status:        string(project.Status),
		LatestComment: project.LatestComment,
	})
	c.JSON(http.StatusOK, gin.H{"data": publicView(project)})
}

func (h *Handler) updateExpiration(c *gin.Context) {
	var req struct {
		Days int `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be positive"})
		return
	}
	project, err := h.projects.SetExpiration(c.Request.Context(), boundProject(c).AdminToken, req.Days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifier.Broadcast(roomTokens(project), realtime.EventExpirationUpdated, realtime.ExpirationPayload{
		ExpiresAt: project.ExpiresAt.Format(time.RFC3339),
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) deleteProject(c *gin.Context) {
	project, err := h.projects.Delete(c.Request.Context(), boundProject(c).AdminToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if project.File != nil {
		if err := h.storage.Remove(c.Request.Context(), project.File.StorageKey); err != nil {
			commonlog.Warnf("event=devstub action=remove_object key=%s error=%v", project.File.StorageKey, err)
		}
	}
	commonlog.Infof("event=devstub action=delete_project project_id=%s", project.ID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) signUpload(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
		MimeType string `json:"mimeType"`
		Size     int64  `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.Size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and size are required"})
		return
	}
	project := boundProject(c)
	if project.File != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "a deliverable is already attached"})
		return
	}
	uploadURL, key, err := h.storage.PresignUpload(c.Request.Context(), project.ID, req.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadUrl": uploadURL, "key": key})
}

func (h *Handler) confirmUpload(c *gin.Context) {
	var req struct {
		Key      string `json:"key"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		MimeType string `json:"mimeType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	storedSize, err := h.storage.StatSize(c.Request.Context(), req.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object was not transferred"})
		return
	}

	asset := domain.FileAsset{
		ID:         uuid.NewString(),
		FileName:   req.Filename,
		MimeType:   req.MimeType,
		Size:       storedSize,
		StorageKey: req.Key,
		CreatedAt:  time.Now().UTC(),
	}
	project, err := h.projects.AttachFile(c.Request.Context(), boundProject(c).AdminToken, asset)
	if errors.Is(err, service.ErrFileAttached) {
		c.JSON(http.StatusConflict, gin.H{"error": "a deliverable is already attached"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notifier.Broadcast(roomTokens(project), realtime.EventFileUploaded, gin.H{})
	commonlog.Infof("event=devstub action=confirm_upload project_id=%s file_id=%s size=%d", project.ID, asset.ID, storedSize)
	c.JSON(http.StatusOK, gin.H{"attachment": project.File})
}

func (h *Handler) deleteFile(c *gin.Context) {
	removed, project, err := h.projects.DetachFile(c.Request.Context(), boundProject(c).AdminToken, c.Param("fileId"))
	if errors.Is(err, service.ErrNoFile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.storage.Remove(c.Request.Context(), removed.StorageKey); err != nil {
		commonlog.Warnf("event=devstub action=remove_object key=%s error=%v", removed.StorageKey, err)
	}

	h.notifier.Broadcast(roomTokens(project), realtime.EventFileDeleted, gin.H{})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) downloadHandle(c *gin.Context) {
	fileID := c.Param("fileId")
	project, err := h.projects.ByFileID(c.Request.Context(), fileID)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if project.File == nil || project.File.ID != fileID {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	wantAttachment := c.DefaultQuery("download", "true") == "true"
	signedURL, err := h.storage.PresignDownload(c.Request.Context(), project.File.StorageKey, project.File.FileName, wantAttachment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL, "filename": project.File.FileName})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func boundProject(c *gin.Context) domain.Project {
	v, _ := c.Get("project")
	project, _ := v.(domain.Project)
	return project
}

// publicView strips the admin capability before the record leaves through
// the reviewer-facing endpoints.
func publicView(project domain.Project) domain.Project {
	project.AdminToken = ""
	return project
}

func withComputedStatus(project domain.Project) domain.Project {
	project.Status = project.EffectiveStatus(time.Now())
	return project
}

func roomTokens(project domain.Project) []string {
	return []string{project.AdminToken, project.PublicToken}
}
