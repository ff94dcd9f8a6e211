package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
	"gorm.io/gorm"
)

type handlers struct {
	agent *agent.Agent
	db    *gorm.DB
	log   zerolog.Logger
}

// register sets up all API routes on the gin router.
func (h *handlers) register(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/target", h.targetStatus)
	api.POST("/target/on", h.targetPower("on"))
	api.POST("/target/off", h.targetPower("off"))
	api.POST("/target/toggle", h.targetToggle)
	api.POST("/target/lock", h.targetLock)
	api.POST("/target/unlock", h.targetUnlock)

	api.GET("/storage", h.storageStatus)
	api.POST("/storage/host", h.storageMove("host"))
	api.POST("/storage/target", h.storageMove("target"))
	api.POST("/storage/swap", h.storageSwap)
	api.POST("/storage/write", h.storageWrite)

	api.GET("/usb", h.usbList)
	api.POST("/usb/:port/on", h.usbPower(true))
	api.POST("/usb/:port/off", h.usbPower(false))

	api.GET("/console/tail", h.consoleTail)
	api.GET("/console/dump", h.consoleDump)
	api.POST("/console/send", h.consoleSend)
	api.POST("/console/run", h.consoleRun)

	api.GET("/history/power", h.powerHistory)
	api.GET("/history/scenarios", h.scenarioHistory)
	api.GET("/probes", h.probes)
	api.GET("/events", handleSSE(h.db, h.agent.Board))
}

func (h *handlers) targetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	owner, _ := h.agent.TargetOwner(ctx)
	c.JSON(http.StatusOK, gin.H{
		"board":  h.agent.Board,
		"status": h.agent.TargetStatus(ctx, sessionOf(c)),
		"owner":  owner,
	})
}

func (h *handlers) targetPower(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, session := c.Request.Context(), sessionOf(c)
		if h.agent.PowerLocked(ctx, session) {
			c.JSON(http.StatusConflict, gin.H{"error": agent.ErrLocked.Error(), "status": power.Locked})
			return
		}
		var ok bool
		if action == "on" {
			ok = h.agent.TargetOn(ctx, session)
		} else {
			ok = h.agent.TargetOff(ctx, session)
		}
		code := http.StatusOK
		if !ok {
			code = http.StatusBadGateway
		}
		c.JSON(code, gin.H{"ok": ok, "status": h.agent.TargetStatus(ctx, session)})
	}
}

func (h *handlers) targetToggle(c *gin.Context) {
	st := h.agent.TargetToggle(c.Request.Context(), sessionOf(c))
	code := http.StatusOK
	if st == power.Locked {
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{"status": st})
}

func (h *handlers) targetLock(c *gin.Context) {
	timeout := time.Duration(0)
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout: " + err.Error()})
			return
		}
		timeout = d
	}
	tok, err := h.agent.TargetLock(c.Request.Context(), sessionOf(c), timeout)
	switch {
	case errors.Is(err, lock.ErrLockTimeout), errors.Is(err, lock.ErrHeld):
		owner, _ := h.agent.TargetOwner(c.Request.Context())
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "owner": owner})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"owner": tok.Owner, "lease": tok.ID, "acquired_at": tok.AcquiredAt})
	}
}

func (h *handlers) targetUnlock(c *gin.Context) {
	released, err := h.agent.TargetUnlock(c.Request.Context(), sessionOf(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}

func (h *handlers) storageStatus(c *gin.Context) {
	ctx, session := c.Request.Context(), sessionOf(c)
	st := h.agent.StorageStatus(ctx, session)
	c.JSON(http.StatusOK, gin.H{
		"location": st.Location,
		"writing":  st.Writing,
		"written":  st.Written,
		"locked":   h.agent.StorageLocked(ctx, session),
	})
}

func (h *handlers) storageMove(to string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, session := c.Request.Context(), sessionOf(c)
		if h.agent.StorageLocked(ctx, session) {
			c.JSON(http.StatusConflict, gin.H{"error": agent.ErrStorageLocked.Error()})
			return
		}
		var ok bool
		if to == "host" {
			ok = h.agent.StorageToHost(ctx, session)
		} else {
			ok = h.agent.StorageToTarget(ctx, session)
		}
		code := http.StatusOK
		if !ok {
			code = http.StatusBadGateway
		}
		c.JSON(code, gin.H{"ok": ok, "location": h.agent.StorageStatus(ctx, session).Location})
	}
}

func (h *handlers) storageSwap(c *gin.Context) {
	loc := h.agent.StorageSwap(c.Request.Context(), sessionOf(c))
	c.JSON(http.StatusOK, gin.H{"location": loc})
}

type writeRequest struct {
	// Build names an entry of the builds map; Image is a path on the
	// agent host.
	Build string `json:"build"`
	Image string `json:"image"`
}

// storageWrite starts an image write and returns at once; progress is
// read from GET /storage.
func (h *handlers) storageWrite(c *gin.Context) {
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path := req.Image
	if req.Build != "" {
		p, ok := h.agent.Builds[req.Build]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown build " + strconv.Quote(req.Build)})
			return
		}
		path = p
	}
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "build or image is required"})
		return
	}
	ctx, session := c.Request.Context(), sessionOf(c)
	if h.agent.PowerLocked(ctx, session) {
		c.JSON(http.StatusConflict, gin.H{"error": agent.ErrLocked.Error()})
		return
	}
	go func() {
		if err := h.agent.StorageWriteImage(context.WithoutCancel(ctx), session, path); err != nil {
			h.log.Error().Err(err).Str("image", path).Msg("storage write")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"image": path})
}

func (h *handlers) usbList(c *gin.Context) {
	ctx, session := c.Request.Context(), sessionOf(c)
	type portView struct {
		Port   int         `json:"port"`
		Class  string      `json:"class"`
		Status power.State `json:"status"`
	}
	ports := []portView{}
	if h.agent.USB != nil {
		for i, p := range h.agent.USB.Ports() {
			st, _ := h.agent.USBStatus(ctx, session, i+1)
			ports = append(ports, portView{Port: i + 1, Class: p.Class, Status: st})
		}
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func (h *handlers) usbPower(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := strconv.Atoi(c.Param("port"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port"})
			return
		}
		ctx, session := c.Request.Context(), sessionOf(c)
		var ok bool
		if on {
			ok, err = h.agent.USBOn(ctx, session, n)
		} else {
			ok, err = h.agent.USBOff(ctx, session, n)
		}
		if errors.Is(err, usb.ErrNoPort) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		code := http.StatusOK
		if !ok {
			code = http.StatusBadGateway
		}
		st, _ := h.agent.USBStatus(ctx, session, n)
		c.JSON(code, gin.H{"ok": ok, "status": st})
	}
}

func (h *handlers) consoleTail(c *gin.Context) {
	line, ok := h.agent.ConsoleTail(sessionOf(c))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"line": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"line": line})
}

func (h *handlers) consoleDump(c *gin.Context) {
	c.String(http.StatusOK, h.agent.ConsoleDump(sessionOf(c)))
}

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *handlers) consoleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.agent.ConsoleSend(c.Request.Context(), sessionOf(c), req.Text); err != nil {
		c.JSON(consoleErrorCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": len(req.Text)})
}

type runRequest struct {
	Command string `json:"command" binding:"required"`
}

func (h *handlers) consoleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	transcript, err := h.agent.ConsoleRun(c.Request.Context(), sessionOf(c), req.Command)
	if err != nil {
		c.JSON(consoleErrorCode(err), gin.H{"error": err.Error(), "transcript": transcript})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": transcript, "output": console.Output(transcript)})
}

func consoleErrorCode(err error) int {
	switch {
	case errors.Is(err, console.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, console.ErrPromptNotFound):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
