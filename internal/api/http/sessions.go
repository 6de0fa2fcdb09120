package http

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/termhub/internal/terminal"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Input encodings accepted by WriteSession
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// OpenLocalRequest starts a shell on this machine
type OpenLocalRequest struct {
	EnvironmentTag string            `json:"environment_tag"`
	Cols           int               `json:"cols" binding:"omitempty,min=1,max=65535"`
	Rows           int               `json:"rows" binding:"omitempty,min=1,max=65535"`
	WorkingDir     string            `json:"working_dir"`
	Env            map[string]string `json:"env"`
}

// OpenSSHRequest starts an ssh client. Profile fills fields left empty.
type OpenSSHRequest struct {
	User           string   `json:"user"`
	Host           string   `json:"host"`
	Port           int      `json:"port" binding:"omitempty,min=1,max=65535"`
	IdentityFile   string   `json:"identity_file"`
	ExtraArgs      []string `json:"extra_args"`
	EnvironmentTag string   `json:"environment_tag"`
	HostID         string   `json:"host_id"`
	Profile        string   `json:"profile"`
	Cols           int      `json:"cols" binding:"omitempty,min=1,max=65535"`
	Rows           int      `json:"rows" binding:"omitempty,min=1,max=65535"`
}

// WriteRequest carries input for a session. Data is plain text unless
// Encoding is "base64", which allows arbitrary bytes such as control keys.
type WriteRequest struct {
	Data     string `json:"data" binding:"required"`
	Encoding string `json:"encoding" binding:"omitempty,oneof=text base64"`
	Origin   string `json:"origin"`
}

// ResizeRequest changes the terminal size. Both fields must be present;
// values are clamped to 1..65535.
type ResizeRequest struct {
	Cols *int `json:"cols" binding:"required"`
	Rows *int `json:"rows" binding:"required"`
}

func (r OpenSSHRequest) params() terminal.SSHParams {
	return terminal.SSHParams{
		User:           r.User,
		Host:           r.Host,
		Port:           r.Port,
		IdentityFile:   r.IdentityFile,
		ExtraArgs:      r.ExtraArgs,
		EnvironmentTag: r.EnvironmentTag,
		HostID:         r.HostID,
		Cols:           r.Cols,
		Rows:           r.Rows,
	}
}

func (r WriteRequest) bytes() ([]byte, error) {
	if r.Encoding != EncodingBase64 {
		return []byte(r.Data), nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not valid base64", terminal.ErrInvalidParams)
	}
	return data, nil
}

// OpenLocal starts a local shell session
func (h *Handlers) OpenLocal(c *gin.Context) {
	var req OpenLocalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	sid, err := h.sessions.OpenLocal(c.Request.Context(), terminal.LocalOptions{
		Dir:            req.WorkingDir,
		Env:            req.Env,
		Cols:           req.Cols,
		Rows:           req.Rows,
		EnvironmentTag: req.EnvironmentTag,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.created(c, sid)
}

// OpenSSH starts an ssh session, optionally based on a host profile
func (h *Handlers) OpenSSH(c *gin.Context) {
	var req OpenSSHRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	params := req.params()
	if req.Profile != "" {
		profile, err := h.profiles.Get(req.Profile)
		if err != nil {
			h.fail(c, err)
			return
		}
		params = profile.Fill(params)
	}

	sid, err := h.sessions.OpenSSH(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.created(c, sid)
}

// created answers an open with the new session's snapshot
func (h *Handlers) created(c *gin.Context, sid string) {
	snap, err := h.sessions.Snapshot(sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"session_id": sid,
		"session":    snap,
	})
}

// ListSessions lists every session that is not closed
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session snapshot
func (h *Handlers) GetSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	snap, err := h.sessions.Snapshot(sid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// WriteSession sends input to a running session
func (h *Handlers) WriteSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	data, err := req.bytes()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.sessions.WriteWithOrigin(sid, data, req.Origin); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sid,
		"bytes":      len(data),
	})
}

// ResizeSession changes a running session's terminal size
func (h *Handlers) ResizeSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.sessions.Resize(sid, *req.Cols, *req.Rows); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sid})
}

// MarkExited acknowledges an exit so the session's retained output is freed
func (h *Handlers) MarkExited(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	if _, err := h.sessions.Lookup(sid); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sessions.MarkExited(sid); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sid})
}

// CloseSession terminates a session
func (h *Handlers) CloseSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}

	if _, err := h.sessions.Lookup(sid); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.sessions.Close(sid); err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Debug("Session closed via API", zap.String("session_id", sid))
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sid})
}
