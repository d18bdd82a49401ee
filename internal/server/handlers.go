package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/camdash/camdash/internal/admin"
	"github.com/camdash/camdash/internal/auth"
	"github.com/camdash/camdash/internal/remote"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin establishes a role, either from the per-role password table
// or by proxying to the remote service, and issues a session token.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role, profileID, ok := s.resolveRole(c, req)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.SignToken(s.secret, role, profileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"role":      string(role),
		"profileId": profileID,
	})
}

func (s *Server) resolveRole(c *gin.Context, req loginRequest) (auth.Role, string, bool) {
	rp := s.cfg.Auth.RolePasswords
	if rp.Admin != "" || rp.Privileged != "" || rp.Kiosk != "" {
		hashes := map[auth.Role]string{
			auth.RoleAdmin:      rp.Admin,
			auth.RolePrivileged: rp.Privileged,
			auth.RoleKiosk:      rp.Kiosk,
		}
		role, ok := auth.RoleForPassword(hashes, req.Password)
		return role, "", ok
	}

	if s.remote != nil {
		result, err := s.remote.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			return "", "", false
		}
		return auth.ParseRole(result.Role), result.ProfileID, true
	}
	return "", "", false
}

func (s *Server) handleView(c *gin.Context) {
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

// handleViewConfig hands the display client the presentation knobs it needs
// before first paint: UI toggles, labels, theme, and stream playback tuning.
func (s *Server) handleViewConfig(c *gin.Context) {
	ui := s.cfg.UI
	stream := s.cfg.Stream
	c.JSON(http.StatusOK, gin.H{
		"gatewayBase": s.cfg.GatewayBase,
		"ui": gin.H{
			"topbarAutoHide":         ui.TopbarAutoHide,
			"topbarHotspotPx":        ui.TopbarHotspotPx,
			"showClock":              ui.ShowClock,
			"showTimer":              ui.ShowTimer,
			"showPage":               ui.ShowPage,
			"showBrand":              ui.ShowBrand,
			"showNav":                ui.ShowNav,
			"showBadges":             ui.ShowBadges,
			"showLiveBadge":          ui.ShowLiveBadge,
			"showEmptyLabels":        ui.ShowEmptyLabels,
			"showBackgroundGrid":     ui.ShowBackgroundGrid,
			"compact":                ui.Compact,
			"layout":                 ui.Layout,
			"includeLocationInLabel": ui.IncludeLocationInLabel,
			"adminEnabled":           ui.AdminEnabled,
			"showAdminButton":        ui.ShowAdminButton,
			"titlePrefix":            ui.TitlePrefix,
			"labels":                 ui.Labels,
			"theme":                  ui.Theme,
		},
		"stream": gin.H{
			"liveSyncDurationCount":   stream.LiveSyncDurationCount,
			"maxLiveSyncPlaybackRate": stream.MaxLiveSyncPlaybackRate,
			"maxBufferLength":         stream.MaxBufferLength,
			"maxMaxBufferLength":      stream.MaxMaxBufferLength,
			"enableWorker":            stream.EnableWorker,
			"preferPeer":              stream.PreferPeer,
		},
	})
}

// handleNegotiate proxies an SDP offer to the gateway so peer playback works
// without exposing the gateway to the display network.
func (s *Server) handleNegotiate(c *gin.Context) {
	if s.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no media gateway configured"})
		return
	}

	var req struct {
		Source string `json:"source"`
		Offer  string `json:"offer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Source == "" || req.Offer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source and offer are required"})
		return
	}

	answer, err := s.gateway.Negotiate(c.Request.Context(), req.Source, req.Offer)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) handleNext(c *gin.Context) {
	s.kiosk.Advance(c.Request.Context())
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

func (s *Server) handlePrev(c *gin.Context) {
	s.kiosk.Prev(c.Request.Context())
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

func (s *Server) handleSetPage(c *gin.Context) {
	var req struct {
		Index int `json:"index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.kiosk.SetPage(c.Request.Context(), req.Index)
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

func (s *Server) handleSetTimer(c *gin.Context) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.kiosk.SetTimer(c.Request.Context(), req.Seconds) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "interval not allowed"})
		return
	}
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

func (s *Server) handleVisibility(c *gin.Context) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.kiosk.SetVisible(req.Visible)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExpand(c *gin.Context) {
	var req struct {
		Slot int `json:"slot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.kiosk.ExpandTile(c.Request.Context(), req.Slot); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCollapse(c *gin.Context) {
	s.kiosk.CollapseExpanded()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleProfileOverride(c *gin.Context) {
	var req struct {
		ProfileID string `json:"profileId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.kiosk.SetProfileOverride(c.Request.Context(), req.ProfileID)
	c.JSON(http.StatusOK, s.kiosk.RenderState())
}

func (s *Server) requireAdmin(c *gin.Context) (*admin.Controller, bool) {
	if s.admin == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin unavailable in local mode"})
		return nil, false
	}
	return s.admin, true
}

func (s *Server) handleAdminOpen(c *gin.Context) {
	s.kiosk.OpenAdmin()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminClose(c *gin.Context) {
	s.kiosk.CloseAdmin(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDraft(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	draft := ctrl.Draft()
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no draft"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (s *Server) handleSelect(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var req struct {
		ProfileID string `json:"profileId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap := s.kiosk.Snapshot()
	profile := snap.ProfileByID(req.ProfileID)
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if snap.MaxCamsPerSlide > 0 {
		ctrl.SetMaxCams(snap.MaxCamsPerSlide)
	}
	ctrl.Select(profile)
	c.JSON(http.StatusOK, ctrl.Draft())
}

type commandRequest struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Slot     int    `json:"slot"`
	Name     string `json:"name"`
	CameraID string `json:"cameraId"`
}

func (s *Server) handleCommand(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var cmd admin.Command
	switch req.Type {
	case "add_slide":
		cmd = admin.AddSlide{Name: req.Name}
	case "remove_slide":
		cmd = admin.RemoveSlide{Index: req.Index}
	case "rename_slide":
		cmd = admin.RenameSlide{Index: req.Index, Name: req.Name}
	case "assign_camera":
		cmd = admin.AssignCamera{Index: req.Index, Slot: req.Slot, CameraID: req.CameraID}
	case "set_profile_name":
		cmd = admin.SetProfileName{Name: req.Name}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command"})
		return
	}

	if err := ctrl.Apply(cmd); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ctrl.Draft())
}

func (s *Server) handleSave(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	if err := ctrl.SaveSlides(c.Request.Context()); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCancel(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	ctrl.Cancel()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListCameras(c *gin.Context) {
	snap := s.kiosk.Snapshot()
	cameras := []remote.Camera{}
	if snap != nil {
		cameras = snap.Cameras
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras})
}

func (s *Server) handleListProfiles(c *gin.Context) {
	snap := s.kiosk.Snapshot()
	profiles := []remote.Profile{}
	activeID := ""
	if snap != nil {
		profiles = snap.Profiles
		activeID = snap.ActiveProfileID
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "activeProfileId": activeID})
}

func (s *Server) handleCreateCamera(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var cam remote.Camera
	if err := c.ShouldBindJSON(&cam); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := ctrl.CreateCamera(c.Request.Context(), cam); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleUpdateCamera(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var cam remote.Camera
	if err := c.ShouldBindJSON(&cam); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cam.ID = c.Param("id")
	if err := ctrl.UpdateCamera(c.Request.Context(), cam); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteCamera(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	if err := ctrl.DeleteCamera(c.Request.Context(), c.Param("id")); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateProfile(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile name required"})
		return
	}
	if err := ctrl.CreateProfile(c.Request.Context(), req.Name); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleRenameProfile(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile name required"})
		return
	}
	if err := ctrl.RenameProfile(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteProfile(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	if err := ctrl.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleProfileAllowLive(c *gin.Context) {
	client, ok := s.requireRemote(c)
	if !ok {
		return
	}
	var req struct {
		AllowLive bool `json:"allowLive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := client.SetProfileAllowLive(c.Request.Context(), c.Param("id"), req.AllowLive); err != nil {
		writeRemoteError(c, err)
		return
	}
	s.kiosk.ForceRefresh(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleActivateProfile(c *gin.Context) {
	ctrl, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	var req struct {
		ProfileID string `json:"profileId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ProfileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profileId required"})
		return
	}
	if err := ctrl.SetActiveProfile(c.Request.Context(), req.ProfileID); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requireRemote(c *gin.Context) (*remote.Client, bool) {
	if s.remote == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user management unavailable in local mode"})
		return nil, false
	}
	return s.remote, true
}

func (s *Server) handleListUsers(c *gin.Context) {
	client, ok := s.requireRemote(c)
	if !ok {
		return
	}
	users, err := client.ListUsers(c.Request.Context())
	if err != nil {
		writeRemoteError(c, err)
		return
	}
	if users == nil {
		users = []remote.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	client, ok := s.requireRemote(c)
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	role := string(auth.ParseRole(req.Role))
	if err := client.CreateUser(c.Request.Context(), req.Username, req.Password, role); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	client, ok := s.requireRemote(c)
	if !ok {
		return
	}
	if err := client.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeRemoteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeRemoteError maps remote failures onto client-facing statuses: policy
// rejections keep their status and message, auth failures demand re-login.
func writeRemoteError(c *gin.Context, err error) {
	if errors.Is(err, remote.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "remote session expired"})
		return
	}
	var reqErr *remote.RequestError
	if errors.As(err, &reqErr) {
		c.JSON(reqErr.Status, gin.H{"error": reqErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
