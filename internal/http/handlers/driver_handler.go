// README: Driver profile handlers (availability, location sharing) and admin verification.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/http/middleware"
	"foodtrack/internal/modules/location"
	"foodtrack/internal/modules/profile"
	"foodtrack/internal/types"
)

type DriverHandler struct {
	profile  *profile.Service
	location *location.Service
}

func NewDriverHandler(profileSvc *profile.Service, locationSvc *location.Service) *DriverHandler {
	return &DriverHandler{profile: profileSvc, location: locationSvc}
}

func (h *DriverHandler) GetProfile(c *gin.Context) {
	p, err := h.profile.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type availabilityReq struct {
	IsAvailable *bool `json:"isAvailable"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAvailable == nil {
		writeError(c, http.StatusBadRequest, "isAvailable required")
		return
	}
	p, err := h.profile.SetAvailability(c.Request.Context(), types.ID(middleware.CallerUID(c)), *req.IsAvailable)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type sharingReq struct {
	ShareLocation *bool `json:"shareLocation"`
}

// SetLocationSharing persists the flag. Turning sharing off also drops the
// driver from the admin map.
func (h *DriverHandler) SetLocationSharing(c *gin.Context) {
	var req sharingReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ShareLocation == nil {
		writeError(c, http.StatusBadRequest, "shareLocation required")
		return
	}
	driverID := types.ID(middleware.CallerUID(c))
	p, err := h.profile.SetLocationSharing(c.Request.Context(), driverID, *req.ShareLocation)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	if !p.ShareLocation && h.location != nil {
		h.location.Forget(c.Request.Context(), driverID)
	}
	writeJSON(c, http.StatusOK, p)
}

type verificationReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *DriverHandler) SetVerification(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	var req verificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profile.SetVerification(c.Request.Context(), types.ID(id), profile.VerificationStatus(req.Status), req.Note)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
