// README: Location handlers for the admin driver map.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/modules/location"
	"foodtrack/internal/types"
)

const defaultNearbyRadiusKm = 5.0

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

func (h *LocationHandler) List(c *gin.Context) {
	samples := h.location.Latest(c.Request.Context())
	if samples == nil {
		samples = []location.Sample{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": samples})
}

func (h *LocationHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	center := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !center.Valid() {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	radius := defaultNearbyRadiusKm
	if v := c.Query("radiusKm"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radiusKm")
			return
		}
		radius = r
	}
	found, err := h.location.Nearby(c.Request.Context(), center, radius)
	if err != nil {
		writeError(c, http.StatusBadGateway, "location store unavailable")
		return
	}
	if found == nil {
		found = []location.Nearby{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": found})
}
