package handlers

import (
	"net/http"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
)

// currentUser writes a 401 and returns false when the request carries no claims.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID == "" {
		middleware.LoggerFromContext(r.Context()).Warn("Unauthorized access attempt")
		response.Error(w, appErrors.UnauthorizedError("Authentication required"))
		return nil, false
	}

	return claims, true
}

// pathParam writes a 400 and returns false when the route value is missing.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		response.Error(w, appErrors.BadRequestError("Missing path parameter: "+name))
		return "", false
	}

	return value, true
}
