package httpapi

import (
	"net/http"

	"vidora.org/internal/audit"
	"vidora.org/internal/auth"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if msg := missingFieldsMessage(map[string]string{
		"username": req.Username,
		"email":    req.Email,
		"fullName": req.FullName,
		"password": req.Password,
	}); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	identity, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id":  identity.ID,
		"username": identity.Username,
	})

	writeSuccess(w, http.StatusCreated, identity.Profile(), "user registered successfully")
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}
	writeSuccess(w, http.StatusOK, identity.Profile(), "current user fetched successfully")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ChangePassword(r.Context(), identity.ID, req.OldPassword, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)

	writeSuccess(w, http.StatusOK, map[string]any{}, "password changed successfully")
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (a *API) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := a.auth.UpdateAccount(r.Context(), identity.ID, req.FullName, req.Email)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, updated.Profile(), "account details updated successfully")
}
