package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/vidtube/accounts/internal/auth"
	"github.com/vidtube/accounts/internal/db"
	apperrors "github.com/vidtube/accounts/internal/errors"
	"github.com/vidtube/accounts/internal/media"
	"github.com/vidtube/accounts/internal/validate"
)

type Handlers struct {
	svc     *Service
	uploads *Uploads
}

func NewHandlers(svc *Service, uploads *Uploads) *Handlers {
	return &Handlers{svc: svc, uploads: uploads}
}

// Register handles POST /register. It takes multipart/form-data with the
// avatar and coverImage files, or plain JSON (which has no avatar and is
// rejected after field validation).
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) error {
	var in RegisterInput

	if isMultipart(r) {
		if err := h.uploads.Parse(r); err != nil {
			return apperrors.ValidationError("invalid multipart form")
		}
		defer r.MultipartForm.RemoveAll()

		in.FullName = r.FormValue("fullName")
		in.Email = r.FormValue("email")
		in.Username = r.FormValue("username")
		in.Password = r.FormValue("password")

		var err error
		if in.Avatar, err = h.uploads.Spool(r, "avatar"); err != nil {
			return h.toAppError(r, err)
		}
		defer Cleanup(in.Avatar)
		if in.CoverImage, err = h.uploads.Spool(r, "coverImage"); err != nil {
			return h.toAppError(r, err)
		}
		defer Cleanup(in.CoverImage)
	} else if err := decodeJSON(r, &in); err != nil {
		return err
	}

	user, err := h.svc.Register(r.Context(), in)
	if err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, user, "User registered successfully")
	return nil
}

// ChangePassword handles POST /change-password.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	var in ChangePasswordInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}

	if err := h.svc.ChangePassword(r.Context(), user.ID, in); err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]any{}, "Password changed successfully")
	return nil
}

// CurrentUser handles GET /current-user.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	current, err := h.svc.CurrentUser(r.Context(), user.ID)
	if err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, current, "Current user fetched successfully")
	return nil
}

// UpdateAccount handles PATCH /update-account.
func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	var in ProfileInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user.ID, in)
	if err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, updated, "Account details updated successfully")
	return nil
}

// UpdateAvatar handles PATCH /avatar.
func (h *Handlers) UpdateAvatar(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, "avatar", h.svc.UpdateAvatar, "Avatar updated successfully")
}

// UpdateCoverImage handles PATCH /cover-image.
func (h *Handlers) UpdateCoverImage(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, "coverImage", h.svc.UpdateCoverImage, "Cover image updated successfully")
}

func (h *Handlers) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, id uuid.UUID, f *media.File) (*db.PublicUser, error),
	message string,
) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	if !isMultipart(r) {
		return h.toAppError(r, ErrFileRequired)
	}
	if err := h.uploads.Parse(r); err != nil {
		return apperrors.ValidationError("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	f, err := h.uploads.Spool(r, field)
	if err != nil {
		return h.toAppError(r, err)
	}
	defer Cleanup(f)

	updated, err := update(r.Context(), user.ID, f)
	if err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, updated, message)
	return nil
}

// ChannelProfile handles GET /c/{username}.
func (h *Handlers) ChannelProfile(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	channel, err := h.svc.ChannelProfile(r.Context(), r.PathValue("username"), user.ID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return apperrors.NotFound("channel does not exist")
		}
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, channel, "User channel fetched successfully")
	return nil
}

// WatchHistory handles GET /history.
func (h *Handlers) WatchHistory(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	history, err := h.svc.WatchHistory(r.Context(), user.ID)
	if err != nil {
		return h.toAppError(r, err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, history, "Watch history fetched successfully")
	return nil
}

func (h *Handlers) toAppError(r *http.Request, err error) error {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationError(verr.Error()).WithDetails(verr.Details())
	case errors.Is(err, ErrAvatarRequired), errors.Is(err, ErrFileRequired):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, db.ErrUserExists):
		return apperrors.Conflict("user with username or email already exists")
	case errors.Is(err, ErrUploadFailed):
		return apperrors.UploadError(ErrUploadFailed.Error())
	case errors.Is(err, ErrWrongPassword):
		return apperrors.InvalidCredentials(err.Error())
	case errors.Is(err, db.ErrUserNotFound):
		return apperrors.NotFound("user not found")
	case errors.Is(err, ErrRegistrationFailed):
		return apperrors.InternalError(err.Error())
	}

	h.svc.log.Error(r.Context(), "account operation failed", err)
	return apperrors.InternalError("something went wrong").WithCause(err)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("invalid request body")
	}
	return nil
}
