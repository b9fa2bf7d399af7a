package http

import (
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"visa-tracker/internal/application"
	"visa-tracker/internal/domain"
)

const maxUploadBytes = 10 << 20

var (
	errNoFile       = errors.New("No file uploaded")
	errFileTooLarge = errors.New("File size too large")
)

func handleError(c echo.Context, err error) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(stdhttp.StatusBadRequest, map[string]any{"error": vErr.Error(), "errors": vErr.Fields})
	case errors.Is(err, domain.ErrUnsupportedType):
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "Only PDF and DOC files are allowed"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials):
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
	case errors.Is(err, domain.ErrPermissionDeny):
		return c.JSON(stdhttp.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(stdhttp.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.JSON(stdhttp.StatusConflict, map[string]string{"error": "Application ID already exists"})
	case errors.Is(err, domain.ErrUpstreamStorage):
		return c.JSON(stdhttp.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		return c.JSON(stdhttp.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func readUpload(c echo.Context) (application.Upload, error) {
	fh, err := c.FormFile("document")
	if err != nil {
		return application.Upload{}, errNoFile
	}
	if fh.Size > maxUploadBytes {
		return application.Upload{}, errFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return application.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return application.Upload{}, err
	}
	return application.Upload{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}

type ApplicationsHandler struct {
	service *application.ApplicationService
}

func NewApplicationsHandler(service *application.ApplicationService) *ApplicationsHandler {
	return &ApplicationsHandler{service: service}
}

func (h *ApplicationsHandler) CheckStatus(c echo.Context) error {
	var req application.StatusQuery
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	app, err := h.service.CheckStatus(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, app)
}

func (h *ApplicationsHandler) List(c echo.Context) error {
	apps, err := h.service.List(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, apps)
}

func (h *ApplicationsHandler) Get(c echo.Context) error {
	app, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, app)
}

func (h *ApplicationsHandler) Create(c echo.Context) error {
	var req application.ApplicationInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	app, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusCreated, app)
}

func (h *ApplicationsHandler) CreateWithDocument(c echo.Context) error {
	req := application.ApplicationInput{
		Name:           c.FormValue("name"),
		ApplicationID:  c.FormValue("applicationId"),
		PassportNumber: c.FormValue("passportNumber"),
		Nationality:    c.FormValue("nationality"),
		DOB:            c.FormValue("dob"),
		Address:        c.FormValue("address"),
	}
	file, err := readUpload(c)
	if err != nil {
		if errors.Is(err, errNoFile) {
			// The with-document form without a file degrades to a plain create.
			app, err := h.service.Create(c.Request().Context(), req)
			if err != nil {
				return handleError(c, err)
			}
			return c.JSON(stdhttp.StatusCreated, app)
		}
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	app, err := h.service.CreateWithDocument(c.Request().Context(), req, file)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusCreated, app)
}

func (h *ApplicationsHandler) Update(c echo.Context) error {
	var req application.ApplicationPatch
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	app, err := h.service.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, app)
}

func (h *ApplicationsHandler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	app, err := h.service.UpdateStatus(c.Request().Context(), c.Param("id"), domain.Status(req.Status))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, app)
}

func (h *ApplicationsHandler) AttachDocument(c echo.Context) error {
	file, err := readUpload(c)
	if err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	app, err := h.service.AttachDocument(c.Request().Context(), c.Param("id"), file)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, app)
}

func (h *ApplicationsHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]string{"message": "Application deleted successfully"})
}

func (h *ApplicationsHandler) DownloadDocument(c echo.Context) error {
	var verify *application.StatusQuery
	q := c.QueryParams()
	if q.Has("applicationId") || q.Has("passportNumber") || q.Has("dob") || q.Has("nationality") {
		verify = &application.StatusQuery{
			ApplicationID:  q.Get("applicationId"),
			PassportNumber: q.Get("passportNumber"),
			DOB:            q.Get("dob"),
			Nationality:    q.Get("nationality"),
		}
	}
	doc, err := h.service.DownloadDocument(c.Request().Context(), c.Param("id"), verify)
	if err != nil {
		return handleError(c, err)
	}
	defer doc.Body.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return c.Stream(stdhttp.StatusOK, doc.ContentType, doc.Body)
}

type AdminHandler struct {
	service *application.AdminService
}

func NewAdminHandler(service *application.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

func adminView(admin domain.Admin) map[string]string {
	return map[string]string{
		"id":    admin.ID,
		"name":  admin.Name,
		"email": admin.Email,
	}
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	token, admin, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
		"admin":   adminView(admin),
	})
}

func (h *AdminHandler) Profile(c echo.Context) error {
	adminID, _ := c.Get("admin_id").(string)
	admin, err := h.service.Profile(c.Request().Context(), adminID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{
		"id":           admin.ID,
		"name":         admin.Name,
		"email":        admin.Email,
		"emailUpdated": admin.EmailUpdated,
	})
}

func (h *AdminHandler) Update(c echo.Context) error {
	var req application.AccountPatch
	if err := c.Bind(&req); err != nil {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	adminID, _ := c.Get("admin_id").(string)
	admin, err := h.service.UpdateAccount(c.Request().Context(), adminID, req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{
		"message": "Admin updated successfully",
		"admin":   adminView(admin),
	})
}
