package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"exeat/internal/middleware"
	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/service"
	"exeat/pkg/response"
)

// ConsentFiles stores parental consent documents and reads them back by reference.
type ConsentFiles interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

// ConsentUploadResponse is returned by the consent upload endpoint.
type ConsentUploadResponse struct {
	ConsentDocumentRef string `json:"consent_document_ref"`
}

type ExeatHandler struct {
	exeatService service.ExeatService
	consents     ConsentFiles
	auth         *middleware.JWT
}

// NewExeatHandler sets up the routing dependencies for exeat endpoints
func NewExeatHandler(exeatService service.ExeatService, consents ConsentFiles, auth *middleware.JWT) *ExeatHandler {
	return &ExeatHandler{exeatService: exeatService, consents: consents, auth: auth}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *ExeatHandler) RegisterRoutes(router *gin.RouterGroup) {
	student := h.auth.RequireRole(model.RoleStudent)
	staff := h.auth.RequireRole(model.RolePorter, model.RoleHOD, model.RoleDSA)

	exeats := router.Group("/api/exeats")
	{
		exeats.POST("", student, h.Submit)
		exeats.POST("/consent", student, h.UploadConsent)
		exeats.GET("/mine", student, h.ListMine)
		exeats.GET("/queue", staff, h.Queue)
		exeats.GET("/:id", h.auth.RequireRole(), h.Get)
		exeats.GET("/:id/consent", h.auth.RequireRole(), h.Consent)
		exeats.POST("/:id/actions", h.auth.RequireRole(), h.ApplyAction)
	}
}

// Submit handles POST /api/exeats
// @Summary      Submit an exeat request
// @Description  Files a new leave request for the authenticated student. It starts Pending at the porter stage.
// @Tags         exeats
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitExeatRequest  true  "Exeat request"
// @Success      201      {object}  response.Response{data=model.ExeatRequest}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/exeats [post]
func (h *ExeatHandler) Submit(c *gin.Context) {
	var req service.SubmitExeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	userID, _ := middleware.UserID(c)
	exeat, err := h.exeatService.Submit(c.Request.Context(), userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, exeat))
}

// UploadConsent handles POST /api/exeats/consent
// @Summary      Upload a consent document
// @Description  Stores a parental consent document (PDF, JPEG or PNG) and returns the reference to submit with the request.
// @Tags         exeats
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Consent document"
// @Success      201   {object}  response.Response{data=ConsentUploadResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/exeats/consent [post]
func (h *ExeatHandler) UploadConsent(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperrors.Validation(apperrors.FieldError{Field: "file", Code: apperrors.CodeFieldRequired, Message: "a file is required"}))
		return
	}

	f, err := file.Open()
	if err != nil {
		_ = c.Error(bindError(err))
		return
	}
	defer f.Close()

	ref, err := h.consents.Save(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ConsentUploadResponse{ConsentDocumentRef: ref}))
}

// ListMine handles GET /api/exeats/mine
// @Summary      List my exeat requests
// @Description  Returns the authenticated student's requests, newest first
// @Tags         exeats
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.ExeatRequest}
// @Failure      401  {object}  response.Response
// @Router       /api/exeats/mine [get]
func (h *ExeatHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	list, err := h.exeatService.ListMine(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, nonNil(list)))
}

// Queue handles GET /api/exeats/queue
// @Summary      Staff work queue
// @Description  Requests waiting at the caller's stage first, then requests the caller has acted on, most recently updated first
// @Tags         exeats
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.ExeatRequest}
// @Failure      403  {object}  response.Response
// @Router       /api/exeats/queue [get]
func (h *ExeatHandler) Queue(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	list, err := h.exeatService.Queue(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, nonNil(list)))
}

// Get handles GET /api/exeats/:id
// @Summary      Get an exeat request
// @Description  Returns a request with its approval trail to its owner or to staff
// @Tags         exeats
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Exeat ID"
// @Success      200  {object}  response.Response{data=model.ExeatRequest}
// @Failure      404  {object}  response.Response
// @Router       /api/exeats/{id} [get]
func (h *ExeatHandler) Get(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	exeat, err := h.exeatService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exeat))
}

// Consent handles GET /api/exeats/:id/consent
// @Summary      Download a consent document
// @Description  Streams the parental consent document attached to a request. Visible to the owning student and to staff.
// @Tags         exeats
// @Produce      application/pdf
// @Produce      image/png
// @Produce      image/jpeg
// @Security     BearerAuth
// @Param        id   path      string  true  "Exeat ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Router       /api/exeats/{id}/consent [get]
func (h *ExeatHandler) Consent(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	id := c.Param("id")
	exeat, err := h.exeatService.Get(c.Request.Context(), userID, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if exeat.ConsentDocumentRef == "" {
		_ = c.Error(apperrors.ConsentNotFound(id, nil))
		return
	}

	rc, contentType, err := h.consents.Open(c.Request.Context(), exeat.ConsentDocumentRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			err = apperrors.ConsentNotFound(id, err)
		}
		_ = c.Error(err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": `inline; filename="` + id + `-consent` + path.Ext(exeat.ConsentDocumentRef) + `"`,
	})
}

// ApplyAction handles POST /api/exeats/:id/actions
// @Summary      Act on an exeat request
// @Description  Records a porter, hod or dsa verdict (Approved, Declined, Rejected) with a mandatory comment. Callers whose role the request is not awaiting, students included, get 409.
// @Tags         exeats
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Exeat ID"
// @Param        payload  body      service.ActionRequest  true  "Verdict"
// @Success      200      {object}  response.Response{data=model.ExeatRequest}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/exeats/{id}/actions [post]
func (h *ExeatHandler) ApplyAction(c *gin.Context) {
	var req service.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	userID, _ := middleware.UserID(c)
	exeat, err := h.exeatService.ApplyAction(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exeat))
}

func nonNil(list []*model.ExeatRequest) []*model.ExeatRequest {
	if list == nil {
		return []*model.ExeatRequest{}
	}
	return list
}

func bindError(err error) error {
	return apperrors.Validation(apperrors.FieldError{
		Field:   "body",
		Code:    apperrors.CodeFieldInvalid,
		Message: "Invalid request payload: " + err.Error(),
	})
}
