package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"exeat/internal/service"
	"exeat/pkg/response"
)

type VerifyHandler struct {
	verificationService service.VerificationService
}

func NewVerifyHandler(verificationService service.VerificationService) *VerifyHandler {
	return &VerifyHandler{verificationService: verificationService}
}

func (h *VerifyHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/verify/:id", h.Verify)
}

// Verify handles GET /api/verify/:id
// @Summary      Verify an exeat permit
// @Description  Public lookup by exact exeat id, used at the gate to check a printed permit
// @Tags         verify
// @Produce      json
// @Param        id   path      string  true  "Exeat ID, e.g. EX-MTU-2025-00001"
// @Success      200  {object}  response.Response{data=model.ExeatRequest}
// @Failure      404  {object}  response.Response
// @Router       /api/verify/{id} [get]
func (h *VerifyHandler) Verify(c *gin.Context) {
	exeat, err := h.verificationService.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, exeat))
}
