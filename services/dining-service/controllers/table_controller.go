package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

type TableController struct {
	tableService services.TableService
}

func NewTableController(tableService services.TableService) *TableController {
	return &TableController{tableService: tableService}
}

func (tc *TableController) GetTables(ctx *gin.Context) {
	tables, svcErr := tc.tableService.List(ctx.Request.Context())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": tables})
}

func (tc *TableController) UpdateTableStatus(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	number, ok := parseTableParam(ctx)
	if !ok {
		return
	}

	var req models.UpdateTableStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	table, svcErr := tc.tableService.UpdateStatus(ctx.Request.Context(), actor, number, req.Status)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Table status updated", "data": table})
}
