package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

type BillController struct {
	billService services.BillService
}

func NewBillController(billService services.BillService) *BillController {
	return &BillController{billService: billService}
}

func (bc *BillController) GetSettleableTables(ctx *gin.Context) {
	tables, svcErr := bc.billService.SettleableTables(ctx.Request.Context())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": tables})
}

func (bc *BillController) PreviewBill(ctx *gin.Context) {
	var req models.PreviewBillRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	preview, svcErr := bc.billService.Preview(ctx.Request.Context(), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": preview})
}

func (bc *BillController) CreateBill(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req models.CreateBillRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	bill, svcErr := bc.billService.Create(ctx.Request.Context(), actor, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "Bill created", "data": bill})
}

// GetBills lists bills, optionally filtered by ?status= and ?table=.
func (bc *BillController) GetBills(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	filter := models.BillFilter{Page: page, Limit: limit}

	if status := ctx.Query("status"); status != "" {
		filter.Status = models.BillStatus(strings.ToUpper(status))
	}
	if table := ctx.Query("table"); table != "" {
		n, err := strconv.Atoi(table)
		if err != nil || n < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid table number"})
			return
		}
		filter.TableNumber = n
	}

	bills, total, svcErr := bc.billService.List(ctx.Request.Context(), filter)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": bills, "meta": newPaginationMeta(page, limit, total)})
}

func (bc *BillController) GetBillByID(ctx *gin.Context) {
	billID, ok := parseIDParam(ctx, "id", "bill")
	if !ok {
		return
	}

	bill, svcErr := bc.billService.Get(ctx.Request.Context(), billID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": bill})
}

func (bc *BillController) ConfirmBill(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	billID, ok := parseIDParam(ctx, "id", "bill")
	if !ok {
		return
	}

	bill, svcErr := bc.billService.Confirm(ctx.Request.Context(), actor, billID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Bill confirmed", "data": bill})
}

func (bc *BillController) DeleteBill(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	billID, ok := parseIDParam(ctx, "id", "bill")
	if !ok {
		return
	}

	if svcErr := bc.billService.Delete(ctx.Request.Context(), actor, billID); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Bill deleted"})
}
