package controllers

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

const (
	WebhookSignatureHeader = "Stripe-Signature"
	paymentResultPath      = "/manage/service/payment"
	maxWebhookBody         = 64 << 10
)

type PaymentController struct {
	paymentService services.PaymentService
	frontendURL    string
}

// NewPaymentController creates a PaymentController. frontendURL is where the
// payer's browser lands after the gateway redirects back.
func NewPaymentController(paymentService services.PaymentService, frontendURL string) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		frontendURL:    strings.TrimRight(frontendURL, "/"),
	}
}

func (pc *PaymentController) PayCash(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req models.CashPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	result, svcErr := pc.paymentService.OpenCash(ctx.Request.Context(), actor, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "Cash payment recorded", "data": result})
}

func (pc *PaymentController) CreateCheckout(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req models.GatewayPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	payment, svcErr := pc.paymentService.OpenGateway(ctx.Request.Context(), actor, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "Checkout created", "data": payment})
}

// GatewayWebhook verifies the raw body against the signature header before
// anything is decoded.
func (pc *PaymentController) GatewayWebhook(ctx *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
		return
	}

	ack, svcErr := pc.paymentService.HandleWebhook(ctx.Request.Context(), payload, ctx.GetHeader(WebhookSignatureHeader))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, ack)
}

func (pc *PaymentController) GatewayReturn(ctx *gin.Context) {
	var params services.ReturnParams
	_ = ctx.ShouldBindQuery(&params)
	pc.redirect(ctx, pc.paymentService.HandleReturn(ctx.Request.Context(), params))
}

func (pc *PaymentController) GatewayCancel(ctx *gin.Context) {
	var params services.ReturnParams
	_ = ctx.ShouldBindQuery(&params)
	pc.redirect(ctx, pc.paymentService.HandleCancelReturn(ctx.Request.Context(), params))
}

func (pc *PaymentController) redirect(ctx *gin.Context, r *services.Redirect) {
	ctx.Redirect(http.StatusFound, pc.resultURL(r))
}

func (pc *PaymentController) resultURL(r *services.Redirect) string {
	q := url.Values{}
	q.Set("success", strconv.FormatBool(r.Success))
	if r.Error != "" {
		q.Set("error", r.Error)
	}
	if r.BillID != "" {
		q.Set("billId", r.BillID)
	}
	if r.PaymentID != "" {
		q.Set("paymentId", r.PaymentID)
	}
	return pc.frontendURL + paymentResultPath + "?" + q.Encode()
}

func (pc *PaymentController) GetPaymentStatus(ctx *gin.Context) {
	paymentID, ok := parseIDParam(ctx, "id", "payment")
	if !ok {
		return
	}

	payment, svcErr := pc.paymentService.Status(ctx.Request.Context(), paymentID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": payment})
}

func (pc *PaymentController) CancelPayment(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(ctx, "id", "payment")
	if !ok {
		return
	}

	var req models.CancelPaymentRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			respondInvalidRequest(ctx, err)
			return
		}
	}

	payment, svcErr := pc.paymentService.Cancel(ctx.Request.Context(), actor, paymentID, req.Reason)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Payment cancelled", "data": payment})
}
