package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/dining-backend/services/dining-service/gateway"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
	"go.uber.org/zap"
)

func TestCashPayment_SettlesTable(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000, 400)
	require.Equal(t, int64(1617), bill.TotalAmount)

	res, svcErr := f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 2000})
	require.Nil(t, svcErr)

	assert.Equal(t, int64(383), res.Change)
	assert.Equal(t, models.PaymentPaid, res.Payment.Status)
	assert.Equal(t, models.PaymentCash, res.Payment.Method)
	require.NotNil(t, res.Bill)
	assert.Equal(t, models.BillPaid, res.Bill.Status)
	require.NotNil(t, res.Bill.PaymentMethod)
	assert.Equal(t, models.PaymentCash, *res.Bill.PaymentMethod)
	for _, o := range res.Bill.Orders {
		assert.Equal(t, models.OrderCompleted, o.Status)
	}
	assert.Len(t, res.Bill.Orders, 2)
	assert.Equal(t, models.TableCleaning, f.store.table(5).Status)

	paid := f.emitter.named(models.EventBillPaid)
	require.Len(t, paid, 1)
	assert.ElementsMatch(t, []string{models.RoomStaff, "guest:5"}, paid[0].rooms)

	notes, _, svcErr := f.notifications.List(context.Background(), models.NotificationFilter{Type: models.NotificationPayment})
	require.Nil(t, svcErr)
	assert.Len(t, notes, 1)
	assert.Contains(t, f.sns.types(), models.DomainPaymentPaid)
}

func TestCashPayment_Rejections(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000, 400)

	_, svcErr := f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 1616})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, models.BillPending, f.store.bill(bill.ID).Status, "failed payment must not confirm the bill")

	_, svcErr = f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 1617})
	require.Nil(t, svcErr)

	_, svcErr = f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 1617})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusConflict, svcErr.StatusCode)
	assert.Equal(t, 1, f.store.releases(5))
}

func TestCashPayment_BlockedByOpenCheckout(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000)
	_, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)

	_, svcErr = f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 5000})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusConflict, svcErr.StatusCode)
}

func TestOpenGateway_CreatesCheckout(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000, 400)

	p, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{
		BillID:     bill.ID,
		BuyerName:  "Ada",
		BuyerEmail: "ada@example.com",
	})
	require.Nil(t, svcErr)

	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, models.PaymentGateway, p.Method)
	assert.Equal(t, int64(1617), p.Amount)
	assert.NotEmpty(t, p.Code())
	assert.Equal(t, "cs_"+p.Code(), p.PaymentLinkID)
	assert.NotEmpty(t, p.CheckoutURL)
	require.NotNil(t, p.ExpiredAt)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *p.ExpiredAt, time.Minute)
	assert.Equal(t, models.BillConfirmed, f.store.bill(bill.ID).Status)

	require.Len(t, f.gw.created, 1)
	req := f.gw.created[0]
	assert.Equal(t, int64(1617), req.Amount)
	assert.Equal(t, "ada@example.com", req.Buyer.Email)
	assert.Len(t, req.Items, 2)
	ret, err := url.Parse(req.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, p.Code(), ret.Query().Get("order_code"))
	assert.Contains(t, f.sns.types(), models.DomainPaymentOpened)
}

func TestOpenGateway_ReusesOpenCheckout(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000)

	first, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	second, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.gw.created, 1)
}

func TestOpenGateway_ReplacesExpiredCheckout(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000)
	first, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	f.store.setPaymentExpiry(first.ID, time.Now().Add(-time.Minute))

	second, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.PaymentExpired, f.store.payment(first.ID).Status)
	assert.Contains(t, f.gw.cancelled, first.PaymentLinkID)
}

func TestOpenGateway_ExpiredCheckoutStillOpenAtGateway(t *testing.T) {
	f := newFixture(t)
	bill := f.openBill(t, 5, 1000)
	first, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	f.store.setPaymentExpiry(first.ID, time.Now().Add(-time.Minute))
	f.gw.cancelErr = errors.New("unavailable")

	_, svcErr = f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
	assert.Equal(t, models.PaymentPending, f.store.payment(first.ID).Status)
	assert.Len(t, f.gw.created, 1)

	f.gw.cancelErr = nil
	second, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.PaymentExpired, f.store.payment(first.ID).Status)
}

func TestOpenGateway_Failures(t *testing.T) {
	t.Run("gateway rejects", func(t *testing.T) {
		f := newFixture(t)
		bill := f.openBill(t, 5, 1000)
		f.gw.createErr = errors.New("card network down")

		_, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
		assert.Equal(t, services.KindExternalGateway, svcErr.Kind)
		_, _, payments := f.store.counts()
		assert.Zero(t, payments)
		assert.Equal(t, models.BillPending, f.store.bill(bill.ID).Status)
	})

	t.Run("bill already paid", func(t *testing.T) {
		f := newFixture(t)
		bill := f.openBill(t, 5, 1000)
		_, svcErr := f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 5000})
		require.Nil(t, svcErr)

		_, svcErr = f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusConflict, svcErr.StatusCode)
		assert.Empty(t, f.gw.created)
	})

	t.Run("gateway not configured", func(t *testing.T) {
		f := newFixture(t)
		bill := f.openBill(t, 5, 1000)
		payments := services.NewPaymentService(f.store, f.bills, f.notifications, nil, services.NewLocalLocker(),
			services.PaymentConfig{LinkTTL: time.Minute}, f.emitter, nil, nil, zap.NewNop())

		_, svcErr := payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)

		_, svcErr = payments.HandleWebhook(context.Background(), []byte(`{}`), validSignature)
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
	})
}

func openCheckout(t *testing.T, f *fixture, tableNumber int) (*models.Bill, *models.Payment) {
	t.Helper()
	bill := f.openBill(t, tableNumber, 1000, 400)
	p, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	f.emitter.reset()
	return bill, p
}

func TestWebhook_ReplayCompletesBillOnce(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	payload := webhookPayload(p.Code(), gateway.OutcomePaid)

	ack, svcErr := f.payments.HandleWebhook(context.Background(), payload, validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckProcessed, ack.Status)

	ack, svcErr = f.payments.HandleWebhook(context.Background(), payload, validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckDuplicate, ack.Status)

	stored := f.store.payment(p.ID)
	assert.Equal(t, models.PaymentPaid, stored.Status)
	assert.Equal(t, "pi_"+p.Code(), stored.TransactionID)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, models.BillPaid, f.store.bill(bill.ID).Status)
	for _, o := range bill.Orders {
		assert.Equal(t, models.OrderCompleted, f.store.order(o.ID).Status)
	}
	assert.Equal(t, 1, f.store.releases(5))
	assert.Len(t, f.emitter.named(models.EventBillPaid), 1)
}

func TestWebhook_ConcurrentSignalsApplyOnce(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	f.gw.setStatus(p.PaymentLinkID, gateway.OutcomePaid)
	payload := webhookPayload(p.Code(), gateway.OutcomePaid)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = f.payments.HandleWebhook(context.Background(), payload, validSignature)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.payments.Status(context.Background(), p.ID)
		}()
		go func() {
			defer wg.Done()
			f.payments.HandleReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
		}()
	}
	wg.Wait()

	assert.Equal(t, models.PaymentPaid, f.store.payment(p.ID).Status)
	assert.Equal(t, models.BillPaid, f.store.bill(bill.ID).Status)
	assert.Equal(t, 1, f.store.releases(5))
	assert.Len(t, f.emitter.named(models.EventBillPaid), 1)
}

func TestWebhook_Acknowledgements(t *testing.T) {
	f := newFixture(t)
	_, p := openCheckout(t, f, 5)

	_, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomePaid), "t=1,v1=forged")
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)

	ack, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload("unknown-code", gateway.OutcomePaid), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckIgnored, ack.Status)

	ack, svcErr = f.payments.HandleWebhook(context.Background(), []byte(`{"order_code":"x"}`), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckIgnored, ack.Status)
}

func TestWebhook_ProcessingThenFailed(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)

	ack, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomeProcessing), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckProcessed, ack.Status)
	assert.Equal(t, models.PaymentProcessing, f.store.payment(p.ID).Status)

	ack, svcErr = f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomeFailed), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckProcessed, ack.Status)
	assert.Equal(t, models.PaymentFailed, f.store.payment(p.ID).Status)
	assert.Equal(t, models.BillConfirmed, f.store.bill(bill.ID).Status)
	assert.Equal(t, models.TableOccupied, f.store.table(5).Status)

	retry, svcErr := f.payments.OpenGateway(context.Background(), staff, &models.GatewayPaymentRequest{BillID: bill.ID})
	require.Nil(t, svcErr)
	assert.NotEqual(t, p.ID, retry.ID)
}

func TestStatus_FailsOpenOnGatewayError(t *testing.T) {
	f := newFixture(t)
	_, p := openCheckout(t, f, 5)
	f.gw.statusErr = errors.New("timeout")

	got, svcErr := f.payments.Status(context.Background(), p.ID)
	require.Nil(t, svcErr)
	assert.Equal(t, models.PaymentPending, got.Status)
}

func TestStatus_ReconcilesPaidCheckout(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	f.gw.setStatus(p.PaymentLinkID, gateway.OutcomePaid)

	got, svcErr := f.payments.Status(context.Background(), p.ID)
	require.Nil(t, svcErr)
	assert.Equal(t, models.PaymentPaid, got.Status)
	assert.Equal(t, models.BillPaid, f.store.bill(bill.ID).Status)
}

func TestStatus_ExpiresStaleCheckout(t *testing.T) {
	f := newFixture(t)
	_, p := openCheckout(t, f, 5)
	f.store.setPaymentExpiry(p.ID, time.Now().Add(-time.Minute))

	got, svcErr := f.payments.Status(context.Background(), p.ID)
	require.Nil(t, svcErr)
	assert.Equal(t, models.PaymentExpired, got.Status)
	assert.Contains(t, f.gw.cancelled, p.PaymentLinkID)
}

func TestStatus_ExpiredCheckoutStaysOpenWhenCancelFails(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	f.store.setPaymentExpiry(p.ID, time.Now().Add(-time.Minute))
	f.gw.cancelErr = errors.New("unavailable")

	got, svcErr := f.payments.Status(context.Background(), p.ID)
	require.Nil(t, svcErr)
	assert.Equal(t, models.PaymentPending, got.Status)
	assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)
	assert.Empty(t, f.emitter.named(models.EventPaymentUpdated))

	ack, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomePaid), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckProcessed, ack.Status)
	assert.Equal(t, models.BillPaid, f.store.bill(bill.ID).Status)
}

func TestCancelPayment(t *testing.T) {
	t.Run("open checkout", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)

		got, svcErr := f.payments.Cancel(context.Background(), staff, p.ID, "guest changed their mind")
		require.Nil(t, svcErr)
		assert.Equal(t, models.PaymentCancelled, got.Status)
		assert.Equal(t, "guest changed their mind", got.FailureReason)
		assert.Equal(t, []string{p.PaymentLinkID}, f.gw.cancelled)
		assert.Len(t, f.emitter.named(models.EventPaymentUpdated), 1)
	})

	t.Run("gateway error keeps payment open", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)
		f.gw.cancelErr = errors.New("unavailable")

		_, svcErr := f.payments.Cancel(context.Background(), staff, p.ID, "")
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
		assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)
	})

	t.Run("cash payment", func(t *testing.T) {
		f := newFixture(t)
		bill := f.openBill(t, 5, 1000)
		res, svcErr := f.payments.OpenCash(context.Background(), staff, &models.CashPaymentRequest{BillID: bill.ID, ReceivedAmount: 5000})
		require.Nil(t, svcErr)

		_, svcErr = f.payments.Cancel(context.Background(), staff, res.Payment.ID, "")
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	})

	t.Run("paid checkout", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)
		_, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomePaid), validSignature)
		require.Nil(t, svcErr)

		_, svcErr = f.payments.Cancel(context.Background(), staff, p.ID, "")
		require.NotNil(t, svcErr)
		assert.Equal(t, http.StatusConflict, svcErr.StatusCode)
	})
}

func TestLatePaidSignalDoesNotReopen(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	_, svcErr := f.payments.Cancel(context.Background(), staff, p.ID, "")
	require.Nil(t, svcErr)

	ack, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomePaid), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckDuplicate, ack.Status)
	assert.Equal(t, models.PaymentCancelled, f.store.payment(p.ID).Status)
	assert.Equal(t, models.BillConfirmed, f.store.bill(bill.ID).Status)
	assert.Zero(t, f.store.releases(5))
}

func TestHandleReturn(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)

	r := f.payments.HandleReturn(context.Background(), services.ReturnParams{})
	assert.Equal(t, services.RedirectPaymentNotFound, r.Error)
	r = f.payments.HandleReturn(context.Background(), services.ReturnParams{OrderCode: "nope"})
	assert.Equal(t, services.RedirectPaymentNotFound, r.Error)

	r = f.payments.HandleReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
	assert.False(t, r.Success)
	assert.Empty(t, r.Error)
	assert.Equal(t, models.PaymentPending, r.Status)

	f.gw.setStatus(p.PaymentLinkID, gateway.OutcomePaid)
	r = f.payments.HandleReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
	assert.True(t, r.Success)
	assert.Equal(t, bill.ID.String(), r.BillID)
	assert.Equal(t, p.ID.String(), r.PaymentID)
}

func TestHandleCancelReturn(t *testing.T) {
	t.Run("abandoned checkout", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)

		r := f.payments.HandleCancelReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
		assert.False(t, r.Success)
		assert.Equal(t, services.RedirectPaymentCancelled, r.Error)
		assert.Equal(t, models.PaymentCancelled, f.store.payment(p.ID).Status)
		assert.Contains(t, f.gw.cancelled, p.PaymentLinkID)
	})

	t.Run("gateway cancel fails", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)
		f.gw.cancelErr = errors.New("unavailable")

		r := f.payments.HandleCancelReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
		assert.False(t, r.Success)
		assert.Equal(t, services.RedirectSystemError, r.Error)
		assert.Equal(t, models.PaymentPending, r.Status)
		assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)
	})

	t.Run("paid before the payer came back", func(t *testing.T) {
		f := newFixture(t)
		_, p := openCheckout(t, f, 5)
		f.gw.setStatus(p.PaymentLinkID, gateway.OutcomePaid)

		r := f.payments.HandleCancelReturn(context.Background(), services.ReturnParams{OrderCode: p.Code()})
		assert.True(t, r.Success)
		assert.Equal(t, models.PaymentPaid, f.store.payment(p.ID).Status)
		assert.Empty(t, f.gw.cancelled)
	})
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	_, stale := openCheckout(t, f, 1)
	paidBill, paid := openCheckout(t, f, 2)
	_, inFlight := openCheckout(t, f, 3)
	f.gw.setStatus(paid.PaymentLinkID, gateway.OutcomePaid)
	f.gw.setStatus(inFlight.PaymentLinkID, gateway.OutcomeProcessing)

	n, err := f.payments.SweepExpired(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, models.PaymentExpired, f.store.payment(stale.ID).Status)
	assert.Equal(t, models.PaymentPaid, f.store.payment(paid.ID).Status)
	assert.Equal(t, models.BillPaid, f.store.bill(paidBill.ID).Status)
	assert.Equal(t, models.PaymentPending, f.store.payment(inFlight.ID).Status)
	assert.Equal(t, []string{stale.PaymentLinkID}, f.gw.cancelled)

	n, err = f.payments.SweepExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepExpired_GatewayUnavailableKeepsPaymentOpen(t *testing.T) {
	f := newFixture(t)
	bill, p := openCheckout(t, f, 5)
	f.gw.statusErr = errors.New("timeout")
	f.gw.cancelErr = errors.New("unavailable")

	n, err := f.payments.SweepExpired(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)

	f.gw.statusErr = nil
	n, err = f.payments.SweepExpired(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.PaymentPending, f.store.payment(p.ID).Status)
	assert.Zero(t, f.gw.cancelCount())

	f.gw.cancelErr = nil
	ack, svcErr := f.payments.HandleWebhook(context.Background(), webhookPayload(p.Code(), gateway.OutcomePaid), validSignature)
	require.Nil(t, svcErr)
	assert.Equal(t, services.AckProcessed, ack.Status)
	assert.Equal(t, models.PaymentPaid, f.store.payment(p.ID).Status)
	assert.Equal(t, models.BillPaid, f.store.bill(bill.ID).Status)
	assert.Equal(t, 1, f.store.releases(5))
}

func TestExpirySweeper(t *testing.T) {
	f := newFixture(t)
	_, p := openCheckout(t, f, 1)
	f.store.setPaymentExpiry(p.ID, time.Now().Add(-time.Minute))

	sweeper := services.NewExpirySweeper(f.payments, 10*time.Millisecond, zap.NewNop())
	assert.Equal(t, 1, sweeper.SweepOnce(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, sweeper.Run(ctx))
	assert.Equal(t, models.PaymentExpired, f.store.payment(p.ID).Status)
}
