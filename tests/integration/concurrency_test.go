package integration

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentWebhookDeliveries fires the same payment confirmation
// from many goroutines. The status CAS must let exactly one delivery
// carry the credit.
func TestConcurrentWebhookDeliveries(t *testing.T) {
	app := newTestApp(t, 3)
	_, token := app.setupFundedUser(t, 0)

	resp, envelope := app.do(t, http.MethodPost, "/api/v1/wallet/fund", token, map[string]any{"amount": 500000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reference := data(t, envelope)["reference"].(string)

	concurrency := 20
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.webhook(t, map[string]any{
				"event": "payment.success", "reference": reference, "amount": 500000,
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(500000), app.balance(t, token))
}

// TestConcurrentPurchases_ExactBalance drains a wallet with concurrent
// purchases that sum exactly to the balance. Reservation under the
// wallet lock must let all of them through with a final balance of zero.
func TestConcurrentPurchases_ExactBalance(t *testing.T) {
	app := newTestApp(t, 3)
	_, token := app.setupFundedUser(t, 100000)

	concurrency := 10
	amount := int64(10000)

	var wg sync.WaitGroup
	var successCount atomic.Int64
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp, _ := app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]any{
				"type":   "airtime_recharge",
				"amount": amount,
				"pin":    "1234",
				"details": map[string]any{
					"airtime": map[string]any{"network": "MTN", "phone_number": fmt.Sprintf("080%08d", idx)},
				},
			})
			if resp.StatusCode == http.StatusOK {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(concurrency), successCount.Load())
	assert.Equal(t, int64(0), app.balance(t, token))
}

// TestConcurrentPurchases_Oversubscribed requests twice the balance in
// concurrent purchases. Exactly half may succeed and the balance must
// never go negative.
func TestConcurrentPurchases_Oversubscribed(t *testing.T) {
	app := newTestApp(t, 3)
	_, token := app.setupFundedUser(t, 50000)

	concurrency := 10
	amount := int64(10000)

	var wg sync.WaitGroup
	var successCount, rejectedCount atomic.Int64
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp, _ := app.do(t, http.MethodPost, "/api/v1/purchases", token, map[string]any{
				"type":   "airtime_recharge",
				"amount": amount,
				"pin":    "1234",
				"details": map[string]any{
					"airtime": map[string]any{"network": "MTN", "phone_number": fmt.Sprintf("081%08d", idx)},
				},
			})
			switch resp.StatusCode {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusPaymentRequired:
				rejectedCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(5), successCount.Load())
	assert.Equal(t, int64(5), rejectedCount.Load())
	assert.Equal(t, int64(0), app.balance(t, token))
}

// TestConcurrentTransfers_Bidirectional runs transfers in both directions
// between two wallets at once. Consistent lock ordering must avoid
// deadlock, and the system total may shrink only by the collected fees.
func TestConcurrentTransfers_Bidirectional(t *testing.T) {
	app := newTestApp(t, 3)
	aliceID, aliceToken := app.setupFundedUser(t, 100000)
	bobID, bobToken := app.setupFundedUser(t, 100000)

	perDirection := 10
	amount := int64(1000) // fee: max(10, 2%) = 20 per transfer

	var wg sync.WaitGroup
	transfer := func(token string, recipient any) {
		defer wg.Done()
		resp, _ := app.do(t, http.MethodPost, "/api/v1/transfers", token, map[string]any{
			"recipient_id": recipient,
			"amount":       amount,
			"pin":          "1234",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	for i := 0; i < perDirection; i++ {
		wg.Add(2)
		go transfer(aliceToken, bobID)
		go transfer(bobToken, aliceID)
	}
	wg.Wait()

	aliceBalance := app.balance(t, aliceToken)
	bobBalance := app.balance(t, bobToken)

	totalFees := int64(2*perDirection) * 20
	assert.Equal(t, int64(200000)-totalFees, aliceBalance+bobBalance)
	assert.GreaterOrEqual(t, aliceBalance, int64(0))
	assert.GreaterOrEqual(t, bobBalance, int64(0))
}
