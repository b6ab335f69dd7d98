package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestToCentsRoundsHalfUp(t *testing.T) {
	cases := map[string]int64{
		"10":     1000,
		"10.5":   1050,
		"0.005":  1,
		"0.004":  0,
		"19.995": 2000,
		"1.115":  112,
	}
	for in, want := range cases {
		if got := ToCents(decimal.RequireFromString(in)); got != want {
			t.Errorf("ToCents(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusConfirmed},
		{OrderStatusPending, OrderStatusCanceled},
		{OrderStatusConfirmed, OrderStatusShipped},
		{OrderStatusConfirmed, OrderStatusCanceled},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusConfirmed, OrderStatusConfirmed},
		{OrderStatusDelivered, OrderStatusDelivered},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	rejected := [][2]OrderStatus{
		{OrderStatusDelivered, OrderStatusCanceled},
		{OrderStatusDelivered, OrderStatusPending},
		{OrderStatusCanceled, OrderStatusConfirmed},
		{OrderStatusShipped, OrderStatusPending},
		{OrderStatusPending, OrderStatusDelivered},
	}
	for _, tr := range rejected {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}
}

func TestNewOrderSnapshotsLines(t *testing.T) {
	sku := "A-1"
	lines := []CartLine{
		{ItemID: 1, ProductID: 7, Name: "A", Description: strings.Repeat("x", 300), Price: decimal.RequireFromString("10.00"), Stock: 3, Quantity: 2, SKU: &sku},
		{ItemID: 2, ProductID: 9, Name: "B", Price: decimal.RequireFromString("0.995"), Stock: 10, Quantity: 3},
	}
	o := NewOrder(42, PlaceOrderInput{PaymentMethod: "cash"}, lines, time.Now())

	if o.Status != OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
	if o.Currency != DefaultCurrency {
		t.Fatalf("expected default currency, got %s", o.Currency)
	}
	if o.Total != 2000+100*3 {
		t.Fatalf("unexpected total %d", o.Total)
	}
	if o.Total != o.ComputeTotal() {
		t.Fatalf("total does not match items")
	}
	if len([]rune(o.Items[0].Description)) != 255 {
		t.Fatalf("description not truncated: %d", len(o.Items[0].Description))
	}
	if o.Items[0].SKU == nil || *o.Items[0].SKU != "A-1" {
		t.Fatalf("sku not copied")
	}

	// later catalog changes must not reach the snapshot
	lines[0].Price = decimal.RequireFromString("99")
	if o.Items[0].AmountCents != 1000 {
		t.Fatalf("snapshot changed with catalog: %d", o.Items[0].AmountCents)
	}
}

func TestAwaitingPaymentURL(t *testing.T) {
	o := &Order{PaymentMethod: PaymentMethodCard, Status: OrderStatusPending}
	if !o.AwaitingPaymentURL() {
		t.Fatal("card order without gateway id should await payment url")
	}
	id := "42"
	o.PaymentGatewayID = &id
	if o.AwaitingPaymentURL() {
		t.Fatal("order with gateway id should not await payment url")
	}
	cash := &Order{PaymentMethod: "cash", Status: OrderStatusPending}
	if cash.AwaitingPaymentURL() {
		t.Fatal("cash order never awaits payment url")
	}
}
