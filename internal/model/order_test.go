package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderUnmarshalLenient(t *testing.T) {
	data := `{
		"id": 42,
		"customerName": " Ana ",
		"items": [
			{"quantity": 2, "name": "Pizza", "price": "45.50", "extras": ["Borda", {"name": "Bacon"}, 7]},
			{"name": "Suco", "price": "abc"}
		],
		"subtotal": 103,
		"deliveryFee": null,
		"total": "108.00",
		"changeFor": "bogus"
	}`

	var order Order
	require.NoError(t, json.Unmarshal([]byte(data), &order))

	assert.Equal(t, "42", order.ID)
	assert.Equal(t, "Ana", order.CustomerName)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(103)))
	assert.True(t, order.DeliveryFee.IsZero())
	assert.True(t, order.Total.Equal(decimal.NewFromInt(108)))
	assert.True(t, order.ChangeFor.IsZero())

	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, []string{"Borda", "Bacon", "7"}, order.Items[0].Extras)

	// Missing quantity defaults to one, unreadable price to zero.
	assert.Equal(t, 1, order.Items[1].Quantity)
	assert.True(t, order.Items[1].Price.IsZero())
}

func TestOrderUnmarshalMissingItems(t *testing.T) {
	var order Order
	require.NoError(t, json.Unmarshal([]byte(`{"id": "A1"}`), &order))

	assert.Equal(t, "A1", order.ID)
	assert.NotNil(t, order.Items)
	assert.Empty(t, order.Items)
}

func TestOrderUnmarshalMissingID(t *testing.T) {
	var order Order
	require.NoError(t, json.Unmarshal([]byte(`{"id": "   ", "items": []}`), &order))
	assert.Empty(t, order.ID)
}

func TestOrderUnmarshalRejectsNonObject(t *testing.T) {
	var order Order
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &order))
}

func TestNewPrintDone(t *testing.T) {
	ok := NewPrintDone("r1", "42", PrintResult{Success: true}, nil)
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"print_done","requestId":"r1","orderId":"42","success":true,"simulated":false}`, string(data))

	simulated := NewPrintDone("r2", "43", PrintResult{Success: true, Simulated: true}, nil)
	require.NotNil(t, simulated.Simulated)
	assert.True(t, *simulated.Simulated)

	failed := NewPrintDone("r3", "44", PrintResult{}, errors.New("paper out"))
	data, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"print_done","requestId":"r3","orderId":"44","success":false,"error":"paper out"}`, string(data))
}

func TestNewHello(t *testing.T) {
	data, err := json.Marshal(NewHello("7", "kitchen"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"agent_hello","restaurantId":"7","agentName":"kitchen","capabilities":["print"]}`, string(data))
}

func TestInboundRequestIDLenient(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"print_order","requestId":"r1"}`, "r1"},
		{`{"type":"print_order","requestId":17}`, "17"},
		{`{"type":"print_order","requestId":null}`, ""},
		{`{"type":"ping"}`, ""},
	}
	for _, tt := range tests {
		var msg Inbound
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg), tt.raw)
		assert.Equal(t, tt.want, msg.RequestID, tt.raw)
	}

	var msg Inbound
	require.NoError(t, json.Unmarshal([]byte(`{"type":"print_order","requestId":"r1","order":{"id":1}}`), &msg))
	assert.Equal(t, MessageTypeNewOrder, msg.Type)
	assert.JSONEq(t, `{"id":1}`, string(msg.Order))
}
