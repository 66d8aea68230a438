package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 19, 30, 5, 0, time.Local) }

func sampleOrder() model.Order {
	return model.Order{
		ID:           "42",
		CustomerName: "Ana",
		Items: []model.Item{
			{Quantity: 2, Name: "Pizza Margherita", Price: decimal.RequireFromString("45.5"), Notes: "Sem cebola", Extras: []string{"Borda recheada"}},
		},
		Subtotal:        decimal.NewFromInt(91),
		DeliveryFee:     decimal.NewFromInt(5),
		Total:           decimal.NewFromInt(96),
		PaymentMethod:   "Dinheiro",
		DeliveryAddress: "Rua A, 10",
		ChangeFor:       decimal.NewFromInt(100),
	}
}

func TestTextRendererLayout(t *testing.T) {
	r := NewTextRenderer("CANTINA", 48)
	r.Now = fixedNow

	out, err := r.Render(sampleOrder())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte{0x1B, 0x40, 0x1B, 0x74, 0x03}), "init and code page first")
	assert.True(t, bytes.HasSuffix(out, []byte{0x1B, 0x64, 0x03, 0x1D, 0x56, 0x41, 0x00}), "feed and cut last")

	for _, want := range []string{
		"CANTINA\n",
		"PEDIDO: #42\n",
		"DATA: 14/03/2025 19:30:05\n",
		"CLIENTE: Ana\n",
		"TELEFONE: -\n",
		"2x  Pizza Margherita",
		"R$ 45.50\n",
		"  + Borda recheada\n",
		"   Obs: Sem cebola\n",
		"R$ 96.00\n",
		"PAGAMENTO: Dinheiro\n",
		"TROCO PARA: R$ 100.00\n",
		"Rua A, 10\n",
	} {
		assert.Contains(t, string(out), want)
	}
}

func TestTextRendererDefaultsAndEncoding(t *testing.T) {
	r := NewTextRenderer("", 0)
	r.Now = fixedNow

	out, err := r.Render(model.Order{ID: "7"})
	require.NoError(t, err)

	notInformed, err := charmap.CodePage860.NewEncoder().String("CLIENTE: Não informado")
	require.NoError(t, err)
	assert.Contains(t, string(out), notInformed)
	assert.Contains(t, string(out), "RESTAURANTE")
	assert.NotContains(t, string(out), "TROCO PARA")
	assert.NotContains(t, string(out), "ENTREGA")
}

func TestTextRendererRejectsMissingID(t *testing.T) {
	_, err := NewTextRenderer("X", 48).Render(model.Order{ID: "  "})
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	assert.Equal(t, "ab   ", fit("ab", 5, alignLeft))
	assert.Equal(t, "   ab", fit("ab", 5, alignRight))
	assert.Equal(t, "abc ", fit("abcdef", 4, alignLeft))
	assert.Equal(t, "abcd", fit("abcdef", 4, alignRight))
	assert.Equal(t, "", fit("abc", 0, alignLeft))
}
