package receipt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

func TestHTMLRendererDefaultTemplate(t *testing.T) {
	r, err := NewHTMLRenderer("Cantina", 0, "")
	require.NoError(t, err)
	r.Now = fixedNow
	assert.Equal(t, 576, r.PaperWidth)

	order := sampleOrder()
	order.CustomerName = "<b>Ana</b>"
	html, err := r.HTML(order)
	require.NoError(t, err)

	assert.Contains(t, html, "Cantina")
	assert.Contains(t, html, "PEDIDO: #42")
	assert.Contains(t, html, "14/03/2025 19:30")
	assert.Contains(t, html, "R$ 45.50")
	assert.Contains(t, html, "Obs: Sem cebola")
	assert.Contains(t, html, "&lt;b&gt;Ana&lt;/b&gt;")
	assert.NotContains(t, html, "<b>Ana</b>")
}

func TestHTMLRendererCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mine.html")
	require.NoError(t, os.WriteFile(path, []byte(`{{.StoreName}}|{{.Order.ID}}|{{formatMoney .Order.Total}}`), 0644))

	r, err := NewHTMLRenderer("Bar", 384, path)
	require.NoError(t, err)

	html, err := r.HTML(model.Order{ID: "9"})
	require.NoError(t, err)
	assert.Equal(t, "Bar|9|R$ 0.00", html)
}

func TestHTMLRendererBadTemplate(t *testing.T) {
	_, err := NewHTMLRenderer("Bar", 384, filepath.Join(t.TempDir(), "absent.html"))
	assert.Error(t, err)
}

func TestURLEncode(t *testing.T) {
	assert.Equal(t, "a%20b%26c", urlEncode("a b&c"))
}
