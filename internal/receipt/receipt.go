// Package receipt turns orders into the byte stream a receipt printer
// understands. Two layouts are available: TextRenderer emits ESC/POS text
// commands directly, HTMLRenderer renders an HTML template through
// headless Chrome and sends the result as a raster image.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

// Renderer produces the complete command stream for one order, ready to
// be written to the device.
type Renderer interface {
	Render(order model.Order) ([]byte, error)
}

// ESC/POS command bytes.
var (
	cmdInit        = []byte{0x1B, 0x40}             // ESC @
	cmdCodePage860 = []byte{0x1B, 0x74, 0x03}       // ESC t 3 (PC860 Portuguese)
	cmdFontB       = []byte{0x1B, 0x4D, 0x01}       // ESC M 1
	cmdBoldOn      = []byte{0x1B, 0x45, 0x01}       // ESC E 1
	cmdBoldOff     = []byte{0x1B, 0x45, 0x00}       // ESC E 0
	cmdSizeDouble  = []byte{0x1D, 0x21, 0x11}       // GS ! 0x11
	cmdSizeNormal  = []byte{0x1D, 0x21, 0x00}       // GS ! 0x00
	cmdFeed3       = []byte{0x1B, 0x64, 0x03}       // ESC d 3
	cmdPartialCut  = []byte{0x1D, 0x56, 0x41, 0x00} // GS V A 0
)

type alignment byte

const (
	alignLeft   alignment = 0
	alignCenter alignment = 1
	alignRight  alignment = 2
)

// TextRenderer lays an order out as ESC/POS text.
type TextRenderer struct {
	StoreName string
	// LineWidth is the number of characters per printed line.
	LineWidth int
	// Now stamps the receipt. Defaults to time.Now.
	Now func() time.Time
}

func NewTextRenderer(storeName string, lineWidth int) *TextRenderer {
	if storeName == "" {
		storeName = "RESTAURANTE"
	}
	if lineWidth <= 0 {
		lineWidth = 48
	}
	return &TextRenderer{StoreName: storeName, LineWidth: lineWidth, Now: time.Now}
}

func (r *TextRenderer) Render(order model.Order) ([]byte, error) {
	order.Normalize()
	if order.ID == "" {
		return nil, fmt.Errorf("order has no id")
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	w := newWriter(r.LineWidth)
	w.raw(cmdInit)
	w.raw(cmdCodePage860)
	w.raw(cmdFontB)

	// ===== header =====
	w.align(alignCenter)
	w.bold(true)
	w.println(r.StoreName)
	w.bold(false)
	w.rule()
	w.newLine()

	// ===== order info =====
	w.align(alignLeft)
	w.println("PEDIDO: #" + order.ID)
	w.println("DATA: " + now().Format("02/01/2006 15:04:05"))
	w.println("CLIENTE: " + orDefault(order.CustomerName, "Não informado"))
	w.println("TELEFONE: " + orDefault(order.CustomerPhone, "-"))
	w.rule()

	// ===== items =====
	w.bold(true)
	w.raw(cmdSizeDouble)
	w.println("ITENS:")
	w.raw(cmdSizeNormal)
	w.bold(false)

	for _, item := range order.Items {
		w.table(
			column{fmt.Sprintf("%dx", item.Quantity), 0.1, alignLeft},
			column{item.Name, 0.6, alignLeft},
			column{money(item.Price), 0.3, alignRight},
		)
		for _, extra := range item.Extras {
			w.println("  + " + extra)
		}
		if item.Notes != "" {
			w.bold(true)
			w.println("   Obs: " + item.Notes)
			w.bold(false)
		}
	}
	w.rule()

	// ===== totals =====
	w.table(column{"SUBTOTAL:", 0.5, alignLeft}, column{money(order.Subtotal), 0.5, alignRight})
	w.table(column{"TAXA:", 0.5, alignLeft}, column{money(order.DeliveryFee), 0.5, alignRight})
	w.bold(true)
	w.table(column{"TOTAL:", 0.5, alignLeft}, column{money(order.Total), 0.5, alignRight})
	w.bold(false)
	w.rule()

	// ===== payment =====
	w.println("PAGAMENTO: " + orDefault(order.PaymentMethod, "-"))
	if order.ChangeFor.IsPositive() {
		w.println("TROCO PARA: " + money(order.ChangeFor))
	}

	// ===== delivery =====
	if order.DeliveryAddress != "" {
		w.newLine()
		w.bold(true)
		w.println("ENTREGA:")
		w.bold(false)
		w.println(order.DeliveryAddress)
	}

	// ===== footer =====
	w.newLine()
	w.align(alignCenter)
	w.println("Obrigado pela preferência!")
	w.println("Volte sempre :)")
	w.raw(cmdFeed3)
	w.raw(cmdPartialCut)

	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

func money(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

type column struct {
	text  string
	width float64
	align alignment
}

// writer accumulates ESC/POS output. Text is encoded to code page 860;
// characters outside it print as '?'.
type writer struct {
	buf     bytes.Buffer
	width   int
	encoder *encoding.Encoder
	err     error
}

func newWriter(width int) *writer {
	return &writer{
		width:   width,
		encoder: encoding.ReplaceUnsupported(charmap.CodePage860.NewEncoder()),
	}
}

func (w *writer) raw(b []byte) {
	w.buf.Write(b)
}

func (w *writer) align(a alignment) {
	w.buf.Write([]byte{0x1B, 0x61, byte(a)})
}

func (w *writer) bold(on bool) {
	if on {
		w.raw(cmdBoldOn)
	} else {
		w.raw(cmdBoldOff)
	}
}

func (w *writer) println(s string) {
	encoded, err := w.encoder.String(s)
	if err != nil && w.err == nil {
		w.err = fmt.Errorf("encoding %q: %w", s, err)
		return
	}
	w.buf.WriteString(encoded)
	w.buf.WriteByte('\n')
}

func (w *writer) newLine() {
	w.buf.WriteByte('\n')
}

func (w *writer) rule() {
	w.println(strings.Repeat("-", w.width))
}

// table prints one row, giving each column its share of the line width.
// Text that does not fit is truncated.
func (w *writer) table(columns ...column) {
	var line strings.Builder
	used := 0
	for i, col := range columns {
		size := int(col.width * float64(w.width))
		if i == len(columns)-1 {
			size = w.width - used
		}
		used += size
		line.WriteString(fit(col.text, size, col.align))
	}
	w.println(line.String())
}

func fit(s string, size int, a alignment) string {
	if size <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) > size {
		// Leave a separating space when a left column overflows.
		if a == alignLeft && size > 1 {
			return string(runes[:size-1]) + " "
		}
		return string(runes[:size])
	}
	pad := strings.Repeat(" ", size-utf8.RuneCountInString(s))
	if a == alignRight {
		return pad + s
	}
	return s + pad
}
