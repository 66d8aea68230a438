package receipt

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"image/png"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"

	"github.com/Riboost-Studio/perfect-menu-print-agent/internal/model"
)

//go:embed templates/order.html
var defaultTemplates embed.FS

// Helper functions for the template (money and dates)
var templateFuncs = template.FuncMap{
	"formatMoney": func(amount decimal.Decimal) string {
		return money(amount)
	},
	"formatDate": func(t time.Time) string {
		return t.Format("02/01/2006 15:04")
	},
}

// HTMLRenderer renders an order through an HTML template, screenshots it
// with headless Chrome and sends the image as an ESC/POS raster.
type HTMLRenderer struct {
	StoreName  string
	PaperWidth int
	// ChromePath overrides the browser binary. Empty uses chromedp's
	// default lookup.
	ChromePath string
	Timeout    time.Duration
	Now        func() time.Time

	tmpl *template.Template
}

// NewHTMLRenderer parses the template at templatePath, or the embedded
// default layout when templatePath is empty.
func NewHTMLRenderer(storeName string, paperWidth int, templatePath string) (*HTMLRenderer, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatePath == "" {
		tmpl, err = template.New("order.html").Funcs(templateFuncs).ParseFS(defaultTemplates, "templates/order.html")
	} else {
		tmpl, err = template.New(filepath.Base(templatePath)).Funcs(templateFuncs).ParseFiles(templatePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if paperWidth <= 0 {
		paperWidth = 576
	}
	return &HTMLRenderer{
		StoreName:  storeName,
		PaperWidth: paperWidth,
		Timeout:    30 * time.Second,
		Now:        time.Now,
		tmpl:       tmpl,
	}, nil
}

type htmlData struct {
	StoreName  string
	PaperWidth int
	PrintedAt  time.Time
	Order      model.Order
}

// HTML executes the template for order.
func (r *HTMLRenderer) HTML(order model.Order) (string, error) {
	order.Normalize()
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	var htmlBuffer bytes.Buffer
	err := r.tmpl.Execute(&htmlBuffer, htmlData{
		StoreName:  r.StoreName,
		PaperWidth: r.PaperWidth,
		PrintedAt:  now(),
		Order:      order,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return htmlBuffer.String(), nil
}

func (r *HTMLRenderer) Render(order model.Order) ([]byte, error) {
	html, err := r.HTML(order)
	if err != nil {
		return nil, err
	}

	pngBytes, err := r.screenshot(html)
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return imageJob(img, r.PaperWidth), nil
}

func (r *HTMLRenderer) screenshot(html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(r.PaperWidth, 800),
	)
	if r.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer allocCancel()
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	if r.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		cdpCtx, timeoutCancel = context.WithTimeout(cdpCtx, r.Timeout)
		defer timeoutCancel()
	}

	var pngBytes []byte
	err := chromedp.Run(cdpCtx,
		// Load HTML directly using data URL
		chromedp.Navigate("data:text/html,"+urlEncode(html)),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed generating image: %w", err)
	}
	return pngBytes, nil
}

func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
