// Package report renders generated report text into a PDF document.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/go-pdf/fpdf"
)

const utf8Family = "report"

// Renderer produces byte-identical output for identical input: the only
// timestamp in the document is the order's creation time.
type Renderer struct {
	title    string
	fontPath string
	catalog  *models.Catalog
}

func NewRenderer(cfg config.ReportConfig, catalog *models.Catalog) *Renderer {
	return &Renderer{title: cfg.Title, fontPath: cfg.FontPath, catalog: catalog}
}

func (r *Renderer) Render(order *models.Order, participants []*models.Participant, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("report text is empty")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(order.CreatedAt)
	pdf.SetModificationDate(order.CreatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(r.title, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	family, tr := r.setupFont(pdf)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("font setup: %w", err)
	}

	pdf.AddPage()

	pdf.SetFont(family, "", 18)
	pdf.MultiCell(0, 9, tr(r.title), "", "C", false)
	pdf.Ln(4)

	pdf.SetFont(family, "", 11)
	tariffTitle := string(order.Tariff)
	if info, ok := r.catalog.Lookup(order.Tariff); ok {
		tariffTitle = info.Title
	}
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("Заказ %s · %s · %s", order.ShortID(), tariffTitle, order.Style.Title())), "", "L", false)
	pdf.MultiCell(0, 6, tr("Дата заказа: "+order.CreatedAt.Format("02.01.2006")), "", "L", false)
	pdf.Ln(2)

	for _, p := range participants {
		line := fmt.Sprintf("%s, %s", p.FullName, p.BirthDate.Format(models.BirthDateLayout))
		if p.BirthTime != nil {
			line += " " + *p.BirthTime
		}
		if p.BirthPlace != nil {
			line += ", " + *p.BirthPlace
		}
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont(family, "", 12)
	for _, para := range paragraphs(text) {
		pdf.MultiCell(0, 6, tr(para), "", "J", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// setupFont returns the font family and a text translator. With a TTF font
// text goes through unchanged; the core font fallback uses cp1251.
func (r *Renderer) setupFont(pdf *fpdf.Fpdf) (string, func(string) string) {
	if r.fontPath != "" {
		pdf.AddUTF8Font(utf8Family, "", r.fontPath)
		return utf8Family, func(s string) string { return s }
	}
	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("cp1251")
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
