package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/bmffgate/internal/rules"
)

// PDFOptions controls SavePDF. A QRSize of zero uses 128 pixels; a negative
// size omits the digest QR code.
type PDFOptions struct {
	Lang   Language
	QRSize int
}

// SavePDF renders rep into a PDF document at out.
func SavePDF(rep *Report, out string, opts PDFOptions) error {
	tr := NewTranslator(opts.Lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	enc := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(enc(tr.T("title")), false)
	pdf.SetAuthor("bmffctl", false)
	pdf.SetCreator("bmffctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	w := &pdfWriter{pdf: pdf, tr: tr, enc: enc}
	w.title()
	w.summary(rep)
	if opts.QRSize >= 0 && rep.SHA256 != "" {
		if err := w.digestQR(rep.SHA256, opts.QRSize); err != nil {
			return err
		}
	}
	w.ruleMatrix(rep.Rules)
	w.findings(rep.Issues)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

type pdfWriter struct {
	pdf *gofpdf.Fpdf
	tr  Translator
	enc func(string) string
}

func (w *pdfWriter) heading(key string) {
	w.pdf.SetFont("Helvetica", "B", 12)
	w.pdf.Cell(0, 8, w.enc(w.tr.T(key)))
	w.pdf.Ln(9)
}

func (w *pdfWriter) title() {
	w.pdf.SetFont("Helvetica", "B", 18)
	w.pdf.Cell(0, 10, w.enc(w.tr.T("title")))
	w.pdf.Ln(12)
}

func (w *pdfWriter) summary(rep *Report) {
	w.heading("summary")
	w.pdf.SetFont("Helvetica", "", 11)
	s := rep.Summary
	items := []struct {
		label string
		value string
	}{
		{"file", emptyFallback(rep.File, "-")},
		{"sha256", emptyFallback(rep.SHA256, "-")},
		{"size", w.tr.Format("size.bytes", rep.Size)},
		{"run_id", rep.RunID.String()},
		{"generated", rep.GeneratedAt.Format(time.RFC3339)},
		{"preset", emptyFallback(rep.Preset, "-")},
		{"boxes", w.tr.Number(int64(rep.Boxes))},
		{"total", w.tr.Number(int64(s.Total))},
		{"unique", w.tr.Number(int64(s.Unique))},
		{"errors", w.tr.Number(int64(s.Errors))},
		{"warnings", w.tr.Number(int64(s.Warnings))},
		{"info", w.tr.Number(int64(s.Info))},
		{"deepest", fmt.Sprint(s.DeepestDepth)},
		{"overall", w.tr.Pass(s.Pass)},
	}
	for _, item := range items {
		w.pdf.CellFormat(45, 6, w.enc(w.tr.T(item.label)), "", 0, "L", false, 0, "")
		w.pdf.CellFormat(0, 6, w.enc(item.value), "", 1, "L", false, 0, "")
	}
	w.pdf.Ln(4)
}

func (w *pdfWriter) digestQR(digest string, size int) error {
	png, err := DigestToQR(digest, size)
	if err != nil {
		return fmt.Errorf("render digest QR: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	w.pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	x, y := w.pdf.GetXY()
	w.pdf.ImageOptions("digest-qr", x, y, 30, 30, false, opts, 0, "")
	w.pdf.SetXY(x+34, y+12)
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.Cell(0, 5, w.enc(w.tr.T("digest_qr")))
	w.pdf.SetXY(x, y+34)
	return nil
}

func (w *pdfWriter) ruleMatrix(rows []RuleResult) {
	w.heading("rule_matrix")
	headers := []string{"col.rule", "col.name", "col.severity", "col.findings", "col.pass"}
	widths := []float64{24, 84, 28, 22, 22}

	w.pdf.SetFillColor(240, 240, 240)
	w.pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		w.pdf.CellFormat(widths[i], 7, w.enc(w.tr.T(h)), "1", 0, "L", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		pass := w.tr.Pass(row.Pass)
		if !row.Enabled {
			pass = "-"
		}
		w.tableRow(widths, []string{
			row.RuleID,
			row.Name,
			w.tr.Severity(string(row.Severity)),
			w.tr.Number(int64(row.Findings)),
			pass,
		}, 5)
	}
	w.pdf.Ln(4)
}

func (w *pdfWriter) findings(findings []rules.Finding) {
	w.heading("findings")
	if len(findings) == 0 {
		w.pdf.SetFont("Helvetica", "", 11)
		w.pdf.MultiCell(0, 6, w.enc(w.tr.T("no_findings")), "", "L", false)
		return
	}
	for i, f := range findings {
		w.pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, f.RuleID, w.tr.Severity(string(f.Severity)))
		w.pdf.MultiCell(0, 5, w.enc(header), "", "L", false)
		if msg := strings.TrimSpace(f.Message); msg != "" {
			w.pdf.SetFont("Helvetica", "", 10)
			w.pdf.MultiCell(0, 5, w.enc(msg), "", "L", false)
		}
		w.pdf.SetFont("Helvetica", "", 9)
		w.pdf.MultiCell(0, 4, w.enc(w.location(f)), "", "L", false)
		w.pdf.Ln(2)
	}
}

func (w *pdfWriter) location(f rules.Finding) string {
	if f.Depth < 0 {
		return w.tr.T("location.end")
	}
	parts := make([]string, 0, 3)
	if f.Box != "" {
		parts = append(parts, w.tr.Format("location.box", f.Box))
	}
	parts = append(parts, w.tr.Format("location.range", f.Start, f.End))
	parts = append(parts, w.tr.Format("location.depth", f.Depth))
	return strings.Join(parts, " | ")
}

func (w *pdfWriter) tableRow(widths []float64, values []string, lineHeight float64) {
	xStart := w.pdf.GetX()
	yStart := w.pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(w.enc(val))
		if text == "" {
			text = "-"
		}
		lines := w.pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		w.pdf.SetXY(x, yStart)
		w.pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	w.pdf.SetXY(xStart, yStart+rowHeight)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
