package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"pinturapos/backend/internal/domain"
)

// RenderInvoice produces a printable A4 document for a committed invoice.
// Amounts are rendered from cents; no floating point enters the layout.
func RenderInvoice(invoice domain.Invoice, client domain.Client, branch domain.Branch) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("Factura %d", invoice.ID), false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.Cell(0, 10, "Pinturas El Arcoiris")
	doc.Ln(8)
	doc.SetFont("Helvetica", "", 10)
	doc.Cell(0, 6, branch.Name)
	doc.Ln(5)
	if branch.Address != "" {
		doc.Cell(0, 6, branch.Address)
		doc.Ln(5)
	}
	doc.Ln(4)

	doc.SetFont("Helvetica", "B", 12)
	header := fmt.Sprintf("Factura No. %d", invoice.ID)
	if invoice.Series != "" {
		header = fmt.Sprintf("Factura %s-%d", invoice.Series, invoice.Number)
	}
	doc.Cell(0, 8, header)
	doc.Ln(7)

	doc.SetFont("Helvetica", "", 10)
	doc.Cell(0, 6, "Fecha: "+invoice.CreatedAt.Format("2006-01-02 15:04"))
	doc.Ln(5)
	doc.Cell(0, 6, "Cliente: "+client.FirstName+" "+client.LastName)
	doc.Ln(5)
	if client.TaxID != "" {
		doc.Cell(0, 6, "NIT: "+client.TaxID)
		doc.Ln(5)
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		doc.SetTextColor(200, 0, 0)
		doc.SetFont("Helvetica", "B", 11)
		doc.Cell(0, 6, "** ANULADA **")
		doc.Ln(6)
		doc.SetTextColor(0, 0, 0)
		doc.SetFont("Helvetica", "", 10)
	}
	doc.Ln(3)

	doc.SetFont("Helvetica", "B", 9)
	doc.SetFillColor(230, 230, 230)
	doc.CellFormat(18, 7, "Cant.", "1", 0, "C", true, 0, "")
	doc.CellFormat(92, 7, "Producto", "1", 0, "L", true, 0, "")
	doc.CellFormat(26, 7, "Precio", "1", 0, "R", true, 0, "")
	doc.CellFormat(26, 7, "Desc.", "1", 0, "R", true, 0, "")
	doc.CellFormat(28, 7, "Subtotal", "1", 1, "R", true, 0, "")

	doc.SetFont("Helvetica", "", 9)
	for _, line := range invoice.Lines {
		name := line.ProductName
		if name == "" {
			name = fmt.Sprintf("Producto %d", line.ProductID)
		}
		doc.CellFormat(18, 6, fmt.Sprintf("%d", line.Quantity), "1", 0, "C", false, 0, "")
		doc.CellFormat(92, 6, name, "1", 0, "L", false, 0, "")
		doc.CellFormat(26, 6, formatCents(line.UnitPriceCents), "1", 0, "R", false, 0, "")
		doc.CellFormat(26, 6, formatCents(line.DiscountCents), "1", 0, "R", false, 0, "")
		doc.CellFormat(28, 6, formatCents(line.SubtotalCents), "1", 1, "R", false, 0, "")
	}

	doc.Ln(2)
	doc.SetFont("Helvetica", "", 10)
	writeTotal(doc, "Subtotal:", invoice.SubtotalCents)
	writeTotal(doc, "Descuento:", invoice.DiscountCents)
	doc.SetFont("Helvetica", "B", 11)
	writeTotal(doc, "Total:", invoice.TotalCents)

	doc.Ln(4)
	doc.SetFont("Helvetica", "B", 10)
	doc.Cell(0, 6, "Pagos")
	doc.Ln(6)
	doc.SetFont("Helvetica", "", 9)
	for _, payment := range invoice.Payments {
		label := fmt.Sprintf("Tipo %d", payment.PaymentTypeID)
		if payment.Reference != "" {
			label += " (" + payment.Reference + ")"
		}
		doc.CellFormat(136, 6, label, "", 0, "L", false, 0, "")
		doc.CellFormat(54, 6, formatCents(payment.AmountCents), "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTotal(doc *gofpdf.Fpdf, label string, cents int64) {
	doc.CellFormat(136, 6, label, "", 0, "R", false, 0, "")
	doc.CellFormat(54, 6, formatCents(cents), "", 1, "R", false, 0, "")
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sQ %d.%02d", sign, cents/100, cents%100)
}
