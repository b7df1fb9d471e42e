package core

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Page size in points for 2.625in x 1in stock (72 pt per inch).
const (
	pdfWidthPt  = labelWidthIn * 72
	pdfHeightPt = labelHeightIn * 72

	pdfMarginPt = 4
)

// RenderPDF renders the session as a single-page PDF sized exactly to the
// label stock, for spoolers that drive the printer through its driver
// instead of raw TSPL.
func RenderPDF(snap SessionSnapshot) ([]byte, error) {
	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pdfWidthPt, Ht: pdfHeightPt},
	})
	doc.SetMargins(pdfMarginPt, pdfMarginPt, pdfMarginPt)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()

	doc.SetFont("Helvetica", "", 9)
	doc.SetXY(pdfMarginPt, pdfMarginPt)
	doc.CellFormat(0, 11, timestampLine(snap), "", 1, "L", false, 0, "")

	// Amount: large bold ounce figure with the ml conversion trailing at
	// normal weight.
	doc.SetFont("Helvetica", "B", 16)
	ozText := fmt.Sprintf("%s oz ", trimOz(snap.AmountOz))
	doc.SetX(pdfMarginPt)
	doc.CellFormat(doc.GetStringWidth(ozText), 18, ozText, "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 18, fmt.Sprintf("(%d ml)", MilliliterFor(snap.AmountOz)), "", 1, "L", false, 0, "")

	if snap.Notes != "" {
		doc.SetFont("Helvetica", "I", 8)
		doc.SetX(pdfMarginPt)
		doc.CellFormat(0, 10, truncateNotes(snap.Notes, pdfNotesLimit), "", 1, "L", false, 0, "")
	}

	doc.SetFont("Helvetica", "", 8)
	doc.SetX(pdfMarginPt)
	doc.CellFormat(0, 10, useByLine(snap), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf label: %w", err)
	}
	return buf.Bytes(), nil
}
