package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	settlement "rentledger/internal/settlement/domain"
)

// BuildSettlementPDF renders a settlement summary with its cost lines and
// per-tenant shares.
func BuildSettlementPDF(stl *settlement.Settlement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Utility Settlement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Title: %s", stl.Title))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Property: %s", stl.PropertyID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s .. %s", stl.PeriodStart.Format("2006-01-02"), stl.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", stl.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Approach: %s", stl.Approach))
	pdf.Ln(5)
	if !stl.FinalizedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Finalized: %s", stl.FinalizedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	if stl.Status == settlement.StatusVoided {
		pdf.Cell(0, 6, fmt.Sprintf("Voided: %s (%s)", stl.VoidedAt.Format(time.RFC3339), stl.VoidReason))
		pdf.Ln(5)
	}
	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total Amount (%s): %s", stl.Currency, stl.TotalAmount.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Cost line", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Consumption", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range stl.Items {
		consumption, rate := "", ""
		if item.Kind == settlement.ItemKindMeter {
			consumption = item.Consumption.StringFixed(2) + " " + item.Unit
			rate = item.Rate.StringFixed(4)
		}
		pdf.CellFormat(60, 6, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, consumption, "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, rate, "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, item.TotalCost.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Tenant", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Days", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Ratio", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	if stl.Approach == settlement.ApproachAdvancePayment {
		pdf.CellFormat(30, 6, "Balance due", "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, share := range stl.Shares {
		pdf.CellFormat(50, 6, share.TenantID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", share.ActiveDays), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, share.ShareRatio.StringFixed(4), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, share.FinalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		if stl.Approach == settlement.ApproachAdvancePayment {
			pdf.CellFormat(30, 6, share.BalanceDue.StringFixed(2), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementXLSX renders the same settlement as a workbook with a
// summary sheet, a cost line sheet and a shares sheet.
func BuildSettlementXLSX(stl *settlement.Settlement) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "items"
	sharesSheet := "shares"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(itemsSheet)
	f.NewSheet(sharesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Utility Settlement")
	_ = f.SetCellValue(summarySheet, "A3", "Title")
	_ = f.SetCellValue(summarySheet, "B3", stl.Title)
	_ = f.SetCellValue(summarySheet, "A4", "Property")
	_ = f.SetCellValue(summarySheet, "B4", stl.PropertyID)
	_ = f.SetCellValue(summarySheet, "A5", "Period start")
	_ = f.SetCellValue(summarySheet, "B5", stl.PeriodStart.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Period end")
	_ = f.SetCellValue(summarySheet, "B6", stl.PeriodEnd.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A7", "Status")
	_ = f.SetCellValue(summarySheet, "B7", string(stl.Status))
	_ = f.SetCellValue(summarySheet, "A8", "Approach")
	_ = f.SetCellValue(summarySheet, "B8", string(stl.Approach))
	_ = f.SetCellValue(summarySheet, "A9", "Total Amount")
	_ = f.SetCellValue(summarySheet, "B9", stl.TotalAmount.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A10", "Currency")
	_ = f.SetCellValue(summarySheet, "B10", stl.Currency)

	_ = f.SetCellValue(itemsSheet, "A1", "Cost line")
	_ = f.SetCellValue(itemsSheet, "B1", "Kind")
	_ = f.SetCellValue(itemsSheet, "C1", "Consumption")
	_ = f.SetCellValue(itemsSheet, "D1", "Unit")
	_ = f.SetCellValue(itemsSheet, "E1", "Rate")
	_ = f.SetCellValue(itemsSheet, "F1", "Cost")
	for i, item := range stl.Items {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.Name)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), string(item.Kind))
		if item.Kind == settlement.ItemKindMeter {
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.Consumption.StringFixed(2))
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), item.Unit)
			_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), item.Rate.StringFixed(4))
		}
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), item.TotalCost.StringFixed(2))
	}

	_ = f.SetCellValue(sharesSheet, "A1", "Tenant")
	_ = f.SetCellValue(sharesSheet, "B1", "Active days")
	_ = f.SetCellValue(sharesSheet, "C1", "Ratio")
	_ = f.SetCellValue(sharesSheet, "D1", "Amount")
	_ = f.SetCellValue(sharesSheet, "E1", "Advances paid")
	_ = f.SetCellValue(sharesSheet, "F1", "Balance due")
	for i, share := range stl.Shares {
		row := i + 2
		_ = f.SetCellValue(sharesSheet, fmt.Sprintf("A%d", row), share.TenantID)
		_ = f.SetCellValue(sharesSheet, fmt.Sprintf("B%d", row), share.ActiveDays)
		_ = f.SetCellValue(sharesSheet, fmt.Sprintf("C%d", row), share.ShareRatio.StringFixed(4))
		_ = f.SetCellValue(sharesSheet, fmt.Sprintf("D%d", row), share.FinalAmount.StringFixed(2))
		if stl.Approach == settlement.ApproachAdvancePayment {
			_ = f.SetCellValue(sharesSheet, fmt.Sprintf("E%d", row), share.AdvancesPaid.StringFixed(2))
			_ = f.SetCellValue(sharesSheet, fmt.Sprintf("F%d", row), share.BalanceDue.StringFixed(2))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
