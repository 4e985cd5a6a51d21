package items

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"
)

// ExportContentType is the MIME type of stock workbooks.
const ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeaders = []string{
	"Cat No", "Product Name", "Lot No", "HSN No", "Quantity", "W Rate", "Selling Price", "MRP", "Created At",
}

// WriteWorkbook renders the stock list as a single-sheet XLSX workbook.
func WriteWorkbook(w io.Writer, list []Item) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Stock")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}
	for _, it := range list {
		row := sheet.AddRow()
		row.AddCell().SetString(it.CatNo)
		row.AddCell().SetString(it.ProductName)
		row.AddCell().SetString(deref(it.LotNo))
		row.AddCell().SetString(deref(it.HSNNo))
		row.AddCell().SetInt(it.Quantity)
		setMoney(row.AddCell(), it.WRate)
		setMoney(row.AddCell(), it.SellingPrice)
		setMoney(row.AddCell(), decimal.NullDecimal{Decimal: it.MRP, Valid: true})
		row.AddCell().SetString(it.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return file.Write(w)
}

func setMoney(cell *xlsx.Cell, v decimal.NullDecimal) {
	if !v.Valid {
		cell.SetString("")
		return
	}
	f, _ := v.Decimal.Float64()
	cell.SetFloatWithFormat(f, "#,##0.00")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
