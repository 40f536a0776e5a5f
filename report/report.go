// Package report renders ledger reports as spreadsheets.
package report

import (
	"fmt"

	"github.com/warp/contract-ledger/ledger"
	"github.com/xuri/excelize/v2"
)

const (
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	clientsSheet = "Best clients"
	dateLayout   = "2006-01-02"
)

// BestClients renders the top clients report as an xlsx workbook: a header
// block with the period, then one row per client.
func BestClients(rng ledger.DateRange, rows []ledger.ClientTotal) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", clientsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	set := func(cell string, value any) {
		_ = file.SetCellValue(clientsSheet, cell, value)
	}

	set("A1", "Period start")
	set("B1", rng.Start.Format(dateLayout))
	set("A2", "Period end")
	set("B2", rng.End.Format(dateLayout))

	const tableRow = 4
	set(fmt.Sprintf("A%d", tableRow), "Rank")
	set(fmt.Sprintf("B%d", tableRow), "Client ID")
	set(fmt.Sprintf("C%d", tableRow), "Full name")
	set(fmt.Sprintf("D%d", tableRow), "Total paid")

	for i, c := range rows {
		row := tableRow + 1 + i
		total, _ := c.Total.Round(2).Float64()
		set(fmt.Sprintf("A%d", row), i+1)
		set(fmt.Sprintf("B%d", row), c.ClientID)
		set(fmt.Sprintf("C%d", row), c.FullName())
		set(fmt.Sprintf("D%d", row), total)
	}

	style, err := file.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	if len(rows) > 0 {
		last := tableRow + len(rows)
		if err := file.SetCellStyle(clientsSheet, fmt.Sprintf("D%d", tableRow+1), fmt.Sprintf("D%d", last), style); err != nil {
			return nil, fmt.Errorf("set style: %w", err)
		}
	}
	_ = file.SetColWidth(clientsSheet, "C", "C", 28)
	_ = file.SetColWidth(clientsSheet, "D", "D", 14)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
