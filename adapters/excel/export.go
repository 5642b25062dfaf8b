// Package excel exports a turn's scored results to a spreadsheet for
// offline review.
package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"convdep/domain/conversation"
	"convdep/internal/analyzer"
	"convdep/internal/errors"
)

const sheetName = "Scored"

var headers = []string{
	"Rank", "ID", "Speaker", "Text", "Score", "BaseLoss", "MaskedLoss", "DeltaLoss", "AgeWeight", "Z", "Important",
}

// Exporter writes analysis results as xlsx workbooks.
type Exporter struct{}

// NewExporter creates an exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// Write streams a workbook for one turn to w.
func (e *Exporter) Write(w io.Writer, current conversation.Utterance, res *analyzer.Result) error {
	f, err := e.build(current, res)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// Save writes a workbook for one turn to path.
func (e *Exporter) Save(path string, current conversation.Utterance, res *analyzer.Result) error {
	f, err := e.build(current, res)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "save workbook")
	}
	return nil
}

func (e *Exporter) build(current conversation.Utterance, res *analyzer.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, errors.Wrap(err, "rename sheet")
	}

	important := make(map[int64]bool, len(res.Important))
	for _, su := range res.Important {
		important[su.ID] = true
	}

	title := fmt.Sprintf("Turn %d: %s", current.ID, current.Text)
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return nil, errors.Wrap(err, "write title")
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return nil, errors.Wrap(err, "header cell name")
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, errors.Wrap(err, "write header")
		}
	}

	for i, su := range res.Scored {
		row := i + 3
		values := []interface{}{
			su.Rank, su.ID, su.Speaker, su.Text, su.Score,
			su.Detail.BaseLoss, su.Detail.MaskedLoss, su.Detail.DeltaLoss, su.Detail.AgeWeight,
			zValue(su.Z), important[su.ID],
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, errors.Wrap(err, "data cell name")
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, errors.Wrap(err, "write row")
			}
		}
	}
	return f, nil
}

func zValue(z *float64) interface{} {
	if z == nil {
		return ""
	}
	return *z
}
