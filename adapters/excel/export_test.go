package excel

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"convdep/domain/conversation"
	"convdep/internal/analyzer"
)

func TestWriteWorkbook(t *testing.T) {
	z := 2.1
	res := &analyzer.Result{
		Important: []conversation.ScoredUtterance{
			{Utterance: conversation.Utterance{ID: 2, Text: "the budget is 40k", Speaker: "ben"}, Score: 0.47, Rank: 1, Z: &z},
		},
		Scored: []conversation.ScoredUtterance{
			{Utterance: conversation.Utterance{ID: 2, Text: "the budget is 40k", Speaker: "ben"}, Score: 0.47, Rank: 1, Z: &z},
			{Utterance: conversation.Utterance{ID: 1, Text: "good morning"}, Score: 0, Rank: 2},
		},
	}
	current := conversation.Utterance{ID: 6, Text: "whats the budget decision"}

	var buf bytes.Buffer
	if err := NewExporter().Write(&buf, current, res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	title, err := f.GetCellValue(sheetName, "A1")
	if err != nil {
		t.Fatalf("read title: %v", err)
	}
	if title != "Turn 6: whats the budget decision" {
		t.Errorf("title = %q", title)
	}

	rank, _ := f.GetCellValue(sheetName, "A3")
	text, _ := f.GetCellValue(sheetName, "D3")
	imp, _ := f.GetCellValue(sheetName, "K3")
	if rank != "1" || text != "the budget is 40k" || imp != "TRUE" {
		t.Errorf("first data row = rank %q text %q important %q", rank, text, imp)
	}

	// Non-testable candidate leaves the Z column empty.
	zCell, _ := f.GetCellValue(sheetName, "J4")
	if zCell != "" {
		t.Errorf("Z for untested row = %q, want empty", zCell)
	}
}
