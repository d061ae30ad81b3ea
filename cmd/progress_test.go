package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExportProgressModel(t *testing.T) {
	t.Run("new model", func(t *testing.T) {
		m := newExportProgressModel("events", 3)

		if m.table != "events" {
			t.Errorf("expected table events, got %s", m.table)
		}
		if m.total != 3 {
			t.Errorf("expected total 3, got %d", m.total)
		}
		if m.completed != 0 {
			t.Errorf("expected 0 completed, got %d", m.completed)
		}
	})

	t.Run("partition start updates current", func(t *testing.T) {
		m := newExportProgressModel("events", 2)

		updated, _ := m.Update(partitionStartMsg{index: 0, dateKey: "2024-01-01", rowCount: 500})
		model := updated.(exportProgressModel)

		if model.currentKey != "2024-01-01" {
			t.Errorf("expected current key 2024-01-01, got %s", model.currentKey)
		}
		if model.currentRows != 500 {
			t.Errorf("expected 500 current rows, got %d", model.currentRows)
		}
	})

	t.Run("partition done advances completion", func(t *testing.T) {
		m := newExportProgressModel("events", 2)

		updated, _ := m.Update(partitionDoneMsg{index: 0, result: PartitionResult{
			DateKey:      "2024-01-01",
			RowCount:     500,
			BytesWritten: 1024,
		}})
		model := updated.(exportProgressModel)

		if model.completed != 1 {
			t.Errorf("expected 1 completed, got %d", model.completed)
		}
		if len(model.lines) != 1 {
			t.Errorf("expected 1 result line, got %d", len(model.lines))
		}
	})

	t.Run("view shows progress", func(t *testing.T) {
		m := newExportProgressModel("events", 2)
		m.completed = 1
		m.lines = []string{"✅ 2024-01-01: 500 rows, 1024 bytes"}

		view := m.View()
		if !strings.Contains(view, "events") {
			t.Error("view should name the table")
		}
		if !strings.Contains(view, "1/2 partitions") {
			t.Error("view should show partition counter")
		}
	})
}

func TestRenderResultLine(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		line := renderResultLine(PartitionResult{
			DateKey:      "2024-01-01",
			RowCount:     500,
			BytesWritten: 1024,
		})
		if !strings.Contains(line, "✅") || !strings.Contains(line, "2024-01-01") {
			t.Errorf("unexpected success line: %s", line)
		}
	})

	t.Run("failure names the stage", func(t *testing.T) {
		line := renderResultLine(PartitionResult{
			DateKey: "2024-01-01",
			Stage:   StageUploading,
			Error:   errors.New("access denied"),
		})
		if !strings.Contains(line, StageUploading) {
			t.Errorf("failure line should name the stage: %s", line)
		}
	})

	t.Run("skipped", func(t *testing.T) {
		line := renderResultLine(PartitionResult{
			DateKey:    "2024-01-01",
			Skipped:    true,
			SkipReason: "dry-run: upload and delete skipped",
			Duration:   time.Second,
		})
		if !strings.Contains(line, "dry-run") {
			t.Errorf("skipped line should carry the reason: %s", line)
		}
	})

	t.Run("delete skipped", func(t *testing.T) {
		line := renderResultLine(PartitionResult{
			DateKey:       "2024-01-01",
			DeleteSkipped: true,
			SkipReason:    "primary key column missing from exported rows, delete skipped",
		})
		if !strings.Contains(line, "delete skipped") {
			t.Errorf("delete-skipped line should say so: %s", line)
		}
	})
}
