package cmd

import (
	"sort"
	"time"
)

// Partition is a group of rows sharing the same UTC calendar date on the
// configured timestamp column.
type Partition struct {
	Date time.Time // UTC midnight of the partition's calendar date
	Rows []map[string]interface{}
}

// Key returns the partition's date key in YYYY-MM-DD form.
func (p Partition) Key() string {
	return p.Date.Format("2006-01-02")
}

// timestampLayouts covers the shapes row_to_json emits for timestamp and
// timestamptz columns, plus a bare date. Layouts without a zone are parsed
// as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRowTimestamp interprets a raw column value as a point in time,
// normalized to UTC.
func parseRowTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// PartitionByDate filters out rows newer than the cutoff and groups the
// remaining rows by the UTC calendar date of the timestamp column. Every
// qualifying row lands in exactly one partition; rows whose timestamp column
// is missing or unparseable are left out and counted so the caller can report
// them. Partitions are returned in ascending date order.
func PartitionByDate(rows []map[string]interface{}, timestampColumn string, cutoff time.Time) ([]Partition, int) {
	grouped := make(map[string]*Partition)
	skipped := 0

	for _, row := range rows {
		ts, ok := parseRowTimestamp(row[timestampColumn])
		if !ok {
			skipped++
			continue
		}
		if ts.After(cutoff) {
			continue
		}

		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		key := date.Format("2006-01-02")
		partition, found := grouped[key]
		if !found {
			partition = &Partition{Date: date}
			grouped[key] = partition
		}
		partition.Rows = append(partition.Rows, row)
	}

	partitions := make([]Partition, 0, len(grouped))
	for _, partition := range grouped {
		partitions = append(partitions, *partition)
	}
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].Date.Before(partitions[j].Date)
	})

	return partitions, skipped
}
