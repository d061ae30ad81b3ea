package cmd

import (
	"fmt"
	"strings"
	"time"
)

// DefaultKeyTemplate produces the {table}/{format}/{date} prefix layout.
const DefaultKeyTemplate = "{table}/{format}/{date}"

// KeyTemplate generates object key prefixes from a template string.
type KeyTemplate struct {
	template string
}

// NewKeyTemplate creates a new KeyTemplate instance
func NewKeyTemplate(template string) *KeyTemplate {
	return &KeyTemplate{template: template}
}

// Generate replaces placeholders in the template with actual values.
// Supports: {table}, {format}, {date}, {YYYY}, {MM}, {DD}
func (kt *KeyTemplate) Generate(tableName, format string, date time.Time) string {
	result := kt.template

	result = strings.ReplaceAll(result, "{table}", tableName)
	result = strings.ReplaceAll(result, "{format}", format)
	result = strings.ReplaceAll(result, "{date}", date.Format("2006-01-02"))

	result = strings.ReplaceAll(result, "{YYYY}", date.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", date.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", date.Format("02"))

	return result
}

// GenerateExportFilename builds the partition file name:
// {table}_{date}_{run-time}{format ext}{compression ext}. The run time
// disambiguates multiple runs exporting the same partition date.
func GenerateExportFilename(tableName string, date, runTime time.Time, formatExt, compressionExt string) string {
	basename := fmt.Sprintf("%s_%s_%s",
		tableName,
		date.Format("2006-01-02"),
		runTime.Format("15-04-05"),
	)

	filename := basename + formatExt
	if compressionExt != "" {
		filename += compressionExt
	}

	return filename
}

// GenerateObjectKey builds the full destination key for one partition file.
func GenerateObjectKey(template, tableName, format string, date, runTime time.Time, formatExt, compressionExt string) string {
	prefix := NewKeyTemplate(template).Generate(tableName, format, date)
	filename := GenerateExportFilename(tableName, date, runTime, formatExt, compressionExt)
	return prefix + "/" + filename
}
