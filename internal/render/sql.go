package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/ordino/internal/models"
)

var (
	limitPattern     = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	tableNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
	leadingAlpha     = regexp.MustCompile(`^[a-zA-Z_]`)
)

// ApplyLimit caps the row count of a query, replacing an existing LIMIT
// clause or appending one.
func ApplyLimit(sql string, limit int) string {
	if limit <= 0 {
		return sql
	}
	collapsed := strings.Join(strings.Fields(sql), " ")
	if limitPattern.MatchString(collapsed) {
		return limitPattern.ReplaceAllString(collapsed, fmt.Sprintf("LIMIT %d", limit))
	}
	return fmt.Sprintf("%s LIMIT %d", collapsed, limit)
}

// SanitizeTableName normalizes a table name to alphanumerics and underscores
func SanitizeTableName(name string) string {
	sanitized := tableNamePattern.ReplaceAllString(name, "_")
	sanitized = underscoreRuns.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "table"
	}
	if !leadingAlpha.MatchString(sanitized) {
		sanitized = "table_" + sanitized
	}
	return sanitized
}

// DefaultTargetTable derives the target table for jobs that don't declare
// one: stg_<id> for loads, val_<id> for reconciliations.
func DefaultTargetTable(queryID string, kind models.JobKind) string {
	prefix := "stg"
	if kind == models.JobKindReconcile {
		prefix = "val"
	}
	return SanitizeTableName(prefix + "_" + queryID)
}

// TargetTableFor resolves the table a query job writes to. Reconcile output
// always lands in val_<query_id>; other kinds use the declared target table
// sanitized, falling back to the kind default. Writers and readers of job
// output must resolve through here so both sides agree on the stored name.
func TargetTableFor(job *models.Job) string {
	if job.Kind == models.JobKindReconcile || job.TargetTable == "" {
		return DefaultTargetTable(job.QueryID, job.Kind)
	}
	return SanitizeTableName(job.TargetTable)
}

// TruncateForLog shortens SQL text for log lines
func TruncateForLog(sql string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 200
	}
	if len(sql) <= maxLength {
		return sql
	}
	return sql[:maxLength] + "..."
}
