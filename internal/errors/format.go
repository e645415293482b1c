package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	be, ok := As(err)
	if !ok {
		be = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", be.Message)
	if be.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", be.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", be.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	be, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", be.Code),
		slog.String("error", be.Message),
		slog.String("category", string(be.Category)),
		slog.Bool("retryable", be.Retryable),
	}
	if be.Cause != nil {
		attrs = append(attrs, slog.String("cause", be.Cause.Error()))
	}

	keys := make([]string, 0, len(be.Details))
	for k := range be.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, be.Details[k]))
	}
	return attrs
}
