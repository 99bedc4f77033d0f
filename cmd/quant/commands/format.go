package commands

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	fmt.Println(tableRow(columns, widths))
	fmt.Println(strings.Repeat("─", tableWidth(widths)))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	fmt.Println(tableRow(values, widths))
}

// tableRow pads each cell to its width, two spaces between cells
func tableRow(values []string, widths []int) string {
	var b strings.Builder
	for i, val := range values {
		if i > 0 {
			b.WriteString("  ")
		}
		if i < len(widths) {
			fmt.Fprintf(&b, "%-*s", widths[i], val)
		} else {
			b.WriteString(val)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// tableWidth total printed width including spacing
func tableWidth(widths []int) int {
	total := 0
	for i, width := range widths {
		total += width
		if i > 0 {
			total += 2
		}
	}
	return total
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}
