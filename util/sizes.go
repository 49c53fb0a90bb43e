package util

import (
	"fmt"
	"math"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// HumanReadableSize renders a byte count with 1024-based units and two decimals, eg "3.00 KB".
// Job classification and the export result both carry this exact format.
func HumanReadableSize(size int64) string {
	value := float64(size)
	index := 0
	for value >= 1024 && index < len(sizeUnits)-1 {
		value /= 1024
		index++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[index])
}

// BytesToGb converts a byte count to (binary) gigabytes.
func BytesToGb(size int64) float64 {
	return float64(size) / math.Pow(1024, 3)
}
