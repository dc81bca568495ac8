package format

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

const sizeSignificantDigits = 3

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB"}

// HumanSize renders a byte count in base 1024 with three significant
// digits and no trailing zeros: "0 Bytes", "1 Byte", "1.5 KB", "1.18 MB".
// Negative counts get a leading minus.
func HumanSize(bytes int64) string {
	if bytes < 0 {
		// -math.MinInt64 overflows int64 but not uint64.
		return "-" + humanSize(uint64(-(bytes+1))+1)
	}
	return humanSize(uint64(bytes))
}

func humanSize(bytes uint64) string {
	if bytes < 1024 {
		if bytes == 1 {
			return "1 Byte"
		}
		return strconv.FormatUint(bytes, 10) + " Bytes"
	}

	value := float64(bytes)
	exp := 0
	for value >= 1024 && exp < len(sizeUnits)-1 {
		value /= 1024
		exp++
	}

	intDigits := int(math.Floor(math.Log10(value))) + 1
	decimals := sizeSignificantDigits - intDigits
	step := math.Pow(10, float64(-decimals))
	rounded := math.Round(value/step) * step
	if decimals < 0 {
		decimals = 0
	}

	return humanize.FtoaWithDigits(rounded, decimals) + " " + sizeUnits[exp]
}
