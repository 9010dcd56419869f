package hfp

import (
	"strconv"
	"strings"
)

// AT command types, derived from the characters following the command name.
type atCommandType int

const (
	atTypeUnknown atCommandType = iota
	atTypeRead                  // AT+CMD?
	atTypeTest                  // AT+CMD=?
	atTypeSet                   // AT+CMD=...
)

// Bluetooth SIG assigned company identifiers for vendor AT commands.
const (
	companyPlantronics = 85
	companyApple       = 76
)

// Vendor-specific AT commands accepted from peers, mapped to the
// company identifier they are broadcast under.
var vendorCommandCompanyIDs = map[string]int{
	"+XEVENT":      companyPlantronics,
	"+XAPL":        companyApple,
	"+IPHONEACCEV": companyApple,
}

// HF indicator IDs carried by AT+BIND and AT+BIEV.
const (
	IndicatorEnhancedDriverSafety = 1
	IndicatorBatteryLevel         = 2
)

// normalizeUnknownAt uppercases an unknown AT command and strips spaces,
// leaving quoted sections untouched. An unmatched quote is closed.
func normalizeUnknownAt(atString string) string {
	var out strings.Builder
	out.Grow(len(atString))

	for i := 0; i < len(atString); i++ {
		c := atString[i]
		if c == '"' {
			j := strings.IndexByte(atString[i+1:], '"')
			if j == -1 {
				out.WriteString(atString[i:])
				out.WriteByte('"')
				break
			}

			out.WriteString(atString[i : i+j+2])
			i += j + 1
		} else if c != ' ' {
			out.WriteByte(byte(toUpper(c)))
		}
	}

	return out.String()
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}

	return c
}

// commandType classifies a normalized AT command of the form
// "+NAME..." by the characters after the five-character prefix.
func commandType(atCommand string) atCommandType {
	atCommand = strings.TrimSpace(atCommand)
	if len(atCommand) <= 5 {
		return atTypeUnknown
	}

	rest := atCommand[5:]
	switch {
	case strings.HasPrefix(rest, "?"):
		return atTypeRead
	case strings.HasPrefix(rest, "=?"):
		return atTypeTest
	case strings.HasPrefix(rest, "="):
		return atTypeSet
	}

	return atTypeUnknown
}

// findChar locates ch in input starting at fromIndex, skipping quoted
// sections. It returns len(input) if not found.
func findChar(ch byte, input string, fromIndex int) int {
	for i := fromIndex; i < len(input); i++ {
		c := input[i]
		if c == '"' {
			j := strings.IndexByte(input[i+1:], '"')
			if j == -1 {
				return len(input)
			}

			i += j + 1
		} else if c == ch {
			return i
		}
	}

	return len(input)
}

// generateArgs breaks a comma-delimited argument string into individual
// arguments; numeric arguments become ints, everything else stays a string.
func generateArgs(input string) []any {
	var out []any

	i := 0
	for i <= len(input) {
		j := findChar(',', input, i)

		arg := input[i:j]
		if n, err := strconv.Atoi(arg); err == nil {
			out = append(out, n)
		} else {
			out = append(out, arg)
		}

		i = j + 1
	}

	return out
}

// parseBindIndicators extracts the HF indicator IDs listed in an
// AT+BIND= argument string. Unparseable entries are skipped.
func parseBindIndicators(atString string) []int {
	var ids []int

	i := 0
	for i < len(atString) {
		j := findChar(',', atString, i)

		if id, err := strconv.Atoi(strings.TrimSpace(atString[i:j])); err == nil {
			ids = append(ids, id)
		}

		i = j + 1
	}

	return ids
}
