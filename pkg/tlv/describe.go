package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields appends a hex dump of a bound template to sb, one
// line per populated byte-slice field, tagged fields annotated with
// their tag. Unbound packets from a `tlv:",unknown"` collector are
// listed after the named fields.
//
// Lines are newline-joined without a trailing newline; when sb already
// holds text a separating newline is prepended. Callers interleave
// their own lines in the same format, so both properties matter.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)

		switch {
		case isByteSlice(field):
			if line := fieldLine(prefix, field, typ.Field(i)); line != "" {
				lines = append(lines, line)
			}
		case field.Type() == reflect.TypeOf([]bertlv.TLV{}):
			lines = append(lines, unknownLines(prefix, field)...)
		}
	}

	if len(lines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}
}

func fieldLine(prefix string, field reflect.Value, fieldType reflect.StructField) string {
	if field.IsNil() || field.Len() == 0 {
		return ""
	}

	name := fieldType.Name
	if tag := fieldType.Tag.Get("tlv"); tag != "" {
		name = fmt.Sprintf("%s (%s)", name, tag)
	}

	value := strings.ToUpper(hex.EncodeToString(field.Bytes()))
	return fmt.Sprintf("    - %s.%s: %s", prefix, name, value)
}

func unknownLines(prefix string, field reflect.Value) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	var lines []string
	for _, t := range field.Interface().([]bertlv.TLV) {
		value := strings.ToUpper(hex.EncodeToString(t.Value))
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, t.Tag, value))
	}
	return lines
}
