// Package tlv binds BER-TLV card templates to Go structs through
// struct tags. A field tagged `tlv:"4F"` receives the value of tag 4F;
// repeated tags accumulate into slice fields, which is how GET STATUS
// registry entries and load-file module lists arrive; a field tagged
// `tlv:",unknown"` collects whatever the struct does not bind.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshal decodes raw BER-TLV data and binds it into target, which
// must be a non-nil struct pointer.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets binds pre-decoded TLV packets into target.
// Every packet whose tag matches a tagged field is consumed; packets
// nothing binds are handed to the unknown collector, when present.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	t := v.Type()

	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		tagConfig := t.Field(i).Tag.Get("tlv")
		if tagConfig == "" || tagConfig == ",unknown" {
			continue
		}
		want := strings.ToUpper(strings.Split(tagConfig, ",")[0])

		for idx, packet := range packets {
			if strings.ToUpper(packet.Tag) != want {
				continue
			}
			if err := bindPacket(packet, v.Field(i)); err != nil {
				return err
			}
			consumed[idx] = true
		}
	}

	return collectUnknown(v, t, packets, consumed)
}

// bindPacket assigns one packet to a field. Slice fields other than
// []byte grow by one element per occurrence of the tag.
func bindPacket(packet bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := setValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return setValue(packet, field)
}

// setValue writes a packet into a leaf field: raw bytes for []byte,
// recursive template binding for structs.
func setValue(packet bertlv.TLV, field reflect.Value) error {
	if isByteSlice(field) {
		field.SetBytes(rawValue(packet))
		return nil
	}

	if isStructTarget(field) {
		target := structPointer(field)
		if len(packet.TLVs) > 0 {
			return UnmarshalFromPackets(packet.TLVs, target.Interface())
		}
		return Unmarshal(packet.Value, target.Interface())
	}

	return nil
}

// collectUnknown stores the unbound packets in the struct's
// `tlv:",unknown"` field, if it declares one.
func collectUnknown(v reflect.Value, t reflect.Type, packets []bertlv.TLV, consumed map[int]bool) error {
	collector, found := findUnknownField(v, t)
	if !found {
		return nil
	}

	var leftovers []bertlv.TLV
	for idx, packet := range packets {
		if !consumed[idx] {
			leftovers = append(leftovers, packet)
		}
	}

	if len(leftovers) > 0 && collector.CanSet() {
		collector.Set(reflect.ValueOf(leftovers))
	}
	return nil
}

func findUnknownField(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("tlv") == ",unknown" {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// rawValue returns the packet payload, re-encoding the children of a
// constructed tag so byte-slice fields see the full template body.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructTarget(v reflect.Value) bool {
	if v.Kind() == reflect.Struct {
		return true
	}
	return v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct
}

// structPointer returns an addressable pointer to the field, allocating
// a nil pointer field first.
func structPointer(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field.Addr()
}
