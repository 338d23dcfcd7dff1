// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
)

// Class discriminators marshaled with each property value kind.
const (
	classPrimitiveValue = "PrimitivePropertyValue"
	classEnumValue      = "EnumPropertyValue"
	classArrayValue     = "ArrayPropertyValue"
	classMapValue       = "MapPropertyValue"
)

// PropertyValue is one property of an instance. The concrete kinds
// are PrimitiveValue, EnumValue, ArrayValue and MapValue; the set is
// closed and each kind marshals itself with a class discriminator.
type PropertyValue interface {
	// Class returns the discriminator written to the wire for this
	// value kind.
	Class() string

	// Copy returns an independent deep copy of the value.
	Copy() PropertyValue

	// Equal reports whether other carries the same value.
	Equal(other PropertyValue) bool
}

// Properties maps property names to their values.
type Properties map[string]PropertyValue

// Copy returns an independent deep copy of the property map.
func (p Properties) Copy() Properties {
	if p == nil {
		return nil
	}
	cp := make(Properties, len(p))
	for name, value := range p {
		cp[name] = value.Copy()
	}
	return cp
}

// Equal reports whether both maps hold the same properties.
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for name, value := range p {
		otherValue, ok := other[name]
		if !ok || !value.Equal(otherValue) {
			return false
		}
	}
	return true
}

// UnmarshalJSON implements json.Unmarshaler, dispatching each value
// on its class discriminator. Null values are elided.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Trace(err)
	}
	properties := make(Properties, len(raw))
	for name, value := range raw {
		if string(value) == "null" {
			continue
		}
		propertyValue, err := unmarshalPropertyValue(value)
		if err != nil {
			return errors.Annotatef(err, "property %q", name)
		}
		properties[name] = propertyValue
	}
	*p = properties
	return nil
}

func unmarshalPropertyValue(data json.RawMessage) (PropertyValue, error) {
	var discriminator struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal(data, &discriminator); err != nil {
		return nil, errors.Trace(err)
	}
	switch discriminator.Class {
	case classPrimitiveValue:
		var value PrimitiveValue
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, errors.Trace(err)
		}
		return value, nil
	case classEnumValue:
		var value EnumValue
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, errors.Trace(err)
		}
		return value, nil
	case classArrayValue:
		var value ArrayValue
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, errors.Trace(err)
		}
		return value, nil
	case classMapValue:
		var value MapValue
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, errors.Trace(err)
		}
		return value, nil
	}
	return nil, errors.NotSupportedf("property value class %q", discriminator.Class)
}

// PrimitiveCategory names the wire type of a primitive property value.
type PrimitiveCategory string

const (
	PrimitiveBoolean PrimitiveCategory = "boolean"
	PrimitiveInt     PrimitiveCategory = "int"
	PrimitiveLong    PrimitiveCategory = "long"
	PrimitiveFloat   PrimitiveCategory = "float"
	PrimitiveDouble  PrimitiveCategory = "double"
	PrimitiveString  PrimitiveCategory = "string"
	PrimitiveDate    PrimitiveCategory = "date"
)

// Validate returns an error if the category is not recognized.
func (c PrimitiveCategory) Validate() error {
	switch c {
	case PrimitiveBoolean, PrimitiveInt, PrimitiveLong, PrimitiveFloat,
		PrimitiveDouble, PrimitiveString, PrimitiveDate:
		return nil
	}
	return errors.NotValidf("primitive category %q", string(c))
}

// PrimitiveValue is a single typed scalar. Value holds the Go
// representation matching Category: bool, int64, float64, string or
// time.Time.
type PrimitiveValue struct {
	Category PrimitiveCategory
	Value    interface{}
}

// NewBoolValue returns a boolean property value.
func NewBoolValue(v bool) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveBoolean, Value: v}
}

// NewIntValue returns an int property value.
func NewIntValue(v int64) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveInt, Value: v}
}

// NewLongValue returns a long property value.
func NewLongValue(v int64) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveLong, Value: v}
}

// NewDoubleValue returns a double property value.
func NewDoubleValue(v float64) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveDouble, Value: v}
}

// NewStringValue returns a string property value.
func NewStringValue(v string) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveString, Value: v}
}

// NewDateValue returns a date property value, normalized to UTC.
func NewDateValue(v time.Time) PrimitiveValue {
	return PrimitiveValue{Category: PrimitiveDate, Value: v.UTC()}
}

// Class is part of PropertyValue.
func (p PrimitiveValue) Class() string {
	return classPrimitiveValue
}

// Copy is part of PropertyValue. Primitive values hold immutable
// scalars, so a shallow copy is a deep copy.
func (p PrimitiveValue) Copy() PropertyValue {
	return p
}

// Equal is part of PropertyValue.
func (p PrimitiveValue) Equal(other PropertyValue) bool {
	o, ok := other.(PrimitiveValue)
	if !ok || o.Category != p.Category {
		return false
	}
	if t, ok := p.Value.(time.Time); ok {
		ot, ok := o.Value.(time.Time)
		return ok && t.Equal(ot)
	}
	return p.Value == o.Value
}

// StringValue returns the held string and true when the value is a
// string primitive. Search operations match only string primitives.
func (p PrimitiveValue) StringValue() (string, bool) {
	if p.Category != PrimitiveString {
		return "", false
	}
	s, ok := p.Value.(string)
	return s, ok
}

// MarshalJSON implements json.Marshaler.
func (p PrimitiveValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Class    string            `json:"class"`
		Category PrimitiveCategory `json:"category"`
		Value    interface{}       `json:"value"`
	}{classPrimitiveValue, p.Category, p.Value})
}

// UnmarshalJSON implements json.Unmarshaler, coercing the decoded
// value to the Go representation declared by the category.
func (p *PrimitiveValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Category PrimitiveCategory `json:"category"`
		Value    json.RawMessage   `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Trace(err)
	}
	value, err := decodePrimitive(raw.Category, raw.Value)
	if err != nil {
		return errors.Trace(err)
	}
	*p = PrimitiveValue{Category: raw.Category, Value: value}
	return nil
}

func decodePrimitive(category PrimitiveCategory, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch category {
	case PrimitiveBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	case PrimitiveInt, PrimitiveLong:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	case PrimitiveFloat, PrimitiveDouble:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	case PrimitiveString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	case PrimitiveDate:
		var v time.Time
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	}
	return nil, errors.NotValidf("primitive category %q", string(category))
}

// EnumValue is a symbol from an enumerated attribute type.
type EnumValue struct {
	Ordinal     int    `json:"ordinal"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
}

// NewEnumValue returns an enum property value.
func NewEnumValue(ordinal int, symbol string) EnumValue {
	return EnumValue{Ordinal: ordinal, Symbol: symbol}
}

// Class is part of PropertyValue.
func (v EnumValue) Class() string {
	return classEnumValue
}

// Copy is part of PropertyValue.
func (v EnumValue) Copy() PropertyValue {
	return v
}

// Equal is part of PropertyValue. Descriptions are advisory and do
// not take part in equality.
func (v EnumValue) Equal(other PropertyValue) bool {
	o, ok := other.(EnumValue)
	return ok && o.Ordinal == v.Ordinal && o.Symbol == v.Symbol
}

// MarshalJSON implements json.Marshaler.
func (v EnumValue) MarshalJSON() ([]byte, error) {
	type enumValueJSON EnumValue
	return json.Marshal(struct {
		Class string `json:"class"`
		enumValueJSON
	}{classEnumValue, enumValueJSON(v)})
}

// ArrayValue is an ordered collection of property values.
type ArrayValue struct {
	Values []PropertyValue `json:"values"`
}

// NewArrayValue returns an array property value over the given
// elements.
func NewArrayValue(values ...PropertyValue) ArrayValue {
	return ArrayValue{Values: values}
}

// Class is part of PropertyValue.
func (v ArrayValue) Class() string {
	return classArrayValue
}

// Copy is part of PropertyValue.
func (v ArrayValue) Copy() PropertyValue {
	if v.Values == nil {
		return ArrayValue{}
	}
	values := make([]PropertyValue, len(v.Values))
	for i, value := range v.Values {
		values[i] = value.Copy()
	}
	return ArrayValue{Values: values}
}

// Equal is part of PropertyValue.
func (v ArrayValue) Equal(other PropertyValue) bool {
	o, ok := other.(ArrayValue)
	if !ok || len(o.Values) != len(v.Values) {
		return false
	}
	for i, value := range v.Values {
		if !value.Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (v ArrayValue) MarshalJSON() ([]byte, error) {
	type arrayValueJSON ArrayValue
	return json.Marshal(struct {
		Class string `json:"class"`
		arrayValueJSON
	}{classArrayValue, arrayValueJSON(v)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *ArrayValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Trace(err)
	}
	if raw.Values == nil {
		*v = ArrayValue{}
		return nil
	}
	values := make([]PropertyValue, len(raw.Values))
	for i, value := range raw.Values {
		propertyValue, err := unmarshalPropertyValue(value)
		if err != nil {
			return errors.Annotatef(err, "element %d", i)
		}
		values[i] = propertyValue
	}
	*v = ArrayValue{Values: values}
	return nil
}

// MapValue is a nested map of named property values.
type MapValue struct {
	Values Properties `json:"values"`
}

// NewMapValue returns a map property value over the given properties.
func NewMapValue(values Properties) MapValue {
	return MapValue{Values: values}
}

// Class is part of PropertyValue.
func (v MapValue) Class() string {
	return classMapValue
}

// Copy is part of PropertyValue.
func (v MapValue) Copy() PropertyValue {
	return MapValue{Values: v.Values.Copy()}
}

// Equal is part of PropertyValue.
func (v MapValue) Equal(other PropertyValue) bool {
	o, ok := other.(MapValue)
	return ok && v.Values.Equal(o.Values)
}

// MarshalJSON implements json.Marshaler.
func (v MapValue) MarshalJSON() ([]byte, error) {
	type mapValueJSON MapValue
	return json.Marshal(struct {
		Class string `json:"class"`
		mapValueJSON
	}{classMapValue, mapValueJSON(v)})
}
