// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package instance_test

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/metafed/core/instance"
)

type PropertiesSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&PropertiesSuite{})

func (s *PropertiesSuite) TestRoundTrip(c *gc.C) {
	when := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	original := instance.Properties{
		"name":     instance.NewStringValue("orders"),
		"rows":     instance.NewLongValue(12345),
		"retries":  instance.NewIntValue(3),
		"ratio":    instance.NewDoubleValue(0.25),
		"archived": instance.NewBoolValue(false),
		"since":    instance.NewDateValue(when),
		"level":    instance.NewEnumValue(2, "CONFIDENTIAL"),
		"tags": instance.NewArrayValue(
			instance.NewStringValue("finance"),
			instance.NewStringValue("sales"),
		),
		"extra": instance.NewMapValue(instance.Properties{
			"owner": instance.NewStringValue("data-office"),
		}),
	}

	data, err := json.Marshal(original)
	c.Assert(err, jc.ErrorIsNil)

	var decoded instance.Properties
	err = json.Unmarshal(data, &decoded)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(decoded.Equal(original), jc.IsTrue)
	c.Assert(original.Equal(decoded), jc.IsTrue)
}

func (s *PropertiesSuite) TestMarshalWritesClass(c *gc.C) {
	data, err := json.Marshal(instance.Properties{
		"name": instance.NewStringValue("orders"),
	})
	c.Assert(err, jc.ErrorIsNil)

	var raw map[string]map[string]interface{}
	err = json.Unmarshal(data, &raw)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(raw["name"]["class"], gc.Equals, "PrimitivePropertyValue")
	c.Assert(raw["name"]["category"], gc.Equals, "string")
	c.Assert(raw["name"]["value"], gc.Equals, "orders")
}

func (s *PropertiesSuite) TestUnmarshalIgnoresUnknownFields(c *gc.C) {
	payload := `{
		"name": {
			"class": "PrimitivePropertyValue",
			"category": "string",
			"value": "orders",
			"somethingNew": true
		}
	}`
	var decoded instance.Properties
	err := json.Unmarshal([]byte(payload), &decoded)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(decoded["name"].Equal(instance.NewStringValue("orders")), jc.IsTrue)
}

func (s *PropertiesSuite) TestUnmarshalElidesNullValues(c *gc.C) {
	payload := `{"gone": null, "name": {"class": "PrimitivePropertyValue", "category": "string", "value": "x"}}`
	var decoded instance.Properties
	err := json.Unmarshal([]byte(payload), &decoded)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(decoded, gc.HasLen, 1)
	_, ok := decoded["gone"]
	c.Assert(ok, jc.IsFalse)
}

func (s *PropertiesSuite) TestUnmarshalRejectsUnknownClass(c *gc.C) {
	payload := `{"name": {"class": "MysteryValue", "value": 1}}`
	var decoded instance.Properties
	err := json.Unmarshal([]byte(payload), &decoded)
	c.Assert(err, jc.ErrorIs, errors.NotSupported)
	c.Assert(err, gc.ErrorMatches, `.*property value class "MysteryValue" not supported`)
}

func (s *PropertiesSuite) TestLongSurvivesLargeValues(c *gc.C) {
	original := instance.Properties{
		"big": instance.NewLongValue(1 << 60),
	}
	data, err := json.Marshal(original)
	c.Assert(err, jc.ErrorIsNil)

	var decoded instance.Properties
	err = json.Unmarshal(data, &decoded)
	c.Assert(err, jc.ErrorIsNil)
	value, ok := decoded["big"].(instance.PrimitiveValue)
	c.Assert(ok, jc.IsTrue)
	c.Assert(value.Value, gc.Equals, int64(1<<60))
}

func (s *PropertiesSuite) TestCopyIsIndependent(c *gc.C) {
	original := instance.Properties{
		"tags": instance.NewArrayValue(instance.NewStringValue("finance")),
		"extra": instance.NewMapValue(instance.Properties{
			"owner": instance.NewStringValue("data-office"),
		}),
	}
	copied := original.Copy()

	original["tags"] = instance.NewArrayValue(instance.NewStringValue("changed"))
	nested := original["extra"].(instance.MapValue)
	nested.Values["owner"] = instance.NewStringValue("changed")

	c.Assert(copied["tags"].Equal(instance.NewArrayValue(instance.NewStringValue("finance"))), jc.IsTrue)
	copiedNested := copied["extra"].(instance.MapValue)
	c.Assert(copiedNested.Values["owner"].Equal(instance.NewStringValue("data-office")), jc.IsTrue)
}

func (s *PropertiesSuite) TestEnumEqualityIgnoresDescription(c *gc.C) {
	a := instance.EnumValue{Ordinal: 1, Symbol: "INTERNAL", Description: "old words"}
	b := instance.EnumValue{Ordinal: 1, Symbol: "INTERNAL", Description: "new words"}
	c.Assert(a.Equal(b), jc.IsTrue)

	b.Symbol = "PUBLIC"
	c.Assert(a.Equal(b), jc.IsFalse)
}

func (s *PropertiesSuite) TestArrayEqualityIsOrdered(c *gc.C) {
	a := instance.NewArrayValue(instance.NewStringValue("x"), instance.NewStringValue("y"))
	b := instance.NewArrayValue(instance.NewStringValue("y"), instance.NewStringValue("x"))
	c.Assert(a.Equal(b), jc.IsFalse)
}

func (s *PropertiesSuite) TestDateEqualityAcrossZones(c *gc.C) {
	utc := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("plus2", 2*60*60))
	c.Assert(instance.NewDateValue(utc).Equal(instance.NewDateValue(offset)), jc.IsTrue)
}

func (s *PropertiesSuite) TestPrimitiveCategoryValidate(c *gc.C) {
	c.Assert(instance.PrimitiveString.Validate(), jc.ErrorIsNil)
	err := instance.PrimitiveCategory("blob").Validate()
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}
