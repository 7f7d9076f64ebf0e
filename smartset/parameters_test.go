package smartset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestMapParameter_Units(t *testing.T) {
	tests := []struct {
		unit string
		kind Kind
		want string
	}{
		{"°C", KindTemperature, "°C"},
		{"bar", KindPressure, "bar"},
		{"%", KindPercentage, "%"},
		{"Std", KindHours, "H"},
		{"kW", KindSimple, ""},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			p, err := mapParameter(parameterDescriptor{
				ValueId:     7,
				Name:        "Vorlauf",
				ParameterId: 70,
				Unit:        unitJSON(tt.unit),
			}, "Heizung")
			require.NoError(t, err)

			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.want, p.Unit())
			assert.Equal(t, int64(7), p.ValueId)
			assert.Equal(t, int64(70), p.ParameterId)
			assert.Equal(t, "Vorlauf", p.Name)
			assert.Equal(t, "Heizung", p.Parent)
		})
	}
}

func TestMapParameter_UnknownUnitIgnoresListItems(t *testing.T) {
	p, err := mapParameter(parameterDescriptor{
		ValueId:   1,
		Name:      "Mode",
		Unit:      unitJSON("kWh"),
		ListItems: []listItemDescriptor{{Value: "1", DisplayText: "On"}},
	}, "Tab")
	require.NoError(t, err)
	assert.Equal(t, KindSimple, p.Kind)
	assert.Nil(t, p.Items)
}

func TestMapParameter_NullUnitIsSimple(t *testing.T) {
	var d parameterDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{
		"ValueId": 1, "Name": "Mode", "ParameterId": 2, "Unit": null,
		"ListItems": [{"Value": 1, "DisplayText": "On"}]
	}`), &d))

	p, err := mapParameter(d, "Tab")
	require.NoError(t, err)
	assert.Equal(t, KindSimple, p.Kind)
	assert.Nil(t, p.Items)
}

func TestMapParameter_ListItemsKeepOrder(t *testing.T) {
	p, err := mapParameter(parameterDescriptor{
		ValueId: 3,
		Name:    "Betriebsart",
		ListItems: []listItemDescriptor{
			{Value: "2", DisplayText: "Automatik"},
			{Value: "0", DisplayText: "Aus"},
			{Value: "1", DisplayText: "Dauerbetrieb"},
		},
	}, "Heizung")
	require.NoError(t, err)

	assert.Equal(t, KindList, p.Kind)
	assert.Equal(t, "", p.Unit())
	assert.Equal(t, []ListItem{
		{Value: 2, DisplayText: "Automatik"},
		{Value: 0, DisplayText: "Aus"},
		{Value: 1, DisplayText: "Dauerbetrieb"},
	}, p.Items)
}

func TestMapParameter_Simple(t *testing.T) {
	p, err := mapParameter(parameterDescriptor{ValueId: 4, Name: "Status"}, "Anlage")
	require.NoError(t, err)
	assert.Equal(t, KindSimple, p.Kind)
	assert.Equal(t, "", p.Unit())
}

func TestMapParameter_BadListItemValue(t *testing.T) {
	_, err := mapParameter(parameterDescriptor{
		ValueId:   5,
		Name:      "Broken",
		ListItems: []listItemDescriptor{{Value: "abc", DisplayText: "?"}},
	}, "Tab")
	assert.Error(t, err)
}

func TestMapView_HeatingSchemaUnits(t *testing.T) {
	var view tabView
	require.NoError(t, json.Unmarshal([]byte(`{
		"TabName": "Schema",
		"SVGHeatingSchemaConfigDevices": [{"parameters": [
			{"valueId": 10, "unit": "°C"},
			{"valueId": 11},
			{"valueId": 12, "unit": "bar"}
		]}],
		"ParameterDescriptors": [
			{"ValueId": 10, "Name": "Kessel", "ParameterId": 1},
			{"ValueId": 11, "Name": "Pumpe", "ParameterId": 2},
			{"ValueId": 12, "Name": "Druck", "ParameterId": 3, "Unit": "%"}
		]
	}`), &view))

	params, err := mapView(view)
	require.NoError(t, err)
	require.Len(t, params, 3)

	assert.Equal(t, KindTemperature, params[0].Kind)
	assert.Equal(t, KindSimple, params[1].Kind)
	assert.Equal(t, KindPressure, params[2].Kind)
	for _, p := range params {
		assert.Equal(t, "Schema", p.Parent)
	}
}

func TestFlattenViews_LaterViewWins(t *testing.T) {
	v1 := []Parameter{{ValueId: 1, Name: "A", Parent: "V1"}}
	v2 := []Parameter{{ValueId: 1, Name: "B", Parent: "V2"}}

	flattened := flattenViews([][]Parameter{v1, v2})

	require.Len(t, flattened, 1)
	assert.Equal(t, "B", flattened[0].Name)
	assert.Equal(t, "V2", flattened[0].Parent)
}

func TestFlattenViews_NameAndIdDedup(t *testing.T) {
	v1 := []Parameter{
		{ValueId: 1, Name: "A"},
		{ValueId: 2, Name: "Shared"},
		{ValueId: 3, Name: "C"},
	}
	v2 := []Parameter{
		{ValueId: 20, Name: "Shared"},
		{ValueId: 21, Name: "D"},
		{ValueId: 21, Name: "E"},
	}

	flattened := flattenViews([][]Parameter{v1, v2})

	var ids []int64
	for _, p := range flattened {
		ids = append(ids, p.ValueId)
	}
	assert.Equal(t, []int64{20, 21, 1, 3}, ids)
}

func TestParameter_String(t *testing.T) {
	p := Parameter{Kind: KindTemperature, ValueId: 9, Name: "Aussen", Parent: "Anlage", ParameterId: 90}
	assert.Equal(t, "Temperature -> Aussen[90][9] of Anlage unit: [°C]", p.String())

	l := Parameter{Kind: KindList, ValueId: 1, Name: "Mode", Parent: "T", ParameterId: 2,
		Items: []ListItem{{Value: 0, DisplayText: "Off"}, {Value: 1, DisplayText: "On"}}}
	assert.Equal(t, "List -> Mode[2][1] of T items: 0 -> Off, 1 -> On", l.String())
}
