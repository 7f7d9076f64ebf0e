package smartset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindSimple Kind = iota
	KindTemperature
	KindPressure
	KindHours
	KindPercentage
	KindList
)

var kindNames = [...]string{"Simple", "Temperature", "Pressure", "Hours", "Percentage", "List"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// unitKinds maps the unit literal reported by the portal to the parameter
// kind. Units not listed here produce simple parameters.
var unitKinds = map[string]Kind{
	"°C":  KindTemperature,
	"bar": KindPressure,
	"%":   KindPercentage,
	"Std": KindHours,
}

var kindUnits = map[Kind]string{
	KindTemperature: "°C",
	KindPressure:    "bar",
	KindPercentage:  "%",
	KindHours:       "H",
}

type ListItem struct {
	Value       int64
	DisplayText string
}

func (i ListItem) String() string {
	return fmt.Sprintf("%d -> %s", i.Value, i.DisplayText)
}

// Parameter is one entry of a system's parameter schema. ValueId links it
// to the Values returned by FetchValue.
type Parameter struct {
	Kind        Kind
	ValueId     int64
	Name        string
	Parent      string
	ParameterId int64
	// Items is only set for KindList, in portal order.
	Items []ListItem
}

// Unit returns the fixed unit label of unit-bearing kinds and "" otherwise.
func (p Parameter) Unit() string {
	return kindUnits[p.Kind]
}

func (p Parameter) String() string {
	s := fmt.Sprintf("%s -> %s[%d][%d] of %s", p.Kind, p.Name, p.ParameterId, p.ValueId, p.Parent)
	if unit := p.Unit(); unit != "" {
		s += " unit: [" + unit + "]"
	}
	if p.Kind == KindList {
		items := make([]string, len(p.Items))
		for i, item := range p.Items {
			items[i] = item.String()
		}
		s += " items: " + strings.Join(items, ", ")
	}
	return s
}

// mapParameter picks the kind from the Unit key when it is present, even
// when null, and only then from ListItems.
func mapParameter(d parameterDescriptor, parent string) (Parameter, error) {
	p := Parameter{
		Kind:        KindSimple,
		ValueId:     d.ValueId,
		Name:        d.Name,
		Parent:      parent,
		ParameterId: d.ParameterId,
	}

	switch {
	case d.Unit != nil:
		if kind, ok := unitKinds[rawText(d.Unit)]; ok {
			p.Kind = kind
		}
	case d.ListItems != nil:
		p.Kind = KindList
		p.Items = make([]ListItem, 0, len(d.ListItems))
		for _, item := range d.ListItems {
			v, err := listItemValue(item.Value)
			if err != nil {
				return Parameter{}, fmt.Errorf("parameter %d (%s): %w", d.ValueId, d.Name, err)
			}
			p.Items = append(p.Items, ListItem{Value: v, DisplayText: item.DisplayText})
		}
	}
	return p, nil
}

func listItemValue(n json.Number) (int64, error) {
	s := n.String()
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("list item value %q is not a number", s)
	}
	return int64(f), nil
}

// mapView maps the descriptors of one tab view. Units from a heating schema
// configuration replace the descriptor's own unit.
func mapView(view tabView) ([]Parameter, error) {
	var units map[int64]json.RawMessage
	if len(view.SVGHeatingSchemaConfigDevices) > 0 {
		units = make(map[int64]json.RawMessage)
		for _, sp := range view.SVGHeatingSchemaConfigDevices[0].Parameters {
			if sp.Unit != nil {
				units[sp.ValueId] = sp.Unit
			}
		}
	}

	params := make([]Parameter, 0, len(view.ParameterDescriptors))
	for _, d := range view.ParameterDescriptors {
		if unit, ok := units[d.ValueId]; ok {
			d.Unit = unit
		}
		p, err := mapParameter(d, view.TabName)
		if err != nil {
			return nil, fmt.Errorf("tab %q: %w", view.TabName, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// flattenViews merges per-view parameter lists, later views first. A
// parameter is dropped when its value id or its name was already taken, so
// the last view in portal order wins.
func flattenViews(views [][]Parameter) []Parameter {
	seenIds := make(map[int64]struct{})
	seenNames := make(map[string]struct{})
	var flattened []Parameter
	for i := len(views) - 1; i >= 0; i-- {
		for _, p := range views[i] {
			if _, ok := seenIds[p.ValueId]; ok {
				continue
			}
			if _, ok := seenNames[p.Name]; ok {
				continue
			}
			seenIds[p.ValueId] = struct{}{}
			seenNames[p.Name] = struct{}{}
			flattened = append(flattened, p)
		}
	}
	return flattened
}
