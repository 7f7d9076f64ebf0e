package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/tpokki/wolf_exporter/smartset"
)

// WolfAPI is the part of smartset.Client the exporter relies on.
type WolfAPI interface {
	FetchSystemList(ctx context.Context) ([]smartset.Device, error)
	FetchParameters(ctx context.Context, gatewayId, systemId int64) ([]smartset.Parameter, error)
	FetchValue(ctx context.Context, gatewayId, systemId int64, parameters []smartset.Parameter) ([]smartset.Value, error)
}

// ValueMirror receives every polled value, e.g. to republish it over MQTT.
type ValueMirror interface {
	Publish(system smartset.Device, parameter smartset.Parameter, value smartset.Value) error
}

type System struct {
	device     smartset.Device
	parameters []smartset.Parameter
	byValueId  map[int64]smartset.Parameter
}

func newSystem(device smartset.Device, parameters []smartset.Parameter) *System {
	byValueId := make(map[int64]smartset.Parameter, len(parameters))
	for _, p := range parameters {
		byValueId[p.ValueId] = p
	}
	return &System{device: device, parameters: parameters, byValueId: byValueId}
}

// numericValue converts a polled value to a float. The portal formats
// decimals with either a point or a comma; on/off flags are reported as text.
func numericValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true", "ein", "on":
		return 1, true
	case "false", "aus", "off":
		return 0, true
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
