package smartset

import (
	"encoding/json"
	"strings"
)

const (
	systemListPath     = "api/portal/GetSystemList"
	guiDescriptionPath = "api/portal/GetGuiDescriptionForGateway"
	parameterValuePath = "api/portal/GetParameterValues"
	createSession2Path = "api/portal/CreateSession2"
	createSessionPath  = "api/portal/CreateSession"

	bundleID = 1000

	readParameterError = "internal msg: ReadParameterValues error"
)

type systemResult struct {
	Id        int64  `json:"Id"`
	GatewayId int64  `json:"GatewayId"`
	Name      string `json:"Name"`
}

type guiDescription struct {
	MenuItems []menuItem `json:"MenuItems"`
}

type menuItem struct {
	TabViews []tabView `json:"TabViews"`
}

type tabView struct {
	TabName                       string                `json:"TabName"`
	ParameterDescriptors          []parameterDescriptor `json:"ParameterDescriptors"`
	SVGHeatingSchemaConfigDevices []heatingSchemaDevice `json:"SVGHeatingSchemaConfigDevices"`
}

type parameterDescriptor struct {
	ValueId     int64                `json:"ValueId"`
	Name        string               `json:"Name"`
	ParameterId int64                `json:"ParameterId"`
	Unit        json.RawMessage      `json:"Unit"`
	ListItems   []listItemDescriptor `json:"ListItems"`
}

type listItemDescriptor struct {
	Value       json.Number `json:"Value"`
	DisplayText string      `json:"DisplayText"`
}

type heatingSchemaDevice struct {
	Parameters []heatingSchemaParameter `json:"parameters"`
}

type heatingSchemaParameter struct {
	ValueId int64           `json:"valueId"`
	Unit    json.RawMessage `json:"unit"`
}

type valuesRequest struct {
	BundleId     int     `json:"BundleId"`
	IsSubBundle  bool    `json:"IsSubBundle"`
	ValueIdList  []int64 `json:"ValueIdList"`
	GatewayId    int64   `json:"GatewayId"`
	SystemId     int64   `json:"SystemId"`
	GuiIdChanged bool    `json:"GuiIdChanged"`
	SessionId    string  `json:"SessionId"`
	LastAccess   *string `json:"LastAccess"`
}

type valuesResult struct {
	Values     []valueResult   `json:"Values"`
	LastAccess *string         `json:"LastAccess"`
	ErrorCode  json.RawMessage `json:"ErrorCode"`
	ErrorType  json.RawMessage `json:"ErrorType"`
	Message    string          `json:"Message"`
}

type valueResult struct {
	ValueId int64           `json:"ValueId"`
	Value   json.RawMessage `json:"Value"`
	State   json.RawMessage `json:"State"`
}

type browserSessionResult struct {
	BrowserSessionId json.RawMessage `json:"BrowserSessionId"`
}

// rawText renders a scalar JSON value as plain text: strings are unquoted,
// null becomes empty, numbers and booleans are kept verbatim.
func rawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
