package events

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/tracks/pkg/tags"
)

// Data types of the supported capture payloads.
const (
	DataTypeX11     = "x11_v2"
	DataTypeWindows = "windows_v1"
	DataTypeMacOS   = "macos_v1"
)

// Intrinsic tag names produced by payloads.
const (
	TagDeviceHostname = "device-hostname"
	TagDeviceOSType   = "device-os-type"
	TagWindowTitle    = "software-window-title"
	TagExecutablePath = "software-executable-path"
	TagProcessCwd     = "software-process-cwd"
	TagWindowClass    = "software-window-class"
	TagBundleID       = "software-bundle-id"
	TagUserIdle       = "user-idle"
)

// UnknownDataTypeError is returned for payloads no platform case handles.
type UnknownDataTypeError struct {
	DataType string
}

func (e UnknownDataTypeError) Error() string {
	return fmt.Sprintf("unknown event data type %q", e.DataType)
}

// Payload is the closed set of platform capture payloads. Each case knows
// how to extract its intrinsic tags.
type Payload interface {
	DataType() string
	IntrinsicTags() *tags.Tags
	isPayload()
}

// Window is the focused-window state shared by all platforms.
type Window struct {
	Title string `json:"title"`
	Exe   string `json:"exe"`
}

// X11 is a sample captured from an X11 session.
type X11 struct {
	Hostname string   `json:"hostname"`
	Window   Window   `json:"window"`
	WMClass  []string `json:"wm_class,omitempty"`
	Cwd      string   `json:"cwd,omitempty"`
	IdleMS   int64    `json:"idle_ms"`
}

// Windows is a sample captured on Microsoft Windows.
type Windows struct {
	Hostname string `json:"hostname"`
	Window   Window `json:"window"`
	IdleMS   int64  `json:"idle_ms"`
}

// MacOS is a sample captured on macOS.
type MacOS struct {
	Hostname string `json:"hostname"`
	Window   Window `json:"window"`
	BundleID string `json:"bundle_id,omitempty"`
	IdleMS   int64  `json:"idle_ms"`
}

func (X11) DataType() string     { return DataTypeX11 }
func (Windows) DataType() string { return DataTypeWindows }
func (MacOS) DataType() string   { return DataTypeMacOS }

func (X11) isPayload()     {}
func (Windows) isPayload() {}
func (MacOS) isPayload()   {}

// idleThresholdMS marks a sample as idle when input has been absent this long.
const idleThresholdMS = 120_000

func (p X11) IntrinsicTags() *tags.Tags {
	t := common("Linux", p.Hostname, p.Window, p.IdleMS)
	for _, class := range p.WMClass {
		addNonEmpty(t, TagWindowClass, class)
	}
	addNonEmpty(t, TagProcessCwd, p.Cwd)
	return t
}

func (p Windows) IntrinsicTags() *tags.Tags {
	return common("Windows", p.Hostname, p.Window, p.IdleMS)
}

func (p MacOS) IntrinsicTags() *tags.Tags {
	t := common("macOS", p.Hostname, p.Window, p.IdleMS)
	addNonEmpty(t, TagBundleID, p.BundleID)
	return t
}

func common(osType, hostname string, w Window, idleMS int64) *tags.Tags {
	t := tags.New()
	t.Add(TagDeviceOSType, osType)
	addNonEmpty(t, TagDeviceHostname, hostname)
	addNonEmpty(t, TagWindowTitle, w.Title)
	addNonEmpty(t, TagExecutablePath, w.Exe)
	if idleMS >= idleThresholdMS {
		t.Add(TagUserIdle, "true")
	} else {
		t.Add(TagUserIdle, "false")
	}
	return t
}

func addNonEmpty(t *tags.Tags, tag, value string) {
	if value != "" {
		t.Add(tag, value)
	}
}

// Decode parses data as the payload named by dataType.
func Decode(dataType string, data []byte) (Payload, error) {
	switch dataType {
	case DataTypeX11:
		return decodeAs[X11](data)
	case DataTypeWindows:
		return decodeAs[Windows](data)
	case DataTypeMacOS:
		return decodeAs[MacOS](data)
	default:
		return nil, UnknownDataTypeError{DataType: dataType}
	}
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", p.DataType(), err)
	}
	return p, nil
}
