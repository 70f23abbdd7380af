// Package env models the smart home as a closed, in-memory property graph:
// rooms contain devices, devices carry named properties with a current value
// and an observability flag. The model has no behavior beyond lookup, mutation
// through Apply, and structural cloning for counterfactual branches.
package env

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// PropertyState holds the current value of one device property and whether a
// third party can see that value by looking at the device.
type PropertyState struct {
	Value      string `json:"value"`
	Observable bool   `json:"observable"`
}

// Device is a named appliance with a set of controllable properties.
// Property names are unique per device (enforced by the map type).
type Device struct {
	Name       string                    `json:"name"`
	Properties map[string]*PropertyState `json:"properties"`
}

// Environment is the full home: room name to the devices placed in it.
// Device names are unique across the whole environment, so cross-room lookup
// by name is unambiguous.
type Environment struct {
	Rooms map[string][]*Device `json:"rooms"`
}

// StateChange records one committed (or proposed) property mutation.
type StateChange struct {
	DeviceName   string `json:"device_name"`
	PropertyName string `json:"property_name"`
	Before       string `json:"before"`
	After        string `json:"after"`
}

// Load reads and validates an environment file. Validation failure is fatal
// for the run, so any error here should abort before logs are written.
func Load(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading environment file: %w", err)
	}

	var e Environment
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing environment file %s: %w", path, err)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment in %s: %w", path, err)
	}

	return &e, nil
}

// Validate checks the structural invariants: at least one room, non-empty
// device names unique across rooms, and at least one property per device.
func (e *Environment) Validate() error {
	if len(e.Rooms) == 0 {
		return fmt.Errorf("environment has no rooms")
	}

	seen := make(map[string]string) // device name -> room
	for room, devices := range e.Rooms {
		for _, d := range devices {
			if d == nil || d.Name == "" {
				return fmt.Errorf("room %q contains a device without a name", room)
			}
			if prev, ok := seen[d.Name]; ok {
				return fmt.Errorf("device name %q appears in both %q and %q", d.Name, prev, room)
			}
			seen[d.Name] = room
			if len(d.Properties) == 0 {
				return fmt.Errorf("device %q has no properties", d.Name)
			}
			for prop, state := range d.Properties {
				if state == nil {
					return fmt.Errorf("device %q property %q has no state", d.Name, prop)
				}
			}
		}
	}
	return nil
}

// Clone returns a structural deep copy with independent PropertyState
// objects. Required before every counterfactual branch so mutations never
// cross branches.
func (e *Environment) Clone() *Environment {
	out := &Environment{Rooms: make(map[string][]*Device, len(e.Rooms))}
	for room, devices := range e.Rooms {
		copied := make([]*Device, 0, len(devices))
		for _, d := range devices {
			nd := &Device{
				Name:       d.Name,
				Properties: make(map[string]*PropertyState, len(d.Properties)),
			}
			for prop, state := range d.Properties {
				nd.Properties[prop] = &PropertyState{
					Value:      state.Value,
					Observable: state.Observable,
				}
			}
			copied = append(copied, nd)
		}
		out.Rooms[room] = copied
	}
	return out
}

// normalizeName strips whitespace and the punctuation a generation call tends
// to mix into device names ("침실1(안방) 메인 조명" vs "안방 메인 조명").
func normalizeName(s string) string {
	r := strings.NewReplacer(" ", "", "/", "", "(", "", ")", "")
	return r.Replace(s)
}

// FindDevice resolves a device by exact name first, then by
// punctuation-insensitive substring matching in either direction. A fragment
// matching more than one device fails closed rather than picking one
// arbitrarily. Exact lookup of a device's own name always resolves to that
// device.
func (e *Environment) FindDevice(nameOrFragment string) (*Device, bool) {
	if nameOrFragment == "" {
		return nil, false
	}

	for _, devices := range e.Rooms {
		for _, d := range devices {
			if d.Name == nameOrFragment {
				return d, true
			}
		}
	}

	norm := normalizeName(nameOrFragment)
	var matches []*Device
	for _, devices := range e.Rooms {
		for _, d := range devices {
			dn := normalizeName(d.Name)
			if strings.Contains(norm, dn) || strings.Contains(dn, norm) {
				matches = append(matches, d)
			}
		}
	}

	if len(matches) != 1 {
		return nil, false
	}
	return matches[0], true
}

// Apply validates and commits one proposed change. It never fails the run:
// the return value reports whether the change was committed, and the returned
// StateChange carries the actual device name, property name (after aliasing)
// and the true before value. Known aliasing: a "brightness" change on a
// device that only has "power" becomes an on/off toggle.
func (e *Environment) Apply(change StateChange) (StateChange, bool) {
	device, ok := e.FindDevice(change.DeviceName)
	if !ok {
		return change, false
	}
	change.DeviceName = device.Name

	prop := change.PropertyName
	after := change.After
	if _, exists := device.Properties[prop]; !exists {
		if prop == "brightness" {
			if _, hasPower := device.Properties["power"]; hasPower {
				prop = "power"
				if strings.TrimSpace(after) == "0" {
					after = "off"
				} else {
					after = "on"
				}
			}
		}
	}

	state, exists := device.Properties[prop]
	if !exists {
		return change, false
	}

	change.PropertyName = prop
	change.Before = state.Value
	change.After = after
	state.Value = after
	return change, true
}

// DeviceList returns "[room] device" lines for every device, rooms and
// devices in stable order. Used to hand the classifier a flat inventory.
func (e *Environment) DeviceList() []string {
	var out []string
	for _, room := range e.roomNames() {
		for _, d := range e.Rooms[room] {
			out = append(out, fmt.Sprintf("[%s] %s", room, d.Name))
		}
	}
	return out
}

// AllowlistText renders the room/device/property inventory as an indented
// allow-list for prompts, in stable order.
func (e *Environment) AllowlistText() string {
	var b strings.Builder
	for _, room := range e.roomNames() {
		fmt.Fprintf(&b, "- %s\n", room)
		for _, d := range e.Rooms[room] {
			props := make([]string, 0, len(d.Properties))
			for p := range d.Properties {
				props = append(props, p)
			}
			sort.Strings(props)
			fmt.Fprintf(&b, "  - %s %v\n", d.Name, props)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// StateJSON renders the full environment state as indented JSON for prompts.
func (e *Environment) StateJSON() string {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ObservabilityIndex maps device name -> property name -> observable flag.
// The observer evaluation pass uses it to filter what an outside rater may
// see.
func (e *Environment) ObservabilityIndex() map[string]map[string]bool {
	index := make(map[string]map[string]bool)
	for _, devices := range e.Rooms {
		for _, d := range devices {
			props := make(map[string]bool, len(d.Properties))
			for p, state := range d.Properties {
				props[p] = state.Observable
			}
			index[d.Name] = props
		}
	}
	return index
}

func (e *Environment) roomNames() []string {
	names := make([]string, 0, len(e.Rooms))
	for room := range e.Rooms {
		names = append(names, room)
	}
	sort.Strings(names)
	return names
}
