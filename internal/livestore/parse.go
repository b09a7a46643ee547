package livestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"coldtrack-sync/internal/models"
)

// LiveKey is the reserved child of a status day/device node that is not a timestamp
const LiveKey = "live"

// ShapeError a live store node that does not have the expected shape
type ShapeError struct {
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("malformed node %s: %s", e.Path, e.Reason)
}

// IsShapeError reports whether err is (or wraps) a *ShapeError
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

func shapeErr(path, format string, args ...any) *ShapeError {
	return &ShapeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// eventNode wire shape of /eventos/.../{eventId}
type eventNode struct {
	StartTS    *json.Number `json:"start_ts"`
	EndTS      *json.Number `json:"end_ts"`
	Ended      *bool        `json:"ended"`
	DurationMS *json.Number `json:"duration_ms"`
	MaxTemp    *json.Number `json:"max_temp"`
	Type       *string      `json:"type"`
}

// readingNode wire shape of /status/.../{epoch}
type readingNode struct {
	Temp  *json.Number `json:"temp"`
	State string       `json:"state"`
}

type liveNode struct {
	Temp  *json.Number `json:"temp"`
	State string       `json:"state"`
	TS    *json.Number `json:"ts"`
}

// isNull treats an absent body and JSON null the same way
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeObject decodes a JSON object into ordered children
func decodeObject(path string, raw json.RawMessage) (map[string]json.RawMessage, []string, error) {
	if isNull(raw) {
		return nil, nil, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, nil, shapeErr(path, "expected object: %v", err)
	}
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return children, keys, nil
}

// ParseEventNode validates one event node. A missing start_ts is kept as nil so
// the reconciler can report it; wrong field types are shape errors.
func ParseEventNode(deviceID, eventID string, raw json.RawMessage) (models.RawEvent, error) {
	path := fmt.Sprintf("eventos/%s/.../%s", deviceID, eventID)
	ev := models.RawEvent{DeviceID: deviceID, ExternalID: eventID, Type: models.TypeUnknown}

	if eventID == "" {
		return ev, shapeErr(path, "empty event id")
	}
	if isNull(raw) {
		return ev, shapeErr(path, "empty event node")
	}

	var node eventNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return ev, shapeErr(path, "%v", err)
	}

	var err error
	if ev.StartTS, err = optionalEpoch(node.StartTS); err != nil {
		return ev, shapeErr(path, "start_ts: %v", err)
	}
	if ev.EndTS, err = optionalEpoch(node.EndTS); err != nil {
		return ev, shapeErr(path, "end_ts: %v", err)
	}
	if node.DurationMS != nil {
		d, err := toInt64(*node.DurationMS)
		if err != nil {
			return ev, shapeErr(path, "duration_ms: %v", err)
		}
		ev.DurationMS = d
	}
	if node.MaxTemp != nil {
		t, err := node.MaxTemp.Float64()
		if err != nil {
			return ev, shapeErr(path, "max_temp: %v", err)
		}
		ev.MaxTemp = t
	}
	if node.Type != nil && *node.Type != "" {
		ev.Type = *node.Type
	}
	if node.Ended != nil {
		ev.Ended = *node.Ended
	}

	return ev, nil
}

// ParseEventDay parses a day node {eventId: event}, ordered by start_ts
func ParseEventDay(deviceID string, raw json.RawMessage) ([]models.RawEvent, []error) {
	children, keys, err := decodeObject("eventos/"+deviceID+"/day", raw)
	if err != nil {
		return nil, []error{err}
	}

	var events []models.RawEvent
	var errs []error
	for _, id := range keys {
		ev, err := ParseEventNode(deviceID, id, children[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	sortEvents(events)
	return events, errs
}

// ParseEventTree parses the full device tree {yyyy: {mm: {dd: {eventId: event}}}}
func ParseEventTree(deviceID string, raw json.RawMessage) ([]models.RawEvent, []error) {
	years, yearKeys, err := decodeObject("eventos/"+deviceID, raw)
	if err != nil {
		return nil, []error{err}
	}

	var events []models.RawEvent
	var errs []error
	for _, y := range yearKeys {
		months, monthKeys, err := decodeObject(fmt.Sprintf("eventos/%s/%s", deviceID, y), years[y])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range monthKeys {
			days, dayKeys, err := decodeObject(fmt.Sprintf("eventos/%s/%s/%s", deviceID, y, m), months[m])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, d := range dayKeys {
				dayEvents, dayErrs := ParseEventDay(deviceID, days[d])
				events = append(events, dayEvents...)
				errs = append(errs, dayErrs...)
			}
		}
	}
	sortEvents(events)
	return events, errs
}

// ParseReadingNode parses one {epoch: {temp, state}} child. A bare number is
// accepted as the temperature.
func ParseReadingNode(deviceID, tsKey string, raw json.RawMessage) (models.RawReading, error) {
	path := fmt.Sprintf("status/%s/.../%s", deviceID, tsKey)
	reading := models.RawReading{DeviceID: deviceID}

	ts, err := strconv.ParseInt(tsKey, 10, 64)
	if err != nil || ts <= 0 {
		return reading, shapeErr(path, "key is not an epoch timestamp")
	}
	reading.Timestamp = ts

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')) {
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return reading, shapeErr(path, "%v", err)
		}
		temp, err := n.Float64()
		if err != nil {
			return reading, shapeErr(path, "temp: %v", err)
		}
		reading.Temperature = temp
		return reading, nil
	}

	var node readingNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return reading, shapeErr(path, "%v", err)
	}
	if node.Temp == nil {
		return reading, shapeErr(path, "missing temp")
	}
	temp, err := node.Temp.Float64()
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return reading, shapeErr(path, "temp is not numeric")
	}
	reading.Temperature = temp
	reading.State = node.State
	return reading, nil
}

// ParseReadingDay parses a status day node, skipping the live pointer
func ParseReadingDay(deviceID string, raw json.RawMessage) ([]models.RawReading, []error) {
	children, keys, err := decodeObject("status/"+deviceID+"/day", raw)
	if err != nil {
		return nil, []error{err}
	}

	var readings []models.RawReading
	var errs []error
	for _, key := range keys {
		if key == LiveKey {
			continue
		}
		r, err := ParseReadingNode(deviceID, key, children[key])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, r)
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Timestamp < readings[j].Timestamp })
	return readings, errs
}

// ParseStatusTree parses the full /status/{device} tree. Year children are
// walked as {yyyy: {mm: {dd: {epoch: reading}}}}; epoch keys sitting directly
// under the device (older flat layout) are read as readings; live is skipped.
func ParseStatusTree(deviceID string, raw json.RawMessage) ([]models.RawReading, []error) {
	children, keys, err := decodeObject("status/"+deviceID, raw)
	if err != nil {
		return nil, []error{err}
	}

	var readings []models.RawReading
	var errs []error
	for _, key := range keys {
		switch {
		case key == LiveKey:
			continue
		case len(key) == 4:
			months, monthKeys, err := decodeObject(fmt.Sprintf("status/%s/%s", deviceID, key), children[key])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, m := range monthKeys {
				days, dayKeys, err := decodeObject(fmt.Sprintf("status/%s/%s/%s", deviceID, key, m), months[m])
				if err != nil {
					errs = append(errs, err)
					continue
				}
				for _, d := range dayKeys {
					dayReadings, dayErrs := ParseReadingDay(deviceID, days[d])
					readings = append(readings, dayReadings...)
					errs = append(errs, dayErrs...)
				}
			}
		default:
			r, err := ParseReadingNode(deviceID, key, children[key])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			readings = append(readings, r)
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Timestamp < readings[j].Timestamp })
	return readings, errs
}

// ParseLiveSnapshot parses /status/{device}/live; nil when absent
func ParseLiveSnapshot(deviceID string, raw json.RawMessage) (*models.LiveSnapshot, error) {
	if isNull(raw) {
		return nil, nil
	}
	path := "status/" + deviceID + "/live"
	var node liveNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, shapeErr(path, "%v", err)
	}
	snap := &models.LiveSnapshot{DeviceID: deviceID, State: node.State}
	if node.Temp != nil {
		t, err := node.Temp.Float64()
		if err != nil {
			return nil, shapeErr(path, "temp: %v", err)
		}
		snap.Temperature = t
	}
	if node.TS != nil {
		ts, err := toInt64(*node.TS)
		if err != nil {
			return nil, shapeErr(path, "ts: %v", err)
		}
		snap.TS = ts
	}
	return snap, nil
}

// optionalEpoch treats absent, null and 0 as "not set"
func optionalEpoch(n *json.Number) (*int64, error) {
	if n == nil || *n == "" {
		return nil, nil
	}
	v, err := toInt64(*n)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, nil
	}
	return &v, nil
}

func toInt64(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return int64(f), nil
}

func sortEvents(events []models.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return startOf(events[i]) < startOf(events[j])
	})
}

func startOf(ev models.RawEvent) int64 {
	if ev.StartTS == nil {
		return 0
	}
	return *ev.StartTS
}
