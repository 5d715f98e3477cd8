package bitable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"launchsync/internal/launch"
)

// Column names of the launch table.
const (
	ColumnVehicle     = "Rocket Model"
	ColumnMission     = "发射任务名称"
	ColumnPad         = "发射位"
	ColumnTimestamp   = "发射日期时间"
	ColumnSource      = "Source"
	ColumnStatus      = "发射状态"
	ColumnDescription = "发射任务描述"
)

var statusLabels = map[launch.Status]string{
	launch.StatusSuccess:        "发射成功",
	launch.StatusFailure:        "发射失败",
	launch.StatusPartialSuccess: "部分成功",
	launch.StatusScheduled:      "计划中",
	launch.StatusUnknown:        "状态未知",
	launch.StatusTBD:            "待定",
}

// StatusLabel returns the label a status is stored as, statuses without a
// label are stored as unknown.
func StatusLabel(status launch.Status) string {
	label, ok := statusLabels[status]
	if !ok {
		return statusLabels[launch.StatusUnknown]
	}
	return label
}

// FieldsFromRecord maps a launch to the table's columns. The timestamp column
// is left out when the launch has no timestamp.
func FieldsFromRecord(r launch.Record) map[string]any {
	pad := r.PadLocation
	if pad == "" {
		pad = launch.Unknown
	}
	source := r.SourceName
	if source == "" {
		source = launch.Unknown
	}
	description := r.MissionDescription
	if description == "" {
		description = launch.NotAvailable
	}

	fields := map[string]any{
		ColumnVehicle:     r.Vehicle,
		ColumnMission:     r.Mission,
		ColumnPad:         pad,
		ColumnSource:      source,
		ColumnStatus:      StatusLabel(r.Status),
		ColumnDescription: description,
	}
	if r.TimestampMs != nil {
		fields[ColumnTimestamp] = *r.TimestampMs
	}
	return fields
}

type textSegment struct {
	Text string `json:"text"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// TextValue decodes a text-like cell. Plain strings are returned as is, for
// lists (rich text segments, multi-selects) the first element's text is used.
func TextValue(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var text string
	err := json.Unmarshal(raw, &text)
	if err == nil {
		return text, nil
	}

	var list []json.RawMessage
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return "", fmt.Errorf("decode text cell %s: %w", raw, err)
	}
	if len(list) == 0 {
		return "", nil
	}

	err = json.Unmarshal(list[0], &text)
	if err == nil {
		return text, nil
	}
	var segment textSegment
	err = json.Unmarshal(list[0], &segment)
	if err != nil {
		return "", fmt.Errorf("decode text cell %s: %w", raw, err)
	}
	return segment.Text, nil
}

// MillisValue decodes a date cell, an empty cell decodes to nil.
func MillisValue(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}

	var number json.Number
	err := json.Unmarshal(raw, &number)
	if err != nil {
		return nil, fmt.Errorf("decode date cell %s: %w", raw, err)
	}

	millis, err := strconv.ParseInt(number.String(), 10, 64)
	if err == nil {
		return &millis, nil
	}
	float, err := number.Float64()
	if err != nil || math.IsNaN(float) || math.IsInf(float, 0) {
		return nil, fmt.Errorf("decode date cell %s: not a number", raw)
	}
	millis = int64(float)
	return &millis, nil
}
