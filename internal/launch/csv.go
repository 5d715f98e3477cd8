package launch

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/jszwec/csvutil"
)

type csvRow struct {
	Mission            string `csv:"mission"`
	Vehicle            string `csv:"vehicle"`
	PadLocation        string `csv:"pad_location"`
	TimestampMs        *int64 `csv:"timestamp_ms,omitempty"`
	LaunchTime         string `csv:"launch_time,omitempty"`
	Status             Status `csv:"status"`
	MissionDescription string `csv:"mission_description"`
	SourceName         string `csv:"source_name"`
	Provider           string `csv:"provider"`
}

// WriteCSV writes records as CSV with a header row, launch times are
// rendered in `location`.
func WriteCSV(w io.Writer, records []Record, location *time.Location) error {
	writer := csv.NewWriter(w)
	encoder := csvutil.NewEncoder(writer)

	if len(records) == 0 {
		err := encoder.EncodeHeader(csvRow{})
		if err != nil {
			return err
		}
	}

	for _, r := range records {
		row := csvRow{
			Mission:            r.Mission,
			Vehicle:            r.Vehicle,
			PadLocation:        r.PadLocation,
			TimestampMs:        r.TimestampMs,
			Status:             r.Status,
			MissionDescription: r.MissionDescription,
			SourceName:         r.SourceName,
			Provider:           r.Provider,
		}
		if r.TimestampMs != nil {
			row.LaunchTime = time.UnixMilli(*r.TimestampMs).In(location).Format(time.RFC3339)
		}
		err := encoder.Encode(row)
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
