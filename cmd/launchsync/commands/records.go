package commands

import (
	"encoding/json"
	"os"
	"time"

	"launchsync/internal/bitable"
	"launchsync/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var defaultRecordColumns = []string{
	bitable.ColumnTimestamp,
	bitable.ColumnMission,
	bitable.ColumnVehicle,
	bitable.ColumnPad,
	bitable.ColumnStatus,
	bitable.ColumnSource,
}

var (
	recordsFilter *string
	recordsFields *string
	recordsMax    *int
)

func init() {
	recordsFilter = recordsCmd.Flags().String("filter", "", `A search filter as JSON, ex. {"conjunction":"and","conditions":[{"field_name":"Source","operator":"is","value":["nextspaceflight.com"]}]}`)
	recordsFields = recordsCmd.Flags().String("fields", "", `The columns to show as a JSON array, ex. ["发射任务名称","Source"]`)
	recordsMax = recordsCmd.Flags().Int("max", 20, "The most records to list, 0 lists every record.")
	rootCmd.AddCommand(recordsCmd)
}

var recordsCmd = &cobra.Command{
	Use:   "records [--filter <json>] [--fields <json>] [--max <n>]",
	Short: "Lists records stored in the Bitable.",
	Run: func(cmd *cobra.Command, args []string) {
		options := bitable.SearchOptions{
			PageSize: config.Bitable.PageSize,
			Limit:    *recordsMax,
		}
		if *recordsFilter != "" {
			options.Filter = &bitable.Filter{}
			err := json.Unmarshal([]byte(*recordsFilter), options.Filter)
			if err != nil {
				serviceutil.Fatal("invalid --filter", err)
			}
		}
		columns := defaultRecordColumns
		if *recordsFields != "" {
			var fields []string
			err := json.Unmarshal([]byte(*recordsFields), &fields)
			if err != nil {
				serviceutil.Fatal("invalid --fields", err)
			}
			columns = fields
			options.FieldNames = fields
		}

		clock := newClock()
		client := newBitableClient(clock, newTel())
		records, err := client.Search(cmd.Context(), options)
		if err != nil {
			serviceutil.Fatal("failed to search records", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{"Record"}
		for _, c := range columns {
			header = append(header, c)
		}
		t.AppendHeader(header)

		for _, r := range records {
			row := table.Row{r.RecordID}
			for _, c := range columns {
				row = append(row, cellValue(c, r.Fields[c], clock.Location()))
			}
			t.AppendRow(row)
		}
		t.AppendFooter(table.Row{"Total", len(records)})

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

func cellValue(column string, raw json.RawMessage, location *time.Location) string {
	if raw == nil {
		return ""
	}
	if column == bitable.ColumnTimestamp {
		ms, err := bitable.MillisValue(raw)
		if err == nil && ms != nil {
			return time.UnixMilli(*ms).In(location).Format("2006-01-02 15:04")
		}
	}
	text, err := bitable.TextValue(raw)
	if err != nil {
		return string(raw)
	}
	return text
}
