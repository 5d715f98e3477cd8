package commands

import (
	"os"

	"launchsync/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Lists the columns of the Bitable.",
	Run: func(cmd *cobra.Command, args []string) {
		client := newBitableClient(newClock(), newTel())
		fields, err := client.ListFields(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list fields", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Type", "UI Type", "Primary"})
		for _, f := range fields {
			primary := ""
			if f.IsPrimary {
				primary = "yes"
			}
			t.AppendRow(table.Row{f.FieldID, f.FieldName, f.Type, f.UIType, primary})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
