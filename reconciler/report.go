package reconciler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// Format selects the report rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// Render writes the report to w in the requested format.
func (r *Report) Render(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatCSV:
		return r.renderCSV(w)
	case FormatTable, "":
		return r.renderTable(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

var csvHeader = []string{
	"sourceChainId", "destinationChainId", "rootHash", "committedAt",
	"totalAmount", "amountWithdrawn", "settledAmount", "diff",
	"unbondedAmount", "incomplete", "unbondedOnly", "anomaly",
}

func (r *Report) renderCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, root := range r.Roots {
		record := []string{
			strconv.FormatUint(root.SourceChainID, 10),
			strconv.FormatUint(root.DestinationChainID, 10),
			root.RootHash.Hex(),
			time.Unix(int64(root.CommittedAt), 0).UTC().Format(time.RFC3339),
			root.TotalAmount.String(),
			root.AmountWithdrawn.String(),
			root.SettledAmount.String(),
			root.Diff.String(),
			root.UnbondedAmount.String(),
			strconv.FormatBool(root.Incomplete),
			strconv.FormatBool(root.UnbondedOnly),
			strconv.FormatBool(root.Anomaly),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *Report) renderTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ROUTE\tROOT\tCOMMITTED\tTOTAL\tWITHDRAWN\tSETTLED\tDIFF\tSTATUS\n")
	for _, root := range r.Roots {
		status := "ok"
		switch {
		case root.Anomaly:
			status = "ANOMALY"
		case root.Incomplete:
			status = "INCOMPLETE"
		case root.UnbondedOnly:
			status = "unbonded"
		}
		fmt.Fprintf(tw, "%d->%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			root.SourceChainID,
			root.DestinationChainID,
			shortHash(root.RootHash.Hex()),
			time.Unix(int64(root.CommittedAt), 0).UTC().Format("2006-01-02 15:04"),
			root.TotalAmount,
			root.AmountWithdrawn,
			root.SettledAmount,
			root.Diff,
			status,
		)
	}
	fmt.Fprintf(tw, "\n%d roots, %d incomplete\n", r.TotalRoots, r.IncompleteRoots)
	return tw.Flush()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + ".." + h[len(h)-4:]
}
