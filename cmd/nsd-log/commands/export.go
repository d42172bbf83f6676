package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nsd-bridge/nsd-go/pkg/log"
)

// RunExport exports the log file to the specified format. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return export(path, format, w)
}

func export(path, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		return exportJSONL(path, w)
	case "csv":
		return exportCSV(path, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(path string, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return eachEvent(path, log.Filter{}, func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(path string, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "direction", "layer", "category", "handle", "type", "detail", "message_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return eachEvent(path, log.Filter{}, func(event log.Event) error {
		eventType := "unknown"
		detail := ""
		msgID := ""
		switch {
		case event.Message != nil:
			eventType = event.Message.Kind.String()
			detail = event.Message.Method
			if event.Message.ID != 0 {
				msgID = strconv.FormatUint(uint64(event.Message.ID), 10)
			}
		case event.Callback != nil:
			eventType = "callback"
			detail = event.Callback.Name + "/" + event.Callback.Outcome.String()
		case event.StateChange != nil:
			eventType = "state"
			detail = event.StateChange.Entity.String() + ":" + event.StateChange.NewState
		case event.Error != nil:
			eventType = "error"
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Handle,
			eventType,
			detail,
			msgID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}
