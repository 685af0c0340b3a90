// Command inspect prints the contents of a twirc Badger directory as tables.
// It opens the store read-only, so it can run next to a live recorder.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/onnwee/twirc/domain"
	"github.com/onnwee/twirc/kv"
)

type options struct {
	dir     string
	table   string
	colours bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "inspect",
		Short:        "Dump recorded chat messages and moderation history.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := kv.Open(kv.Options{
				Dir:        opts.dir,
				ReadOnly:   true,
				BypassLock: true,
				Logger:     slog.New(slog.DiscardHandler),
			})
			if err != nil {
				return err
			}
			defer s.Close()
			return render(out, s, opts)
		},
	}

	defaultDir := os.Getenv("BADGER_DIR")
	if defaultDir == "" {
		defaultDir = kv.DefaultDir()
	}
	cmd.Flags().StringVar(&opts.dir, "dir", defaultDir, "Path to the Badger directory")
	cmd.Flags().StringVar(&opts.table, "table", "all", "Table to print: messages, history or all")
	cmd.Flags().BoolVar(&opts.colours, "colours", true, "Colour deleted messages")
	return cmd
}

func render(out io.Writer, s *kv.Store, opts options) error {
	switch opts.table {
	case "messages":
		return renderMessages(out, s, opts.colours)
	case "history":
		return renderHistory(out, s)
	case "all":
		if err := renderMessages(out, s, opts.colours); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out)
		return renderHistory(out, s)
	default:
		return fmt.Errorf("unknown table %q", opts.table)
	}
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderMessages(out io.Writer, s *kv.Store, colours bool) error {
	table := newTable(out, []string{"Time", "Channel", "Sender", "Message ID", "Text", "Deleted"})
	deleted := color.New(color.FgRed)
	err := s.Messages(func(m domain.ChatMessage) error {
		row := []string{
			m.ServerTimestamp.Format("2006-01-02 15:04:05"),
			m.ChannelLogin,
			m.SenderName,
			m.MessageID.String(),
			m.Text,
			strconv.FormatBool(m.Deleted),
		}
		if m.Deleted && colours {
			for i := range row {
				row[i] = deleted.Render(row[i])
			}
		}
		table.Append(row)
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func renderHistory(out io.Writer, s *kv.Store) error {
	table := newTable(out, []string{"Time", "Channel", "User", "Action", "Duration"})
	err := s.History(func(r domain.ModerationRecord) error {
		action, duration := "ban", "permanent"
		if !r.Permanent() {
			action, duration = "timeout", r.Duration.String()
		}
		table.Append([]string{
			r.ServerTimestamp.Format("2006-01-02 15:04:05"),
			r.ChannelLogin,
			r.UserLogin,
			action,
			duration,
		})
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
