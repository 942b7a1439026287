package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Dump fresh receiver statuses",
	Long: `status reads the receiver_services hash and prints every receiver that
hasn't gone stale (see pkg/dispatcher.Dispatcher.ListReceiverStatuses), one
row per receiver uid.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger()
	defer logger.Sync()

	disp, _ := newDispatcher(cfg, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	statuses, err := disp.ListReceiverStatuses(ctx)
	if err != nil {
		return fmt.Errorf("rdisqctl: list receiver statuses: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Println("no fresh receivers")
		return nil
	}

	ordered := make([]rdisq.ReceiverStatus, 0, len(statuses))
	for _, s := range statuses {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UID < ordered[j].UID })

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tMESSAGES\tTAGS\tSTOPPING\tAGE")
	now := time.Now()
	for _, s := range ordered {
		age := now.Sub(time.Unix(int64(s.Timestamp), 0)).Round(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", s.UID, strings.Join(s.RegisteredMessages, ","), tagsString(s.Tags), s.Stopping, age)
	}
	return w.Flush()
}
