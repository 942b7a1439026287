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
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List queues and their current listener sets",
	Long: `queues inverts every fresh receiver's listening set (direct and broadcast
queues both — see pkg/receiver.Receiver.publishStatus) into queue -> uids, so
an operator can see which receivers a given queue name would actually
dispatch to before sending a MultiRequest at it.`,
	RunE: runQueues,
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}

func runQueues(cmd *cobra.Command, args []string) error {
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

	queueToUIDs := make(map[string][]string)
	for uid, s := range statuses {
		for _, q := range s.BroadcastQueues {
			queueToUIDs[q] = append(queueToUIDs[q], string(uid))
		}
	}
	if len(queueToUIDs) == 0 {
		fmt.Println("no queues being listened to")
		return nil
	}

	queues := make([]string, 0, len(queueToUIDs))
	for q := range queueToUIDs {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tLISTENERS")
	for _, q := range queues {
		uids := queueToUIDs[q]
		sort.Strings(uids)
		fmt.Fprintf(w, "%s\t%s\n", q, strings.Join(uids, ","))
	}
	return w.Flush()
}
