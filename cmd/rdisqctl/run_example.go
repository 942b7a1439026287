package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-rdisq/rdisq/examples/ggisimport"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/handler"
	"github.com/go-rdisq/rdisq/pkg/receiver"
)

var runExampleServiceName string

var runExampleCmd = &cobra.Command{
	Use:   "run-example",
	Short: "Boot the worked examples/ggisimport Summer/Add receiver",
	Long: `run-example starts a real Receiver registered with examples/ggisimport's
Summer/Add handlers (see examples/ggisimport/summer.go), so "rdisqctl status",
"rdisqctl queues", and "rdisqctl call" have something live to inspect without
a Postgres instance on hand. The Postgres-backed AllGGISImportTemplatesQuery/
IsPlanApprovedQuery handlers in examples/ggisimport/ggisimport.go are wired
the same way against a *db.Pool by any caller that has one; this command
keeps the CLI's own quickstart dependency-free.`,
	RunE: runRunExample,
}

func init() {
	runExampleCmd.Flags().StringVar(&runExampleServiceName, "service-name", "rdisqctl-example", "broadcast-queue service name to register under")
	rootCmd.AddCommand(runExampleCmd)
}

func runRunExample(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger()
	defer logger.Sync()

	disp, conn := newDispatcher(cfg, logger)

	reg := handler.New()
	if err := ggisimport.RegisterSum(reg); err != nil {
		return fmt.Errorf("rdisqctl: register Sum: %w", err)
	}
	if err := ggisimport.RegisterAdd(reg); err != nil {
		return fmt.Errorf("rdisqctl: register Add: %w", err)
	}

	r := receiver.New(runExampleServiceName, disp, conn, codec.NewCBORCodec(),
		receiver.WithRegistry(reg),
		receiver.WithLogger(logger.Sugar()),
	)
	if _, err := r.RegisterMessage(ggisimport.SumClassID, nil); err != nil {
		return fmt.Errorf("rdisqctl: register %s: %w", ggisimport.SumClassID, err)
	}
	if _, err := r.RegisterMessage(ggisimport.AddClassID, ggisimport.NewSummer(0)); err != nil {
		return fmt.Errorf("rdisqctl: register %s: %w", ggisimport.AddClassID, err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("rdisqctl: example receiver running", zap.String("uid", string(r.UID())), zap.String("service", runExampleServiceName))
	err := r.Process(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
