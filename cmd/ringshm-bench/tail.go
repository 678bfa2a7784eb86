package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tnishiok/avbstreamhandler/internal/logging"
	"github.com/tnishiok/avbstreamhandler/internal/shmmap"
	"github.com/tnishiok/avbstreamhandler/internal/xcmd"
	"github.com/tnishiok/avbstreamhandler/ringshm"
)

var tailCmdArgs struct {
	ConfigPath string
	ReaderID   int32
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Attach to an existing shared region as a reader and drain packets",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runTail(); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	tailCmd.Flags().StringVarP(&tailCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file")
	tailCmd.Flags().Int32Var(&tailCmdArgs.ReaderID, "reader-id", 1, "Reader identity to register (must be > 0)")
}

func runTail() error {
	cfg, err := LoadConfig(tailCmdArgs.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Logging.Component = fmt.Sprintf("tail[%d]", tailCmdArgs.ReaderID)
	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	region, err := shmmap.Open(cfg.ShmPath)
	if err != nil {
		return fmt.Errorf("failed to attach to shared region: %w", err)
	}
	defer region.Close()

	// Init is never called here: the region already carries an
	// initialized control block written by serve, and New attaches to it
	// directly without re-running geometry validation.
	ring := ringshm.New(region.At(0), region.Slots(ringshm.SlotArrayOffset()))

	if err := ring.AddReader(tailCmdArgs.ReaderID); err != nil {
		return fmt.Errorf("failed to register reader %d: %w", tailCmdArgs.ReaderID, err)
	}
	defer func() {
		if err := ring.RemoveReader(tailCmdArgs.ReaderID); err != nil {
			log.Errorw("failed to deregister reader", "error", err)
		}
	}()

	log.Infow("tailing shared ring", "shm_path", cfg.ShmPath, "reader_id", tailCmdArgs.ReaderID)

	wg, ctx := errgroup.WithContext(context.Background())

	wg.Go(func() error {
		return readLoop(ctx, ring, log, tailCmdArgs.ReaderID)
	})

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

func readLoop(ctx context.Context, ring *ringshm.RingBufferShm, log *zap.SugaredLogger, id int32) error {
	var seen uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := ring.WaitRead(id, 1, 1000); err != nil {
			if errors.Is(err, ringshm.KindTimeout) {
				continue
			}
			return fmt.Errorf("WaitRead: %w", err)
		}

		offset, n, err := ring.BeginAccess(ringshm.AccessRead, id, 1)
		if err != nil {
			return fmt.Errorf("BeginAccess(read): %w", err)
		}
		if n == 0 {
			continue
		}

		slot := ring.Slot(uint32(offset))
		seq := binary.LittleEndian.Uint64(slot)

		if err := ring.EndAccess(ringshm.AccessRead, id, offset, n); err != nil {
			return fmt.Errorf("EndAccess(read): %w", err)
		}

		seen++
		if seen%100 == 0 {
			log.Infow("consumed packets", "count", seen, "last_seq", seq)
		}
	}
}
