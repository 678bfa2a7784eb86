package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tnishiok/avbstreamhandler/internal/logging"
	"github.com/tnishiok/avbstreamhandler/internal/shmmap"
	"github.com/tnishiok/avbstreamhandler/internal/xcmd"
	"github.com/tnishiok/avbstreamhandler/ringshm"
)

var serveCmdArgs struct {
	ConfigPath string
	Duration   time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Create the shared region and write synthetic packets into it",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file")
	serveCmd.Flags().DurationVar(&serveCmdArgs.Duration, "duration", 0, "Stop after this long (0 = run until interrupted)")
}

func runServe() error {
	cfg, err := LoadConfig(serveCmdArgs.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Logging.Component = "serve"
	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	packetSize := uint32(cfg.PacketSize.Bytes())
	region, err := shmmap.Create(cfg.ShmPath, ringshm.RegionSize(packetSize, cfg.NumBuffers))
	if err != nil {
		return fmt.Errorf("failed to create shared region: %w", err)
	}
	defer func() {
		if derr := region.Destroy(); derr != nil {
			log.Errorw("failed to destroy shared region", "error", derr)
		}
	}()

	ring := ringshm.New(region.At(0), nil)
	if err := ring.Init(packetSize, cfg.NumBuffers, region.Slots(ringshm.SlotArrayOffset()), true); err != nil {
		return fmt.Errorf("failed to initialize ring: %w", err)
	}

	log.Infow("serving shared ring",
		"shm_path", cfg.ShmPath,
		"packet_size", cfg.PacketSize.String(),
		"num_buffers", cfg.NumBuffers,
	)

	ctx := context.Background()
	if serveCmdArgs.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, serveCmdArgs.Duration)
		defer cancel()
	}

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return writeLoop(ctx, ring, log, cfg.WriteRate)
	})

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

// writeLoop produces one synthetic packet per tick, blocking on WaitWrite
// when the ring is full rather than dropping or overwriting unread data.
func writeLoop(ctx context.Context, ring *ringshm.RingBufferShm, log *zap.SugaredLogger, rate time.Duration) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := ring.WaitWrite(1, 1000); err != nil {
			log.Warnw("timed out waiting for free space", "error", err)
			continue
		}

		offset, n, err := ring.BeginAccess(ringshm.AccessWrite, 0, 1)
		if err != nil {
			return fmt.Errorf("BeginAccess(write): %w", err)
		}
		if n == 0 {
			continue
		}

		slot := ring.Slot(uint32(offset))
		binary.LittleEndian.PutUint64(slot, seq)
		seq++

		if err := ring.EndAccess(ringshm.AccessWrite, 0, offset, n); err != nil {
			return fmt.Errorf("EndAccess(write): %w", err)
		}

		if seq%100 == 0 {
			log.Infow("produced packets", "count", seq)
		}
	}
}
