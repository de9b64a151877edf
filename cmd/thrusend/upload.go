package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sheerbytes/thrudrop/internal/client"
	"github.com/sheerbytes/thrudrop/internal/config"
	"github.com/sheerbytes/thrudrop/internal/logging"
	"github.com/sheerbytes/thrudrop/internal/progress"
)

const redrawInterval = 200 * time.Millisecond

// console redraws one progress line per upload.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	meter    *progress.Meter
	name     string
	started  bool
	lastDraw time.Time
}

func (c *console) begin(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.started = false
	c.lastDraw = time.Time{}
}

func (c *console) progress(name string, done, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.meter.Start(total)
		c.meter.Resume(done)
		c.started = true
	} else {
		c.meter.Set(done)
	}
	now := time.Now()
	if done < total && now.Sub(c.lastDraw) < redrawInterval {
		return
	}
	c.lastDraw = now
	fmt.Fprintf(c.out, "\r%s", progress.Line(name, c.meter.Snapshot()))
}

func (c *console) end(res client.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Skipped {
		fmt.Fprintf(c.out, "%s  skipped: server already holds more than %s\n",
			res.Name, humanize.IBytes(uint64(res.Size)))
		return
	}
	if c.started {
		fmt.Fprintln(c.out)
	}
	fmt.Fprintf(c.out, "%s  sent %s (resumed at %s, checksum %d)\n",
		res.Name,
		humanize.IBytes(uint64(res.Sent)),
		humanize.IBytes(uint64(res.Offset)),
		res.Checksum)
}

func upload(ctx context.Context, cfg config.ClientConfig, out io.Writer) error {
	logger := logging.New("thrusend", cfg.LogLevel)
	con := &console{out: out, meter: progress.NewMeter()}

	c, err := client.Dial(ctx, cfg.Addr, client.Options{
		FieldGap: cfg.FieldGap,
		Progress: con.progress,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	logger.Debug("connected", "addr", cfg.Addr, "files", len(cfg.Files))
	for _, path := range cfg.Files {
		con.begin(path)
		res, err := c.UploadFile(path)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("upload %s: %w", path, ctx.Err())
			}
			return fmt.Errorf("upload %s: %w", path, err)
		}
		con.end(res)
		logger.Debug("upload finished",
			"file", res.Name,
			"offset", res.Offset,
			"sent", res.Sent,
			"skipped", res.Skipped)
	}
	return nil
}
