// Package source opens the byte stream the modem link is read from.
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	srt "github.com/datarhei/gosrt"
	"github.com/tarm/serial"

	"github.com/zsiec/fdclink/internal/config"
)

// BaudRate is the line speed of the flight computer's modem port. The
// remaining line parameters are 8N1.
const BaudRate = 115200

// Opener opens a fresh byte source. The link driver calls it again after
// the previous source is exhausted.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// NewOpener binds cfg to Open.
func NewOpener(cfg config.SourceConfig) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return Open(ctx, cfg)
	}
}

// Open opens the source described by cfg. The returned stream is read
// until it reports end of stream, and closing it unblocks a pending read
// for every kind except serial.
func Open(ctx context.Context, cfg config.SourceConfig) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case config.SourceSerial:
		return openSerial(cfg.Device)
	case config.SourceFile:
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		return f, nil
	case config.SourceTCP:
		d := net.Dialer{Timeout: cfg.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("dial tcp relay: %w", err)
		}
		return conn, nil
	case config.SourceSRT:
		return openSRT(cfg)
	default:
		return nil, fmt.Errorf("unknown source kind: %q", cfg.Kind)
	}
}

func openSerial(device string) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: device,
		Baud: BaudRate,
		Size: 8,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return port, nil
}

func openSRT(cfg config.SourceConfig) (io.ReadCloser, error) {
	c := srt.DefaultConfig()
	c.StreamId = cfg.SRT.StreamID
	if cfg.SRT.Passphrase != "" {
		c.Passphrase = cfg.SRT.Passphrase
	}
	if cfg.SRT.Latency > 0 {
		c.ReceiverLatency = cfg.SRT.Latency
		c.PeerLatency = cfg.SRT.Latency
	}
	if cfg.DialTimeout > 0 {
		c.ConnectionTimeout = cfg.DialTimeout
	}

	conn, err := srt.Dial("srt", cfg.Address, c)
	if err != nil {
		return nil, fmt.Errorf("dial srt relay: %w", err)
	}
	return conn, nil
}

// Describe names the source for logs and the status API.
func Describe(cfg config.SourceConfig) string {
	switch cfg.Kind {
	case config.SourceSerial:
		return cfg.Kind + ":" + cfg.Device
	case config.SourceFile:
		return cfg.Kind + ":" + cfg.Path
	case config.SourceTCP, config.SourceSRT:
		return cfg.Kind + "://" + cfg.Address
	default:
		return cfg.Kind
	}
}
