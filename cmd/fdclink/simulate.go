package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/fdclink/internal/telemetry"
)

type simulateOptions struct {
	out     string
	count   int
	noise   int
	rate    float64
	corrupt float64
	seed    int64
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write synthetic link traffic: sealed frames of both kinds between line noise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.count < 0 || opts.noise < 0 || opts.rate < 0 || opts.corrupt < 0 || opts.corrupt > 1 {
				return fmt.Errorf("invalid simulate options")
			}
			w := cmd.OutOrStdout()
			if opts.out != "-" {
				f, err := os.Create(opts.out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return simulate(cmd.Context(), w, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.out, "out", "-", "output file, - for stdout")
	f.IntVar(&opts.count, "count", 100, "frames to write, 0 for no limit")
	f.IntVar(&opts.noise, "noise", 8, "maximum noise bytes before each frame")
	f.Float64Var(&opts.rate, "rate", 0, "frames per second, 0 writes as fast as possible")
	f.Float64Var(&opts.corrupt, "corrupt", 0, "probability that a frame has one byte flipped after sealing")
	f.Int64Var(&opts.seed, "seed", 0, "random seed, 0 picks one from the clock")
	return cmd
}

// simulate writes every fourth frame as navigation and the rest as data
// acquisition, the mix the flight computer sends in cruise.
func simulate(ctx context.Context, w io.Writer, opts simulateOptions) error {
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	reg := telemetry.DefaultRegistry()
	daq, _ := reg.ByName("daq")
	nav, _ := reg.ByName("nav")

	var tick <-chan time.Time
	if opts.rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / opts.rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; opts.count == 0 || i < opts.count; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		uptime := time.Duration(i) * 10 * time.Millisecond
		schema, rec := daq, telemetry.Record(daqRecord(rng, uptime))
		if i%4 == 3 {
			schema, rec = nav, navRecord(rng, uptime)
		}
		frame, _, err := telemetry.Seal(schema, rec)
		if err != nil {
			return err
		}
		if opts.corrupt > 0 && rng.Float64() < opts.corrupt {
			flipBit(rng, schema, frame)
		}

		if _, err := w.Write(lineNoise(rng, opts.noise)); err != nil {
			return fmt.Errorf("write noise: %w", err)
		}
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}

// flipBit flips one bit the checksum covers, or the checksum itself. A
// CRC-8 catches every single bit error, so the frame always fails.
func flipBit(rng *rand.Rand, s *telemetry.Schema, frame []byte) {
	var positions []int
	for _, f := range s.Fields {
		if f.Kind == telemetry.KindPadding {
			continue
		}
		for off := f.Offset; off < f.Offset+f.Size; off++ {
			positions = append(positions, off)
		}
	}
	frame[positions[rng.Intn(len(positions))]] ^= 1 << uint(rng.Intn(8))
}

// lineNoise returns up to max random bytes. 'A' is left out so noise never
// starts a header by itself.
func lineNoise(rng *rand.Rand, max int) []byte {
	if max == 0 {
		return nil
	}
	out := make([]byte, rng.Intn(max+1))
	for i := range out {
		b := byte(rng.Intn(256))
		if b == 'A' {
			b = 0
		}
		out[i] = b
	}
	return out
}

func daqRecord(rng *rand.Rand, uptime time.Duration) telemetry.CompactRecord {
	var rec telemetry.CompactRecord
	phase := uptime.Seconds()
	for ch := range rec.Channels {
		rec.Channels[ch] = float32(5*math.Sin(phase+float64(ch)) + rng.NormFloat64()*0.01)
	}
	rec.Timestamp = int32(uptime / time.Millisecond)
	return rec
}

func navRecord(rng *rand.Rand, uptime time.Duration) telemetry.ExtendedRecord {
	t := uptime.Seconds()
	jitter := func(scale float64) float32 { return float32(rng.NormFloat64() * scale) }
	return telemetry.ExtendedRecord{
		Accel:           [3]float32{jitter(0.05), jitter(0.05), -9.81 + jitter(0.05)},
		Gyro:            [3]float32{jitter(0.01), jitter(0.01), 0.02 + jitter(0.01)},
		Attitude:        [3]float32{float32(2 * math.Sin(t/10)), 1.5, float32(math.Mod(t, 360))},
		SensorTemp:      31.5 + jitter(0.1),
		Latitude:        47.3769 + float32(t*1e-5),
		Longitude:       8.5417 + float32(t*1e-5),
		Altitude:        1200 + float32(t),
		VelNorth:        24 + jitter(0.2),
		VelEast:         12 + jitter(0.2),
		VelDown:         -1 + jitter(0.1),
		StaticPressure:  87800 - float32(t*12),
		DynamicPressure: 420 + jitter(2),
		AirTemperature:  7.2 + jitter(0.05),
		AngleOfAttack:   3.1 + jitter(0.02),
		Sideslip:        jitter(0.02),
		Timestamp:       int64(uptime),
	}
}
