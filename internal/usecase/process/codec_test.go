package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/johnquangdev/meeting-recorder/internal/infrastructure/external/ffmpeg"
	"github.com/johnquangdev/meeting-recorder/pkg/wav"
)

// fakeCodec implements the codec contract in pure Go so the pipeline's
// ordering and timing behavior can be verified without ffmpeg. Raw
// captures whose content starts with "JUNK" count as undecodable.
type fakeCodec struct{}

var corruptMarker = []byte("JUNK")

func (fakeCodec) Probe(_ context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if strings.HasSuffix(path, ".pcm") {
		if bytes.HasPrefix(data, corruptMarker) {
			return 0, fmt.Errorf("probe %s: undecodable stream", path)
		}
		return wav.PCMDuration(int64(len(data)), wav.CaptureSampleRate), nil
	}
	return wav.Duration(data)
}

func (fakeCodec) Convert(_ context.Context, pcmPath, outPath string) error {
	data, err := os.ReadFile(pcmPath)
	if err != nil {
		return err
	}
	if bytes.HasPrefix(data, corruptMarker) {
		return fmt.Errorf("convert %s: undecodable stream", pcmPath)
	}
	encoded, err := wav.Encode(wav.DecodePCM(data), wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

func (fakeCodec) Mix(_ context.Context, inputs []ffmpeg.Input, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("mix: no inputs")
	}

	var mixed []int32
	for _, in := range inputs {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return err
		}
		samples, _, err := wav.Decode(data)
		if err != nil {
			return err
		}
		offset := int(in.OffsetMs) * wav.CaptureSampleRate / 1000
		if need := offset + len(samples); need > len(mixed) {
			mixed = append(mixed, make([]int32, need-len(mixed))...)
		}
		for i, s := range samples {
			mixed[offset+i] += int32(s)
		}
	}

	out := make([]int16, len(mixed))
	for i, s := range mixed {
		switch {
		case s > 32767:
			out[i] = 32767
		case s < -32768:
			out[i] = -32768
		default:
			out[i] = int16(s)
		}
	}
	encoded, err := wav.Encode(out, wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

func (fakeCodec) Concat(_ context.Context, paths []string, outPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("concat: no inputs")
	}

	var joined []int16
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		samples, _, err := wav.Decode(data)
		if err != nil {
			return err
		}
		joined = append(joined, samples...)
	}
	encoded, err := wav.Encode(joined, wav.CaptureSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}

// failingCodec wraps fakeCodec and fails selected operations.
type failingCodec struct {
	fakeCodec
	failMix    bool
	failConcat bool
}

func (c failingCodec) Mix(ctx context.Context, inputs []ffmpeg.Input, outPath string) error {
	if c.failMix {
		return fmt.Errorf("mix: simulated encoder failure")
	}
	return c.fakeCodec.Mix(ctx, inputs, outPath)
}

func (c failingCodec) Concat(ctx context.Context, paths []string, outPath string) error {
	if c.failConcat {
		return fmt.Errorf("concat: simulated encoder failure")
	}
	return c.fakeCodec.Concat(ctx, paths, outPath)
}
