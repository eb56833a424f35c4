package ops

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/me/schedrt/pkg/model"
)

// RunZip executes the zip operation body against ctx and records the outcome
// on it. The compression level is clamped to [0, 9] silently. Returns ctx.OK.
func RunZip(ctx *model.ZipContext) bool {
	if ctx.In == nil || ctx.Out == nil {
		ctx.OK = false
		ctx.Message = "zip: buffers missing"
		return false
	}

	level := ctx.Params.Level
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}

	var produced []byte
	var err error
	switch ctx.Params.Mode {
	case model.ZipCompress:
		produced, err = deflate(ctx.In, level)
	case model.ZipDecompress:
		produced, err = inflate(ctx.In)
	default:
		ctx.OK = false
		ctx.Message = fmt.Sprintf("zip: unknown mode %d", ctx.Params.Mode)
		return false
	}
	if err != nil {
		ctx.OK = false
		ctx.Message = fmt.Sprintf("zip: zlib error: %v", err)
		return false
	}
	if len(produced) > len(ctx.Out) {
		ctx.OK = false
		ctx.Message = fmt.Sprintf("zip: output buffer too small (%d > %d)", len(produced), len(ctx.Out))
		return false
	}

	copy(ctx.Out, produced)
	if ctx.OutActual != nil {
		*ctx.OutActual = len(produced)
	}

	verb := "compressed"
	if ctx.Params.Mode == model.ZipDecompress {
		verb = "decompressed"
	}
	ctx.OK = true
	ctx.Message = fmt.Sprintf("zip: %s (%d -> %d)", verb, len(ctx.In), len(produced))
	return true
}

func deflate(in []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(in []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
