package cli

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/schedrt/internal/config"
	"github.com/me/schedrt/pkg/model"
)

// newDemoCmd builds the built-in workload: a zip round trip, a forward and
// inverse transform, and a burst of generic tasks. Useful for smoke-testing
// a board bringup without a client plug-in.
func newDemoCmd(cfg *config.RunnerConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in demo workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer env.close()

			env.sched.Start()
			env.startStatusServer()
			defer env.sched.Stop()

			if err := demoZip(env); err != nil {
				return err
			}
			if err := demoFFT(env); err != nil {
				return err
			}
			if err := demoBurst(env); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "demo: all operations completed")
			return nil
		},
	}
}

func demoZip(env *runtimeEnv) error {
	original := bytes.Repeat([]byte("schedrt demo payload "), 128)

	compressed := make([]byte, len(original)+64)
	var n int
	if !env.session.Zip(model.ZipParams{Level: 6, Mode: model.ZipCompress}, original, compressed, &n) {
		return fmt.Errorf("demo: zip compress failed")
	}

	restored := make([]byte, len(original))
	var m int
	if !env.session.Zip(model.ZipParams{Mode: model.ZipDecompress}, compressed[:n], restored, &m) {
		return fmt.Errorf("demo: zip decompress failed")
	}
	if !bytes.Equal(restored[:m], original) {
		return fmt.Errorf("demo: zip round trip mismatch (%d -> %d -> %d bytes)", len(original), n, m)
	}
	return nil
}

func demoFFT(env *runtimeEnv) error {
	const n = 64
	in := make([]float32, 2*n)
	for j := 0; j < n; j++ {
		in[2*j] = float32(math.Sin(2 * math.Pi * 4 * float64(j) / n))
	}
	freq := make([]float32, 2*n)
	if !env.session.FFT(model.FFTPlan{N: n}, in, freq) {
		return fmt.Errorf("demo: forward fft failed")
	}

	back := make([]float32, 2*n)
	if !env.session.FFT(model.FFTPlan{N: n, Inverse: true}, freq, back) {
		return fmt.Errorf("demo: inverse fft failed")
	}
	for i := range in {
		if math.Abs(float64(back[i]-in[i])) > 1e-3 {
			return fmt.Errorf("demo: fft round trip diverged at sample %d", i)
		}
	}
	return nil
}

func demoBurst(env *runtimeEnv) error {
	for i := 0; i < 8; i++ {
		if !env.session.Execute("fir", nil, 2*time.Millisecond) {
			return fmt.Errorf("demo: fir task %d failed", i)
		}
	}
	return nil
}
