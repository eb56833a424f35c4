package ops

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/me/schedrt/pkg/model"
)

// RunFFT executes the fft operation body: a DFT over n interleaved real/imag
// float32 samples. Forward uses sign -1; inverse uses sign +1 and scales by
// 1/n. When the plan leaves N zero, n is derived from the smaller buffer.
// Returns ctx.OK.
func RunFFT(ctx *model.FFTContext) bool {
	if ctx.In == nil || ctx.Out == nil {
		ctx.OK = false
		ctx.Message = "fft: missing buffers"
		return false
	}

	n := ctx.Plan.N
	if n == 0 {
		n = min(len(ctx.In), len(ctx.Out)) / 2
	}
	if n <= 0 || len(ctx.In) < 2*n || len(ctx.Out) < 2*n {
		ctx.OK = false
		ctx.Message = "fft: buffer sizes insufficient"
		return false
	}

	sign := -1.0
	if ctx.Plan.Inverse {
		sign = 1.0
	}

	twoPi := 2.0 * math.Pi
	for k := 0; k < n; k++ {
		sum := complex(0, 0)
		for j := 0; j < n; j++ {
			x := complex(float64(ctx.In[2*j]), float64(ctx.In[2*j+1]))
			angle := sign * twoPi * float64(k) * float64(j) / float64(n)
			sum += x * cmplx.Exp(complex(0, angle))
		}
		if ctx.Plan.Inverse {
			sum /= complex(float64(n), 0)
		}
		ctx.Out[2*k] = float32(real(sum))
		ctx.Out[2*k+1] = float32(imag(sum))
	}

	ctx.OK = true
	ctx.Message = fmt.Sprintf("fft: computed n=%d", n)
	return true
}
