// Package ops holds the software operation bodies shared by all engines:
// the zip codec and the reference DFT. Hardware slots fall back to these
// when their dedicated path is unavailable.
package ops

import "github.com/me/schedrt/pkg/model"

// Execute dispatches on the task payload and runs the matching operation
// body. ran is false when the task carries no recognized payload, in which
// case the engine falls back to sleeping for the estimated runtime.
func Execute(t *model.Task) (ok bool, message string, ran bool) {
	switch p := t.Payload.(type) {
	case *model.ZipContext:
		return RunZip(p), p.Message, true
	case *model.FFTContext:
		return RunFFT(p), p.Message, true
	}
	return false, "", false
}
