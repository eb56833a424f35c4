package model

// Payload is the operation-specific context attached to a task. Concrete
// types are owned by the caller and filled in by the engine that runs the
// task; they must outlive the task.
type Payload interface {
	// Op names the operation this payload belongs to ("zip", "fft", ...).
	Op() string
}

// ZipMode selects compression or decompression.
type ZipMode int

const (
	ZipCompress ZipMode = iota
	ZipDecompress
)

// ZipParams configures a zip operation. Level is clamped to [0, 9] by the
// operation body.
type ZipParams struct {
	Level int
	Mode  ZipMode
}

// ZipContext carries buffers and outcome for one zip task. Out is the full
// output capacity; OutActual, when non-nil, receives the number of bytes
// produced.
type ZipContext struct {
	Params    ZipParams
	In        []byte
	Out       []byte
	OutActual *int

	OK      bool
	Message string
}

func (*ZipContext) Op() string { return "zip" }

// FFTPlan configures a transform. N is the number of complex samples; zero
// means derive it from the smaller of the in/out buffers.
type FFTPlan struct {
	N       int
	Inverse bool
}

// FFTContext carries interleaved real/imag float32 samples for one fft task.
// Both buffers must hold at least 2*N samples.
type FFTContext struct {
	Plan FFTPlan
	In   []float32
	Out  []float32

	OK      bool
	Message string
}

func (*FFTContext) Op() string { return "fft" }
