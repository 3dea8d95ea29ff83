package wasm

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"hvmidi/engine"
	"hvmidi/heavy"
)

// patchModule is a stand-in for a compiled patch named "test" with one
// input and two outputs. Its exports record what they receive at fixed
// addresses:
//
//	16   hvmidi_install_hooks sets 1
//	100  hv_sendMessageToReceiverV: hash, format (4 bytes), three f64 varargs at 112
//	140  hv_sendFloatToReceiver: hash, f32
//	148  hv_sendBangToReceiver: hash
//	152  hv_sendSymbolToReceiver: hash, string pointer
//	160  hv_table_setLength: length
//
// hv_sendMessageToReceiverV echoes its arguments to env.hvmidi_send_hook
// as "__hv_noteout". hv_processInline writes the input to output 0, its
// negation to output 1, and prints "hello" at timestamp 480. Table 0x1234
// lives at 2048 and moves to 2560 on setLength. malloc bumps from 4096.
var patchModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	// type
	0x01, 0x3b, 0x09, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x00, 0x60, 0x01, 0x7c, 0x01, 0x7f, 0x60,
	0x01, 0x7f, 0x01, 0x7f, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x05, 0x7f, 0x7f, 0x7c, 0x7f, 0x7f, 0x01,
	0x7f, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x03, 0x7f, 0x7f, 0x7d, 0x01, 0x7f,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
	// import env.hvmidi_send_hook, env.hvmidi_print_hook
	0x02, 0x30, 0x02, 0x03, 0x65, 0x6e, 0x76, 0x10, 0x68, 0x76, 0x6d, 0x69, 0x64, 0x69, 0x5f, 0x73,
	0x65, 0x6e, 0x64, 0x5f, 0x68, 0x6f, 0x6f, 0x6b, 0x00, 0x00, 0x03, 0x65, 0x6e, 0x76, 0x11, 0x68,
	0x76, 0x6d, 0x69, 0x64, 0x69, 0x5f, 0x70, 0x72, 0x69, 0x6e, 0x74, 0x5f, 0x68, 0x6f, 0x6f, 0x6b,
	0x00, 0x00,
	// function
	0x03, 0x0f, 0x0e, 0x01, 0x02, 0x02, 0x02, 0x03, 0x03, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x07,
	0x08,
	// memory: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// globals: heap = 4096, table buffer = 2048
	0x06, 0x0d, 0x02, 0x7f, 0x01, 0x41, 0x80, 0x20, 0x0b, 0x7f, 0x01, 0x41, 0x80, 0x10, 0x0b,
	// exports
	0x07, 0xa2, 0x02, 0x0f, 0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, 0x0b, 0x68, 0x76,
	0x5f, 0x74, 0x65, 0x73, 0x74, 0x5f, 0x6e, 0x65, 0x77, 0x00, 0x02, 0x16, 0x68, 0x76, 0x5f, 0x67,
	0x65, 0x74, 0x4e, 0x75, 0x6d, 0x49, 0x6e, 0x70, 0x75, 0x74, 0x43, 0x68, 0x61, 0x6e, 0x6e, 0x65,
	0x6c, 0x73, 0x00, 0x03, 0x17, 0x68, 0x76, 0x5f, 0x67, 0x65, 0x74, 0x4e, 0x75, 0x6d, 0x4f, 0x75,
	0x74, 0x70, 0x75, 0x74, 0x43, 0x68, 0x61, 0x6e, 0x6e, 0x65, 0x6c, 0x73, 0x00, 0x04, 0x06, 0x6d,
	0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x00, 0x05, 0x04, 0x66, 0x72, 0x65, 0x65, 0x00, 0x06, 0x14, 0x68,
	0x76, 0x6d, 0x69, 0x64, 0x69, 0x5f, 0x69, 0x6e, 0x73, 0x74, 0x61, 0x6c, 0x6c, 0x5f, 0x68, 0x6f,
	0x6f, 0x6b, 0x73, 0x00, 0x07, 0x09, 0x68, 0x76, 0x5f, 0x64, 0x65, 0x6c, 0x65, 0x74, 0x65, 0x00,
	0x08, 0x19, 0x68, 0x76, 0x5f, 0x73, 0x65, 0x6e, 0x64, 0x4d, 0x65, 0x73, 0x73, 0x61, 0x67, 0x65,
	0x54, 0x6f, 0x52, 0x65, 0x63, 0x65, 0x69, 0x76, 0x65, 0x72, 0x56, 0x00, 0x09, 0x10, 0x68, 0x76,
	0x5f, 0x70, 0x72, 0x6f, 0x63, 0x65, 0x73, 0x73, 0x49, 0x6e, 0x6c, 0x69, 0x6e, 0x65, 0x00, 0x0a,
	0x16, 0x68, 0x76, 0x5f, 0x73, 0x65, 0x6e, 0x64, 0x46, 0x6c, 0x6f, 0x61, 0x74, 0x54, 0x6f, 0x52,
	0x65, 0x63, 0x65, 0x69, 0x76, 0x65, 0x72, 0x00, 0x0b, 0x15, 0x68, 0x76, 0x5f, 0x73, 0x65, 0x6e,
	0x64, 0x42, 0x61, 0x6e, 0x67, 0x54, 0x6f, 0x52, 0x65, 0x63, 0x65, 0x69, 0x76, 0x65, 0x72, 0x00,
	0x0c, 0x17, 0x68, 0x76, 0x5f, 0x73, 0x65, 0x6e, 0x64, 0x53, 0x79, 0x6d, 0x62, 0x6f, 0x6c, 0x54,
	0x6f, 0x52, 0x65, 0x63, 0x65, 0x69, 0x76, 0x65, 0x72, 0x00, 0x0d, 0x12, 0x68, 0x76, 0x5f, 0x74,
	0x61, 0x62, 0x6c, 0x65, 0x5f, 0x67, 0x65, 0x74, 0x42, 0x75, 0x66, 0x66, 0x65, 0x72, 0x00, 0x0e,
	0x12, 0x68, 0x76, 0x5f, 0x74, 0x61, 0x62, 0x6c, 0x65, 0x5f, 0x73, 0x65, 0x74, 0x4c, 0x65, 0x6e,
	0x67, 0x74, 0x68, 0x00, 0x0f,
	// code
	0x0a, 0x95, 0x03, 0x0e, 0x05, 0x00, 0x41, 0x80, 0x08, 0x0b, 0x04, 0x00, 0x41, 0x01, 0x0b, 0x04,
	0x00, 0x41, 0x02, 0x0b, 0x11, 0x00, 0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x41, 0x07, 0x6a, 0x41,
	0x78, 0x71, 0x6a, 0x24, 0x00, 0x0b, 0x02, 0x00, 0x0b, 0x09, 0x00, 0x41, 0x10, 0x41, 0x01, 0x36,
	0x02, 0x00, 0x0b, 0x02, 0x00, 0x0b, 0xa8, 0x01, 0x00, 0x41, 0xe4, 0x00, 0x20, 0x01, 0x36, 0x02,
	0x00, 0x41, 0xe8, 0x00, 0x20, 0x03, 0x28, 0x02, 0x00, 0x36, 0x02, 0x00, 0x41, 0xf0, 0x00, 0x20,
	0x04, 0x2b, 0x03, 0x00, 0x39, 0x03, 0x00, 0x41, 0xf8, 0x00, 0x20, 0x04, 0x2b, 0x03, 0x08, 0x39,
	0x03, 0x00, 0x41, 0x80, 0x01, 0x20, 0x04, 0x2b, 0x03, 0x10, 0x39, 0x03, 0x00, 0x41, 0xc8, 0x01,
	0x41, 0x00, 0x36, 0x02, 0x00, 0x41, 0xcc, 0x01, 0x20, 0x03, 0x2d, 0x00, 0x00, 0x41, 0x00, 0x47,
	0x20, 0x03, 0x2d, 0x00, 0x01, 0x41, 0x00, 0x47, 0x6a, 0x20, 0x03, 0x2d, 0x00, 0x02, 0x41, 0x00,
	0x47, 0x6a, 0x3b, 0x01, 0x00, 0x41, 0xd0, 0x01, 0x41, 0x01, 0x36, 0x02, 0x00, 0x41, 0xd4, 0x01,
	0x20, 0x04, 0x2b, 0x03, 0x00, 0xb6, 0x38, 0x02, 0x00, 0x41, 0xd8, 0x01, 0x41, 0x01, 0x36, 0x02,
	0x00, 0x41, 0xdc, 0x01, 0x20, 0x04, 0x2b, 0x03, 0x08, 0xb6, 0x38, 0x02, 0x00, 0x41, 0xe0, 0x01,
	0x41, 0x01, 0x36, 0x02, 0x00, 0x41, 0xe4, 0x01, 0x20, 0x04, 0x2b, 0x03, 0x10, 0xb6, 0x38, 0x02,
	0x00, 0x20, 0x00, 0x41, 0xac, 0x02, 0x20, 0x01, 0x41, 0xc8, 0x01, 0x10, 0x00, 0x41, 0x01, 0x0b,
	0x5d, 0x01, 0x01, 0x7f, 0x41, 0x00, 0x21, 0x04, 0x02, 0x40, 0x03, 0x40, 0x20, 0x04, 0x20, 0x03,
	0x4e, 0x0d, 0x01, 0x20, 0x02, 0x20, 0x04, 0x41, 0x02, 0x74, 0x6a, 0x20, 0x01, 0x20, 0x04, 0x41,
	0x02, 0x74, 0x6a, 0x2a, 0x02, 0x00, 0x38, 0x02, 0x00, 0x20, 0x02, 0x20, 0x03, 0x20, 0x04, 0x6a,
	0x41, 0x02, 0x74, 0x6a, 0x20, 0x01, 0x20, 0x04, 0x41, 0x02, 0x74, 0x6a, 0x2a, 0x02, 0x00, 0x8c,
	0x38, 0x02, 0x00, 0x20, 0x04, 0x41, 0x01, 0x6a, 0x21, 0x04, 0x0c, 0x00, 0x0b, 0x0b, 0x20, 0x00,
	0x41, 0xc0, 0x02, 0x41, 0xca, 0x02, 0x41, 0x90, 0x03, 0x10, 0x01, 0x20, 0x03, 0x0b, 0x14, 0x00,
	0x41, 0x8c, 0x01, 0x20, 0x01, 0x36, 0x02, 0x00, 0x41, 0x90, 0x01, 0x20, 0x02, 0x38, 0x02, 0x00,
	0x41, 0x01, 0x0b, 0x0c, 0x00, 0x41, 0x94, 0x01, 0x20, 0x01, 0x36, 0x02, 0x00, 0x41, 0x01, 0x0b,
	0x14, 0x00, 0x41, 0x98, 0x01, 0x20, 0x01, 0x36, 0x02, 0x00, 0x41, 0x9c, 0x01, 0x20, 0x02, 0x36,
	0x02, 0x00, 0x41, 0x01, 0x0b, 0x10, 0x00, 0x20, 0x01, 0x41, 0xb4, 0x24, 0x46, 0x04, 0x7f, 0x23,
	0x01, 0x05, 0x41, 0x00, 0x0b, 0x0b, 0x11, 0x00, 0x41, 0xa0, 0x01, 0x20, 0x02, 0x36, 0x02, 0x00,
	0x41, 0x80, 0x14, 0x24, 0x01, 0x41, 0x01, 0x0b,
	// data: send name, print name, print text, print timestamp
	0x0b, 0x36, 0x04, 0x00, 0x41, 0xac, 0x02, 0x0b, 0x0d, 0x5f, 0x5f, 0x68, 0x76, 0x5f, 0x6e, 0x6f,
	0x74, 0x65, 0x6f, 0x75, 0x74, 0x00, 0x00, 0x41, 0xc0, 0x02, 0x0b, 0x06, 0x70, 0x72, 0x69, 0x6e,
	0x74, 0x00, 0x00, 0x41, 0xca, 0x02, 0x0b, 0x06, 0x68, 0x65, 0x6c, 0x6c, 0x6f, 0x00, 0x00, 0x41,
	0x90, 0x03, 0x0b, 0x04, 0xe0, 0x01, 0x00, 0x00,
}

const patchTable = 0x1234

func newTestPatch(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), patchModule, Options{Patch: "test", SampleRate: 48000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func readU32(t *testing.T, e *Engine, ptr uint32) uint32 {
	t.Helper()
	v, ok := e.mod.Memory().ReadUint32Le(ptr)
	if !ok {
		t.Fatalf("read at %d out of range", ptr)
	}
	return v
}

func TestNewTestPatch(t *testing.T) {
	e := newTestPatch(t)

	if e.NumInputChannels() != 1 || e.NumOutputChannels() != 2 {
		t.Errorf("Expected 1 in 2 out, got %d in %d out", e.NumInputChannels(), e.NumOutputChannels())
	}
	if e.context != 1024 {
		t.Errorf("Expected context 1024, got %d", e.context)
	}
	if got := readU32(t, e, 16); got != 1 {
		t.Errorf("Expected hooks installed, got flag %d", got)
	}
}

func TestSendMessageVarargs(t *testing.T) {
	e := newTestPatch(t)
	hash := heavy.StringToHash(heavy.NameNoteIn)

	if err := e.SendMessage(hash, 60, 100, 3); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	mem := e.mod.Memory()
	if got := readU32(t, e, 100); got != hash {
		t.Errorf("Expected hash 0x%08X, got 0x%08X", hash, got)
	}
	format, _ := mem.Read(104, 4)
	if string(format) != "fff\x00" {
		t.Errorf("Expected format fff, got %q", format)
	}
	for i, want := range []float64{60, 100, 3} {
		got, _ := mem.ReadFloat64Le(112 + uint32(i*8))
		if got != want {
			t.Errorf("Expected vararg %d to be %g, got %g", i, want, got)
		}
	}
}

func TestSendMessageTooManyArgs(t *testing.T) {
	e := newTestPatch(t)
	if err := e.SendMessage(1, 1, 2, 3, 4); err == nil {
		t.Error("Expected error for four arguments")
	}
}

func TestSendHookDelivery(t *testing.T) {
	e := newTestPatch(t)

	type sent struct {
		name string
		hash uint32
		args heavy.Args
	}
	var got []sent
	e.SetSendHook(func(name string, hash uint32, msg heavy.Message) {
		args := make(heavy.Args, msg.NumElements())
		for i := range args {
			args[i] = msg.Float(i)
		}
		got = append(got, sent{name, hash, args})
	})

	if err := e.SendMessage(7, 60, 100, 3); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := e.SendMessage(8, 0.5); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	want := []sent{
		{heavy.NameNoteOut, 7, heavy.Args{60, 100, 3}},
		{heavy.NameNoteOut, 8, heavy.Args{0.5}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestProcessCopiesOutput(t *testing.T) {
	e := newTestPatch(t)

	var prints []string
	var times []float64
	e.SetPrintHook(func(name, text string, timeMs float64) {
		prints = append(prints, name+": "+text)
		times = append(times, timeMs)
	})

	out := [][]float32{make([]float32, 4), make([]float32, 4), {9, 9, 9, 9}}
	if err := e.Process([][]float32{{1, 2, 3, 4}}, out, 4); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := [][]float32{{1, 2, 3, 4}, {-1, -2, -3, -4}, {0, 0, 0, 0}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Expected %v, got %v", want, out)
	}
	if !reflect.DeepEqual(prints, []string{"print: hello"}) {
		t.Errorf("Expected one print, got %v", prints)
	}
	if len(times) == 1 && times[0] != 10 {
		t.Errorf("Expected print at 10ms, got %g", times[0])
	}
}

func TestProcessReusesInputStaging(t *testing.T) {
	e := newTestPatch(t)
	out := [][]float32{make([]float32, 4), make([]float32, 4)}

	if err := e.Process([][]float32{{1, 2, 3, 4}}, out, 4); err != nil {
		t.Fatalf("Process: %v", err)
	}
	staging := &e.inBytes[0]

	// A short input leaves the rest of the block silent.
	if err := e.Process([][]float32{{5, 6}}, out, 4); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if &e.inBytes[0] != staging {
		t.Error("Expected the input staging buffer to be reused")
	}
	if want := []float32{5, 6, 0, 0}; !reflect.DeepEqual(out[0], want) {
		t.Errorf("Expected %v, got %v", want, out[0])
	}
}

func TestProcessGrowsBuffers(t *testing.T) {
	e := newTestPatch(t)
	n := 256
	in := [][]float32{make([]float32, n)}
	for i := range in[0] {
		in[0][i] = float32(i)
	}
	out := [][]float32{make([]float32, n), make([]float32, n)}

	if err := e.Process(in, out, n); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if e.bufFrames != n {
		t.Errorf("Expected buffers for %d frames, got %d", n, e.bufFrames)
	}
	if out[0][n-1] != float32(n-1) || out[1][n-1] != -float32(n-1) {
		t.Errorf("Expected last frame %d/%d, got %g/%g", n-1, -(n - 1), out[0][n-1], out[1][n-1])
	}
}

func TestSendFloatAndBang(t *testing.T) {
	e := newTestPatch(t)

	if err := e.SendFloat(7, 0.25); err != nil {
		t.Fatalf("SendFloat: %v", err)
	}
	if got := readU32(t, e, 140); got != 7 {
		t.Errorf("Expected float hash 7, got %d", got)
	}
	if got, _ := e.mod.Memory().ReadFloat32Le(144); got != 0.25 {
		t.Errorf("Expected 0.25, got %g", got)
	}

	if err := e.SendBang(8); err != nil {
		t.Fatalf("SendBang: %v", err)
	}
	if got := readU32(t, e, 148); got != 8 {
		t.Errorf("Expected bang hash 8, got %d", got)
	}
}

func TestSendSymbol(t *testing.T) {
	e := newTestPatch(t)

	if err := e.SendSymbol(9, "sine"); err != nil {
		t.Fatalf("SendSymbol: %v", err)
	}
	if got := readU32(t, e, 152); got != 9 {
		t.Errorf("Expected symbol hash 9, got %d", got)
	}
	ptr := readU32(t, e, 156)
	if got := readCString(e.mod.Memory(), ptr); got != "sine" {
		t.Errorf("Expected sine, got %q", got)
	}
}

func TestSetTable(t *testing.T) {
	e := newTestPatch(t)
	mem := e.mod.Memory()

	if err := e.SetTable(patchTable, []float32{0.5, -0.25}); err != nil {
		t.Fatalf("SetTable: %v", err)
	}
	if got := readU32(t, e, 160); got != 2 {
		t.Errorf("Expected length 2, got %d", got)
	}
	for i, want := range []float32{0.5, -0.25} {
		got, _ := mem.ReadFloat32Le(2560 + uint32(i*4))
		if got != want {
			t.Errorf("Expected table[%d] = %g, got %g", i, want, got)
		}
	}
	// written after the reallocation, not to the old buffer
	if got, _ := mem.ReadUint32Le(2048); got != 0 {
		t.Errorf("Expected old buffer untouched, got %08X", got)
	}
}

func TestSetTableMissing(t *testing.T) {
	e := newTestPatch(t)
	if err := e.SetTable(0x9999, []float32{1}); !errors.Is(err, ErrNoTable) {
		t.Errorf("Expected ErrNoTable, got %v", err)
	}
}

func TestClosedPatch(t *testing.T) {
	e := newTestPatch(t)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}

	if err := e.SendMessage(1, 1); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed from SendMessage, got %v", err)
	}
	if err := e.SendFloat(1, float32(math.Pi)); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed from SendFloat, got %v", err)
	}
	out := [][]float32{make([]float32, 4)}
	if err := e.Process(nil, out, 4); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed from Process, got %v", err)
	}
}
