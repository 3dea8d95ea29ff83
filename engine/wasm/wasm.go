package wasm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"hvmidi/debug"
	"hvmidi/engine"
	"hvmidi/heavy"
)

var (
	// ErrMissingExport is returned when the module lacks a required export.
	ErrMissingExport = errors.New("wasm: missing export")

	// ErrNoTable is returned by SetTable for tables the patch doesn't have.
	ErrNoTable = errors.New("wasm: no such table")
)

// Options configures the patch instance.
type Options struct {
	Patch      string  // patch name used in hv_<patch>_new
	SampleRate float64 // defaults to 48000
	BlockSize  int     // scratch buffer size in frames, defaults to 128

	// Pool sizes in KB. All zero means the patch defaults.
	PoolKB, InputQueueKB, OutputQueueKB int
}

// Engine is a Heavy patch running in wazero. It implements engine.Engine.
type Engine struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     api.Module
	fn      map[string]api.Function

	context uint32 // HeavyContextInterface*
	inputs  int
	outputs int
	rate    float64

	scratch   uint32 // format string + varargs buffer
	inBuf     uint32
	outBuf    uint32
	bufFrames int
	inBytes   []byte // staging for inBuf

	sendHook  heavy.SendHook
	printHook heavy.PrintHook
	closed    bool
}

var _ engine.Engine = (*Engine)(nil)

// Load reads a .wasm file (~ is expanded) and instantiates it.
func Load(ctx context.Context, path string, opts Options) (*Engine, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	bin, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return New(ctx, bin, opts)
}

// New compiles and instantiates a Heavy module and creates the patch context.
func New(ctx context.Context, bin []byte, opts Options) (*Engine, error) {
	if opts.Patch == "" {
		return nil, errors.New("wasm: patch name required")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 128
	}

	e := &Engine{
		ctx:     ctx,
		runtime: wazero.NewRuntime(ctx),
		fn:      make(map[string]api.Function),
		rate:    opts.SampleRate,
	}

	if err := e.instantiate(bin); err != nil {
		e.runtime.Close(ctx)
		return nil, err
	}
	if err := e.create(opts); err != nil {
		e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *Engine) instantiate(bin []byte) error {
	ctx := e.ctx

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("compile module: %w", err)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return fmt.Errorf("instantiate wasi: %w", err)
	}

	env := e.runtime.NewHostModuleBuilder(importModule)
	exporter, err := emscripten.NewFunctionExporterForModule(compiled)
	if err != nil {
		return fmt.Errorf("emscripten imports: %w", err)
	}
	exporter.ExportFunctions(env)
	env.NewFunctionBuilder().WithFunc(e.onSend).Export(importSendHook)
	env.NewFunctionBuilder().WithFunc(e.onPrint).Export(importPrintHook)
	if _, err := env.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate env: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithStartFunctions("_initialize").
		WithStderr(os.Stderr)
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("instantiate module: %w", err)
	}
	e.mod = mod
	return nil
}

func (e *Engine) create(opts Options) error {
	var (
		results []uint64
		err     error
	)
	rate := api.EncodeF64(opts.SampleRate)
	if opts.PoolKB > 0 || opts.InputQueueKB > 0 || opts.OutputQueueKB > 0 {
		results, err = e.call(fmt.Sprintf(exportNewWithOptionsFmt, opts.Patch), rate,
			api.EncodeI32(int32(opts.PoolKB)),
			api.EncodeI32(int32(opts.InputQueueKB)),
			api.EncodeI32(int32(opts.OutputQueueKB)))
	} else {
		results, err = e.call(fmt.Sprintf(exportNewFmt, opts.Patch), rate)
	}
	if err != nil {
		return err
	}
	e.context = api.DecodeU32(results[0])
	if e.context == 0 {
		return fmt.Errorf("wasm: hv_%s_new returned NULL", opts.Patch)
	}

	if e.inputs, err = e.callInt(exportNumInputs, uint64(e.context)); err != nil {
		return err
	}
	if e.outputs, err = e.callInt(exportNumOutputs, uint64(e.context)); err != nil {
		return err
	}

	if e.scratch, err = e.malloc(32); err != nil {
		return err
	}
	if err := e.ensureBuffers(opts.BlockSize); err != nil {
		return err
	}

	if f := e.mod.ExportedFunction(exportInstallHooks); f != nil {
		if _, err := f.Call(e.ctx, uint64(e.context)); err != nil {
			return fmt.Errorf("install hooks: %w", err)
		}
	} else {
		debug.Log("wasm", "%s not exported; patch sends will not be observed", exportInstallHooks)
	}

	debug.Log("wasm", "patch %s: %d in, %d out @ %.0f Hz", opts.Patch, e.inputs, e.outputs, e.rate)
	return nil
}

func (e *Engine) function(name string) (api.Function, error) {
	if f, ok := e.fn[name]; ok {
		return f, nil
	}
	f := e.mod.ExportedFunction(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
	}
	e.fn[name] = f
	return f, nil
}

func (e *Engine) call(name string, params ...uint64) ([]uint64, error) {
	if e.closed {
		return nil, engine.ErrClosed
	}
	f, err := e.function(name)
	if err != nil {
		return nil, err
	}
	results, err := f.Call(e.ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return results, nil
}

func (e *Engine) callInt(name string, params ...uint64) (int, error) {
	results, err := e.call(name, params...)
	if err != nil {
		return 0, err
	}
	return int(api.DecodeI32(results[0])), nil
}

func (e *Engine) malloc(size int) (uint32, error) {
	results, err := e.call(exportMalloc, api.EncodeI32(int32(size)))
	if err != nil {
		return 0, err
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("wasm: malloc(%d) failed", size)
	}
	return ptr, nil
}

func (e *Engine) free(ptr uint32) {
	if ptr == 0 || e.mod.ExportedFunction(exportFree) == nil {
		return
	}
	e.call(exportFree, uint64(ptr))
}

func (e *Engine) ensureBuffers(frames int) error {
	if frames <= e.bufFrames {
		return nil
	}
	e.free(e.inBuf)
	e.free(e.outBuf)
	e.inBuf, e.outBuf = 0, 0

	var err error
	if e.inputs > 0 {
		if e.inBuf, err = e.malloc(e.inputs * frames * 4); err != nil {
			return err
		}
	}
	if e.outBuf, err = e.malloc(max(e.outputs, 1) * frames * 4); err != nil {
		return err
	}
	e.inBytes = make([]byte, e.inputs*frames*4)
	e.bufFrames = frames
	return nil
}

func (e *Engine) callOK(name string, params ...uint64) error {
	results, err := e.call(name, params...)
	if err != nil {
		return err
	}
	if len(results) > 0 && results[0] == 0 {
		return fmt.Errorf("%s: rejected", name)
	}
	return nil
}

// SendMessage sends up to three floats through hv_sendMessageToReceiverV.
func (e *Engine) SendMessage(receiver uint32, args ...float32) error {
	if e.closed {
		return engine.ErrClosed
	}
	if len(args) > 3 {
		return fmt.Errorf("wasm: %d arguments, at most 3 supported", len(args))
	}
	mem := e.mod.Memory()

	format := make([]byte, 4)
	for i := range args {
		format[i] = 'f'
	}
	if !mem.Write(e.scratch, format) {
		return errors.New("wasm: scratch out of range")
	}
	va := e.scratch + 8
	for i, f := range args {
		// float varargs are promoted to double
		mem.WriteFloat64Le(va+uint32(i*8), float64(f))
	}

	return e.callOK(exportSendMessageV, uint64(e.context), api.EncodeU32(receiver),
		api.EncodeF64(0), uint64(e.scratch), uint64(va))
}

func (e *Engine) SendFloat(receiver uint32, f float32) error {
	return e.callOK(exportSendFloat, uint64(e.context), api.EncodeU32(receiver), api.EncodeF32(f))
}

func (e *Engine) SendBang(receiver uint32) error {
	return e.callOK(exportSendBang, uint64(e.context), api.EncodeU32(receiver))
}

func (e *Engine) SendSymbol(receiver uint32, s string) error {
	ptr, err := e.malloc(len(s) + 1)
	if err != nil {
		return err
	}
	defer e.free(ptr)
	e.mod.Memory().Write(ptr, append([]byte(s), 0))
	return e.callOK(exportSendSymbol, uint64(e.context), api.EncodeU32(receiver), uint64(ptr))
}

func (e *Engine) SetTable(table uint32, data []float32) error {
	results, err := e.call(exportTableGetBuffer, uint64(e.context), api.EncodeU32(table))
	if err != nil {
		return err
	}
	if api.DecodeU32(results[0]) == 0 {
		return fmt.Errorf("%w: 0x%08X", ErrNoTable, table)
	}
	if err := e.callOK(exportTableSetLength, uint64(e.context), api.EncodeU32(table), api.EncodeU32(uint32(len(data)))); err != nil {
		return err
	}
	// setLength may reallocate
	results, err = e.call(exportTableGetBuffer, uint64(e.context), api.EncodeU32(table))
	if err != nil {
		return err
	}
	ptr := api.DecodeU32(results[0])

	buf := make([]byte, len(data)*4)
	for i, f := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	if !e.mod.Memory().Write(ptr, buf) {
		return errors.New("wasm: table buffer out of range")
	}
	return nil
}

func (e *Engine) NumInputChannels() int  { return e.inputs }
func (e *Engine) NumOutputChannels() int { return e.outputs }

// Process runs hv_processInline and copies the output channels out.
// Input channels beyond the patch's inputs are ignored.
func (e *Engine) Process(in, out [][]float32, n int) error {
	if e.closed {
		return engine.ErrClosed
	}
	if err := e.ensureBuffers(n); err != nil {
		return err
	}
	mem := e.mod.Memory()

	if e.inBuf != 0 {
		buf := e.inBytes[:e.inputs*n*4]
		clear(buf)
		for c := 0; c < e.inputs && c < len(in); c++ {
			for i := 0; i < n && i < len(in[c]); i++ {
				binary.LittleEndian.PutUint32(buf[(c*n+i)*4:], math.Float32bits(in[c][i]))
			}
		}
		mem.Write(e.inBuf, buf)
	}

	if _, err := e.call(exportProcessInline, uint64(e.context), uint64(e.inBuf), uint64(e.outBuf), api.EncodeI32(int32(n))); err != nil {
		return err
	}

	raw, ok := mem.Read(e.outBuf, uint32(e.outputs*n*4))
	if !ok {
		return errors.New("wasm: output buffer out of range")
	}
	for c := 0; c < len(out); c++ {
		if c >= e.outputs {
			engine.Silence(out[c:c+1], n)
			continue
		}
		for i := 0; i < n && i < len(out[c]); i++ {
			out[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[(c*n+i)*4:]))
		}
	}
	return nil
}

func (e *Engine) SetSendHook(hook heavy.SendHook)   { e.sendHook = hook }
func (e *Engine) SetPrintHook(hook heavy.PrintHook) { e.printHook = hook }

// onSend is the env.hvmidi_send_hook import:
// void (HeavyContextInterface *c, const char *sendName, hv_uint32_t sendHash, const HvMessage *m)
func (e *Engine) onSend(_ context.Context, mod api.Module, _, namePtr, hash, msgPtr uint32) {
	if e.sendHook == nil {
		return
	}
	mem := mod.Memory()
	e.sendHook(readCString(mem, namePtr), hash, readMessage(mem, msgPtr))
}

// onPrint is the env.hvmidi_print_hook import:
// void (HeavyContextInterface *c, const char *printName, const char *str, const HvMessage *m)
func (e *Engine) onPrint(_ context.Context, mod api.Module, _, namePtr, strPtr, msgPtr uint32) {
	if e.printHook == nil {
		return
	}
	mem := mod.Memory()
	ts, _ := mem.ReadUint32Le(msgPtr)
	e.printHook(readCString(mem, namePtr), readCString(mem, strPtr), float64(ts)*1000/e.rate)
}

func readCString(mem api.Memory, ptr uint32) string {
	var b []byte
	for {
		c, ok := mem.ReadByte(ptr)
		if !ok || c == 0 {
			return string(b)
		}
		b = append(b, c)
		ptr++
	}
}

func readMessage(mem api.Memory, ptr uint32) heavy.Args {
	n, ok := mem.ReadUint16Le(ptr + msgNumElementsOffset)
	if !ok {
		return nil
	}
	args := make(heavy.Args, n)
	for i := range args {
		el := ptr + msgElementsOffset + uint32(i*msgElementSize)
		if typ, _ := mem.ReadUint32Le(el); typ == msgTypeFloat {
			args[i], _ = mem.ReadFloat32Le(el + 4)
		}
	}
	return args
}

// Close deletes the patch context and releases the runtime.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	if e.context != 0 {
		e.call(exportDelete, uint64(e.context))
	}
	e.closed = true
	return e.runtime.Close(e.ctx)
}
