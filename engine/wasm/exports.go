// Package wasm runs a Heavy patch compiled to WebAssembly inside wazero.
//
// The module must be a standalone (reactor) build exporting the Heavy C
// API below plus malloc. Send and print hooks are delivered through the
// host functions env.hvmidi_send_hook and env.hvmidi_print_hook; a build
// that exports hvmidi_install_hooks(context) gets them installed after
// construction.
package wasm

// Heavy C API exports
const (
	// hv_<patch>_new(sampleRate: f64) -> i32 (context)
	exportNewFmt = "hv_%s_new"

	// hv_<patch>_new_with_options(sampleRate: f64, poolKb: i32, inQueueKb: i32, outQueueKb: i32) -> i32
	exportNewWithOptionsFmt = "hv_%s_new_with_options"

	// hv_delete(context: i32)
	exportDelete = "hv_delete"

	// hv_processInline(context: i32, in: i32, out: i32, n: i32) -> i32
	exportProcessInline = "hv_processInline"

	exportNumInputs  = "hv_getNumInputChannels"
	exportNumOutputs = "hv_getNumOutputChannels"

	// hv_sendMessageToReceiverV(context, hash, delayMs: f64, format: i32, ...) -> i32
	// Variadic arguments are passed as a pointer to an 8-byte aligned
	// buffer of doubles.
	exportSendMessageV = "hv_sendMessageToReceiverV"

	exportSendFloat  = "hv_sendFloatToReceiver"
	exportSendBang   = "hv_sendBangToReceiver"
	exportSendSymbol = "hv_sendSymbolToReceiver"

	exportTableSetLength = "hv_table_setLength"
	exportTableGetBuffer = "hv_table_getBuffer"

	// hvmidi_install_hooks(context: i32). Optional.
	exportInstallHooks = "hvmidi_install_hooks"
)

// Memory management exports
const (
	exportMalloc = "malloc"
	exportFree   = "free"
)

// Host imports
const (
	importModule    = "env"
	importSendHook  = "hvmidi_send_hook"
	importPrintHook = "hvmidi_print_hook"
)

// HvMessage layout in linear memory: timestamp u32, numElements u16,
// numBytes u16, then 8-byte elements of {type i32, data}.
const (
	msgNumElementsOffset = 4
	msgElementsOffset    = 8
	msgElementSize       = 8
	msgTypeFloat         = 1
)
