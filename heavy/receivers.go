package heavy

import (
	"fmt"
	"sort"
)

// MIDI input receivers. Changing any of these breaks compatibility with
// compiled patches.
const (
	NameNoteIn         = "__hv_notein"
	NameCtlIn          = "__hv_ctlin"
	NamePolyTouchIn    = "__hv_polytouchin"
	NamePgmIn          = "__hv_pgmin"
	NameTouchIn        = "__hv_touchin"
	NameBendIn         = "__hv_bendin"
	NameMidiIn         = "__hv_midiin"
	NameMidiRealtimeIn = "__hv_midirealtimein"
)

const (
	HashNoteIn         uint32 = 0x67E37CA3
	HashCtlIn          uint32 = 0x41BE0F9C
	HashPolyTouchIn    uint32 = 0xBC530F59
	HashPgmIn          uint32 = 0x2E1EA03D
	HashTouchIn        uint32 = 0x553925BD
	HashBendIn         uint32 = 0x3083F0F7
	HashMidiIn         uint32 = 0x149631BE
	HashMidiRealtimeIn uint32 = 0x6FFF0BCF
)

// MIDI output send names.
const (
	NameNoteOut      = "__hv_noteout"
	NameCtlOut       = "__hv_ctlout"
	NamePgmOut       = "__hv_pgmout"
	NameTouchOut     = "__hv_touchout"
	NamePolyTouchOut = "__hv_polytouchout"
	NameBendOut      = "__hv_bendout"
	NameMidiOut      = "__hv_midiout"
)

// Table is a read-only name <-> hash lookup. The zero value is empty.
type Table struct {
	byName map[string]uint32
	byHash map[uint32]string
}

// NewTable hashes each name with StringToHash.
func NewTable(names ...string) Table {
	pairs := make(map[string]uint32, len(names))
	for _, name := range names {
		pairs[name] = StringToHash(name)
	}
	return NewTableFromHashes(pairs)
}

// NewTableFromHashes builds a table from explicit hashes, as emitted by
// the patch compiler.
func NewTableFromHashes(pairs map[string]uint32) Table {
	t := Table{
		byName: make(map[string]uint32, len(pairs)),
		byHash: make(map[uint32]string, len(pairs)),
	}
	for name, hash := range pairs {
		t.byName[name] = hash
		t.byHash[hash] = name
	}
	return t
}

// Hash returns the hash for name.
func (t Table) Hash(name string) (uint32, bool) {
	h, ok := t.byName[name]
	return h, ok
}

// Name returns the name registered for hash.
func (t Table) Name(hash uint32) (string, bool) {
	n, ok := t.byHash[hash]
	return n, ok
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t.byName)
}

// Names returns the registered names, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe renders a hash as its name when known.
func (t Table) Describe(hash uint32) string {
	if n, ok := t.byHash[hash]; ok {
		return n
	}
	return fmt.Sprintf("0x%08X", hash)
}

// Receivers is the fixed MIDI receiver contract between the translator
// and a compiled patch.
type Receivers struct {
	NoteIn         uint32
	CtlIn          uint32
	PolyTouchIn    uint32
	PgmIn          uint32
	TouchIn        uint32
	BendIn         uint32
	MidiIn         uint32
	MidiRealtimeIn uint32

	// In names every input receiver, Out every output send.
	In  Table
	Out Table
}

// DefaultReceivers returns the receiver set every Heavy patch is built with.
func DefaultReceivers() *Receivers {
	return &Receivers{
		NoteIn:         HashNoteIn,
		CtlIn:          HashCtlIn,
		PolyTouchIn:    HashPolyTouchIn,
		PgmIn:          HashPgmIn,
		TouchIn:        HashTouchIn,
		BendIn:         HashBendIn,
		MidiIn:         HashMidiIn,
		MidiRealtimeIn: HashMidiRealtimeIn,
		In: NewTableFromHashes(map[string]uint32{
			NameNoteIn:         HashNoteIn,
			NameCtlIn:          HashCtlIn,
			NamePolyTouchIn:    HashPolyTouchIn,
			NamePgmIn:          HashPgmIn,
			NameTouchIn:        HashTouchIn,
			NameBendIn:         HashBendIn,
			NameMidiIn:         HashMidiIn,
			NameMidiRealtimeIn: HashMidiRealtimeIn,
		}),
		Out: NewTable(
			NameNoteOut,
			NameCtlOut,
			NamePgmOut,
			NameTouchOut,
			NamePolyTouchOut,
			NameBendOut,
			NameMidiOut,
		),
	}
}

// IsMidiOut reports whether name is one of the MIDI output sends.
func (r *Receivers) IsMidiOut(name string) bool {
	_, ok := r.Out.Hash(name)
	return ok
}
