// Modul: mcf.go
// Beschreibung: Merlion-Checkpoint-Format. Ein Container aus typisierten
// Schluessel/Wert-Paaren und benannten Tensor-Blobs mit ausgerichteten
// Offsets. Metadaten stehen vorn, danach folgen die Blobs in F32 oder
// F16. Schluessel werden sortiert geschrieben, damit Dateien bytegleich
// reproduzierbar sind.
package mcf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"runtime"
	"slices"

	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
)

const (
	magic   = "MCF "
	version = 1

	alignment = 32
)

// Tensor-Datentypen auf der Platte.
const (
	TypeF32 uint32 = iota
	TypeF16
)

// Typkennungen der Schluessel/Wert-Paare.
const (
	kvString uint32 = iota
	kvUint64
	kvFloat64
	kvBool
)

// KV sind die Metadaten eines Checkpoints.
type KV map[string]any

func keyValue[T string | uint64 | float64 | bool](kv KV, key string, defaultValue ...T) T {
	if v, ok := kv[key].(T); ok {
		return v
	}
	return defaultValue[0]
}

func (kv KV) String(key string, defaultValue ...string) string {
	return keyValue(kv, key, append(defaultValue, "")...)
}

func (kv KV) Uint64(key string, defaultValue ...uint64) uint64 {
	return keyValue(kv, key, append(defaultValue, 0)...)
}

func (kv KV) Float64(key string, defaultValue ...float64) float64 {
	return keyValue(kv, key, append(defaultValue, 0)...)
}

func (kv KV) Bool(key string, defaultValue ...bool) bool {
	return keyValue(kv, key, append(defaultValue, false)...)
}

// Tensor ist ein benannter Blob. Im Speicher liegen die Werte immer als
// float32, Kind bestimmt nur die Praezision auf der Platte.
type Tensor struct {
	Name  string
	Kind  uint32
	Shape []uint64
	Data  []float32

	offset uint64
}

// Elems ist die Elementzahl laut Shape.
func (t *Tensor) Elems() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) typeSize() (uint64, error) {
	switch t.Kind {
	case TypeF32:
		return 4, nil
	case TypeF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("tensor %q: unknown type %d", t.Name, t.Kind)
	}
}

func (t *Tensor) size() (uint64, error) {
	ts, err := t.typeSize()
	if err != nil {
		return 0, err
	}
	return t.Elems() * ts, nil
}

func (t *Tensor) encode() ([]byte, error) {
	switch t.Kind {
	case TypeF32:
		buf := make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		return buf, nil
	case TypeF16:
		buf := make([]byte, 2*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("tensor %q: unknown type %d", t.Name, t.Kind)
	}
}

func (t *Tensor) decode(raw []byte) error {
	t.Data = make([]float32, t.Elems())
	switch t.Kind {
	case TypeF32:
		for i := range t.Data {
			t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case TypeF16:
		for i := range t.Data {
			t.Data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
	default:
		return fmt.Errorf("tensor %q: unknown type %d", t.Name, t.Kind)
	}
	return nil
}

// File ist ein vollstaendig gelesener Checkpoint.
type File struct {
	KV      KV
	Tensors []*Tensor
}

// Tensor liefert den Blob mit dem Namen, oder nil.
func (f *File) Tensor(name string) *Tensor {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}

// Write schreibt Metadaten und Tensoren in f. Die Blobs werden parallel
// an ihre vorberechneten Offsets geschrieben.
func Write(f *os.File, kv KV, tensors []*Tensor) error {
	seen := make(map[string]bool, len(tensors))
	for _, t := range tensors {
		if seen[t.Name] {
			return fmt.Errorf("duplicate tensor %q", t.Name)
		}
		seen[t.Name] = true
		if uint64(len(t.Data)) != t.Elems() {
			return fmt.Errorf("tensor %q: %d values for shape %v", t.Name, len(t.Data), t.Shape)
		}
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(version)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(tensors))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(kv))); err != nil {
		return err
	}

	for _, key := range slices.Sorted(maps.Keys(kv)) {
		if err := writeKV(w, key, kv[key]); err != nil {
			return err
		}
	}

	var offset uint64
	for _, t := range tensors {
		t.offset = offset
		size, err := t.size()
		if err != nil {
			return err
		}
		if err := writeTensorInfo(w, t); err != nil {
			return err
		}
		offset += size
		offset += uint64(padding(int64(offset), alignment))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	base, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	base += padding(base, alignment)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range tensors {
		g.Go(func() error {
			raw, err := t.encode()
			if err != nil {
				return err
			}
			_, err = io.NewOffsetWriter(f, base+int64(t.offset)).Write(raw)
			return err
		})
	}
	return g.Wait()
}

// WriteFile schreibt einen Checkpoint als Datei neu.
func WriteFile(path string, kv KV, tensors []*Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Write(f, kv, tensors); err != nil {
		return err
	}
	return f.Close()
}

// Open liest einen Checkpoint vollstaendig ein.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Stat liest nur Metadaten und Tensor-Infos eines Checkpoints, die
// Datenbloecke bleiben ungelesen. Fuer Listen und Detailansichten.
func Stat(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kv, tensors, err := decodeHeader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	return &File{KV: kv, Tensors: tensors}, nil
}

func decodeHeader(br *bufio.Reader) (KV, []*Tensor, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, nil, err
	}
	if string(head) != magic {
		return nil, nil, fmt.Errorf("invalid file magic %q", head)
	}

	var v uint32
	if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
		return nil, nil, err
	}
	if v != version {
		return nil, nil, fmt.Errorf("unsupported version %d", v)
	}

	var numTensors, numKV uint64
	if err := binary.Read(br, binary.LittleEndian, &numTensors); err != nil {
		return nil, nil, err
	}
	if err := binary.Read(br, binary.LittleEndian, &numKV); err != nil {
		return nil, nil, err
	}

	kv := make(KV, numKV)
	for i := uint64(0); i < numKV; i++ {
		key, value, err := readKV(br)
		if err != nil {
			return nil, nil, err
		}
		kv[key] = value
	}

	tensors := make([]*Tensor, 0, numTensors)
	for i := uint64(0); i < numTensors; i++ {
		t, err := readTensorInfo(br)
		if err != nil {
			return nil, nil, err
		}
		tensors = append(tensors, t)
	}

	return kv, tensors, nil
}

// Decode liest einen Checkpoint aus r. Magie, Version und alle
// Typkennungen werden strikt geprueft.
func Decode(r io.ReadSeeker) (*File, error) {
	br := bufio.NewReader(r)

	kv, tensors, err := decodeHeader(br)
	if err != nil {
		return nil, err
	}

	// Position des Datenblocks aus der tatsaechlich konsumierten
	// Headerlaenge bestimmen
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	read := pos - int64(br.Buffered())
	base := read + padding(read, alignment)

	for _, t := range tensors {
		size, err := t.size()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, size)
		if _, err := r.Seek(base+int64(t.offset), io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		if err := t.decode(raw); err != nil {
			return nil, err
		}
	}

	return &File{KV: kv, Tensors: tensors}, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<24 {
		return "", fmt.Errorf("string of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeKV(w io.Writer, key string, value any) error {
	if err := writeString(w, key); err != nil {
		return err
	}

	switch v := value.(type) {
	case string:
		if err := binary.Write(w, binary.LittleEndian, kvString); err != nil {
			return err
		}
		return writeString(w, v)
	case uint64:
		if err := binary.Write(w, binary.LittleEndian, kvUint64); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)
	case float64:
		if err := binary.Write(w, binary.LittleEndian, kvFloat64); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)
	case bool:
		if err := binary.Write(w, binary.LittleEndian, kvBool); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)
	default:
		return fmt.Errorf("key %q: unsupported value type %T", key, value)
	}
}

func readKV(r io.Reader) (string, any, error) {
	key, err := readString(r)
	if err != nil {
		return "", nil, err
	}

	var kind uint32
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return "", nil, err
	}

	switch kind {
	case kvString:
		v, err := readString(r)
		return key, v, err
	case kvUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return key, v, err
	case kvFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return key, v, err
	case kvBool:
		var v bool
		err := binary.Read(r, binary.LittleEndian, &v)
		return key, v, err
	default:
		return "", nil, fmt.Errorf("key %q: unknown value type %d", key, kind)
	}
}

func writeTensorInfo(w io.Writer, t *Tensor) error {
	if err := writeString(w, t.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, d := range t.Shape {
		if err := binary.Write(w, binary.LittleEndian, d); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, t.Kind); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, t.offset)
}

func readTensorInfo(r io.Reader) (*Tensor, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var ndims uint32
	if err := binary.Read(r, binary.LittleEndian, &ndims); err != nil {
		return nil, err
	}
	if ndims > 8 {
		return nil, fmt.Errorf("tensor %q: %d dimensions exceed limit", name, ndims)
	}

	shape := make([]uint64, ndims)
	for i := range shape {
		if err := binary.Read(r, binary.LittleEndian, &shape[i]); err != nil {
			return nil, err
		}
	}

	t := &Tensor{Name: name, Shape: shape}
	if err := binary.Read(r, binary.LittleEndian, &t.Kind); err != nil {
		return nil, err
	}
	if _, err := t.typeSize(); err != nil {
		return nil, err
	}
	return t, binary.Read(r, binary.LittleEndian, &t.offset)
}
