// Package recorder taps translated rate frames into an Arrow IPC file, one
// record batch per synchronization window.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Frame is the rate signal of one window.
type Frame struct {
	Window int
	Start  float64
	Width  float64
	Rates  []float64
}

// Schema is the layout of every batch: one row per source.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "window", Type: arrow.PrimitiveTypes.Int64},
	{Name: "start", Type: arrow.PrimitiveTypes.Float64},
	{Name: "width", Type: arrow.PrimitiveTypes.Float64},
	{Name: "source", Type: arrow.PrimitiveTypes.Int32},
	{Name: "rate", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Recorder appends frames to one file. A nil *Recorder discards frames.
type Recorder struct {
	mu      sync.Mutex
	f       *os.File
	w       *ipc.FileWriter
	b       *array.RecordBuilder
	written int
}

// Create opens path for writing, creating its directory.
func Create(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating record directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating record file: %w", err)
	}
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(Schema), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening arrow writer: %w", err)
	}
	return &Recorder{
		f: f,
		w: w,
		b: array.NewRecordBuilder(memory.DefaultAllocator, Schema),
	}, nil
}

// Record writes one frame as a record batch.
func (r *Recorder) Record(fr Frame) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("recorder closed")
	}

	n := len(fr.Rates)
	window := r.b.Field(0).(*array.Int64Builder)
	start := r.b.Field(1).(*array.Float64Builder)
	width := r.b.Field(2).(*array.Float64Builder)
	source := r.b.Field(3).(*array.Int32Builder)
	rate := r.b.Field(4).(*array.Float64Builder)
	for i := 0; i < n; i++ {
		window.Append(int64(fr.Window))
		start.Append(fr.Start)
		width.Append(fr.Width)
		source.Append(int32(i))
	}
	rate.AppendValues(fr.Rates, nil)

	rec := r.b.NewRecord()
	defer rec.Release()
	if err := r.w.Write(rec); err != nil {
		return fmt.Errorf("writing frame %d: %w", fr.Window, err)
	}
	r.written++
	return nil
}

// Frames returns how many frames were written.
func (r *Recorder) Frames() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close writes the file footer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	r.b.Release()
	werr := r.w.Close()
	ferr := r.f.Close()
	r.w = nil
	if werr != nil {
		return fmt.Errorf("closing arrow writer: %w", werr)
	}
	return ferr
}

// ReadFile loads every frame of a recording.
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	rd, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("opening arrow reader: %w", err)
	}
	defer rd.Close()

	frames := make([]Frame, 0, rd.NumRecords())
	for i := 0; i < rd.NumRecords(); i++ {
		rec, err := rd.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading batch %d: %w", i, err)
		}
		windows := rec.Column(0).(*array.Int64)
		starts := rec.Column(1).(*array.Float64)
		widths := rec.Column(2).(*array.Float64)
		rates := rec.Column(4).(*array.Float64)

		fr := Frame{Rates: make([]float64, rec.NumRows())}
		if rec.NumRows() > 0 {
			fr.Window = int(windows.Value(0))
			fr.Start = starts.Value(0)
			fr.Width = widths.Value(0)
		}
		for j := 0; j < int(rec.NumRows()); j++ {
			fr.Rates[j] = rates.Value(j)
		}
		frames = append(frames, fr)
	}
	return frames, nil
}
