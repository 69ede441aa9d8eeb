package training

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ChunkWriter appends Records to a gzip-compressed chunk. Records are
// buffered in memory (one self-play game's worth - at most a few hundred)
// so StampAll can rewrite every record's Result field before the chunk is
// ever compressed and flushed; Close is what actually writes bytes, once
// the game has ended and every buffered record has its final result.
type ChunkWriter struct {
	w       io.Writer
	records []Record
}

// NewChunkWriter returns a ChunkWriter that will compress onto w when
// Close is called.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w}
}

// Append adds one record to the chunk.
func (c *ChunkWriter) Append(r Record) {
	c.records = append(c.records, r)
}

// Len returns the number of records appended so far.
func (c *ChunkWriter) Len() int { return len(c.records) }

// StampAll sets Result on every buffered record - called once, at game end,
// with each record's own side-to-move perspective result already resolved
// by the caller (selfplay tracks which side was to move at sampling time).
func (c *ChunkWriter) StampAll(results []int8) error {
	if len(results) != len(c.records) {
		return errors.Errorf("training: %d results for %d records", len(results), len(c.records))
	}
	for i := range c.records {
		c.records[i].StampResult(results[i])
	}
	return nil
}

// Close gzip-compresses every buffered record onto the underlying writer,
// in append order, and flushes the gzip stream.
func (c *ChunkWriter) Close() error {
	gw := gzip.NewWriter(c.w)
	for i, r := range c.records {
		b, err := r.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "training: encode record %d", i)
		}
		if _, err := gw.Write(b); err != nil {
			return errors.Wrapf(err, "training: write record %d", i)
		}
	}
	return errors.Wrap(gw.Close(), "training: finalize chunk")
}

// ChunkReader reads Records back out of a gzip-compressed chunk.
type ChunkReader struct {
	gz *gzip.Reader
}

// NewChunkReader opens r as a gzip-compressed chunk stream.
func NewChunkReader(r io.Reader) (*ChunkReader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "training: open chunk")
	}
	return &ChunkReader{gz: gz}, nil
}

// ReadRecord reads the next record, returning io.EOF once the chunk is
// exhausted.
func (c *ChunkReader) ReadRecord() (Record, error) {
	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(c.gz, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, errors.New("training: chunk ends mid-record")
		}
		return Record{}, err
	}
	var r Record
	if err := r.UnmarshalBinary(buf); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ReadAll reads every record in the chunk.
func (c *ChunkReader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		r, err := c.ReadRecord()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
}

// Close closes the underlying gzip reader.
func (c *ChunkReader) Close() error {
	return c.gz.Close()
}
