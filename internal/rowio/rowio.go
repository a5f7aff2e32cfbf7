// Package rowio reads and writes module rows in the format bundlers dump
// their dependency graph in: a JSON array of rows, or one JSON row per line.
package rowio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

// Format selects the encoding of Write.
type Format string

const (
	// JSON is a single array of rows.
	JSON Format = "json"
	// NDJSON is one row per line.
	NDJSON Format = "ndjson"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case JSON, NDJSON:
		return Format(s), nil
	case "":
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown row format %q, expected json or ndjson", s)
	}
}

// Read streams rows from r to fn in input order. Both encodings are
// accepted; the first non-blank byte decides.
func Read(r io.Reader, fn func(*graph.ModuleRow) error) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := json.NewDecoder(br)
	if first != '[' {
		for n := 1; ; n++ {
			row := &graph.ModuleRow{}
			if err := dec.Decode(row); errors.Is(err, io.EOF) {
				return nil
			} else if err != nil {
				return fmt.Errorf("row %d: %w", n, err)
			}
			if err := fn(row); err != nil {
				return err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	for n := 1; dec.More(); n++ {
		row := &graph.ModuleRow{}
		if err := dec.Decode(row); err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// ReadAll collects every row of r.
func ReadAll(r io.Reader) ([]*graph.ModuleRow, error) {
	var rows []*graph.ModuleRow
	err := Read(r, func(row *graph.ModuleRow) error {
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// Write encodes rows to w.
func Write(w io.Writer, rows []*graph.ModuleRow, format Format) error {
	bw := bufio.NewWriter(w)
	switch format {
	case NDJSON:
		enc := json.NewEncoder(bw)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
	case JSON, "":
		if _, err := bw.WriteString("["); err != nil {
			return err
		}
		for i, row := range rows {
			if i > 0 {
				if _, err := bw.WriteString(",\n"); err != nil {
					return err
				}
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if _, err := bw.Write(data); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("]\n"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown row format %q", format)
	}
	return bw.Flush()
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
