package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"release-notifier/pkg/release"
)

// SchemaError indicates a persisted snapshot whose columns do not match the record fields.
// Diffing against such a file would report every row as both added and removed.
type SchemaError struct {
	Header []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("snapshot columns [%s] do not match [%s]; remove the snapshot to start over",
		strings.Join(e.Header, ","), strings.Join(release.Columns, ","))
}

// Encode writes snap as CSV with a header row.
func Encode(w io.Writer, snap release.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(release.Columns); err != nil {
		return err
	}
	for _, r := range snap {
		if err := cw.Write([]string{r.Product, r.AvailableDate, r.ImageURL, r.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a CSV snapshot. Columns are matched by header name, so their
// order in the file does not matter, but the set must be exactly release.Columns.
// An empty input decodes to an empty snapshot.
func Decode(r io.Reader) (release.Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(release.Columns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return release.Snapshot{}, nil
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
			return nil, &SchemaError{Header: header}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	snap := release.Snapshot{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		snap = append(snap, release.Record{
			Product:       row[index["product"]],
			AvailableDate: row[index["available_date"]],
			ImageURL:      row[index["image_url"]],
			URL:           row[index["url"]],
		})
	}
	return snap, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if !slices.Contains(release.Columns, name) {
			return nil, &SchemaError{Header: header}
		}
		if _, dup := index[name]; dup {
			return nil, &SchemaError{Header: header}
		}
		index[name] = i
	}
	if len(index) != len(release.Columns) {
		return nil, &SchemaError{Header: header}
	}
	return index, nil
}
