// Package source loads the batch input. Every column is carried through to
// the result output untouched; the resolver only interprets the mapped ones.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/place-matcher/app/models"
)

// ColumnMap names the input columns the resolver interprets. Matching is
// case-insensitive.
type ColumnMap struct {
	Name    string
	Lat     string
	Lon     string
	Postal  string
	Address string
}

// DefaultColumnMap matches the usual facility extract layout.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Name:    "name",
		Lat:     "latitude",
		Lon:     "longitude",
		Postal:  "pincode",
		Address: "address",
	}
}

// LoadCSV reads the whole input into memory and returns the records plus the
// header row in file order. Short rows are padded with empty fields so a
// ragged export cannot abort the batch.
func LoadCSV(path string, cols ColumnMap) ([]models.InputRecord, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return Read(f, cols)
}

// Read parses CSV input from r. The first row is the header.
func Read(r io.Reader, cols ColumnMap) ([]models.InputRecord, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	idx := func(name string) int {
		for i, h := range headers {
			if strings.EqualFold(h, name) {
				return i
			}
		}
		return -1
	}
	nameIdx := idx(cols.Name)
	latIdx := idx(cols.Lat)
	lonIdx := idx(cols.Lon)
	postalIdx := idx(cols.Postal)
	addrIdx := idx(cols.Address)
	if nameIdx < 0 || latIdx < 0 || lonIdx < 0 {
		return nil, nil, fmt.Errorf("input missing required columns %q, %q, %q (have %v)",
			cols.Name, cols.Lat, cols.Lon, headers)
	}

	var records []models.InputRecord
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", row, err)
		}
		for len(fields) < len(headers) {
			fields = append(fields, "")
		}

		rec := models.InputRecord{
			Index:        row,
			FacilityName: strings.TrimSpace(fields[nameIdx]),
			RawLat:       strings.TrimSpace(fields[latIdx]),
			RawLon:       strings.TrimSpace(fields[lonIdx]),
			Extra:        make(map[string]string, len(headers)),
			ExtraOrder:   headers,
		}
		if postalIdx >= 0 {
			rec.PostalCode = strings.TrimSpace(fields[postalIdx])
		}
		if addrIdx >= 0 {
			rec.TaggedAddress = strings.TrimSpace(fields[addrIdx])
		}
		for i, h := range headers {
			rec.Extra[h] = fields[i]
		}
		records = append(records, rec)
	}
	return records, headers, nil
}
