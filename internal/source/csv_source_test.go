package source

import (
	"strings"
	"testing"
)

const sampleCSV = `Name,Latitude,Longitude,Pincode,Address,District
City General,12.9716,77.5946,560001,"MG Road, Bangalore",Bangalore Urban
Rural PHC,13.1,77.6,,,
Short Row,12.5,77.5
`

func TestRead(t *testing.T) {
	records, headers, err := Read(strings.NewReader(sampleCSV), DefaultColumnMap())
	if err != nil {
		t.Fatal(err)
	}

	wantHeaders := []string{"Name", "Latitude", "Longitude", "Pincode", "Address", "District"}
	if len(headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", headers, wantHeaders)
	}
	for i := range wantHeaders {
		if headers[i] != wantHeaders[i] {
			t.Errorf("header[%d] = %q, want %q", i, headers[i], wantHeaders[i])
		}
	}

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	first := records[0]
	if first.Index != 0 || first.FacilityName != "City General" ||
		first.RawLat != "12.9716" || first.PostalCode != "560001" ||
		first.TaggedAddress != "MG Road, Bangalore" {
		t.Errorf("first record mismatch: %+v", first)
	}
	if first.Extra["District"] != "Bangalore Urban" {
		t.Errorf("extra column lost: %v", first.Extra)
	}

	if lat, lon, ok := first.Coordinates(); !ok || lat != 12.9716 || lon != 77.5946 {
		t.Errorf("Coordinates = %v, %v, %v", lat, lon, ok)
	}

	// Missing optional columns stay empty, short rows are padded.
	if records[1].PostalCode != "" || records[1].TaggedAddress != "" {
		t.Errorf("optional columns not empty: %+v", records[1])
	}
	if records[2].Extra["District"] != "" {
		t.Errorf("short row not padded: %+v", records[2])
	}
}

func TestReadHeaderCaseInsensitive(t *testing.T) {
	csv := "NAME,latitude,LONGITUDE\nX,1.0,2.0\n"
	records, _, err := Read(strings.NewReader(csv), DefaultColumnMap())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].FacilityName != "X" {
		t.Errorf("case-insensitive mapping failed: %+v", records)
	}
}

func TestReadMissingRequiredColumns(t *testing.T) {
	csv := "Name,Pincode\nX,560001\n"
	if _, _, err := Read(strings.NewReader(csv), DefaultColumnMap()); err == nil {
		t.Error("expected error for missing coordinate columns")
	}
}
