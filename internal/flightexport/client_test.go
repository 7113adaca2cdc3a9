package flightexport

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/skarn-ml/skarn/internal/status"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", 4); !status.Is(err, status.KindPathNotValid) {
		t.Errorf("empty addr = %v, want path not valid", err)
	}
	if _, err := NewClient("localhost:3000", 0); !status.Is(err, status.KindInternalError) {
		t.Errorf("zero dim = %v, want internal error", err)
	}
}

func TestSchemaShape(t *testing.T) {
	c, err := NewClient("localhost:3000", 8)
	if err != nil {
		t.Fatal(err)
	}
	s := c.Schema()
	if s.NumFields() != 2 {
		t.Fatalf("schema has %d fields, want 2", s.NumFields())
	}
	if s.Field(0).Name != "position" || s.Field(1).Name != "embedding" {
		t.Errorf("field names = %q, %q", s.Field(0).Name, s.Field(1).Name)
	}
}

func TestBuildRecord(t *testing.T) {
	c, err := NewClient("localhost:3000", 3)
	if err != nil {
		t.Fatal(err)
	}

	rows := [][]float32{{1, 2, 3}, {4, 5, 6}}
	rec, err := c.buildRecord(rows)
	if err != nil {
		t.Fatalf("buildRecord: %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 2 {
		t.Fatalf("record has %d rows, want 2", rec.NumRows())
	}
	pos := rec.Column(0).(*array.Int32)
	if pos.Value(0) != 0 || pos.Value(1) != 1 {
		t.Errorf("positions = %d, %d", pos.Value(0), pos.Value(1))
	}
	list := rec.Column(1).(*array.FixedSizeList)
	vals := list.ListValues().(*array.Float32)
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if vals.Value(i) != want {
			t.Errorf("value %d = %v, want %v", i, vals.Value(i), want)
		}
	}
}

func TestBuildRecordRejectsRaggedRows(t *testing.T) {
	c, err := NewClient("localhost:3000", 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.buildRecord([][]float32{{1, 2, 3}, {4}}); !status.Is(err, status.KindInternalError) {
		t.Errorf("ragged rows = %v, want internal error", err)
	}
	if _, err := c.buildRecord(nil); !status.Is(err, status.KindInternalError) {
		t.Errorf("empty rows = %v, want internal error", err)
	}
}

func TestExportBeforeConnect(t *testing.T) {
	c, err := NewClient("localhost:3000", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Export(context.Background(), [][]float32{{1, 2}}); !status.Is(err, status.KindInternalError) {
		t.Errorf("Export before Connect = %v, want internal error", err)
	}
}
