package demo

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func record(t *testing.T, h Header, recs []Record) []byte {
	t.Helper()
	r, err := NewRecorder(h)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if err := r.Write(rec.Channel, rec.Data, rec.Millis); err != nil {
			t.Fatal(err)
		}
	}
	data, err := r.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRecordAndReplay(t *testing.T) {
	recs := []Record{
		{Millis: 0, Channel: 1, Data: []byte{1, 2, 3}},
		{Millis: 40, Channel: 0, Data: []byte{4}},
		{Millis: 80, Channel: 1, Data: []byte{}},
	}
	data := record(t, Header{Protocol: 1123, Map: "ac_depot", ModeName: "ctf", Mode: 5}, recs)

	rd, err := NewReader(data)
	if err != nil {
		t.Fatal(err)
	}
	h := rd.Header()
	if h.Magic != Magic || h.Version != Version || h.Map != "ac_depot" || h.ID == "" {
		t.Fatalf("header = %+v", h)
	}
	for i, want := range recs {
		got, err := rd.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.Millis != want.Millis || got.Channel != want.Channel || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("record %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("after last record: %v", err)
	}
}

func TestWriteAfterFinish(t *testing.T) {
	r, err := NewRecorder(Header{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(1, []byte{1}, 0); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v", err)
	}
	if _, err := r.Finish(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second finish err = %v", err)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	if _, err := NewReader([]byte("definitely not gzip")); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestStoreRing(t *testing.T) {
	s := NewStore(2, "")
	now := time.Unix(0, 0).UTC()
	for _, m := range []string{"a", "b", "c"} {
		if _, _, err := s.Add(Header{Map: m, ModeName: "tdm"}, []byte(m), now); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
	first, _ := s.Get(1)
	latest, _ := s.Get(0)
	if first.Header.Map != "b" || latest.Header.Map != "c" {
		t.Fatalf("first = %s, latest = %s", first.Header.Map, latest.Header.Map)
	}
	if _, ok := s.Get(3); ok {
		t.Fatal("out of range demo returned")
	}
	if s.Clear(1) != 1 || s.Len() != 1 {
		t.Fatal("Clear(1) failed")
	}
	if s.Clear(0) != 1 || s.Len() != 0 {
		t.Fatal("Clear(0) failed")
	}
}

func TestDescribe(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Describe(Header{ModeName: "ctf", Map: "ac_mines"}, 2048, now)
	want := "Tue Jan  2 03:04:05 2024: ctf, ac_mines, 2.00kB"
	if got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}

func TestStoreWritesAndPrunesDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(5, dir)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 3; i++ {
		_, path, err := s.Add(Header{Map: "maps/ac_" + string(rune('a'+i)), ModeName: "dm"}, []byte{byte(i)}, base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	if filepath.Dir(paths[0]) != dir {
		t.Fatalf("demo written to %s", paths[0])
	}
	removed, err := s.PruneDir(1)
	if err != nil || removed != 2 {
		t.Fatalf("PruneDir = %d, %v", removed, err)
	}
	if _, err := os.Stat(paths[2]); err != nil {
		t.Fatalf("newest demo removed: %v", err)
	}
}
