package crs

import (
	"errors"
	"testing"
)

func TestParse_EPSGForms(t *testing.T) {
	for _, in := range []string{"EPSG:4326", "epsg:4326", "4326"} {
		d, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if d.EPSG != 4326 {
			t.Fatalf("Parse(%q) EPSG got %d want 4326", in, d.EPSG)
		}
	}
}

func TestParse_UnknownEPSG(t *testing.T) {
	_, err := Parse("EPSG:999999")
	if !errors.Is(err, ErrUnknownEPSG) {
		t.Fatalf("expected ErrUnknownEPSG, got %v", err)
	}
}

func TestParse_ProjString(t *testing.T) {
	d, err := Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.EPSG != 0 || d.Proj == "" {
		t.Fatalf("proj descriptor malformed: %+v", d)
	}
}

func TestParse_Empty(t *testing.T) {
	d, err := Parse("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Defined() {
		t.Fatalf("empty input must yield the undefined descriptor, got %+v", d)
	}
}

func TestDescriptor_Equal(t *testing.T) {
	a, _ := FromEPSG(4326)
	b, _ := FromEPSG(4326)
	c, _ := FromEPSG(3857)

	if !a.Equal(b) {
		t.Fatal("identical EPSG descriptors must compare equal")
	}
	if a.Equal(c) {
		t.Fatal("4326 and 3857 must not compare equal")
	}
	if !Undefined.Equal(Undefined) {
		t.Fatal("two undefined descriptors compare equal")
	}
	if a.Equal(Undefined) || Undefined.Equal(a) {
		t.Fatal("defined vs undefined must not compare equal")
	}
}

func TestDescriptor_EqualByProj(t *testing.T) {
	a := FromProj("+proj=longlat +datum=WGS84 +no_defs")
	b, _ := FromEPSG(4326)
	if !a.Equal(b) {
		t.Fatal("same projection via proj string and EPSG code must compare equal")
	}
}

func TestProjString_Resolution(t *testing.T) {
	d, _ := FromEPSG(3857)
	p, err := d.ProjString()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p == "" {
		t.Fatal("empty proj string for EPSG:3857")
	}

	if _, err := Undefined.ProjString(); !errors.Is(err, ErrUndefined) {
		t.Fatalf("expected ErrUndefined, got %v", err)
	}
}

func TestDescriptor_String(t *testing.T) {
	d, _ := FromEPSG(4326)
	if got := d.String(); got != "EPSG:4326" {
		t.Fatalf("String got %q", got)
	}
	if got := Undefined.String(); got != "undefined" {
		t.Fatalf("String got %q", got)
	}
}
