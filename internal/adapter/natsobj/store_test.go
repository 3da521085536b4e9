package natsobj

import "testing"

func TestParseRef(t *testing.T) {
	s := New("percept-images", nil)

	name, err := s.parse("obj://percept-images/req-1-scan.png")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if name != "req-1-scan.png" {
		t.Fatalf("unexpected object name %q", name)
	}

	bad := []string{
		"http://percept-images/a.png",
		"obj://percept-images",
		"obj://percept-images/",
		"obj://other-bucket/a.png",
	}
	for _, ref := range bad {
		if _, err := s.parse(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func TestParseRefKeepsSlashesInName(t *testing.T) {
	s := New("percept-images", nil)

	name, err := s.parse("obj://percept-images/2026/08/scan.png")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if name != "2026/08/scan.png" {
		t.Fatalf("unexpected object name %q", name)
	}
}
