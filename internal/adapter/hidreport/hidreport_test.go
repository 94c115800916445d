package hidreport

import "testing"

func TestDecodeInputReportEmitsKeyDownThenKeyUp(t *testing.T) {
	d := &Device{pressed: make(map[int]bool)}

	down := d.decodeInputReport([]byte{0x00, 0x01})
	if len(down) != 1 || down[0].KeyCode != 0 {
		t.Fatalf("expected one KeyDown(0), got %v", down)
	}

	same := d.decodeInputReport([]byte{0x00, 0x01})
	if len(same) != 0 {
		t.Fatalf("expected no events while bit stays set, got %v", same)
	}

	up := d.decodeInputReport([]byte{0x00, 0x00})
	if len(up) != 1 || up[0].KeyCode != 0 {
		t.Fatalf("expected one KeyUp(0) when bit clears, got %v", up)
	}
}

func TestDecodeInputReportTracksMultipleKeysIndependently(t *testing.T) {
	d := &Device{pressed: make(map[int]bool)}

	evs := d.decodeInputReport([]byte{0x00, 0x03})
	if len(evs) != 2 {
		t.Fatalf("expected two KeyDowns, got %v", evs)
	}

	evs = d.decodeInputReport([]byte{0x00, 0x01})
	if len(evs) != 1 || evs[0].KeyCode != 1 {
		t.Fatalf("expected KeyUp(1) only, got %v", evs)
	}
}
