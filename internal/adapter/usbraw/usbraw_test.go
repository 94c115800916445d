package usbraw

import "testing"

func TestDecodeReportEmitsKeyDownThenKeyUp(t *testing.T) {
	d := &Device{pressed: make(map[int]bool)}

	down := d.decodeReport([]byte{0x00, 0x01})
	if len(down) != 1 || down[0].KeyCode != 0 {
		t.Fatalf("expected one KeyDown(0), got %v", down)
	}

	same := d.decodeReport([]byte{0x00, 0x01})
	if len(same) != 0 {
		t.Fatalf("expected no events while bit stays set, got %v", same)
	}

	up := d.decodeReport([]byte{0x00, 0x00})
	if len(up) != 1 || up[0].KeyCode != 0 {
		t.Fatalf("expected one KeyUp(0) when bit clears, got %v", up)
	}
}
