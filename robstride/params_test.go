package robstride

import "testing"

func TestReadParamPayload(t *testing.T) {
	payload := readParamPayload(ParamRunMode)
	expected := [PayloadLen]byte{0x05, 0x70, 0, 0, 0, 0, 0, 0}
	if payload != expected {
		t.Errorf("readParamPayload: got % X, want % X", payload, expected)
	}
}

func TestWriteParamPayload_Float(t *testing.T) {
	// 1.0 as IEEE-754 little-endian is 00 00 80 3F.
	payload := writeParamPayload(ParamPositionRef, Float32Value(1.0))
	expected := [PayloadLen]byte{0x16, 0x70, 0x00, 0x00, 0x00, 0x00, 0x80, 0x3F}
	if payload != expected {
		t.Errorf("writeParamPayload: got % X, want % X", payload, expected)
	}
}

func TestWriteParamPayload_Uint32(t *testing.T) {
	payload := writeParamPayload(ParamRunMode, Uint32Value(uint32(ModePositionCSP)))
	expected := [PayloadLen]byte{0x05, 0x70, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00}
	if payload != expected {
		t.Errorf("writeParamPayload: got % X, want % X", payload, expected)
	}
}

func TestParamValue_Tags(t *testing.T) {
	f := Float32Value(2.5)
	if !f.IsFloat() || f.Float32() != 2.5 {
		t.Errorf("float value: got %v", f)
	}
	u := Uint32Value(5)
	if u.IsFloat() || u.Uint32() != 5 {
		t.Errorf("uint value: got %v", u)
	}
	if f.String() != "2.5" || u.String() != "5" {
		t.Errorf("String: got %q, %q", f.String(), u.String())
	}
}

func TestRunMode_Valid(t *testing.T) {
	for _, m := range []RunMode{ModeOperation, ModePositionPP, ModeVelocity, ModeCurrent, ModePositionCSP} {
		if !validRunMode(m) {
			t.Errorf("mode %s should be valid", m)
		}
	}
	if validRunMode(ModeNone) || validRunMode(RunMode(4)) {
		t.Error("invalid modes accepted")
	}
}
