package robstride

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame_AdapterVector(t *testing.T) {
	// Identity probe for motor 127 from host 253, empty payload.
	frame := EncodeFrame(CmdGetDeviceID, 127, 253, [PayloadLen]byte{})

	expected := []byte{
		0x41, 0x54, // "AT"
		0x00, 0x07, 0xEB, 0xFC, // ((0<<24 | 253<<8 | 127) << 3) | 0b100
		0x08,                                           // extended frame flag
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // payload
		0x0D, 0x0A, // terminator
	}

	if !bytes.Equal(frame, expected) {
		t.Errorf("EncodeFrame: got % X, want % X", frame, expected)
	}
}

func TestEncodeFrame_FixedLength(t *testing.T) {
	cmds := []CommandType{CmdGetDeviceID, CmdEnable, CmdDisable, CmdReadParam, CmdWriteParam}
	for _, cmd := range cmds {
		for _, motorID := range []uint8{0, 1, 64, 127} {
			for _, secondary := range []uint16{0, 253, 0xFFFF} {
				frame := EncodeFrame(cmd, motorID, secondary, [PayloadLen]byte{0xDE, 0xAD, 0xBE, 0xEF})
				if len(frame) != FrameLen {
					t.Fatalf("EncodeFrame(%#02x, %d, %d): length %d, want %d",
						byte(cmd), motorID, secondary, len(frame), FrameLen)
				}
			}
		}
	}
}

// respSecondary packs status and fault bits into the secondary-id field so
// that an encoded frame decodes to the given response fields.
func respSecondary(status MotorStatus, faults FaultFlags, motorID uint8) uint16 {
	return uint16(status)<<14 | uint16(faults)<<8 | uint16(motorID)
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	cases := []struct {
		status MotorStatus
		faults FaultFlags
	}{
		{StatusReset, 0},
		{StatusCalibration, 0},
		{StatusRun, 0},
		{StatusRun, FaultUndervoltage},
		{StatusReset, FaultOvercurrent | FaultUncalibrated},
		{StatusRun, 0x3F},
	}

	for _, tc := range cases {
		payload := [PayloadLen]byte{1, 2, 3, 4, 5, 6, 7, 8}
		frame := EncodeFrame(0x02, 7, respSecondary(tc.status, tc.faults, 7), payload)

		info, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if info.Status != tc.status {
			t.Errorf("status: got %s, want %s", info.Status, tc.status)
		}
		if info.Faults != tc.faults {
			t.Errorf("faults: got %s, want %s", info.Faults, tc.faults)
		}
		if info.MotorID != 7 {
			t.Errorf("motor id: got %d, want 7", info.MotorID)
		}
		if info.Payload != payload {
			t.Errorf("payload: got % X, want % X", info.Payload, payload)
		}
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	valid := EncodeFrame(CmdGetDeviceID, 1, 253, [PayloadLen]byte{})

	cases := map[string][]byte{
		"empty":          {},
		"short":          valid[:12],
		"long":           append(append([]byte{}, valid...), 0x00),
		"bad header":     append([]byte{'X', 'T'}, valid[2:]...),
		"bad terminator": append(append([]byte{}, valid[:15]...), 0x0A, 0x0D),
	}

	for name, data := range cases {
		if _, err := DecodeFrame(data); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("%s: got %v, want ErrMalformedResponse", name, err)
		}
	}
}

func TestFaultFlags_String(t *testing.T) {
	if got := FaultFlags(0).String(); got != "none" {
		t.Errorf("no faults: got %q", got)
	}
	got := (FaultOvercurrent | FaultUncalibrated).String()
	if got != "overcurrent,uncalibrated" {
		t.Errorf("faults: got %q", got)
	}
}
