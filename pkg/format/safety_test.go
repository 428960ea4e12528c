package format

import (
	"encoding/binary"
	"errors"
	"testing"
)

func inspectBytes(t *testing.T, data []byte) *Descriptor {
	t.Helper()
	desc, err := NewInspector().Inspect(writeImage(t, data))
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	return desc
}

func TestSafetyCheckQCOW2Clean(t *testing.T) {
	desc := inspectBytes(t, qcow2Header(1<<20))
	if err := desc.SafetyCheck(); err != nil {
		t.Errorf("clean qcow2 failed safety check: %v", err)
	}
}

func TestSafetyCheckQCOW2BackingFile(t *testing.T) {
	buf := qcow2Header(1 << 20)
	binary.BigEndian.PutUint64(buf[8:], 0x200) // backing file offset
	desc := inspectBytes(t, buf)

	err := desc.SafetyCheck()
	var sc *SafetyCheckError
	if !errors.As(err, &sc) {
		t.Fatalf("expected *SafetyCheckError, got %v", err)
	}
}

func TestSafetyCheckQCOW2Encryption(t *testing.T) {
	buf := qcow2Header(1 << 20)
	binary.BigEndian.PutUint32(buf[32:], 1) // AES crypt method
	desc := inspectBytes(t, buf)

	if desc.SafetyCheck() == nil {
		t.Error("encrypted qcow2 passed safety check")
	}
}

func TestSafetyCheckQCOW2ExternalDataFile(t *testing.T) {
	buf := qcow2Header(1 << 20)
	binary.BigEndian.PutUint32(buf[4:], 3)
	binary.BigEndian.PutUint64(buf[72:], 0x4) // external data file bit
	desc := inspectBytes(t, buf)

	if desc.SafetyCheck() == nil {
		t.Error("qcow2 with external data file passed safety check")
	}
}

func TestSafetyCheckQED(t *testing.T) {
	buf := make([]byte, 4096)
	copy(buf, "QED\x00")
	binary.LittleEndian.PutUint64(buf[40:], 1<<20)
	desc := inspectBytes(t, buf)
	if desc.Format != FormatQED {
		t.Fatalf("format = %s, want qed", desc.Format)
	}
	if err := desc.SafetyCheck(); err != nil {
		t.Errorf("clean qed failed safety check: %v", err)
	}

	binary.LittleEndian.PutUint64(buf[16:], 0x01) // backing file feature
	desc = inspectBytes(t, buf)
	if desc.SafetyCheck() == nil {
		t.Error("qed with backing file passed safety check")
	}
}

func TestSafetyCheckVHDDifferencing(t *testing.T) {
	buf := make([]byte, 1024)
	copy(buf, "conectix")
	binary.BigEndian.PutUint32(buf[60:], 4) // differencing
	desc := inspectBytes(t, buf)

	if desc.SafetyCheck() == nil {
		t.Error("differencing vhd passed safety check")
	}

	binary.BigEndian.PutUint32(buf[60:], 3) // dynamic
	desc = inspectBytes(t, buf)
	if err := desc.SafetyCheck(); err != nil {
		t.Errorf("dynamic vhd failed safety check: %v", err)
	}
}

func TestSafetyCheckVMDK(t *testing.T) {
	tests := []struct {
		name string
		desc string
		safe bool
	}{
		{
			name: "monolithic sparse",
			desc: "# Disk DescriptorFile\ncreateType=\"monolithicSparse\"\nRW 4192256 SPARSE \"disk.vmdk\"\n",
			safe: true,
		},
		{
			name: "stream optimized",
			desc: "# Disk DescriptorFile\ncreateType=\"streamOptimized\"\nRW 4192256 SPARSE \"disk.vmdk\"\n",
			safe: true,
		},
		{
			name: "split extents",
			desc: "# Disk DescriptorFile\ncreateType=\"twoGbMaxExtentFlat\"\nRW 4192256 FLAT \"disk-f001.vmdk\" 0\n",
			safe: false,
		},
		{
			name: "parent hint",
			desc: "# Disk DescriptorFile\ncreateType=\"monolithicSparse\"\nparentFileNameHint=\"base.vmdk\"\nRW 4192256 SPARSE \"disk.vmdk\"\n",
			safe: false,
		},
		{
			name: "missing createType",
			desc: "# Disk DescriptorFile\nRW 4192256 SPARSE \"disk.vmdk\"\n",
			safe: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := inspectBytes(t, []byte(tt.desc))
			if desc.Format != FormatVMDK {
				t.Fatalf("format = %s, want vmdk", desc.Format)
			}
			err := desc.SafetyCheck()
			if tt.safe && err != nil {
				t.Errorf("expected safe, got %v", err)
			}
			if !tt.safe && err == nil {
				t.Error("expected safety check failure")
			}
		})
	}
}

func TestSafetyCheckPassthroughFormats(t *testing.T) {
	for _, desc := range []*Descriptor{
		{Format: FormatRaw},
		{Format: FormatGPT},
		{Format: FormatISO},
		{Format: FormatVHDX},
		{Format: FormatVDI},
	} {
		if err := desc.SafetyCheck(); err != nil {
			t.Errorf("%s should have no safety checks, got %v", desc.Format, err)
		}
	}
}
