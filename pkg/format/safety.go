package format

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// vmdkAllowedCreateTypes are the only self-contained VMDK subtypes; every
// other createType references extent files outside the image.
var vmdkAllowedCreateTypes = map[string]bool{
	"monolithicSparse": true,
	"streamOptimized":  true,
}

// SafetyCheck inspects format-specific metadata for features that must not
// be accepted from untrusted images: external backing or data file
// references, differencing parents, and encryption wrappers. It returns a
// *SafetyCheckError naming the offending feature, or nil.
func (d *Descriptor) SafetyCheck() error {
	switch d.Format {
	case FormatQCOW2:
		return d.safetyCheckQCOW2()
	case FormatQED:
		return d.safetyCheckQED()
	case FormatVHD:
		return d.safetyCheckVHD()
	case FormatVMDK:
		return d.safetyCheckVMDK()
	}
	// raw, gpt, iso, vhdx, vdi carry no external references in the
	// regions we admit.
	return nil
}

func (d *Descriptor) safetyCheckQCOW2() error {
	buf := d.header
	if len(buf) < 36 {
		return &SafetyCheckError{Format: d.Format, Reason: "truncated header"}
	}
	if be64(buf, 8) != 0 {
		return &SafetyCheckError{Format: d.Format, Reason: "backing file referenced"}
	}
	if be32(buf, 32) != 0 {
		return &SafetyCheckError{Format: d.Format, Reason: "encryption in use"}
	}
	// Version 3 images can point payload at an external data file
	// (incompatible feature bit 2).
	if be32(buf, 4) >= 3 && len(buf) >= 80 && be64(buf, 72)&0x4 != 0 {
		return &SafetyCheckError{Format: d.Format, Reason: "external data file referenced"}
	}
	return nil
}

func (d *Descriptor) safetyCheckQED() error {
	buf := d.header
	if len(buf) < 56 {
		return &SafetyCheckError{Format: d.Format, Reason: "truncated header"}
	}
	const qedBackingFile = 0x01
	if le64(buf, 16)&qedBackingFile != 0 || le32(buf, 48) != 0 {
		return &SafetyCheckError{Format: d.Format, Reason: "backing file referenced"}
	}
	return nil
}

func (d *Descriptor) safetyCheckVHD() error {
	buf := d.header
	if len(buf) < 64 {
		return &SafetyCheckError{Format: d.Format, Reason: "truncated footer"}
	}
	const vhdDifferencing = 4
	if be32(buf, 60) == vhdDifferencing {
		return &SafetyCheckError{Format: d.Format, Reason: "differencing disk references a parent"}
	}
	return nil
}

func (d *Descriptor) safetyCheckVMDK() error {
	desc := vmdkDescriptorText(d.header)
	if desc == "" {
		return &SafetyCheckError{Format: d.Format, Reason: "descriptor not found in admitted region"}
	}
	createType := ""
	scanner := bufio.NewScanner(strings.NewReader(desc))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "parentFileNameHint") {
			return &SafetyCheckError{Format: d.Format, Reason: "parent file referenced"}
		}
		if strings.HasPrefix(line, "createType") {
			if _, v, ok := strings.Cut(line, "="); ok {
				createType = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
	}
	if !vmdkAllowedCreateTypes[createType] {
		return &SafetyCheckError{Format: d.Format, Reason: "createType " + strconv.Quote(createType) + " not allowed"}
	}
	return nil
}

// vmdkDescriptorText locates the text descriptor: either the whole file for
// descriptor-file VMDKs, or the embedded region named by the sparse header.
func vmdkDescriptorText(buf []byte) string {
	if hasAt(buf, 0, []byte("# Disk DescriptorFile")) {
		return string(bytes.Trim(buf, "\x00"))
	}
	if !hasAt(buf, 0, []byte("KDMV")) || len(buf) < 44 {
		return ""
	}
	off := int64(le64(buf, 28)) * 512
	size := int64(le64(buf, 36)) * 512
	if off <= 0 || size <= 0 || off >= int64(len(buf)) {
		return ""
	}
	end := off + size
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	return string(bytes.Trim(buf[off:end], "\x00"))
}

// descriptorCapacity parses the sector count from the first extent line of
// a text descriptor, e.g. `RW 4192256 SPARSE "disk.vmdk"`.
func descriptorCapacity(buf []byte) int64 {
	desc := vmdkDescriptorText(buf)
	scanner := bufio.NewScanner(strings.NewReader(desc))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 3 && (fields[0] == "RW" || fields[0] == "RDONLY" || fields[0] == "NOACCESS") {
			if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
