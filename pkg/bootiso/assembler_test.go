package bootiso

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/rootfs"
)

type stubRunner struct {
	calls [][]string
	fn    func(name string, args ...string) ([]byte, error)
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.fn != nil {
		return r.fn(name, args...)
	}
	return nil, nil
}

func testAssembler(t *testing.T, runner *stubRunner) (*Assembler, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		WorkDir:        t.TempDir(),
		GrubConfigPath: "/boot/grub/grub.cfg",
		IsolinuxBin:    writeFile(t, "isolinux.bin", "bin"),
		LdlinuxC32:     writeFile(t, "ldlinux.c32", "c32"),
	}
	fetcher := fetch.NewFetcher(cfg, runner)
	return NewAssembler(cfg, runner, fetcher), cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLabel(t *testing.T) {
	if got := label(nil); got != "VMEDIA_BOOT_ISO" {
		t.Errorf("default label = %q", got)
	}

	entries := []rootfs.Entry{
		{Source: rootfs.BytesSource(nil), Dest: "etc/hosts"},
		{Source: rootfs.BytesSource(nil), Dest: "openstack/latest/meta_data.json"},
	}
	if got := label(entries); got != "config-2" {
		t.Errorf("config drive label = %q, want config-2", got)
	}
}

func TestCreateBootISOUEFIRequiresExactlyOneSource(t *testing.T) {
	runner := &stubRunner{}
	a, _ := testAssembler(t, runner)

	for _, spec := range []Spec{
		{BootMode: "uefi", KernelRef: "k", RamdiskRef: "r"},
		{BootMode: "uefi", KernelRef: "k", RamdiskRef: "r", DeployISORef: "d.iso", ESPImageRef: "esp.img"},
	} {
		err := a.CreateBootISO(context.Background(), spec)
		var ce *CreationError
		if !errors.As(err, &ce) {
			t.Errorf("spec %+v: expected *CreationError, got %v", spec, err)
		}
	}
	if len(runner.calls) != 0 {
		t.Errorf("tools spawned for unbuildable spec: %v", runner.calls)
	}
}

func TestCreateBootISOUnknownMode(t *testing.T) {
	a, _ := testAssembler(t, &stubRunner{})
	err := a.CreateBootISO(context.Background(), Spec{BootMode: "openfirmware"})
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CreationError, got %v", err)
	}
}

func TestCreateBootISOBIOS(t *testing.T) {
	runner := &stubRunner{}
	a, _ := testAssembler(t, runner)

	kernel := writeFile(t, "vmlinuz", "kernel")
	ramdisk := writeFile(t, "initrd", "ramdisk")
	output := filepath.Join(t.TempDir(), "boot.iso")

	spec := Spec{
		BootMode:     BootModeBIOS,
		KernelRef:    kernel,
		RamdiskRef:   ramdisk,
		RootUUID:     "9a5fe606",
		KernelParams: []string{"console=ttyS0"},
		PublisherID:  "deploykit",
		OutputPath:   output,
	}
	if err := a.CreateBootISO(context.Background(), spec); err != nil {
		t.Fatalf("CreateBootISO failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one mkisofs call, got %v", runner.calls)
	}
	call := strings.Join(runner.calls[0], " ")
	for _, frag := range []string{
		"mkisofs -r -V VMEDIA_BOOT_ISO -J -l",
		"-publisher deploykit",
		"-no-emul-boot -boot-load-size 4 -boot-info-table",
		"-b isolinux/isolinux.bin",
		"-o " + output,
	} {
		if !strings.Contains(call, frag) {
			t.Errorf("mkisofs call missing %q: %s", frag, call)
		}
	}

	// The staged tree is gone but the config was rendered before mkisofs
	// ran; verify the root=UUID parameter made it into the call's tree by
	// rendering the template directly.
	cfgBytes, err := renderBootConfig(isolinuxTemplateText, "", []string{"root=UUID=9a5fe606", "console=ttyS0"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(cfgBytes), "root=UUID=9a5fe606 console=ttyS0") {
		t.Errorf("rendered config missing kernel params: %s", cfgBytes)
	}
}

func TestCreateBootISOUEFIWithESP(t *testing.T) {
	runner := &stubRunner{}
	a, _ := testAssembler(t, runner)

	spec := Spec{
		BootMode:    BootModeUEFI,
		KernelRef:   writeFile(t, "vmlinuz", "kernel"),
		RamdiskRef:  writeFile(t, "initrd", "ramdisk"),
		ESPImageRef: writeFile(t, "esp.img", "esp"),
		OutputPath:  filepath.Join(t.TempDir(), "boot.iso"),
	}
	if err := a.CreateBootISO(context.Background(), spec); err != nil {
		t.Fatalf("CreateBootISO failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected one mkisofs call, got %v", runner.calls)
	}
	call := strings.Join(runner.calls[0], " ")
	for _, frag := range []string{
		"mkisofs -r -V VMEDIA_BOOT_ISO -l",
		"-e boot/grub/efiboot.img",
		"-no-emul-boot",
	} {
		if !strings.Contains(call, frag) {
			t.Errorf("mkisofs call missing %q: %s", frag, call)
		}
	}
	if strings.Contains(call, "-publisher") {
		t.Errorf("publisher flag present without a publisher id: %s", call)
	}
}

func TestRenderBootConfigOverride(t *testing.T) {
	override := writeFile(t, "custom.tmpl", "APPEND {{.KernelParams}}\n")

	out, err := renderBootConfig(grubTemplateText, override, []string{"quiet", "splash"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if string(out) != "APPEND quiet splash\n" {
		t.Errorf("rendered = %q", out)
	}
}

func TestCreateVFATImage(t *testing.T) {
	runner := &stubRunner{}
	a, _ := testAssembler(t, runner)

	payload := writeFile(t, "network_data.json", "{}")
	output := filepath.Join(t.TempDir(), "params.img")

	params := map[string]string{"ipa-api-url": "http://10.0.0.1:6385", "boot-option": "local"}
	if err := a.CreateVFATImage(context.Background(), output, []string{payload}, params, "", 100); err != nil {
		t.Fatalf("CreateVFATImage failed: %v", err)
	}

	if len(runner.calls) != 3 {
		t.Fatalf("expected dd, mkfs, mcopy; got %v", runner.calls)
	}

	dd := strings.Join(runner.calls[0], " ")
	if dd != "dd if=/dev/zero of="+output+" count=1 bs=100KiB" {
		t.Errorf("dd call = %s", dd)
	}

	mkfs := strings.Join(runner.calls[1], " ")
	if mkfs != "mkfs -t vfat -n ir-vfd-dev "+output {
		t.Errorf("mkfs call = %s", mkfs)
	}

	mcopy := runner.calls[2]
	if mcopy[0] != "mcopy" || mcopy[1] != "-s" {
		t.Errorf("mcopy call = %v", mcopy)
	}
	joined := strings.Join(mcopy, " ")
	if !strings.Contains(joined, payload) || !strings.HasSuffix(joined, "-i "+output+" ::") {
		t.Errorf("mcopy call = %s", joined)
	}
	if !strings.Contains(joined, "parameters.txt") {
		t.Errorf("parameters file not copied: %s", joined)
	}
}

func TestCreateVFATImageRejectsBadSize(t *testing.T) {
	a, _ := testAssembler(t, &stubRunner{})
	err := a.CreateVFATImage(context.Background(), "out.img", nil, nil, "", 0)
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CreationError, got %v", err)
	}
}

func TestWriteParametersSortedKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.txt")
	err := writeParameters(path, map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a=1\nb=2\n" {
		t.Errorf("parameters = %q", data)
	}
}
