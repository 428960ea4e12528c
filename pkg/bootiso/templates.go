package bootiso

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/deploykit/bootforge/pkg/errors"
)

const isolinuxTemplateText = `default boot

label boot
kernel /vmlinuz
append initrd=/initrd text {{.KernelParams}} --
`

const grubTemplateText = `set default=0
set timeout=5
set hidden_timeout_quiet=false

menuentry "boot_partition" {
linuxefi /vmlinuz {{.KernelParams}} --
initrdefi /initrd
}
`

type cfgData struct {
	KernelParams string
}

// renderBootConfig renders the boot loader config from the built-in template
// or, when set, an operator-supplied override file.
func renderBootConfig(builtin, overridePath string, params []string) ([]byte, error) {
	text := builtin
	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, errors.Wrap(err, "read boot config template")
		}
		text = string(raw)
	}

	tmpl, err := template.New("bootcfg").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse boot config template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfgData{KernelParams: strings.Join(params, " ")}); err != nil {
		return nil, errors.Wrap(err, "render boot config template")
	}
	return buf.Bytes(), nil
}
