package convert

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// availableMemoryBytes reads MemAvailable from /proc/meminfo. qemu-img can
// balloon to roughly the virtual size of the source image, so the pipeline
// refuses to spawn it when the host is short on memory.
func availableMemoryBytes() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kib, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kib * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not present in /proc/meminfo")
}
