// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"bytes"
	"encoding/json"
	"runtime/pprof"
	"strings"
)

// labelledStacks returns the goroutines of the item name, as recorded in the
// goroutine profile through the labels set by Group.Run and Tasks.Go.
func labelledStacks(name string) []byte {
	var profile bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&profile, 1); err != nil {
		return nil
	}
	return filterStacks(profile.Bytes(), name)
}

// filterStacks keeps the records of a debug=1 goroutine profile labelled
// with name or with a task of name, reduced to "count function:line" lines.
func filterStacks(profile []byte, name string) []byte {
	var out []byte
	for _, record := range bytes.Split(profile, []byte("\n\n")) {
		lines := bytes.Split(bytes.TrimSpace(record), []byte("\n"))
		if len(lines) < 2 || !bytes.Contains(lines[0], []byte(" @ ")) {
			continue
		}

		var frames [][]byte
		matched := false
		for _, line := range lines[1:] {
			switch {
			case bytes.HasPrefix(line, []byte("# labels: ")):
				matched = labelled(line[len("# labels: "):], name)
			case bytes.HasPrefix(line, []byte("#\t")):
				// "#\t0x4a1b2c\tpkg.fn+0x45\t/path/file.go:40"
				fields := bytes.Split(line[2:], []byte("\t"))
				if len(fields) < 3 {
					continue
				}
				function := fields[1]
				if plus := bytes.LastIndexByte(function, '+'); plus >= 0 {
					function = function[:plus]
				}
				location := fields[2]
				frame := append(append(append([]byte("\t"), function...), ':'), location[bytes.LastIndexByte(location, ':')+1:]...)
				frames = append(frames, frame)
			}
		}
		if !matched {
			continue
		}

		count, _, _ := bytes.Cut(lines[0], []byte(" @ "))
		out = append(out, count...)
		out = append(out, '\n')
		for _, frame := range frames {
			out = append(out, frame...)
			out = append(out, '\n')
		}
	}
	return out
}

func labelled(labels []byte, name string) bool {
	var values map[string]string
	if err := json.Unmarshal(labels, &values); err != nil {
		return false
	}
	value := values["name"]
	return value == name || strings.HasPrefix(value, name+":")
}
